package sensors

import "codeberg.org/mutker/tufctl/internal/errors"

const (
	ErrMalformedStat      = errors.ErrorCode("sensors_malformed_stat_line")
	ErrNVMLInitFailed     = errors.ErrorCode("sensors_nvml_init_failed")
	ErrNVMLDeviceNotFound = errors.ErrorCode("sensors_nvml_device_not_found")
)

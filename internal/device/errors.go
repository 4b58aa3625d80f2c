package device

import "codeberg.org/mutker/tufctl/internal/errors"

const (
	ErrReadFailed  = errors.ErrorCode("device_read_failed")
	ErrWriteFailed = errors.ErrorCode("device_write_failed")
)

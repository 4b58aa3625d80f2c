package sensors

import (
	"codeberg.org/mutker/tufctl/internal/errors"
	"codeberg.org/mutker/tufctl/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlReader queries utilization straight from the driver instead of the
// report file.
type nvmlReader struct {
	device nvml.Device
}

func newNVMLReader() (*nvmlReader, error) {
	errFactory := errors.New()

	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, errFactory.WithData(ErrNVMLInitFailed, nvml.ErrorString(ret))
	}

	device, ret := nvml.DeviceGetHandleByIndex(0)
	if ret != nvml.SUCCESS {
		nvml.Shutdown()
		return nil, errFactory.WithData(ErrNVMLDeviceNotFound, nvml.ErrorString(ret))
	}

	return &nvmlReader{device: device}, nil
}

func (r *nvmlReader) Utilization() int {
	rates, ret := r.device.GetUtilizationRates()
	if ret != nvml.SUCCESS {
		logger.Error().Str("nvml", nvml.ErrorString(ret)).Msg("failed to get GPU utilization")
		return 0
	}

	return clamp(int(rates.Gpu), 0, 100)
}

func (r *nvmlReader) Shutdown() {
	nvml.Shutdown()
}

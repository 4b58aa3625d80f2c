// Package keyboard drives the RGB backlight from live CPU and GPU
// utilization: blue-dominant at idle, red-dominant at CPU saturation,
// green-dominant at GPU saturation, with smooth blends in between.
package keyboard

import (
	"context"
	"math"
	"strconv"
	"time"

	"codeberg.org/mutker/tufctl/internal/config"
	"codeberg.org/mutker/tufctl/internal/device"
	"codeberg.org/mutker/tufctl/internal/logger"
	"codeberg.org/mutker/tufctl/internal/sensors"
)

const (
	maxChannel     = 255
	fullBrightness = 1.0

	sampleWindow   = 500 * time.Millisecond
	batteryRefresh = time.Second
	chargerRefresh = 100 * time.Millisecond
	errorCooldown  = 5 * time.Second
)

type RGB struct {
	Red, Green, Blue int
}

// Color maps utilization percentages onto the three channels. The
// coefficient dims the whole frame; values round half up.
func Color(cpu, gpu int, coef float64) RGB {
	cpuChan := float64(cpu) * maxChannel / 100
	gpuChan := float64(gpu) * maxChannel / 100

	return RGB{
		Red:   int(math.Round(coef * cpuChan)),
		Green: int(math.Round(coef * gpuChan)),
		Blue:  int(math.Round(coef * (maxChannel - math.Max(cpuChan, gpuChan)))),
	}
}

// RefreshInterval returns the per-tick sleep: much faster on AC to track
// fast utilization swings, slower on battery to save power.
func RefreshInterval(onBattery bool) time.Duration {
	if onBattery {
		return batteryRefresh
	}

	return chargerRefresh
}

type Controller struct {
	files   *device.Files
	paths   config.Paths
	power   *sensors.Sensors
	cpu     *sensors.CPUSampler
	gpu     sensors.GPUReader
	dimCoef float64
	window  time.Duration
	dimmed  bool
}

func New(
	files *device.Files,
	paths config.Paths,
	power *sensors.Sensors,
	cpu *sensors.CPUSampler,
	gpu sensors.GPUReader,
	dimCoef float64,
) *Controller {
	return &Controller{
		files:   files,
		paths:   paths,
		power:   power,
		cpu:     cpu,
		gpu:     gpu,
		dimCoef: dimCoef,
		window:  sampleWindow,
	}
}

// Run loops until the context is cancelled. A failed iteration logs and
// cools down; it never terminates the loop.
func (c *Controller) Run(ctx context.Context) error {
	logger.Info().Msg("Keyboard LED controller started")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := c.tick(ctx); err != nil {
			logger.Error().Err(err).Msg("error in keyboard LED control")
			sleep(ctx, errorCooldown)
		}
	}
}

func (c *Controller) tick(ctx context.Context) error {
	prev, err := c.cpu.Sample()
	if err != nil {
		return err
	}
	if !sleep(ctx, c.window) {
		return nil
	}
	cur, err := c.cpu.Sample()
	if err != nil {
		return err
	}

	cpuUtil := sensors.Utilization(prev, cur)
	gpuUtil := c.gpu.Utilization()

	coef := fullBrightness
	if c.dimmed {
		coef = c.dimCoef
	}

	if err := c.apply(Color(cpuUtil, gpuUtil, coef)); err != nil {
		return err
	}

	c.dimmed = !c.dimmed
	sleep(ctx, RefreshInterval(c.power.OnBattery()))

	return nil
}

// apply writes the three channels, then the commit signal that latches
// them into a single hardware state change.
func (c *Controller) apply(color RGB) error {
	channels := []struct {
		attr  string
		value int
	}{
		{"red", color.Red},
		{"green", color.Green},
		{"blue", color.Blue},
	}

	for _, ch := range channels {
		if err := c.files.Write(c.paths.Kbbl(ch.attr), strconv.Itoa(ch.value)); err != nil {
			return err
		}
	}

	return c.files.Write(c.paths.Kbbl("apply"), "1")
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

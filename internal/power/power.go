// Package power keeps the platform power profile, GPU power mode and fan
// boost mode in line with the power source, and boosts the fans when the
// thermal zones run hot.
package power

import (
	"context"
	"strconv"
	"time"

	"codeberg.org/mutker/tufctl/internal/config"
	"codeberg.org/mutker/tufctl/internal/device"
	"codeberg.org/mutker/tufctl/internal/logger"
	"codeberg.org/mutker/tufctl/internal/sensors"
)

type Profile int

const (
	ProfileBalanced    Profile = 0
	ProfilePerformance Profile = 1
	ProfilePowersave   Profile = 2
)

type GPUMode int

const (
	GPUEco      GPUMode = 0
	GPUStandard GPUMode = 1
	GPUBoost    GPUMode = 2
)

type FanMode int

const (
	FanNormal FanMode = 0
	FanBoost  FanMode = 1
	FanSilent FanMode = 2
)

const (
	boostTemperature  = 75.0
	normalTemperature = 70.0
	milliDegrees      = 1000.0

	profileInterval = 2 * time.Second
	fanInterval     = 2 * time.Second
	errorCooldown   = 5 * time.Second
)

// Settings is the target triple for one power state. SetFan is false when
// the fan mode must be left alone (battery with performance mode).
type Settings struct {
	Profile Profile
	GPUMode GPUMode
	FanMode FanMode
	SetFan  bool
}

// TargetSettings maps power source and performance mode onto the profile
// triple.
func TargetSettings(onBattery, performance bool) Settings {
	switch {
	case onBattery:
		return Settings{
			Profile: ProfilePowersave,
			GPUMode: GPUEco,
			FanMode: FanSilent,
			SetFan:  !performance,
		}
	case performance:
		return Settings{
			Profile: ProfilePerformance,
			GPUMode: GPUBoost,
			FanMode: FanBoost,
			SetFan:  true,
		}
	default:
		return Settings{
			Profile: ProfileBalanced,
			GPUMode: GPUStandard,
			FanMode: FanNormal,
			SetFan:  true,
		}
	}
}

// TargetFanMode applies the auto-fan thresholds: boost at or above the hot
// threshold, back to normal only once well below it.
func TargetFanMode(maxTemp float64, current FanMode) (FanMode, bool) {
	if maxTemp >= boostTemperature && current != FanBoost {
		return FanBoost, true
	}
	if maxTemp < normalTemperature && current == FanBoost {
		return FanNormal, true
	}

	return current, false
}

type Controller struct {
	files       *device.Files
	paths       config.Paths
	sensors     *sensors.Sensors
	performance bool
}

func New(files *device.Files, paths config.Paths, sens *sensors.Sensors, performance bool) *Controller {
	return &Controller{
		files:       files,
		paths:       paths,
		sensors:     sens,
		performance: performance,
	}
}

// RunProfile keeps the power settings aligned with the power source.
func (c *Controller) RunProfile(ctx context.Context) error {
	logger.Info().Msg("Power profile controller started")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := c.Optimize(c.sensors.OnBattery(), c.performance); err != nil {
			logger.Error().Err(err).Msg("error in power control")
			sleep(ctx, errorCooldown)
			continue
		}
		sleep(ctx, profileInterval)
	}
}

// RunAutoFan boosts the fans when either thermal zone runs hot.
func (c *Controller) RunAutoFan(ctx context.Context) error {
	logger.Info().Msg("Auto fan controller started")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := c.autoFanTick(); err != nil {
			logger.Error().Err(err).Msg("error in auto fan control")
			sleep(ctx, errorCooldown)
			continue
		}
		sleep(ctx, fanInterval)
	}
}

// Optimize applies the target settings, writing only the values that
// differ from what the driver currently reports.
func (c *Controller) Optimize(onBattery, performance bool) error {
	target := TargetSettings(onBattery, performance)

	if err := c.writeOnChange(c.paths.PowerProfile(), int(target.Profile), "power profile"); err != nil {
		return err
	}
	if err := c.writeOnChange(c.paths.GPUPower(), int(target.GPUMode), "GPU power mode"); err != nil {
		return err
	}
	if target.SetFan {
		if err := c.writeOnChange(c.paths.FanBoostMode(), int(target.FanMode), "fan boost mode"); err != nil {
			return err
		}
	}

	return nil
}

func (c *Controller) autoFanTick() error {
	cpuTemp, gpuTemp := c.Temperatures()
	maxTemp := cpuTemp
	if gpuTemp > maxTemp {
		maxTemp = gpuTemp
	}

	current := FanMode(c.readMode(c.paths.FanBoostMode()))
	target, change := TargetFanMode(maxTemp, current)
	if !change {
		return nil
	}

	if err := c.files.Write(c.paths.FanBoostMode(), strconv.Itoa(int(target))); err != nil {
		return err
	}
	logger.Info().
		Float64("max_temp", maxTemp).
		Int("fan_mode", int(target)).
		Msg("Fan boost mode changed")

	return nil
}

// Temperatures reads the CPU and GPU thermal zones in degrees Celsius.
// Failures degrade to 0 so a missing zone never boosts the fans.
func (c *Controller) Temperatures() (cpuTemp, gpuTemp float64) {
	return c.readTemperature(c.paths.CPUTemp), c.readTemperature(c.paths.GPUTemp)
}

func (c *Controller) readTemperature(path string) float64 {
	content, err := c.files.Read(path)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read temperature")
		return 0
	}

	milli, err := strconv.ParseFloat(content, 64)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to parse temperature")
		return 0
	}

	return milli / milliDegrees
}

func (c *Controller) readMode(path string) int {
	content, err := c.files.Read(path)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read mode")
		return 0
	}

	mode, err := strconv.Atoi(content)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to parse mode")
		return 0
	}

	return mode
}

func (c *Controller) writeOnChange(path string, target int, what string) error {
	if c.readMode(path) == target {
		return nil
	}

	if err := c.files.Write(path, strconv.Itoa(target)); err != nil {
		return err
	}
	logger.Info().Int("value", target).Msgf("%s changed", what)

	return nil
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

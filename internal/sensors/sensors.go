// Package sensors turns the machine's pseudo-files into typed readings.
// Every reader absorbs its own failures: I/O and parse errors map to a
// safe default (0 or false) and a log line, never to a propagated error.
package sensors

import (
	"strconv"
	"strings"

	"codeberg.org/mutker/tufctl/internal/config"
	"codeberg.org/mutker/tufctl/internal/device"
	"codeberg.org/mutker/tufctl/internal/logger"
)

const dischargingToken = "Discharging"

type Sensors struct {
	files *device.Files
	paths config.Paths
}

func New(files *device.Files, paths config.Paths) *Sensors {
	return &Sensors{
		files: files,
		paths: paths,
	}
}

// OnBattery reports whether the machine is discharging. Read failures map
// to false so AC behavior is the fail-safe.
func (s *Sensors) OnBattery() bool {
	status, err := s.files.Read(s.paths.BatteryStatus)
	if err != nil {
		logger.Error().Err(err).Msg("failed to check battery status")
		return false
	}

	return strings.Contains(status, dischargingToken)
}

// GameMode reads the shared gamemode flag written by the gamemode daemon.
func (s *Sensors) GameMode() int {
	content, err := s.files.Read(s.paths.GameMode)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read gamemode status")
		return 0
	}

	mode, err := strconv.Atoi(content)
	if err != nil {
		logger.Error().Err(err).Msg("failed to parse gamemode status")
		return 0
	}
	if mode != 1 {
		return 0
	}

	return 1
}

// ThermalPolicy reads the driver's current throttle policy.
func (s *Sensors) ThermalPolicy() int {
	content, err := s.files.Read(s.paths.ThrottlePolicy())
	if err != nil {
		logger.Error().Err(err).Msg("failed to read thermal throttle policy")
		return 0
	}

	policy, err := strconv.Atoi(content)
	if err != nil {
		logger.Error().Err(err).Msg("failed to parse thermal throttle policy")
		return 0
	}

	return policy
}

func clamp(value, minValue, maxValue int) int {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}

	return value
}

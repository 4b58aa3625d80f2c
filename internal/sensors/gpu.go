package sensors

import (
	"os/exec"
	"strconv"
	"strings"

	"codeberg.org/mutker/tufctl/internal/config"
	"codeberg.org/mutker/tufctl/internal/device"
	"codeberg.org/mutker/tufctl/internal/logger"
)

// GPUReader reports GPU utilization as a percentage in [0, 100].
// Implementations absorb their own failures and fall back to 0.
type GPUReader interface {
	Utilization() int
}

// NewGPUReader selects the utilization source from configuration. When the
// NVML source is requested but the library cannot be initialized, the
// report reader takes over so the daemon still comes up.
func NewGPUReader(cfg config.GPU, files *device.Files) GPUReader {
	if cfg.Source == "nvml" {
		reader, err := newNVMLReader()
		if err == nil {
			logger.Info().Msg("GPU utilization source: NVML")
			return reader
		}
		logger.Warn().Err(err).Msg("NVML unavailable, falling back to report reader")
	}

	return &reportReader{
		files:   files,
		command: strings.Fields(cfg.Command),
		path:    cfg.Report,
		line:    cfg.ReportLine,
	}
}

// reportReader regenerates and parses the report file written by the
// vendor query tool. The line offset is a brittle contract with the tool's
// current output format; any unexpected shape degrades to 0, never to a
// fault.
type reportReader struct {
	files   *device.Files
	command []string
	path    string
	line    int
}

func (r *reportReader) Utilization() int {
	if len(r.command) > 0 {
		if err := exec.Command(r.command[0], r.command[1:]...).Run(); err != nil {
			logger.Error().Err(err).Str("command", r.command[0]).Msg("GPU query tool failed")
			return 0
		}
	}

	content, err := r.files.ReadRaw(r.path)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read GPU utilization report")
		return 0
	}

	lines := strings.Split(content, "\n")
	if r.line >= len(lines) {
		logger.Error().
			Int("line", r.line).
			Int("lines", len(lines)).
			Msg("GPU utilization report shorter than expected")
		return 0
	}

	return parseUtilizationLine(lines[r.line])
}

func parseUtilizationLine(line string) int {
	_, value, found := strings.Cut(line, ":")
	if !found {
		logger.Error().Str("line", line).Msg("unexpected GPU utilization line format")
		return 0
	}

	value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "%"))
	percent, err := strconv.Atoi(value)
	if err != nil {
		logger.Error().Err(err).Str("line", line).Msg("failed to parse GPU utilization")
		return 0
	}

	return clamp(percent, 0, 100)
}

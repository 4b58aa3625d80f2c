package config

import (
	"os"
	"path/filepath"

	"codeberg.org/mutker/tufctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel        = "info"
	defaultFaustusPath     = "/sys/devices/platform/faustus"
	defaultBatteryStatus   = "/sys/class/power_supply/BAT1/status"
	defaultProcStat        = "/proc/stat"
	defaultGameModePath    = "/run/gamemode"
	defaultSchedTunable    = "/proc/sys/kernel/sched_tt_balancer_opt"
	defaultCPUTempPath     = "/sys/class/thermal/thermal_zone0/temp"
	defaultGPUTempPath     = "/sys/class/thermal/thermal_zone1/temp"
	defaultGPUReportPath   = "/run/nvidiautilization"
	defaultGPUCommand      = "nvidia-smi -q -d UTILIZATION -f /run/nvidiautilization"
	defaultGPUReportLine   = 9
	defaultDimBrightness   = 0.8
	defaultCompilerPattern = "clang"
	defaultTelemetryDB     = "/var/lib/tufctl/telemetry.db"
)

// Paths locates the pseudo-files this daemon reads and writes. Every path
// is a whole-file read/write surface; overriding them points the daemon at
// a fake tree in tests.
type Paths struct {
	Faustus       string `mapstructure:"faustus"`
	BatteryStatus string `mapstructure:"battery_status"`
	ProcStat      string `mapstructure:"proc_stat"`
	GameMode      string `mapstructure:"gamemode"`
	SchedTunable  string `mapstructure:"sched_tunable"`
	CPUTemp       string `mapstructure:"cpu_temp"`
	GPUTemp       string `mapstructure:"gpu_temp"`
}

// Kbbl returns the path of a keyboard backlight attribute
// (kbbl_mode, kbbl_speed, kbbl_flags, red, green, blue, apply).
func (p Paths) Kbbl(attr string) string {
	return filepath.Join(p.Faustus, "kbbl", attr)
}

func (p Paths) ThrottlePolicy() string {
	return filepath.Join(p.Faustus, "throttle_thermal_policy")
}

func (p Paths) FanBoostMode() string {
	return filepath.Join(p.Faustus, "fan_boost_mode")
}

func (p Paths) PowerProfile() string {
	return filepath.Join(p.Faustus, "power_profile")
}

func (p Paths) GPUPower() string {
	return filepath.Join(p.Faustus, "gpu_power")
}

// GPU configures the GPU utilization source. The report reader shells out
// to the configured command and parses a fixed line of its report file; the
// line offset and report path are a brittle contract with the tool's current
// output format, which is why both live here instead of in code.
type GPU struct {
	Source     string `mapstructure:"source"` // "report" or "nvml"
	Command    string `mapstructure:"command"`
	Report     string `mapstructure:"report"`
	ReportLine int    `mapstructure:"report_line"`
}

// LED configures the keyboard backlight controller.
type LED struct {
	DimBrightness float64 `mapstructure:"dim_brightness"`
}

// Thermal configures the thermal policy controller.
type Thermal struct {
	CompilerPattern string `mapstructure:"compiler_pattern"`
}

type Config struct {
	LogLevel    string  `mapstructure:"log_level"`
	Telemetry   bool    `mapstructure:"telemetry"`
	TelemetryDB string  `mapstructure:"database"`
	Performance bool    `mapstructure:"performance"`
	Paths       Paths   `mapstructure:"paths"`
	GPU         GPU     `mapstructure:"gpu"`
	LED         LED     `mapstructure:"led"`
	Thermal     Thermal `mapstructure:"thermal"`
}

func Load() (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	setDefaults(v)

	flags := pflag.NewFlagSet("tufctl", pflag.ContinueOnError)
	flags.ParseErrorsWhitelist.UnknownFlags = true
	flags.String("log-level", "", "Log level (debug, info, warning, error)")
	flags.Bool("performance", false, "Performance mode: bias power settings toward performance")
	flags.Bool("telemetry", false, "Enable telemetry collection")
	flags.String("database", "", "Path to the telemetry database")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v.SetConfigName("tufctl")
	v.SetConfigType("toml")
	v.AddConfigPath("/etc")
	if path := os.Getenv("TUFCTL_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err).
				WithMessage("Failed to read config file")
		}
	}

	// Only explicitly set flags override file values
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "log-level":
			v.Set("log_level", f.Value.String())
		default:
			v.Set(f.Name, f.Value.String())
		}
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	errFactory := errors.New()

	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.GPU.Source != "report" && c.GPU.Source != "nvml" {
		return errFactory.WithData(errors.ErrInvalidConfig, "gpu.source must be \"report\" or \"nvml\"")
	}

	if c.GPU.ReportLine < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "gpu.report_line must not be negative")
	}

	if c.LED.DimBrightness <= 0 || c.LED.DimBrightness > 1 {
		return errFactory.WithData(errors.ErrInvalidConfig, "led.dim_brightness must be in (0, 1]")
	}

	if c.Telemetry && c.TelemetryDB == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "database path required when telemetry is enabled")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("telemetry", false)
	v.SetDefault("database", defaultTelemetryDB)
	v.SetDefault("performance", false)

	v.SetDefault("paths.faustus", defaultFaustusPath)
	v.SetDefault("paths.battery_status", defaultBatteryStatus)
	v.SetDefault("paths.proc_stat", defaultProcStat)
	v.SetDefault("paths.gamemode", defaultGameModePath)
	v.SetDefault("paths.sched_tunable", defaultSchedTunable)
	v.SetDefault("paths.cpu_temp", defaultCPUTempPath)
	v.SetDefault("paths.gpu_temp", defaultGPUTempPath)

	v.SetDefault("gpu.source", "report")
	v.SetDefault("gpu.command", defaultGPUCommand)
	v.SetDefault("gpu.report", defaultGPUReportPath)
	v.SetDefault("gpu.report_line", defaultGPUReportLine)

	v.SetDefault("led.dim_brightness", defaultDimBrightness)

	v.SetDefault("thermal.compiler_pattern", defaultCompilerPattern)
}

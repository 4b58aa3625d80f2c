package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/tufctl/internal/config"
	"codeberg.org/mutker/tufctl/internal/device"
	"codeberg.org/mutker/tufctl/internal/keyboard"
	"codeberg.org/mutker/tufctl/internal/logger"
	"codeberg.org/mutker/tufctl/internal/pid"
	"codeberg.org/mutker/tufctl/internal/power"
	"codeberg.org/mutker/tufctl/internal/procscan"
	"codeberg.org/mutker/tufctl/internal/sensors"
	"codeberg.org/mutker/tufctl/internal/supervisor"
	"codeberg.org/mutker/tufctl/internal/telemetry"
	"codeberg.org/mutker/tufctl/internal/thermal"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := run(); err != nil {
		logger.Error().Err(err).Msg("tufctl failed")
		os.Exit(1)
	}
}

func run() error {
	if err := pid.Write(); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	collector, err := telemetry.NewService(telemetry.Config{
		Enabled: cfg.Telemetry,
		DBPath:  cfg.TelemetryDB,
	})
	if err != nil {
		return err
	}
	defer collector.Close()

	files := device.New(device.DefaultRetryPolicy())
	sens := sensors.New(files, cfg.Paths)

	gpuReader := sensors.NewGPUReader(cfg.GPU, files)
	if nvmlReader, ok := gpuReader.(interface{ Shutdown() }); ok {
		defer nvmlReader.Shutdown()
	}

	leds := keyboard.New(
		files,
		cfg.Paths,
		sens,
		sensors.NewCPUSampler(files, cfg.Paths.ProcStat),
		gpuReader,
		cfg.LED.DimBrightness,
	)
	throttle := thermal.New(files, cfg.Paths, sens, procscan.New(), collector, cfg.Thermal.CompilerPattern)
	profiles := power.New(files, cfg.Paths, sens, cfg.Performance)

	sup := supervisor.New(
		supervisor.Options{
			Setup: func() error { return supervisor.InitDevices(files, cfg) },
		},
		supervisor.Task{Name: "keyboard-led", Run: leds.Run},
		supervisor.Task{Name: "thermal-policy", Run: throttle.Run},
		supervisor.Task{Name: "power-profile", Run: profiles.RunProfile},
		supervisor.Task{Name: "auto-fan", Run: profiles.RunAutoFan},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := sup.Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("Exiting...")

	return nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

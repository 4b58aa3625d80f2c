// Package thermal selects the driver's throttle policy from power source,
// game-mode status and a compiler-process heuristic. The decision itself
// is a pure function; the controller only reads sensors, applies the
// decided writes and sleeps.
package thermal

import (
	"context"
	"strconv"
	"time"

	"codeberg.org/mutker/tufctl/internal/config"
	"codeberg.org/mutker/tufctl/internal/device"
	"codeberg.org/mutker/tufctl/internal/logger"
	"codeberg.org/mutker/tufctl/internal/procscan"
	"codeberg.org/mutker/tufctl/internal/sensors"
	"codeberg.org/mutker/tufctl/internal/telemetry"
)

type Policy int

const (
	PolicyBalanced Policy = 0
	PolicyBoost    Policy = 1
	PolicySaver    Policy = 2
)

// Tunable is the value paired with a policy change and written to the
// kernel scheduler knob. TunableNone means no knob write for that branch.
type Tunable int

const (
	TunableNone     Tunable = 0
	TunableBalanced Tunable = 1
	TunableBattery  Tunable = 3
)

const (
	batteryInterval = 5 * time.Second
	chargerInterval = 2500 * time.Millisecond
	errorCooldown   = 5 * time.Second
)

type Inputs struct {
	OnBattery    bool
	GameMode     int
	CompilerBusy bool
	Current      Policy
}

type Action struct {
	Target  Policy
	Tunable Tunable
	Write   bool
}

// Decide evaluates the policy table in priority order: battery always wins,
// then game mode, then the compiler heuristic, then balanced. A target that
// matches the current policy produces no write, so the steady state is a
// no-op tick. The compiler branch carries no tunable, matching the driver
// setup this daemon was written against.
func Decide(in Inputs) Action {
	switch {
	case in.OnBattery:
		if in.Current != PolicySaver {
			return Action{Target: PolicySaver, Tunable: TunableBattery, Write: true}
		}
	case in.GameMode == 1:
		if in.Current != PolicyBoost {
			return Action{Target: PolicyBoost, Tunable: TunableBalanced, Write: true}
		}
	case in.CompilerBusy:
		if in.Current != PolicyBoost {
			return Action{Target: PolicyBoost, Tunable: TunableNone, Write: true}
		}
	default:
		if in.Current != PolicyBalanced {
			return Action{Target: PolicyBalanced, Tunable: TunableBalanced, Write: true}
		}
	}

	return Action{Target: in.Current}
}

// Interval returns the per-tick sleep for the decision loop.
func Interval(onBattery bool) time.Duration {
	if onBattery {
		return batteryInterval
	}

	return chargerInterval
}

type Controller struct {
	files     *device.Files
	paths     config.Paths
	sensors   *sensors.Sensors
	scanner   *procscan.Scanner
	collector telemetry.Collector
	pattern   string
}

func New(
	files *device.Files,
	paths config.Paths,
	sens *sensors.Sensors,
	scanner *procscan.Scanner,
	collector telemetry.Collector,
	compilerPattern string,
) *Controller {
	return &Controller{
		files:     files,
		paths:     paths,
		sensors:   sens,
		scanner:   scanner,
		collector: collector,
		pattern:   compilerPattern,
	}
}

// Run loops until the context is cancelled. A failed iteration logs and
// cools down; it never terminates the loop.
func (c *Controller) Run(ctx context.Context) error {
	logger.Info().Msg("Thermal policy controller started")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := c.tick(ctx); err != nil {
			logger.Error().Err(err).Msg("error in thermal control")
			sleep(ctx, errorCooldown)
		}
	}
}

func (c *Controller) tick(ctx context.Context) error {
	in := Inputs{
		OnBattery: c.sensors.OnBattery(),
		Current:   Policy(c.sensors.ThermalPolicy()),
	}
	if !in.OnBattery {
		in.GameMode = c.sensors.GameMode()
		if in.GameMode != 1 {
			in.CompilerBusy = c.scanner.Match(c.pattern)
		}
	}

	act := Decide(in)
	if act.Write {
		if err := c.files.Write(c.paths.ThrottlePolicy(), strconv.Itoa(int(act.Target))); err != nil {
			return err
		}
		logger.Info().
			Int("from", int(in.Current)).
			Int("to", int(act.Target)).
			Msg("Thermal throttle policy changed")

		if act.Tunable != TunableNone {
			if err := c.files.Write(c.paths.SchedTunable, strconv.Itoa(int(act.Tunable))); err != nil {
				return err
			}
		}
	}

	c.record(ctx, in, act)
	sleep(ctx, Interval(in.OnBattery))

	return nil
}

func (c *Controller) record(ctx context.Context, in Inputs, act Action) {
	snapshot := &telemetry.Snapshot{
		Timestamp: time.Now(),
		Policy: telemetry.PolicyMetrics{
			Current: int(in.Current),
			Target:  int(act.Target),
			Changed: act.Write,
		},
		State: telemetry.StateMetrics{
			OnBattery:    in.OnBattery,
			GameMode:     in.GameMode,
			CompilerBusy: in.CompilerBusy,
		},
	}
	if err := c.collector.Record(ctx, snapshot); err != nil {
		logger.Warn().Err(err).Msg("failed to record thermal telemetry")
	}
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

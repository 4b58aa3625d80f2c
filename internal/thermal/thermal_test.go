package thermal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/tufctl/internal/config"
	"codeberg.org/mutker/tufctl/internal/device"
	"codeberg.org/mutker/tufctl/internal/procscan"
	"codeberg.org/mutker/tufctl/internal/sensors"
	"codeberg.org/mutker/tufctl/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		in   Inputs
		want Action
	}{
		{
			"battery forces saver",
			Inputs{OnBattery: true, Current: PolicyBalanced},
			Action{Target: PolicySaver, Tunable: TunableBattery, Write: true},
		},
		{
			"battery wins over game mode",
			Inputs{OnBattery: true, GameMode: 1, Current: PolicyBoost},
			Action{Target: PolicySaver, Tunable: TunableBattery, Write: true},
		},
		{
			"battery wins over compiler",
			Inputs{OnBattery: true, CompilerBusy: true, Current: PolicyBalanced},
			Action{Target: PolicySaver, Tunable: TunableBattery, Write: true},
		},
		{
			"game mode boosts on charger",
			Inputs{GameMode: 1, Current: PolicyBalanced},
			Action{Target: PolicyBoost, Tunable: TunableBalanced, Write: true},
		},
		{
			"compiler boosts without tunable",
			Inputs{CompilerBusy: true, Current: PolicyBalanced},
			Action{Target: PolicyBoost, Tunable: TunableNone, Write: true},
		},
		{
			"idle charger settles on balanced",
			Inputs{Current: PolicySaver},
			Action{Target: PolicyBalanced, Tunable: TunableBalanced, Write: true},
		},
		{
			"saver already active on battery",
			Inputs{OnBattery: true, Current: PolicySaver},
			Action{Target: PolicySaver},
		},
		{
			"boost already active in game mode",
			Inputs{GameMode: 1, Current: PolicyBoost},
			Action{Target: PolicyBoost},
		},
		{
			"boost already active while compiling",
			Inputs{CompilerBusy: true, Current: PolicyBoost},
			Action{Target: PolicyBoost},
		},
		{
			"balanced already active",
			Inputs{Current: PolicyBalanced},
			Action{Target: PolicyBalanced},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.in))
		})
	}
}

func TestDecideIsIdempotent(t *testing.T) {
	inputs := []Inputs{
		{OnBattery: true},
		{GameMode: 1},
		{CompilerBusy: true},
		{},
	}

	for _, in := range inputs {
		first := Decide(in)
		in.Current = first.Target
		second := Decide(in)
		assert.False(t, second.Write, "second pass must be a no-op for %+v", in)
		assert.Equal(t, first.Target, second.Target)
	}
}

func TestInterval(t *testing.T) {
	assert.Equal(t, 5*time.Second, Interval(true))
	assert.Equal(t, 2500*time.Millisecond, Interval(false))
}

type fixture struct {
	controller *Controller
	files      *device.Files
	paths      config.Paths
}

func newFixture(t *testing.T, battery, policy, gameMode string) fixture {
	t.Helper()

	root := t.TempDir()
	faustus := filepath.Join(root, "faustus")
	require.NoError(t, os.MkdirAll(faustus, 0o755))

	paths := config.Paths{
		Faustus:       faustus,
		BatteryStatus: filepath.Join(root, "battery_status"),
		GameMode:      filepath.Join(root, "gamemode"),
		SchedTunable:  filepath.Join(root, "sched_tunable"),
	}

	require.NoError(t, os.WriteFile(paths.BatteryStatus, []byte(battery), 0o644))
	require.NoError(t, os.WriteFile(paths.ThrottlePolicy(), []byte(policy), 0o644))
	if gameMode != "" {
		require.NoError(t, os.WriteFile(paths.GameMode, []byte(gameMode), 0o644))
	}

	files := device.New(device.RetryPolicy{MaxAttempts: 1, BaseDelay: 0, Multiplier: 1})
	collector, err := telemetry.NewService(telemetry.Config{Enabled: false})
	require.NoError(t, err)

	scanner := procscan.NewWithRoot(filepath.Join(root, "proc"))
	controller := New(files, paths, sensors.New(files, paths), scanner, collector, "clang")

	return fixture{controller: controller, files: files, paths: paths}
}

// cancelledContext keeps controller ticks from sleeping out their interval.
func cancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	return ctx
}

func TestTickOnBatteryWritesSaver(t *testing.T) {
	f := newFixture(t, "Discharging\n", "0\n", "")

	require.NoError(t, f.controller.tick(cancelledContext()))

	policy, err := f.files.Read(f.paths.ThrottlePolicy())
	require.NoError(t, err)
	assert.Equal(t, "2", policy)

	tunable, err := f.files.Read(f.paths.SchedTunable)
	require.NoError(t, err)
	assert.Equal(t, "3", tunable)
}

func TestTickGameModeWritesBoost(t *testing.T) {
	f := newFixture(t, "Charging\n", "0\n", "1\n")

	require.NoError(t, f.controller.tick(cancelledContext()))

	policy, err := f.files.Read(f.paths.ThrottlePolicy())
	require.NoError(t, err)
	assert.Equal(t, "1", policy)

	tunable, err := f.files.Read(f.paths.SchedTunable)
	require.NoError(t, err)
	assert.Equal(t, "1", tunable)
}

func TestTickSteadyStateWritesNothing(t *testing.T) {
	f := newFixture(t, "Discharging\n", "2\n", "")

	require.NoError(t, f.controller.tick(cancelledContext()))

	policy, err := f.files.Read(f.paths.ThrottlePolicy())
	require.NoError(t, err)
	assert.Equal(t, "2", policy)

	// No write means the tunable file never appears.
	_, err = os.Stat(f.paths.SchedTunable)
	assert.True(t, os.IsNotExist(err))
}

func TestTickIdleChargerWritesBalanced(t *testing.T) {
	f := newFixture(t, "Charging\n", "2\n", "0\n")

	require.NoError(t, f.controller.tick(cancelledContext()))

	policy, err := f.files.Read(f.paths.ThrottlePolicy())
	require.NoError(t, err)
	assert.Equal(t, "0", policy)
}

func TestTickCompilerHeuristic(t *testing.T) {
	f := newFixture(t, "Charging\n", "0\n", "0\n")

	// Fake /proc tree with a clang process.
	procRoot := filepath.Join(filepath.Dir(f.paths.GameMode), "proc", "4242")
	require.NoError(t, os.MkdirAll(procRoot, 0o755))
	cmdline := []byte("clang\x00-O2\x00-c\x00main.c\x00")
	require.NoError(t, os.WriteFile(filepath.Join(procRoot, "cmdline"), cmdline, 0o644))

	require.NoError(t, f.controller.tick(cancelledContext()))

	policy, err := f.files.Read(f.paths.ThrottlePolicy())
	require.NoError(t, err)
	assert.Equal(t, "1", policy)

	// The compiler branch carries no tunable write.
	_, err = os.Stat(f.paths.SchedTunable)
	assert.True(t, os.IsNotExist(err))
}

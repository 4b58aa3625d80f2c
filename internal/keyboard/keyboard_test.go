package keyboard

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/tufctl/internal/config"
	"codeberg.org/mutker/tufctl/internal/device"
	"codeberg.org/mutker/tufctl/internal/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGPU struct {
	utilization int
}

func (s stubGPU) Utilization() int {
	return s.utilization
}

func TestColor(t *testing.T) {
	tests := []struct {
		name string
		cpu  int
		gpu  int
		coef float64
		want RGB
	}{
		{"idle full brightness", 0, 0, 1.0, RGB{0, 0, 255}},
		{"idle dimmed", 0, 0, 0.8, RGB{0, 0, 204}},
		{"cpu saturated", 100, 0, 1.0, RGB{255, 0, 0}},
		{"gpu saturated", 0, 100, 1.0, RGB{0, 255, 0}},
		{"both saturated", 100, 100, 1.0, RGB{255, 255, 0}},
		{"half cpu", 50, 0, 1.0, RGB{128, 0, 128}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Color(tt.cpu, tt.gpu, tt.coef))
		})
	}
}

func TestColorBlueTracksBusierUnit(t *testing.T) {
	// Blue is driven by whichever of CPU and GPU is busier.
	assert.Equal(t, Color(80, 20, 1.0).Blue, Color(20, 80, 1.0).Blue)
	assert.Less(t, Color(80, 20, 1.0).Blue, Color(20, 20, 1.0).Blue)
}

func TestRefreshInterval(t *testing.T) {
	assert.Equal(t, time.Second, RefreshInterval(true))
	assert.Equal(t, 100*time.Millisecond, RefreshInterval(false))
}

func TestTickWritesChannelsAndCommits(t *testing.T) {
	root := t.TempDir()
	kbbl := filepath.Join(root, "faustus", "kbbl")
	require.NoError(t, os.MkdirAll(kbbl, 0o755))

	paths := config.Paths{
		Faustus:       filepath.Join(root, "faustus"),
		BatteryStatus: filepath.Join(root, "battery_status"),
		ProcStat:      filepath.Join(root, "stat"),
	}
	require.NoError(t, os.WriteFile(paths.BatteryStatus, []byte("Charging\n"), 0o644))
	require.NoError(t, os.WriteFile(paths.ProcStat, []byte("cpu  100 0 100 300 0 0 0 0 0 0\n"), 0o644))

	files := device.New(device.RetryPolicy{MaxAttempts: 1, BaseDelay: 0, Multiplier: 1})
	c := New(
		files,
		paths,
		sensors.New(files, paths),
		sensors.NewCPUSampler(files, paths.ProcStat),
		stubGPU{utilization: 100},
		0.8,
	)
	c.window = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, c.tick(ctx))

	// Both samples see identical counters, so CPU reads as idle while the
	// stub GPU is saturated.
	for attr, want := range map[string]string{
		"red":   "0",
		"green": "255",
		"blue":  "0",
		"apply": "1",
	} {
		content, err := files.Read(paths.Kbbl(attr))
		require.NoError(t, err)
		assert.Equal(t, want, content, "channel %s", attr)
	}

	assert.True(t, c.dimmed, "parity flips after a successful tick")
}

func TestTickAlternatesBrightness(t *testing.T) {
	root := t.TempDir()
	kbbl := filepath.Join(root, "faustus", "kbbl")
	require.NoError(t, os.MkdirAll(kbbl, 0o755))

	paths := config.Paths{
		Faustus:       filepath.Join(root, "faustus"),
		BatteryStatus: filepath.Join(root, "battery_status"),
		ProcStat:      filepath.Join(root, "stat"),
	}
	require.NoError(t, os.WriteFile(paths.BatteryStatus, []byte("Charging\n"), 0o644))
	require.NoError(t, os.WriteFile(paths.ProcStat, []byte("cpu  100 0 100 300 0 0 0 0 0 0\n"), 0o644))

	files := device.New(device.RetryPolicy{MaxAttempts: 1, BaseDelay: 0, Multiplier: 1})
	c := New(
		files,
		paths,
		sensors.New(files, paths),
		sensors.NewCPUSampler(files, paths.ProcStat),
		stubGPU{},
		0.8,
	)
	c.window = time.Millisecond
	c.dimmed = true

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, c.tick(ctx))

	content, err := files.Read(paths.Kbbl("blue"))
	require.NoError(t, err)
	assert.Equal(t, "204", content)
	assert.False(t, c.dimmed)
}

func TestTickSurfacesSamplerError(t *testing.T) {
	root := t.TempDir()
	paths := config.Paths{
		Faustus:       filepath.Join(root, "faustus"),
		BatteryStatus: filepath.Join(root, "battery_status"),
		ProcStat:      filepath.Join(root, "stat"),
	}

	files := device.New(device.RetryPolicy{MaxAttempts: 1, BaseDelay: 0, Multiplier: 1})
	c := New(
		files,
		paths,
		sensors.New(files, paths),
		sensors.NewCPUSampler(files, paths.ProcStat),
		stubGPU{},
		0.8,
	)

	require.Error(t, c.tick(context.Background()))
}

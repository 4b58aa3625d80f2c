package device

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFiles(policy RetryPolicy) (*Files, *[]time.Duration) {
	slept := []time.Duration{}
	f := &Files{
		retry: policy,
		sleep: func(d time.Duration) {
			slept = append(slept, d)
		},
	}

	return f, &slept
}

func TestWriteReadRoundTrip(t *testing.T) {
	f := New(DefaultRetryPolicy())
	path := filepath.Join(t.TempDir(), "kbbl_mode")

	require.NoError(t, f.Write(path, "0"))

	content, err := f.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "0", content)
}

func TestReadTrimsWhitespace(t *testing.T) {
	f := New(DefaultRetryPolicy())
	path := filepath.Join(t.TempDir(), "status")
	require.NoError(t, os.WriteFile(path, []byte("Discharging\n"), 0o644))

	content, err := f.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "Discharging", content)
}

func TestReadRawKeepsLineOffsets(t *testing.T) {
	f := New(DefaultRetryPolicy())
	path := filepath.Join(t.TempDir(), "report")
	require.NoError(t, os.WriteFile(path, []byte("\nheader\nvalue\n"), 0o644))

	content, err := f.ReadRaw(path)
	require.NoError(t, err)
	assert.Equal(t, "\nheader\nvalue\n", content)
}

func TestWriteRetriesWithBackoffThenSurfaces(t *testing.T) {
	f, slept := newTestFiles(DefaultRetryPolicy())

	// Writing to a path whose parent is a file always fails.
	parent := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(parent, []byte(""), 0o644))

	err := f.Write(filepath.Join(parent, "value"), "1")
	require.Error(t, err)

	// 3 attempts means 2 sleeps: 1s then 2s.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestReadRetriesMissingFile(t *testing.T) {
	f, slept := newTestFiles(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2})

	_, err := f.Read(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Len(t, *slept, 2)
}

func TestNoSleepOnSuccess(t *testing.T) {
	f, slept := newTestFiles(DefaultRetryPolicy())
	path := filepath.Join(t.TempDir(), "value")

	require.NoError(t, f.Write(path, "42"))
	assert.Empty(t, *slept)
}

// Package device is the only place that touches the filesystem for
// single-value pseudo-files (sysfs attributes and runtime flag files).
// Every read and write wraps one attempt in a bounded retry policy with
// exponential backoff; errors that survive the retry budget surface to the
// caller, who decides whether to fall back or propagate.
package device

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/tufctl/internal/errors"
	"codeberg.org/mutker/tufctl/internal/logger"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	defaultMultiplier  = 2

	attrFilePerm = 0o644
)

// RetryPolicy bounds how often a single pseudo-file operation is retried
// before its error surfaces. Delays double between attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		Multiplier:  defaultMultiplier,
	}
}

// Files performs retried whole-file reads and writes.
type Files struct {
	retry RetryPolicy
	sleep func(time.Duration)
}

func New(policy RetryPolicy) *Files {
	return &Files{
		retry: policy,
		sleep: time.Sleep,
	}
}

// Read returns the trimmed content of a pseudo-file.
func (f *Files) Read(path string) (string, error) {
	var content string
	err := f.attempt("read", path, func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		content = strings.TrimSpace(string(data))

		return nil
	})
	if err != nil {
		return "", err
	}

	return content, nil
}

// ReadRaw returns the content of a file without trimming. Multi-line
// reports are read through this so line offsets stay stable.
func (f *Files) ReadRaw(path string) (string, error) {
	var content string
	err := f.attempt("read", path, func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		content = string(data)

		return nil
	})
	if err != nil {
		return "", err
	}

	return content, nil
}

// Write overwrites a pseudo-file with the given content.
func (f *Files) Write(path, content string) error {
	return f.attempt("write", path, func() error {
		return os.WriteFile(path, []byte(content), attrFilePerm)
	})
}

func (f *Files) attempt(op, path string, fn func() error) error {
	errFactory := errors.New()

	delay := f.retry.BaseDelay
	var lastErr error
	for try := 1; try <= f.retry.MaxAttempts; try++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		logger.Error().
			Err(lastErr).
			Str("path", path).
			Str("op", op).
			Int("attempt", try).
			Msg("device file operation failed")

		if try < f.retry.MaxAttempts {
			f.sleep(delay)
			delay *= time.Duration(f.retry.Multiplier)
		}
	}

	if op == "read" {
		return errFactory.Wrap(ErrReadFailed, lastErr).WithData(path)
	}

	return errFactory.Wrap(ErrWriteFailed, lastErr).WithData(path)
}

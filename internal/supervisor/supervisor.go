// Package supervisor owns the set of long-running control tasks: it
// launches them, restarts any that die, and drains them with a bounded
// grace period on shutdown. Nothing else touches the task table.
package supervisor

import (
	"context"
	"time"

	"codeberg.org/mutker/tufctl/internal/errors"
	"codeberg.org/mutker/tufctl/internal/logger"
)

const (
	DefaultMonitorInterval = 5 * time.Second
	DefaultGracePeriod     = 5 * time.Second
)

const ErrSetupFailed = errors.ErrorCode("supervisor_setup_failed")

// Task is a named long-running unit of execution. Run must return promptly
// once its context is cancelled.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type Options struct {
	MonitorInterval time.Duration
	GracePeriod     time.Duration

	// Setup runs once before any task launches (device initialization).
	Setup func() error
}

type handle struct {
	task Task
	done chan struct{}
}

type Supervisor struct {
	opts    Options
	tasks   []Task
	running map[string]*handle
}

func New(opts Options, tasks ...Task) *Supervisor {
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = DefaultMonitorInterval
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}

	return &Supervisor{
		opts:    opts,
		tasks:   tasks,
		running: make(map[string]*handle),
	}
}

// Run launches every task and monitors them until the context is
// cancelled, restarting tasks observed dead. It returns an error only when
// setup fails; cancellation drains the tasks and returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	errFactory := errors.New()

	if s.opts.Setup != nil {
		if err := s.opts.Setup(); err != nil {
			return errFactory.Wrap(ErrSetupFailed, err)
		}
	}

	for _, t := range s.tasks {
		s.launch(ctx, t)
	}
	logger.Info().Int("tasks", len(s.tasks)).Msg("Supervisor started")

	ticker := time.NewTicker(s.opts.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return nil
		case <-ticker.C:
			s.restartDead(ctx)
		}
	}
}

func (s *Supervisor) launch(ctx context.Context, t Task) {
	h := &handle{
		task: t,
		done: make(chan struct{}),
	}
	s.running[t.Name] = h

	go func() {
		defer close(h.done)
		if err := t.Run(ctx); err != nil {
			logger.Error().Err(err).Str("task", t.Name).Msg("task terminated with error")
		}
	}()
}

func (s *Supervisor) restartDead(ctx context.Context) {
	for name, h := range s.running {
		select {
		case <-h.done:
			if ctx.Err() != nil {
				return
			}
			logger.Info().Str("task", name).Msg("Restarting dead task")
			s.launch(ctx, h.task)
		default:
		}
	}
}

func (s *Supervisor) drain() {
	deadline := time.NewTimer(s.opts.GracePeriod)
	defer deadline.Stop()

	for name, h := range s.running {
		select {
		case <-h.done:
		case <-deadline.C:
			logger.Warn().Str("task", name).Msg("Grace period expired, forcing shutdown")
			return
		}
	}

	logger.Info().Msg("All tasks stopped")
}

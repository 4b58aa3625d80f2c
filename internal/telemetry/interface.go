package telemetry

import (
	"context"
	"time"
)

// Collector defines the core domain interface
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Snapshot captures one thermal decision tick
type Snapshot struct {
	Timestamp time.Time
	Policy    PolicyMetrics
	State     StateMetrics
}

// Domain value objects
type PolicyMetrics struct {
	Current int
	Target  int
	Changed bool
}

type StateMetrics struct {
	OnBattery    bool
	GameMode     int
	CompilerBusy bool
}

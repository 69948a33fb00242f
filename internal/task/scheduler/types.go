package scheduler

import (
	"context"
	"time"
)

// Updater is the per-node extension point. Update runs synchronously on the
// driver goroutine with the accumulated elapsed time since the node last
// fired (which may exceed the interval when earlier ticks ran late).
//
// Implementations must not assume anything beyond "called at least once per
// configured interval, on the single control goroutine". A returned error
// aborts the current tick and ends the run.
type Updater interface {
	Update(ctx context.Context, elapsed time.Duration) error
}

// UpdateFunc adapts a plain function to Updater.
type UpdateFunc func(ctx context.Context, elapsed time.Duration) error

func (f UpdateFunc) Update(ctx context.Context, elapsed time.Duration) error { return f(ctx, elapsed) }

// Starter is optionally implemented by an Updater that needs bring-up.
// It runs after all of the node's children have started.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is optionally implemented by an Updater that needs teardown.
// It runs before the node's children are stopped.
type Stopper interface {
	Stop(ctx context.Context) error
}

// UpdateObserver receives one call per fired Update. The driver installs one
// to feed metrics; it must be cheap and must not block.
type UpdateObserver interface {
	ObserveUpdate(node string, elapsed, took time.Duration, err error)
}

// State is the driver lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopReason is used for structured shutdown tracing.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopSignal     StopReason = "signal"
	StopContext    StopReason = "context"
	StopLoop       StopReason = "stop_loop"
	StopFatalError StopReason = "fatal_error"
)

package scheduler

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInterval = errors.New("interval must be >= 0")
	ErrInvalidRate     = errors.New("update rate must be > 0")
	ErrAlreadyRunning  = errors.New("driver already running")
	ErrStopped         = errors.New("driver stopped; create a new driver to run again")
	ErrNodeOwned       = errors.New("node already has an owner")
)

// UpdateError is returned from Poll when a node's Updater fails.
// The tick is aborted at that node; later siblings are not polled.
type UpdateError struct {
	Node string
	Err  error
}

func (e *UpdateError) Error() string { return fmt.Sprintf("node %s: update: %v", e.Node, e.Err) }
func (e *UpdateError) Unwrap() error { return e.Err }

// LifecycleError wraps a failing Start or Stop hook.
type LifecycleError struct {
	Node  string
	Phase string // "start" | "stop"
	Err   error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.Node, e.Phase, e.Err)
}
func (e *LifecycleError) Unwrap() error { return e.Err }

// ErrNoUpdater is returned when a node has an interval but nothing to fire.
var ErrNoUpdater = errors.New("node has an interval but no updater")

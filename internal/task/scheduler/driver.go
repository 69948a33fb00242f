package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"ticktree/internal/eventbus"
	logx "ticktree/pkg/logx"
)

const DefaultUpdateRate = 100

// Driver is the root control loop. The driver's own interval and Updater
// are the root node's.
//
// The Driver owns the root: Run is the only way the tree is started, polled
// and stopped. A Driver runs once: Idle -> Starting -> Running -> Stopping
// -> Stopped.
type Driver struct {
	root *Node

	rate        int
	stopTimeout time.Duration
	signals     []os.Signal

	log     logx.Logger
	bus     eventbus.Bus
	metrics *Metrics

	running atomic.Bool
	state   atomic.Int32
	reason  atomic.Value // StopReason
	ticks   atomic.Uint64

	overrunLog rate.Sometimes
}

type DriverOption func(*Driver)

// WithUpdateRate sets the maximum ticks per second (default 100).
func WithUpdateRate(n int) DriverOption { return func(d *Driver) { d.rate = n } }

func WithLogger(log logx.Logger) DriverOption { return func(d *Driver) { d.log = log } }

func WithBus(bus eventbus.Bus) DriverOption { return func(d *Driver) { d.bus = bus } }

func WithMetrics(m *Metrics) DriverOption { return func(d *Driver) { d.metrics = m } }

// WithSignals replaces the signals that cancel the run (default SIGINT, SIGTERM).
// Passing none disables signal handling.
func WithSignals(sigs ...os.Signal) DriverOption {
	return func(d *Driver) { d.signals = append([]os.Signal(nil), sigs...) }
}

// WithStopTimeout bounds the final stop pass. 0 (default) waits for it.
func WithStopTimeout(t time.Duration) DriverOption { return func(d *Driver) { d.stopTimeout = t } }

// NewDriver wraps root in a control loop.
func NewDriver(root *Node, opts ...DriverOption) (*Driver, error) {
	if root == nil {
		return nil, errors.New("driver: root node is nil")
	}
	if root.owned {
		return nil, fmt.Errorf("driver %q: %w", root.Name(), ErrNodeOwned)
	}
	d := &Driver{
		root:       root,
		rate:       DefaultUpdateRate,
		signals:    []os.Signal{os.Interrupt, syscall.SIGTERM},
		overrunLog: rate.Sometimes{Interval: 5 * time.Second},
	}
	for _, o := range opts {
		if o != nil {
			o(d)
		}
	}
	if d.rate <= 0 {
		return nil, fmt.Errorf("driver %q: %w: got %d", root.Name(), ErrInvalidRate, d.rate)
	}
	if d.stopTimeout < 0 {
		d.stopTimeout = 0
	}
	root.owned = true
	d.running.Store(true)
	d.reason.Store(StopUnknown)

	var obs UpdateObserver
	if d.metrics != nil {
		obs = d.metrics
	}
	root.setup(d.log.With(logx.String("comp", "tree")), obs)
	return d, nil
}

// Name is the root node's name.
func (d *Driver) Name() string { return d.root.Name() }

func (d *Driver) State() State { return State(d.state.Load()) }

// StopReason reports why the last run ended (StopUnknown until it has).
func (d *Driver) StopReason() StopReason {
	r, _ := d.reason.Load().(StopReason)
	return r
}

// Ticks returns the number of completed ticks.
func (d *Driver) Ticks() uint64 { return d.ticks.Load() }

func (d *Driver) UpdateRate() int { return d.rate }

// StopLoop asks the loop to end after the current tick. Safe to call from
// any goroutine, including Updaters running inside the loop.
func (d *Driver) StopLoop() { d.running.Store(false) }

// SignalError is the cancellation cause recorded when a signal ends the run.
type SignalError struct{ Signal os.Signal }

func (e *SignalError) Error() string { return "received signal " + e.Signal.String() }

// Run starts the tree, ticks it until StopLoop, ctx cancellation, a
// subscribed signal or an Updater error, then stops the tree exactly once.
//
// Cancellation (ctx or signal) is a clean exit and returns nil; inspect
// StopReason for the cause. A ctx canceled with a non-cancellation cause
// (context.WithCancelCause) ends the run as fatal_error and Run returns
// that cause. Run blocks on the calling goroutine and is not
// re-entrant.
func (d *Driver) Run(ctx context.Context) (err error) {
	if !d.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		if d.State() == StateStopped {
			return ErrStopped
		}
		return ErrAlreadyRunning
	}

	runID := uuid.NewString()
	log := d.log.With(logx.String("comp", "driver"), logx.String("driver", d.Name()), logx.String("run_id", runID))

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	unwatch := d.watchSignals(ctx, cancel)
	defer unwatch()

	d.transition(StateStarting, runID, nil, log)

	// Stop runs on every exit path from here on, including panics.
	defer func() {
		d.transition(StateStopping, runID, nil, log)
		if stopErr := d.stopTree(ctx); stopErr != nil {
			log.Error("stop failed", logx.Err(stopErr))
			err = errors.Join(err, stopErr)
		}
		d.transition(StateStopped, runID, err, log)
	}()

	if err := d.root.Start(ctx); err != nil {
		if ok, cause := d.canceled(ctx, err); ok {
			return cause
		}
		d.reason.Store(StopFatalError)
		return err
	}
	d.transition(StateRunning, runID, nil, log)

	return d.loop(ctx, log)
}

func (d *Driver) loop(ctx context.Context, log logx.Logger) error {
	budget := time.Second / time.Duration(d.rate)
	epoch := time.Now()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	for d.running.Load() {
		if ctx.Err() != nil {
			_, cause := d.canceled(ctx, ctx.Err())
			return cause
		}

		t0 := time.Now()
		if err := d.root.Poll(ctx, t0.Sub(epoch)); err != nil {
			if ok, cause := d.canceled(ctx, err); ok {
				return cause
			}
			d.reason.Store(StopFatalError)
			return err
		}
		d.ticks.Add(1)

		took := time.Since(t0)
		remain := budget - took
		d.metrics.observeTick(took, remain <= 0)
		if remain <= 0 {
			// Fall behind instead of catching up; each node's elapsed
			// accumulator already carries the lost time.
			d.overrunLog.Do(func() {
				log.Warn("tick overran budget", logx.Duration("took", took), logx.Duration("budget", budget))
			})
			continue
		}

		timer.Reset(remain)
		select {
		case <-ctx.Done():
			_, cause := d.canceled(ctx, ctx.Err())
			return cause
		case <-timer.C:
		}
	}

	d.reason.Store(StopLoop)
	return nil
}

// canceled reports whether err is the run context's own cancellation and,
// if so, records the stop reason. A cause that is neither a signal nor a
// plain cancel or deadline (a failed companion service, say) makes the stop
// fatal and is returned so Run can report it.
func (d *Driver) canceled(ctx context.Context, err error) (bool, error) {
	if ctx.Err() == nil || !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return false, nil
	}
	cause := context.Cause(ctx)
	var se *SignalError
	switch {
	case errors.As(cause, &se):
		switch se.Signal {
		case os.Interrupt:
			d.reason.Store(StopSIGINT)
		case syscall.SIGTERM:
			d.reason.Store(StopSIGTERM)
		default:
			d.reason.Store(StopSignal)
		}
	case cause == nil, errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded):
		d.reason.Store(StopContext)
	default:
		d.reason.Store(StopFatalError)
		return true, cause
	}
	return true, nil
}

// watchSignals cancels the run on the first subscribed signal. The goroutine
// only calls cancel; node state is never touched off the loop goroutine.
func (d *Driver) watchSignals(ctx context.Context, cancel context.CancelCauseFunc) func() {
	if len(d.signals) == 0 {
		return func() {}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, d.signals...)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			cancel(&SignalError{Signal: sig})
		case <-ctx.Done():
		case <-done:
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// stopTree runs the stop pass on a context that survives run cancellation.
func (d *Driver) stopTree(ctx context.Context) error {
	sctx := context.WithoutCancel(ctx)
	if d.stopTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(sctx, d.stopTimeout)
		defer cancel()
	}
	return d.root.Stop(sctx)
}

func (d *Driver) transition(s State, runID string, err error, log logx.Logger) {
	d.state.Store(int32(s))
	d.metrics.setState(s)

	ev := eventbus.DriverState{
		Driver: d.Name(),
		RunID:  runID,
		State:  s.String(),
		Ticks:  d.ticks.Load(),
	}
	if s >= StateStopping {
		ev.Reason = string(d.StopReason())
	}
	if err != nil {
		ev.Err = err.Error()
	}

	switch s {
	case StateStarting:
		log.Info("driver starting", logx.Int("update_rate", d.rate))
	case StateRunning:
		log.Info("driver running")
	case StateStopping:
		log.Info("driver stopping", logx.String("reason", ev.Reason), logx.Uint64("ticks", ev.Ticks))
	case StateStopped:
		log.Info("driver stopped", logx.String("reason", ev.Reason), logx.Uint64("ticks", ev.Ticks), logx.Err(err))
	}

	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: eventbus.TypeDriverState, Data: ev})
	if s == StateStopped {
		d.bus.Publish(eventbus.Event{Type: eventbus.TypeDriverStopped, Data: ev})
	}
}

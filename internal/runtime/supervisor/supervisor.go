package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	logx "ticktree/pkg/logx"
)

// Supervisor runs the services that live beside the driver loop (config
// watcher, reload fan-out, metrics endpoint). Every service is required:
// the first one to fail or panic cancels the shared context with its error
// as the cause, so the driver can record why the run ended.
//
// The driver loop itself never runs under a Supervisor; it owns the
// caller's goroutine and only watches Context.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	log    logx.Logger

	wg      sync.WaitGroup
	started atomic.Uint64
	active  atomic.Int64

	mu  sync.Mutex
	err error
}

// Counters are operational signals only, not a synchronization primitive.
type Counters struct {
	Active  int64  `json:"active"`
	Started uint64 `json:"started"`
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancelCause(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s
}

// Context is canceled by Stop, by the parent, or by the first failing
// service (context.Cause then returns that failure).
func (s *Supervisor) Context() context.Context { return s.ctx }

func (s *Supervisor) Counters() Counters {
	return Counters{Active: s.active.Load(), Started: s.started.Load()}
}

// Err returns the first service failure, if any.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Go runs fn as a named service. Returning nil or context.Canceled is a
// clean exit; anything else, including a panic, fails the supervisor.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.started.Add(1)
	s.active.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("service panicked", logx.String("service", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				s.fail(fmt.Errorf("%s: panic: %v", name, r))
			}
		}()

		s.log.Debug("service started", logx.String("service", name))
		if err := fn(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("service failed", logx.String("service", name), logx.Err(err))
			s.fail(fmt.Errorf("%s: %w", name, err))
			return
		}
		s.log.Debug("service stopped", logx.String("service", name))
	}()
}

// Go0 is Go for services that cannot fail.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// Stop cancels every service and waits for them to return. It only fails
// when ctx ends first; service failures are reported by Err.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel(nil)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.cancel(err)
}

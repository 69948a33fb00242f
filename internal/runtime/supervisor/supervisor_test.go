package supervisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func stop(t *testing.T, s *Supervisor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestFailureCancelsWithCause(t *testing.T) {
	t.Parallel()
	bind := errors.New("bind failed")
	s := New(context.Background())
	s.Go("metrics", func(context.Context) error { return bind })
	s.Go0("waiter", func(ctx context.Context) { <-ctx.Done() })

	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context not canceled after a service failed")
	}
	cause := context.Cause(s.Context())
	if !errors.Is(cause, bind) || !strings.Contains(cause.Error(), "metrics: bind failed") {
		t.Fatalf("cause = %v", cause)
	}
	stop(t, s)
	if err := s.Err(); err != cause {
		t.Fatalf("Err = %v, want the cancel cause %v", err, cause)
	}
	if c := s.Counters(); c.Started != 2 || c.Active != 0 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestPanicFailsSupervisor(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go0("bad", func(context.Context) { panic("oops") })

	<-s.Context().Done()
	stop(t, s)
	if err := s.Err(); err == nil || !strings.Contains(err.Error(), "bad: panic: oops") {
		t.Fatalf("Err = %v", err)
	}
}

func TestStopIsCleanForCanceledServices(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() })

	stop(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("Err = %v, want nil", err)
	}
	if !errors.Is(context.Cause(s.Context()), context.Canceled) {
		t.Fatalf("cause = %v, want context.Canceled", context.Cause(s.Context()))
	}
}

func TestStopTimesOut(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	s := New(context.Background())
	s.Go0("stuck", func(context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop err = %v, want deadline exceeded", err)
	}
	close(release)
	stop(t, s)
}

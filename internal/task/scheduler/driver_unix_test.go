//go:build unix

package scheduler

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestSignalCancelsRun(t *testing.T) {
	c := &lifecycleCounter{}
	root := MustNode("root", WithChildren(MustNode("leaf", WithInterval(0), WithUpdater(c))))
	d, err := NewDriver(root, WithSignals(syscall.SIGUSR1), WithUpdateRate(5))
	if err != nil {
		t.Fatal(err)
	}

	done := runAsync(d, context.Background())
	waitState(t, d, StateRunning)

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal did not cancel the run")
	}
	if d.StopReason() != StopSignal {
		t.Fatalf("reason = %v, want %v", d.StopReason(), StopSignal)
	}
	if c.stops.Load() != 1 {
		t.Fatalf("stop called %d times, want 1", c.stops.Load())
	}
}

package nodes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	logx "ticktree/pkg/logx"
	"ticktree/pkg/systemdmanager"
)

type fakeUnits struct {
	states    map[string]string
	statusErr error
	restarted []string
	closed    bool
}

func (f *fakeUnits) Status(_ context.Context, unit string) (*systemdmanager.UnitStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	active, ok := f.states[unit]
	if !ok {
		return &systemdmanager.UnitStatus{Name: unit, LoadState: "not-found"}, nil
	}
	return &systemdmanager.UnitStatus{Name: unit, Active: active, LoadState: "loaded"}, nil
}

func (f *fakeUnits) Restart(_ context.Context, unit string) error {
	f.restarted = append(f.restarted, unit)
	f.states[unit] = "active"
	return nil
}

func (f *fakeUnits) Close() error { f.closed = true; return nil }

func newTestUnitWatch(t *testing.T, f *fakeUnits, restart, cont bool, units ...string) *UnitWatch {
	t.Helper()
	w, err := NewUnitWatch(units, restart, cont, logx.Nop())
	if err != nil {
		t.Fatalf("NewUnitWatch: %v", err)
	}
	w.dial = func(context.Context) (UnitControl, error) { return f, nil }
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return w
}

func TestUnitWatchRestartsFailed(t *testing.T) {
	t.Parallel()
	f := &fakeUnits{states: map[string]string{
		"a.service": "active",
		"b.service": "failed",
		"c.timer":   "inactive",
	}}
	w := newTestUnitWatch(t, f, true, false, "a", "b", "c.timer", "missing")

	if err := w.Update(context.Background(), 0); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(f.restarted) != 1 || f.restarted[0] != "b.service" {
		t.Fatalf("restarted = %v", f.restarted)
	}
	if w.Restarts() != 1 {
		t.Fatalf("restarts = %d", w.Restarts())
	}
	if err := w.Update(context.Background(), 0); err != nil || len(f.restarted) != 1 {
		t.Fatalf("second update: err=%v restarted=%v", err, f.restarted)
	}
	if err := w.Stop(context.Background()); err != nil || !f.closed {
		t.Fatalf("Stop: err=%v closed=%v", err, f.closed)
	}
}

func TestUnitWatchReportOnly(t *testing.T) {
	t.Parallel()
	f := &fakeUnits{states: map[string]string{"b.service": "failed"}}
	w := newTestUnitWatch(t, f, false, false, "b")
	if err := w.Update(context.Background(), 0); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(f.restarted) != 0 {
		t.Fatalf("restarted = %v, want none", f.restarted)
	}
}

func TestUnitWatchStatusError(t *testing.T) {
	t.Parallel()
	boom := errors.New("bus gone")

	f := &fakeUnits{statusErr: boom}
	w := newTestUnitWatch(t, f, true, false, "a")
	if err := w.Update(context.Background(), 0); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	f2 := &fakeUnits{statusErr: boom}
	w2 := newTestUnitWatch(t, f2, true, true, "a")
	if err := w2.Update(context.Background(), 0); err != nil {
		t.Fatalf("continue_on_error: err = %v", err)
	}
}

func TestUnitWatchNeedsStartAndUnits(t *testing.T) {
	t.Parallel()
	if _, err := NewUnitWatch([]string{" "}, false, false, logx.Nop()); err == nil {
		t.Fatalf("expected error without units")
	}
	w, err := NewUnitWatch([]string{"a"}, false, false, logx.Nop())
	if err != nil {
		t.Fatalf("NewUnitWatch: %v", err)
	}
	if err := w.Update(context.Background(), 0); err == nil {
		t.Fatalf("expected error before Start")
	}

	dialErr := errors.New("no bus")
	w.dial = func(context.Context) (UnitControl, error) { return nil, dialErr }
	if err := w.Start(context.Background()); !errors.Is(err, dialErr) {
		t.Fatalf("Start err = %v", err)
	}
}

func TestCronForwardsLifecycleToJob(t *testing.T) {
	t.Parallel()
	f := &fakeUnits{states: map[string]string{}}
	w, err := NewUnitWatch([]string{"a"}, false, false, logx.Nop())
	if err != nil {
		t.Fatalf("NewUnitWatch: %v", err)
	}
	w.dial = func(context.Context) (UnitControl, error) { return f, nil }

	c, err := NewCron(cron.Every(time.Minute), w, logx.Nop())
	if err != nil {
		t.Fatalf("NewCron: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if w.ctl == nil {
		t.Fatalf("job was not started")
	}
	if err := c.Stop(context.Background()); err != nil || !f.closed {
		t.Fatalf("Stop: err=%v closed=%v", err, f.closed)
	}
}

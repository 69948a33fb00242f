package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "ticktree/pkg/logx"
	"ticktree/pkg/systemdmanager"
)

// UnitControl is the slice of systemdmanager.Manager a UnitWatch needs.
type UnitControl interface {
	Status(ctx context.Context, unit string) (*systemdmanager.UnitStatus, error)
	Restart(ctx context.Context, unit string) error
	Close() error
}

// UnitWatch checks a fixed set of systemd units on every firing and
// optionally restarts the ones that failed. It connects on Start and
// disconnects on Stop.
type UnitWatch struct {
	Units         []string
	RestartFailed bool
	// ContinueOnError logs bus and restart errors instead of ending the run.
	ContinueOnError bool

	log  logx.Logger
	dial func(ctx context.Context) (UnitControl, error)
	ctl  UnitControl

	restarts uint64
}

func NewUnitWatch(units []string, restartFailed, continueOnError bool, log logx.Logger) (*UnitWatch, error) {
	clean := make([]string, 0, len(units))
	for _, u := range units {
		if u = systemdmanager.UnitName(u); u != "" {
			clean = append(clean, u)
		}
	}
	if len(clean) == 0 {
		return nil, errors.New("unit: at least one unit required")
	}
	return &UnitWatch{
		Units:           clean,
		RestartFailed:   restartFailed,
		ContinueOnError: continueOnError,
		log:             log,
		dial: func(ctx context.Context) (UnitControl, error) {
			return systemdmanager.New(ctx)
		},
	}, nil
}

func (w *UnitWatch) Start(ctx context.Context) error {
	ctl, err := w.dial(ctx)
	if err != nil {
		return fmt.Errorf("unit watch: %w", err)
	}
	w.ctl = ctl
	return nil
}

func (w *UnitWatch) Stop(context.Context) error {
	if w.ctl == nil {
		return nil
	}
	err := w.ctl.Close()
	w.ctl = nil
	return err
}

func (w *UnitWatch) Update(ctx context.Context, _ time.Duration) error {
	if w.ctl == nil {
		return errors.New("unit watch: not started")
	}
	var failed []string
	for _, u := range w.Units {
		st, err := w.ctl.Status(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := w.fail(err); err != nil {
				return err
			}
			continue
		}
		switch {
		case !st.Exists():
			w.log.Warn("unit not found", logx.String("unit", u))
		case st.IsFailed():
			failed = append(failed, u)
		case !st.IsActive():
			w.log.Info("unit not active", logx.String("unit", u), logx.String("active", st.Active), logx.String("sub", st.SubState))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	if !w.RestartFailed {
		w.log.Warn("units failed", logx.String("units", strings.Join(failed, ",")))
		return nil
	}
	for _, u := range failed {
		if err := w.ctl.Restart(ctx, u); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := w.fail(err); err != nil {
				return err
			}
			continue
		}
		w.restarts++
		w.log.Info("unit restarted", logx.String("unit", u), logx.Uint64("restarts", w.restarts))
	}
	return nil
}

// Restarts returns how many restarts succeeded.
func (w *UnitWatch) Restarts() uint64 { return w.restarts }

func (w *UnitWatch) fail(err error) error {
	if w.ContinueOnError {
		w.log.Warn("unit watch", logx.Err(err))
		return nil
	}
	return err
}

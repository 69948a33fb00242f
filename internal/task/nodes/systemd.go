package nodes

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "ticktree/pkg/logx"
)

// Systemd reports service state to systemd over NOTIFY_SOCKET:
// READY=1 once started, WATCHDOG=1 on every firing, STOPPING=1 on stop.
// Outside systemd every call is a no-op.
//
// Place it last among its siblings so READY=1 is sent after they started.
type Systemd struct {
	log    logx.Logger
	notify func(state string) (bool, error)
}

func NewSystemd(log logx.Logger) *Systemd {
	return &Systemd{
		log:    log,
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

// WatchdogInterval returns half the systemd watchdog timeout, the usual
// keepalive cadence, and whether the watchdog is enabled for this process.
func WatchdogInterval() (time.Duration, bool) {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d / 2, true
}

func (s *Systemd) Start(context.Context) error {
	s.send(daemon.SdNotifyReady)
	return nil
}

func (s *Systemd) Update(context.Context, time.Duration) error {
	s.send(daemon.SdNotifyWatchdog)
	return nil
}

func (s *Systemd) Stop(context.Context) error {
	s.send(daemon.SdNotifyStopping)
	return nil
}

// send never fails the tree: a broken notify socket is logged, not fatal.
func (s *Systemd) send(state string) {
	sent, err := s.notify(state)
	if err != nil {
		s.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		s.log.Trace("sd_notify", logx.String("state", state))
	}
}

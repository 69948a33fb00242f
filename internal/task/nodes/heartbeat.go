package nodes

import (
	"context"
	"time"

	logx "ticktree/pkg/logx"
)

// Heartbeat logs one line per firing with the elapsed time it was handed.
// Useful as a liveness signal and to eyeball scheduling jitter.
type Heartbeat struct {
	log   logx.Logger
	beats uint64
}

func NewHeartbeat(log logx.Logger) *Heartbeat { return &Heartbeat{log: log} }

func (h *Heartbeat) Update(_ context.Context, elapsed time.Duration) error {
	h.beats++
	h.log.Info("heartbeat", logx.Uint64("beat", h.beats), logx.Duration("elapsed", elapsed))
	return nil
}

// Beats returns how many times the heartbeat fired.
func (h *Heartbeat) Beats() uint64 { return h.beats }

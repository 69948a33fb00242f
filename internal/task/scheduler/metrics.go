package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the scheduler's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Ticks        prometheus.Counter
	Overruns     prometheus.Counter
	TickDuration prometheus.Histogram
	State        prometheus.Gauge

	Updates        *prometheus.CounterVec
	UpdateErrors   *prometheus.CounterVec
	UpdateDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg (if non-nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ticktree",
			Name:      "ticks_total",
			Help:      "Driver ticks completed.",
		}),
		Overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ticktree",
			Name:      "tick_overruns_total",
			Help:      "Ticks whose traversal took longer than the tick budget.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ticktree",
			Name:      "tick_duration_seconds",
			Help:      "Time spent polling the whole tree in one tick.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ticktree",
			Name:      "driver_state",
			Help:      "Driver lifecycle state (0 idle, 1 starting, 2 running, 3 stopping, 4 stopped).",
		}),
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ticktree",
			Name:      "node_updates_total",
			Help:      "Node updates fired.",
		}, []string{"node"}),
		UpdateErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ticktree",
			Name:      "node_update_errors_total",
			Help:      "Node updates that returned an error.",
		}, []string{"node"}),
		UpdateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ticktree",
			Name:      "node_update_duration_seconds",
			Help:      "Time spent inside a node's Update.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node"}),
	}
	if reg != nil {
		reg.MustRegister(m.Ticks, m.Overruns, m.TickDuration, m.State, m.Updates, m.UpdateErrors, m.UpdateDuration)
	}
	return m
}

func (m *Metrics) ObserveUpdate(node string, _, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.Updates.WithLabelValues(node).Inc()
	m.UpdateDuration.WithLabelValues(node).Observe(took.Seconds())
	if err != nil {
		m.UpdateErrors.WithLabelValues(node).Inc()
	}
}

func (m *Metrics) observeTick(took time.Duration, overrun bool) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.TickDuration.Observe(took.Seconds())
	if overrun {
		m.Overruns.Inc()
	}
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	m.State.Set(float64(s))
}

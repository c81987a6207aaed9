package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/five82/leafrun/internal/queue"
)

// Metrics holds the sync collectors. A nil *Metrics records nothing.
type Metrics struct {
	Actions  *prometheus.CounterVec
	Drains   prometheus.Counter
	Rejected prometheus.Counter
	Pending  prometheus.Gauge
}

// NewMetrics registers the sync collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Actions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leafrun_sync_actions_total",
			Help: "Queued actions delivered or failed, by kind",
		}, []string{"kind", "outcome"}),
		Drains: f.NewCounter(prometheus.CounterOpts{
			Name: "leafrun_sync_drains_total",
			Help: "Completed drain passes",
		}),
		Rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "leafrun_sync_rejected_total",
			Help: "Drain requests refused because one was running or the device was offline",
		}),
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "leafrun_queue_pending",
			Help: "Actions waiting for delivery",
		}),
	}
}

// SetPending updates the queue depth gauge. It has the signature of a
// queue observer.
func (m *Metrics) SetPending(depth int) {
	if m == nil {
		return
	}
	m.Pending.Set(float64(depth))
}

func (m *Metrics) action(kind queue.Kind, ok bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if ok {
		outcome = "synced"
	}
	m.Actions.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) drained(depth int) {
	if m == nil {
		return
	}
	m.Drains.Inc()
	m.SetPending(depth)
}

func (m *Metrics) rejected() {
	if m == nil {
		return
	}
	m.Rejected.Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the activity log.
type Metrics struct {
	Recorded      *prometheus.CounterVec
	WriteFailures prometheus.Counter
	Alerts        *prometheus.CounterVec
	Purged        prometheus.Counter
}

// New registers the activity metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the activity metrics with reg. Tests pass a fresh registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Recorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certhub_activity_recorded_total",
			Help: "Activity log records written, by category and status",
		}, []string{"category", "status"}),

		WriteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "certhub_activity_write_failures_total",
			Help: "Activity log records that could not be stored",
		}),

		Alerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certhub_activity_alerts_total",
			Help: "Admin alerts triggered by activity records, by category",
		}, []string{"category"}),

		Purged: f.NewCounter(prometheus.CounterOpts{
			Name: "certhub_activity_purged_total",
			Help: "Activity log records removed by the retention job",
		}),
	}
}

func (m *Metrics) IncRecorded(category, status string) {
	if m != nil {
		m.Recorded.WithLabelValues(category, status).Inc()
	}
}

func (m *Metrics) IncWriteFailure() {
	if m != nil {
		m.WriteFailures.Inc()
	}
}

func (m *Metrics) IncAlert(category string) {
	if m != nil {
		m.Alerts.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) AddPurged(n int64) {
	if m != nil && n > 0 {
		m.Purged.Add(float64(n))
	}
}

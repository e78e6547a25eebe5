package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts admin notification deliveries.
type Metrics struct {
	Sent     prometheus.Counter
	Failed   prometheus.Counter
	Skipped  prometheus.Counter
	InFlight prometheus.Gauge
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Sent: f.NewCounter(prometheus.CounterOpts{
			Name: "certhub_notification_emails_sent_total",
			Help: "Admin notification emails delivered to the SMTP server",
		}),
		Failed: f.NewCounter(prometheus.CounterOpts{
			Name: "certhub_notification_emails_failed_total",
			Help: "Admin notification emails that could not be sent",
		}),
		Skipped: f.NewCounter(prometheus.CounterOpts{
			Name: "certhub_notifications_skipped_total",
			Help: "Notifications dropped because SMTP is not configured or the service is shutting down",
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "certhub_notifications_in_flight",
			Help: "Notification fan-outs currently running",
		}),
	}
}

func (m *Metrics) IncSent() {
	if m != nil {
		m.Sent.Inc()
	}
}

func (m *Metrics) IncFailed() {
	if m != nil {
		m.Failed.Inc()
	}
}

func (m *Metrics) IncSkipped() {
	if m != nil {
		m.Skipped.Inc()
	}
}

func (m *Metrics) AddInFlight(delta float64) {
	if m != nil {
		m.InFlight.Add(delta)
	}
}

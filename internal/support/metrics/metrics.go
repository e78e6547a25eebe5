package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts support ticket activity.
type Metrics struct {
	Tickets     *prometheus.CounterVec
	Messages    *prometheus.CounterVec
	Attachments prometheus.Counter
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Tickets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certhub_support_tickets_total",
			Help: "Support tickets opened, by priority",
		}, []string{"priority"}),
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certhub_support_messages_total",
			Help: "Support messages posted, by visibility",
		}, []string{"visibility"}),
		Attachments: f.NewCounter(prometheus.CounterOpts{
			Name: "certhub_support_attachments_total",
			Help: "Support attachments uploaded",
		}),
	}
}

func (m *Metrics) IncTicket(priority string) {
	if m != nil {
		m.Tickets.WithLabelValues(priority).Inc()
	}
}

func (m *Metrics) IncMessage(internal bool) {
	if m == nil {
		return
	}
	visibility := "public"
	if internal {
		visibility = "internal"
	}
	m.Messages.WithLabelValues(visibility).Inc()
}

func (m *Metrics) IncAttachment() {
	if m != nil {
		m.Attachments.Inc()
	}
}

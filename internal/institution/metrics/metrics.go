package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks institution lifecycle and membership changes.
type Metrics struct {
	Created       prometheus.Counter
	StatusChanges *prometheus.CounterVec
	Deleted       prometheus.Counter
	MemberChanges *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Created: f.NewCounter(prometheus.CounterOpts{
			Name: "certhub_institutions_created_total",
			Help: "Institutions created",
		}),
		StatusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certhub_institution_status_changes_total",
			Help: "Institution status transitions, by target status",
		}, []string{"status"}),
		Deleted: f.NewCounter(prometheus.CounterOpts{
			Name: "certhub_institutions_deleted_total",
			Help: "Institutions deleted",
		}),
		MemberChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certhub_institution_member_changes_total",
			Help: "Institution membership changes, by operation",
		}, []string{"op"}),
	}
}

func (m *Metrics) IncCreated() {
	if m != nil {
		m.Created.Inc()
	}
}

func (m *Metrics) IncStatusChange(status string) {
	if m != nil {
		m.StatusChanges.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncDeleted() {
	if m != nil {
		m.Deleted.Inc()
	}
}

func (m *Metrics) IncMemberChange(op string) {
	if m != nil {
		m.MemberChanges.WithLabelValues(op).Inc()
	}
}

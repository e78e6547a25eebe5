package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks issuance, lifecycle changes and public verification.
type Metrics struct {
	Issued        prometheus.Counter
	Revoked       prometheus.Counter
	Expired       prometheus.Counter
	Verifications *prometheus.CounterVec
	Anchors       *prometheus.CounterVec
	VerifyLatency *prometheus.HistogramVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Issued: f.NewCounter(prometheus.CounterOpts{
			Name: "certhub_certificates_issued_total",
			Help: "Certificates issued",
		}),
		Revoked: f.NewCounter(prometheus.CounterOpts{
			Name: "certhub_certificates_revoked_total",
			Help: "Certificates revoked",
		}),
		Expired: f.NewCounter(prometheus.CounterOpts{
			Name: "certhub_certificates_expired_total",
			Help: "Certificates marked expired by the sweep",
		}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certhub_verifications_total",
			Help: "Public verifications, by method and outcome reason",
		}, []string{"method", "reason"}),
		Anchors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certhub_anchor_operations_total",
			Help: "Blockchain anchor calls, by operation and result",
		}, []string{"op", "result"}),
		VerifyLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certhub_verification_duration_seconds",
			Help:    "Time to answer a public verification",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

func (m *Metrics) IncIssued() {
	if m != nil {
		m.Issued.Inc()
	}
}

func (m *Metrics) IncRevoked() {
	if m != nil {
		m.Revoked.Inc()
	}
}

func (m *Metrics) AddExpired(n int) {
	if m != nil {
		m.Expired.Add(float64(n))
	}
}

func (m *Metrics) IncVerification(method, reason string) {
	if m != nil {
		m.Verifications.WithLabelValues(method, reason).Inc()
	}
}

func (m *Metrics) IncAnchor(op, result string) {
	if m != nil {
		m.Anchors.WithLabelValues(op, result).Inc()
	}
}

func (m *Metrics) ObserveVerify(method string, seconds float64) {
	if m != nil {
		m.VerifyLatency.WithLabelValues(method).Observe(seconds)
	}
}

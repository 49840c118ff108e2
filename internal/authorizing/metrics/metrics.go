package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the authorization escrow engine.
type Metrics struct {
	PresentationsRecorded prometheus.Counter
	PresentationsExpired  prometheus.Counter
	PresentationsDropped  prometheus.Counter
	Authorized            prometheus.Counter
	Denied                *prometheus.CounterVec
	RevocationsRecorded   prometheus.Counter
	RevocationsExpired    prometheus.Counter
	RevocationsConfirmed  prometheus.Counter
	SweepDurationSeconds  prometheus.Histogram
}

// New registers escrow engine collectors against reg and returns them.
// Pass prometheus.DefaultRegisterer in production wiring; tests use a fresh
// registry so repeated construction cannot collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PresentationsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "verigate_presentations_recorded_total",
			Help: "Credential presentations placed into escrow",
		}),
		PresentationsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "verigate_presentations_expired_total",
			Help: "Escrowed presentations dropped after the resolution timeout",
		}),
		PresentationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "verigate_presentations_dropped_total",
			Help: "Escrowed presentations dropped for unknown schema or malformed state",
		}),
		Authorized: factory.NewCounter(prometheus.CounterOpts{
			Name: "verigate_authorizations_granted_total",
			Help: "Identifiers granted upload authorization",
		}),
		Denied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_authorizations_denied_total",
			Help: "Presentations denied by business rules",
		}, []string{"reason"}),
		RevocationsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "verigate_revocations_recorded_total",
			Help: "Credential revocations placed into escrow",
		}),
		RevocationsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "verigate_revocations_expired_total",
			Help: "Escrowed revocations dropped after the resolution timeout",
		}),
		RevocationsConfirmed: factory.NewCounter(prometheus.CounterOpts{
			Name: "verigate_revocations_confirmed_total",
			Help: "Revocations confirmed against the credential registry",
		}),
		SweepDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "verigate_authorizing_sweep_duration_seconds",
			Help:    "Duration of a full escrow sweep",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

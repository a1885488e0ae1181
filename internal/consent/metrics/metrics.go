package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the consent lifecycle.
type Metrics struct {
	ConsentTransitions       *prometheus.CounterVec
	ConsentTransitionsDenied *prometheus.CounterVec
	ScaTransitions           *prometheus.CounterVec
	ExpiredOnRead            *prometheus.CounterVec
	RedirectsExpired         prometheus.Counter
	ChecksumConflicts        *prometheus.CounterVec
	OldConsentsTerminated    prometheus.Counter

	// Performance metrics
	StoreOperationLatency *prometheus.HistogramVec
}

// New registers consent metrics with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers consent metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConsentTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cms_consent_transitions_total",
			Help: "Consent status transitions applied, labeled by target status",
		}, []string{"status"}),
		ConsentTransitionsDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cms_consent_transitions_denied_total",
			Help: "Consent transitions refused because the consent is finalised or the move is not allowed",
		}, []string{"status"}),
		ScaTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cms_sca_transitions_total",
			Help: "Authorisation SCA status updates applied, labeled by target status",
		}, []string{"status"}),
		ExpiredOnRead: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cms_expired_total",
			Help: "Entities found expired at read time, labeled by kind",
		}, []string{"kind"}),
		RedirectsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "cms_redirect_expired_total",
			Help: "Redirect checks that found the redirect window closed",
		}),
		ChecksumConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cms_checksum_conflicts_total",
			Help: "Guarded writes rejected because the checksum was stale, labeled by entity",
		}, []string{"entity"}),
		OldConsentsTerminated: factory.NewCounter(prometheus.CounterOpts{
			Name: "cms_old_consents_terminated_total",
			Help: "Consents closed because a newer recurring consent replaced them",
		}),

		StoreOperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cms_store_operation_latency_seconds",
			Help:    "Latency of guarded store operations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementConsentTransition(status string) {
	m.ConsentTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementConsentTransitionDenied(status string) {
	m.ConsentTransitionsDenied.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementScaTransition(status string) {
	m.ScaTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementExpired(kind string) {
	m.ExpiredOnRead.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementRedirectExpired() {
	m.RedirectsExpired.Inc()
}

func (m *Metrics) IncrementChecksumConflict(entity string) {
	m.ChecksumConflicts.WithLabelValues(entity).Inc()
}

func (m *Metrics) AddOldConsentsTerminated(count int) {
	m.OldConsentsTerminated.Add(float64(count))
}

// ObserveStoreOperationLatency records the latency of a store operation.
func (m *Metrics) ObserveStoreOperationLatency(operation string, durationSeconds float64) {
	m.StoreOperationLatency.WithLabelValues(operation).Observe(durationSeconds)
}

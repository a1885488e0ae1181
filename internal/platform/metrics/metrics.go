package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// HTTP holds the transport-level collectors served next to the consent metrics.
type HTTP struct {
	RequestDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge
	Panics          prometheus.Counter
}

// New registers the collectors on the default registry.
func New() *HTTP {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors on reg. A nil reg skips registration.
func NewWithRegisterer(reg prometheus.Registerer) *HTTP {
	m := &HTTP{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cms_http_request_duration_seconds",
			Help:    "Latency of HTTP requests by route and status class",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cms_http_requests_in_flight",
			Help: "Requests currently being served",
		}),
		Panics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cms_http_panics_total",
			Help: "Handler panics recovered by the server",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.RequestDuration, m.InFlight, m.Panics)
	}
	return m
}

func (m *HTTP) ObserveRequest(method, route, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, status).Observe(durationSeconds)
}

func (m *HTTP) IncrementPanics() {
	if m == nil {
		return
	}
	m.Panics.Inc()
}

package oidc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for response validation.
type Metrics struct {
	signinTotal      *prometheus.CounterVec
	signinDuration   *prometheus.HistogramVec
	signoutTotal     *prometheus.CounterVec
	metadataTotal    *prometheus.CounterVec
	signingKeysTotal *prometheus.CounterVec
	keyCacheResets   prometheus.Counter
	userinfoTotal    *prometheus.CounterVec
	registry         *prometheus.Registry
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "oidcrp"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.signinTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "signin_total",
			Help:      "Total number of signin response validations",
		},
		[]string{"status"},
	)

	m.signinDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "signin_duration_seconds",
			Help:      "Signin response validation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"status"},
	)

	m.signoutTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "signout_total",
			Help:      "Total number of signout response validations",
		},
		[]string{"status"},
	)

	m.metadataTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "fetch_total",
			Help:      "Total number of discovery document fetches",
		},
		[]string{"status"},
	)

	m.signingKeysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "signing_keys_fetch_total",
			Help:      "Total number of signing key set fetches",
		},
		[]string{"status"},
	)

	m.keyCacheResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "signing_keys_resets_total",
			Help:      "Total number of signing key cache resets",
		},
	)

	m.userinfoTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "userinfo",
			Name:      "requests_total",
			Help:      "Total number of userinfo requests",
		},
		[]string{"status"},
	)

	m.registry.MustRegister(
		m.signinTotal,
		m.signinDuration,
		m.signoutTotal,
		m.metadataTotal,
		m.signingKeysTotal,
		m.keyCacheResets,
		m.userinfoTotal,
	)

	return m
}

// Registry returns the metrics registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordSignin records a signin validation outcome.
func (m *Metrics) RecordSignin(status string, duration time.Duration) {
	m.signinTotal.WithLabelValues(status).Inc()
	m.signinDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordSignout records a signout validation outcome.
func (m *Metrics) RecordSignout(status string) {
	m.signoutTotal.WithLabelValues(status).Inc()
}

// RecordMetadataFetch records a discovery document fetch.
func (m *Metrics) RecordMetadataFetch(status string) {
	m.metadataTotal.WithLabelValues(status).Inc()
}

// RecordSigningKeysFetch records a signing key set fetch.
func (m *Metrics) RecordSigningKeysFetch(status string) {
	m.signingKeysTotal.WithLabelValues(status).Inc()
}

// RecordKeyCacheReset records a signing key cache invalidation.
func (m *Metrics) RecordKeyCacheReset() {
	m.keyCacheResets.Inc()
}

// RecordUserInfo records a userinfo request.
func (m *Metrics) RecordUserInfo(status string) {
	m.userinfoTotal.WithLabelValues(status).Inc()
}

// Package metrics holds the Prometheus counters for the credential lifecycle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
)

// Metrics groups the auth counters and the registry they live in.  A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	registrations   *prometheus.CounterVec
	authentications *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	logouts         *prometheus.CounterVec
	rateLimited     prometheus.Counter
}

// New builds a private registry with the auth counters plus the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "registrations_total",
			Help:      "Registration attempts by outcome.",
		}, []string{"outcome"}),
		authentications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "authentications_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "refreshes_total",
			Help:      "Refresh attempts by outcome; failures carry the rejection kind.",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "logouts_total",
			Help:      "Refresh token revocations by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}
	reg.MustRegister(
		m.registrations, m.authentications, m.refreshes, m.logouts, m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registration(outcome string) {
	if m != nil {
		m.registrations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Authentication(outcome string) {
	if m != nil {
		m.authentications.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Refresh(outcome string) {
	if m != nil {
		m.refreshes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Logout(outcome string) {
	if m != nil {
		m.logouts.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) RateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

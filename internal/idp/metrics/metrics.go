// Package metrics exposes flow outcome counters in the Prometheus format.
// A nil *Metrics records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "idp"

// Metrics owns a private registry so tests can create as many as they
// like.
type Metrics struct {
	registry *prometheus.Registry

	authorizeRequests   *prometheus.CounterVec
	authorizeResults    *prometheus.CounterVec
	backchannelRequests *prometheus.CounterVec
	tokenRequests       *prometheus.CounterVec
	interactions        *prometheus.CounterVec
	purged              *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		authorizeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_requests_total",
			Help:      "Authorization and pushed authorization requests by outcome status.",
		}, []string{"tenant", "endpoint", "status"}),
		authorizeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_results_total",
			Help:      "Authorize, authorize-with-session and deny results by status.",
		}, []string{"tenant", "action", "status"}),
		backchannelRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backchannel_requests_total",
			Help:      "Backchannel authentication requests by outcome status.",
		}, []string{"tenant", "status"}),
		tokenRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_requests_total",
			Help:      "Token endpoint requests by outcome status and error code.",
		}, []string{"tenant", "status", "error"}),
		interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authentication_interactions_total",
			Help:      "Authentication transaction interactions by type and resulting outcome.",
		}, []string{"tenant", "flow", "interaction", "status", "outcome"}),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "housekeeping_purged_total",
			Help:      "Expired records removed by housekeeping.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.authorizeRequests,
		m.authorizeResults,
		m.backchannelRequests,
		m.tokenRequests,
		m.interactions,
		m.purged,
	)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) AuthorizationRequest(tenant, endpoint, status string) {
	if m == nil {
		return
	}
	m.authorizeRequests.WithLabelValues(tenant, endpoint, status).Inc()
}

func (m *Metrics) AuthorizationResult(tenant, action, status string) {
	if m == nil {
		return
	}
	m.authorizeResults.WithLabelValues(tenant, action, status).Inc()
}

func (m *Metrics) BackchannelRequest(tenant, status string) {
	if m == nil {
		return
	}
	m.backchannelRequests.WithLabelValues(tenant, status).Inc()
}

func (m *Metrics) TokenRequest(tenant, status, errorCode string) {
	if m == nil {
		return
	}
	m.tokenRequests.WithLabelValues(tenant, status, errorCode).Inc()
}

func (m *Metrics) Interaction(tenant, flow, interaction, status, outcome string) {
	if m == nil {
		return
	}
	m.interactions.WithLabelValues(tenant, flow, interaction, status, outcome).Inc()
}

func (m *Metrics) Purged(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.WithLabelValues(kind).Add(float64(n))
}

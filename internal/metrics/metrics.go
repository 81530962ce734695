// Package metrics exposes the router's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "split_router"

// Metrics holds the collectors and the registry they are registered with.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	assignments      *prometheus.CounterVec
	rewrites         *prometheus.CounterVec
	passThrough      *prometheus.CounterVec
	storeLookupErrs  prometheus.Counter
	proxyErrs        prometheus.Counter
	configUpserts    *prometheus.CounterVec
	configReads      *prometheus.CounterVec
	rateLimited      prometheus.Counter
	upstreamDuration prometheus.Histogram
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "variant_assignments_total",
			Help:      "Fresh variant assignments made for visitors without a cookie.",
		}, []string{"variant"}),
		rewrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrites_total",
			Help:      "Requests served from a variant origin.",
		}, []string{"variant", "sticky"}),
		passThrough: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pass_through_total",
			Help:      "Requests the router let through unchanged, by reason.",
		}, []string{"reason"}),
		storeLookupErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_lookup_errors_total",
			Help:      "Store lookups that failed while routing.",
		}),
		proxyErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_errors_total",
			Help:      "Requests that could not be proxied to a variant origin.",
		}),
		configUpserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_upserts_total",
			Help:      "Configuration writes by result.",
		}, []string{"result"}),
		configReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reads_total",
			Help:      "Configuration reads by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "API requests rejected by the rate limiter.",
		}),
		upstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Time spent proxying to variant origins.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.assignments,
		m.rewrites,
		m.passThrough,
		m.storeLookupErrs,
		m.proxyErrs,
		m.configUpserts,
		m.configReads,
		m.rateLimited,
		m.upstreamDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Assignment(variant string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(variant).Inc()
}

func (m *Metrics) Rewrite(variant string, sticky bool) {
	if m == nil {
		return
	}
	s := "false"
	if sticky {
		s = "true"
	}
	m.rewrites.WithLabelValues(variant, s).Inc()
}

func (m *Metrics) PassThrough(reason string) {
	if m == nil {
		return
	}
	m.passThrough.WithLabelValues(reason).Inc()
}

func (m *Metrics) StoreLookupError() {
	if m == nil {
		return
	}
	m.storeLookupErrs.Inc()
}

func (m *Metrics) ProxyError() {
	if m == nil {
		return
	}
	m.proxyErrs.Inc()
}

func (m *Metrics) ConfigUpsert(result string) {
	if m == nil {
		return
	}
	m.configUpserts.WithLabelValues(result).Inc()
}

func (m *Metrics) ConfigRead(result string) {
	if m == nil {
		return
	}
	m.configReads.WithLabelValues(result).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) ObserveUpstream(seconds float64) {
	if m == nil {
		return
	}
	m.upstreamDuration.Observe(seconds)
}

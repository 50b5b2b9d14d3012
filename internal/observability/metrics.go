package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the service's Prometheus registry and counters. It
// doubles as the cache observer and evaluation outcome recorder.
type Metrics struct {
	registry *prometheus.Registry

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	upstreamRetries *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
}

func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	constLabels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: registry,
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cache_hits_total",
			Help:        "Cache lookups served without an upstream call.",
			ConstLabels: constLabels,
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cache_misses_total",
			Help:        "Cache lookups that fell through to a loader.",
			ConstLabels: constLabels,
		}),
		upstreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "upstream_retries_total",
			Help:        "Scheduled retries against the stats API by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "evaluations_total",
			Help:        "Terminal evaluation outcomes by status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
	}

	registry.MustRegister(m.cacheHits, m.cacheMisses, m.upstreamRetries, m.outcomes)
	return m
}

// Hit implements cache.Observer.
func (m *Metrics) Hit(string) { m.cacheHits.Inc() }

// Miss implements cache.Observer.
func (m *Metrics) Miss(string) { m.cacheMisses.Inc() }

// UpstreamRetry records one scheduled retry. Wired as the client's
// OnRetry hook.
func (m *Metrics) UpstreamRetry(reason string) {
	m.upstreamRetries.WithLabelValues(reason).Inc()
}

// EvaluationOutcome implements usecase.OutcomeRecorder.
func (m *Metrics) EvaluationOutcome(status string) {
	m.outcomes.WithLabelValues(status).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package metrics holds the Prometheus collectors for the delivery pipeline.
//
// Every method is safe on a nil *Metrics so components can run without a
// registry (tests, metrics disabled).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "telenotify"

type Metrics struct {
	registry *prometheus.Registry

	submitted  prometheus.Counter
	dropped    *prometheus.CounterVec
	attempts   *prometheus.CounterVec
	results    *prometheus.CounterVec
	queueDepth prometheus.Gauge
	duration   prometheus.Histogram
	ingest     *prometheus.CounterVec
	reloads    *prometheus.CounterVec
}

// New registers all collectors on a private registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{registry: reg}

	m.submitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "submitted_total",
		Help:      "Messages accepted into the dispatch queue",
	})
	m.dropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "dropped_total",
		Help:      "Messages discarded before delivery",
	}, []string{"reason"}) // reason: queue_full, blank, shutdown, invalid_config
	m.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Messages currently waiting in the dispatch queue",
	})

	m.attempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "delivery",
		Name:      "attempts_total",
		Help:      "HTTP attempts against the Bot API by classified outcome",
	}, []string{"outcome"})
	m.results = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "delivery",
		Name:      "results_total",
		Help:      "Terminal delivery results per message",
	}, []string{"outcome"})
	m.duration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "delivery",
		Name:      "duration_seconds",
		Help:      "Time from first attempt to terminal result, backoff included",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	})

	m.ingest = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "requests_total",
		Help:      "Ingest requests by kind and HTTP status",
	}, []string{"kind", "status"})
	m.reloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "config",
		Name:      "reloads_total",
		Help:      "Configuration reloads by result",
	}, []string{"result"}) // result: ok, invalid_credentials, error

	reg.MustRegister(
		m.submitted,
		m.dropped,
		m.queueDepth,
		m.attempts,
		m.results,
		m.duration,
		m.ingest,
		m.reloads,
	)
	return m
}

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Submitted() {
	if m == nil {
		return
	}
	m.submitted.Inc()
}

func (m *Metrics) Dropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) Attempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Result(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

// Ingest counts one ingest request. A blank kind is recorded as "unknown".
func (m *Metrics) Ingest(kind string, status int) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.ingest.WithLabelValues(kind, http.StatusText(status)).Inc()
}

func (m *Metrics) Reload(result string) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(result).Inc()
}

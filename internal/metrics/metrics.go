// Package metrics exposes retrieval metrics on a private prometheus registry.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "copilot"

type Metrics struct {
	registry *prometheus.Registry

	searchTotal    *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	buildTotal     *prometheus.CounterVec
	buildDuration  prometheus.Histogram
	paragraphs     prometheus.Gauge
	documents      prometheus.Gauge
	denseAvailable prometheus.Gauge
	crawlTotal     *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		searchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "requests_total",
				Help:      "Searches by effective mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		searchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "duration_seconds",
				Help:      "Search latency by effective mode.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"mode"},
		),
		buildTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "index",
				Name:      "builds_total",
				Help:      "Index builds by outcome.",
			},
			[]string{"outcome"},
		),
		buildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "index",
				Name:      "build_duration_seconds",
				Help:      "Index build duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		paragraphs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "paragraphs",
			Help:      "Paragraphs in the current snapshot.",
		}),
		documents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "documents",
			Help:      "Documents in the current snapshot.",
		}),
		denseAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "dense_available",
			Help:      "1 when the current snapshot carries dense vectors.",
		}),
		crawlTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "crawler",
				Name:      "pages_total",
				Help:      "Crawled pages by outcome.",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.searchTotal, m.searchDuration,
		m.buildTotal, m.buildDuration,
		m.paragraphs, m.documents, m.denseAvailable,
		m.crawlTotal,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSearch records one search. outcome is "ok", "empty", "cached" or
// "degraded" when an expected dense signal was missing.
func (m *Metrics) ObserveSearch(mode, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.searchTotal.WithLabelValues(mode, outcome).Inc()
	m.searchDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveBuild records an index build and, on success, the snapshot size.
func (m *Metrics) ObserveBuild(duration time.Duration, err error, documents, paragraphs int, dense bool) {
	if m == nil {
		return
	}
	if err != nil {
		m.buildTotal.WithLabelValues("error").Inc()
		return
	}
	m.buildTotal.WithLabelValues("success").Inc()
	m.buildDuration.Observe(duration.Seconds())
	m.documents.Set(float64(documents))
	m.paragraphs.Set(float64(paragraphs))
	if dense {
		m.denseAvailable.Set(1)
	} else {
		m.denseAvailable.Set(0)
	}
}

// ObserveCrawl records one fetched page.
func (m *Metrics) ObserveCrawl(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.crawlTotal.WithLabelValues(outcome).Inc()
}

// Serve runs a blocking metrics HTTP server on addr.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

// Package metrics defines the Prometheus collectors used by the builder, the
// reader, and the search service, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so components can take one unconditionally.
type Metrics struct {
	registry prometheus.Gatherer

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	QueriesTotal         *prometheus.CounterVec
	QueryLatency         *prometheus.HistogramVec
	QueryResultsCount    prometheus.Histogram
	PostingFetchesTotal  *prometheus.CounterVec
	DocsIndexedTotal     prometheus.Counter
	DocsSkippedTotal     prometheus.Counter
	TermsRejectedTotal   prometheus.Counter
	IndexBytesWritten    prometheus.Counter
	BuildDuration        prometheus.Histogram
	IndexReloadsTotal    *prometheus.CounterVec
}

// New creates all collectors and registers them with reg. A nil reg gets a
// fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bindex_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bindex_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bindex_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bindex_queries_total",
				Help: "Total boolean queries by result type (hit, zero_result, malformed, error).",
			},
			[]string{"result_type"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bindex_query_latency_seconds",
				Help:    "Query evaluation latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		QueryResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bindex_query_results_count",
				Help:    "Number of matching documents per query.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 10000},
			},
		),
		PostingFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bindex_posting_fetches_total",
				Help: "Posting list reads by cache status (hit, miss).",
			},
			[]string{"cache"},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bindex_docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		DocsSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bindex_docs_skipped_total",
				Help: "Documents that could not be read during a build.",
			},
		),
		TermsRejectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bindex_terms_rejected_total",
				Help: "Terms dropped for exceeding the maximum term length.",
			},
		),
		IndexBytesWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bindex_index_bytes_written_total",
				Help: "Bytes of index files published.",
			},
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bindex_build_duration_seconds",
				Help:    "Wall time of index builds.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
		),
		IndexReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bindex_index_reloads_total",
				Help: "Index reloads by the search service, by status.",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryResultsCount,
		m.PostingFetchesTotal,
		m.DocsIndexedTotal,
		m.DocsSkippedTotal,
		m.TermsRejectedTotal,
		m.IndexBytesWritten,
		m.BuildDuration,
		m.IndexReloadsTotal,
	)

	return m
}

// Gatherer returns the registry the collectors were registered with.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// Handler returns the Prometheus scrape HTTP handler for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{})
}

// WriteToTextfile dumps the registry in the text exposition format, for
// node_exporter's textfile collector.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Gatherer())
}

func (m *Metrics) ObservePostingFetch(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.PostingFetchesTotal.WithLabelValues("hit").Inc()
		return
	}
	m.PostingFetchesTotal.WithLabelValues("miss").Inc()
}

// ObserveQuery records one evaluated query.
func (m *Metrics) ObserveQuery(resultType, cacheStatus string, seconds float64, results int) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(resultType).Inc()
	m.QueryLatency.WithLabelValues(cacheStatus).Observe(seconds)
	m.QueryResultsCount.Observe(float64(results))
}

// ObserveBuild records the outcome of a finished build.
func (m *Metrics) ObserveBuild(indexed, skipped, rejected int, seconds float64) {
	if m == nil {
		return
	}
	m.DocsIndexedTotal.Add(float64(indexed))
	m.DocsSkippedTotal.Add(float64(skipped))
	m.TermsRejectedTotal.Add(float64(rejected))
	m.BuildDuration.Observe(seconds)
}

func (m *Metrics) ObserveIndexWritten(bytes uint32) {
	if m == nil {
		return
	}
	m.IndexBytesWritten.Add(float64(bytes))
}

func (m *Metrics) ObserveReload(ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failure"
	}
	m.IndexReloadsTotal.WithLabelValues(status).Inc()
}

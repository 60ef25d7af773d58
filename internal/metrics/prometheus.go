package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promNamespace prefixes every Prometheus series.
const promNamespace = "forecasting"

// Recorder records both pipeline and request telemetry.
type Recorder interface {
	PipelineMetrics
	RequestMetrics
}

// Multi fans every call out to each of its recorders.
type Multi []Recorder

// RecordRun forwards report to every recorder.
func (m Multi) RecordRun(ctx context.Context, report RunReport) {
	for _, r := range m {
		r.RecordRun(ctx, report)
	}
}

// RecordRequest forwards the request sample to every recorder.
func (m Multi) RecordRequest(method, endpoint, status string, duration time.Duration) {
	for _, r := range m {
		r.RecordRequest(method, endpoint, status, duration)
	}
}

var (
	_ Recorder = Multi(nil)
	_ Recorder = (*PrometheusMetrics)(nil)
)

// PrometheusMetrics keeps run and request telemetry in a private registry
// served by Handler for scraping.
//
// Series:
//   - forecasting_runs_total
//   - forecasting_cities_ranked: gauge, last run
//   - forecasting_city_failures_total
//   - forecasting_pipeline_duration_seconds: histogram
//   - forecasting_stage_items_total{stage,result}
//   - forecasting_http_requests_total{method,endpoint,status}
//   - forecasting_http_request_duration_seconds{method,endpoint,status}
type PrometheusMetrics struct {
	registry *prometheus.Registry

	runs            prometheus.Counter
	citiesRanked    prometheus.Gauge
	cityFailures    prometheus.Counter
	runDuration     prometheus.Histogram
	stageItems      *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the collectors and registers them, together
// with the Go runtime and process collectors, in a new registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	labels := []string{"method", "endpoint", "status"}
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "runs_total",
			Help:      "Ranking runs completed.",
		}),
		citiesRanked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Name:      "cities_ranked",
			Help:      "Cities ranked by the most recent run.",
		}),
		cityFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "city_failures_total",
			Help:      "Cities left out of a ranking because of a failure.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: promNamespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Wall time of a ranking run.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		stageItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "stage_items_total",
			Help:      "Items processed per pipeline stage and result.",
		}, []string{"stage", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "http_requests_total",
			Help:      "API requests served.",
		}, labels),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: promNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, labels),
	}

	m.registry.MustRegister(
		m.runs,
		m.citiesRanked,
		m.cityFailures,
		m.runDuration,
		m.stageItems,
		m.requests,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordRun updates the run series.
func (m *PrometheusMetrics) RecordRun(_ context.Context, report RunReport) {
	m.runs.Inc()
	m.citiesRanked.Set(float64(report.Ranked))
	m.cityFailures.Add(float64(report.Failed))
	m.runDuration.Observe(report.Duration.Seconds())
	for stage, counts := range report.Stages {
		m.stageItems.WithLabelValues(stage, string(ResultSuccess)).Add(float64(counts.Succeeded))
		m.stageItems.WithLabelValues(stage, string(ResultFailure)).Add(float64(counts.Failed))
	}
}

// RecordRequest updates the request series.
func (m *PrometheusMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.requests.WithLabelValues(method, endpoint, status).Inc()
	m.requestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// Package metrics exposes the Prometheus instrumentation for the HTTP
// surface and the answer pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rag"

// ServerMetrics bundles every collector the service registers. It also
// satisfies the pipeline's observer contract, so the core reports telemetry
// without importing this package.
type ServerMetrics struct {
	registry *prometheus.Registry

	requestTotal     *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge

	pipelineTotal      *prometheus.CounterVec
	pipelineDuration   *prometheus.HistogramVec
	stageDegradedTotal *prometheus.CounterVec
	evidenceCount      *prometheus.HistogramVec
	imageConfidence    prometheus.Histogram
	generationTotal    *prometheus.CounterVec
}

func NewServerMetrics() *ServerMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by path, method and status code.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by path.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"path"}),
		requestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		pipelineTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline executions by outcome.",
		}, []string{"outcome"}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end pipeline latency by outcome.",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		stageDegradedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_degraded_total",
			Help:      "Stages that failed and degraded to empty results.",
		}, []string{"stage"}),
		evidenceCount: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_evidence_selected",
			Help:      "Evidence items surviving rerank, per corpus.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}, []string{"corpus"}),
		imageConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_image_confidence",
			Help:      "Calibrated image confidence scores, including floored zeros.",
			Buckets:   []float64{0, 10, 25, 50, 75, 90, 100},
		}),
		generationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_total",
			Help:      "Generation calls by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.requestsInFlight,
		m.pipelineTotal,
		m.pipelineDuration,
		m.stageDegradedTotal,
		m.evidenceCount,
		m.imageConfidence,
		m.generationTotal,
	)
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Pipeline observer contract.

func (m *ServerMetrics) StageDegraded(stage string) {
	m.stageDegradedTotal.WithLabelValues(stage).Inc()
}

func (m *ServerMetrics) ImageConfidence(confidence float64) {
	m.imageConfidence.Observe(confidence)
}

func (m *ServerMetrics) EvidenceSelected(corpus string, count int) {
	m.evidenceCount.WithLabelValues(corpus).Observe(float64(count))
}

func (m *ServerMetrics) GenerationFinished(outcome string) {
	m.generationTotal.WithLabelValues(outcome).Inc()
}

func (m *ServerMetrics) PipelineFinished(outcome string, elapsed time.Duration) {
	m.pipelineTotal.WithLabelValues(outcome).Inc()
	m.pipelineDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// Middleware instruments every request. The recorder keeps Flush reachable,
// which the streaming endpoint depends on.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		m.requestsInFlight.Inc()
		defer m.requestsInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.requestTotal.WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(r.URL.Path).Observe(time.Since(started).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.wroteHeader = true
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

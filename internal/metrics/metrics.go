// Package metrics holds the Prometheus collectors for report runs. Each
// Metrics owns its registry so tests and embedded uses never collide on the
// global one.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reportgest"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	Runs          *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Fetches       *prometheus.CounterVec
	LLMCalls      *prometheus.CounterVec
	Sections      prometheus.Histogram
	ReportWords   prometheus.Histogram
	QueueDepth    prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Report runs by terminal status and failing stage.",
		}, []string{"status", "stage"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		Fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Source fetch attempts by outcome.",
		}, []string{"outcome"}),
		LLMCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "LLM gateway attempts by outcome.",
		}, []string{"outcome"}),
		Sections: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_sections",
			Help:      "Sections per rendered report.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		ReportWords: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_words",
			Help:      "Body words per rendered report.",
			Buckets:   []float64{100, 200, 300, 400, 500, 750, 1000},
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_queue_depth",
			Help:      "Report jobs waiting for a worker.",
		}),
	}
}

// Registry exposes the registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRun(status, stage string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status, stage).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveFetch(outcome string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLLM(outcome string) {
	if m == nil {
		return
	}
	m.LLMCalls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveReport(sections, words int) {
	if m == nil {
		return
	}
	m.Sections.Observe(float64(sections))
	m.ReportWords.Observe(float64(words))
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

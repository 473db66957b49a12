package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type QAMetrics struct {
	registry *prometheus.Registry

	turnTotal       *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
	retrievedChunks prometheus.Histogram
	qualityScore    prometheus.Histogram
}

func NewQAMetrics(service string) *QAMetrics {
	registry := prometheus.NewRegistry()

	turnTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tqa",
			Subsystem: "qa",
			Name:      "turn_total",
			Help:      "Total question answering turns by status.",
		},
		[]string{"service", "status"},
	)
	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tqa",
			Subsystem: "qa",
			Name:      "turn_duration_seconds",
			Help:      "Question answering turn duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"service", "status"},
	)
	retrievedChunks := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tqa",
			Subsystem: "qa",
			Name:      "retrieved_chunks",
			Help:      "Number of chunks retrieved per turn after deduplication.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	qualityScore := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tqa",
			Subsystem: "qa",
			Name:      "answer_quality_score",
			Help:      "Answer quality grade on the 0-5 scale.",
			Buckets:   []float64{0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4, 4.5, 5},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(turnTotal, turnDuration, retrievedChunks, qualityScore)

	return &QAMetrics{
		registry:        registry,
		turnTotal:       turnTotal,
		turnDuration:    turnDuration,
		retrievedChunks: retrievedChunks,
		qualityScore:    qualityScore,
	}
}

func (m *QAMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *QAMetrics) ObserveTurn(service string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.turnTotal.WithLabelValues(service, status).Inc()
	m.turnDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *QAMetrics) ObserveRetrieved(chunks int) {
	if chunks < 0 {
		return
	}
	m.retrievedChunks.Observe(float64(chunks))
}

func (m *QAMetrics) ObserveQuality(score float64) {
	m.qualityScore.Observe(score)
}

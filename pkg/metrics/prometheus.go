package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	detections    *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	batches       *prometheus.CounterVec
	batchFailures prometheus.Histogram
	staleBatches  prometheus.Counter
	latency       *prometheus.HistogramVec
}

// New creates a recorder registered with the default registerer.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		detections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyzones_detections_total",
				Help: "Detector invocations by asset, timeframe and result",
			},
			[]string{"asset", "timeframe", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyzones_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		batches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyzones_batches_total",
				Help: "Completed batches by outcome",
			},
			[]string{"outcome"},
		),
		batchFailures: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "keyzones_batch_failed_pairs",
				Help:    "Failed pairs per completed batch",
				Buckets: []float64{0, 1, 2, 4, 8, 12},
			},
		),
		staleBatches: f.NewCounter(
			prometheus.CounterOpts{
				Name: "keyzones_stale_batches_total",
				Help: "Batches discarded because a newer request superseded them",
			},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyzones_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
	}
}

// RecordDetection counts one detector invocation.
func (r *Recorder) RecordDetection(asset, timeframe string, failed bool) {
	result := "ok"
	if failed {
		result = "failed"
	}
	r.detections.WithLabelValues(asset, timeframe, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordBatch records a completed batch and its duration.
func (r *Recorder) RecordBatch(failed int, seconds float64) {
	outcome := "ok"
	if failed > 0 {
		outcome = "partial"
	}
	r.batches.WithLabelValues(outcome).Inc()
	r.batchFailures.Observe(float64(failed))
	r.latency.WithLabelValues("batch").Observe(seconds)
}

// RecordStaleDiscard counts a batch dropped as stale.
func (r *Recorder) RecordStaleDiscard() {
	r.staleBatches.Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordDetection(string, string, bool) {}
func (Nop) RecordError(string)                   {}
func (Nop) RecordBatch(int, float64)             {}
func (Nop) RecordStaleDiscard()                  {}
func (Nop) RecordLatency(string, float64)        {}

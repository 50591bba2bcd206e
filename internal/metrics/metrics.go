package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StreamStepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_steps_total",
		Help: "The total number of frames stepped through the model",
	})

	StreamStepDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "stream_step_duration_seconds",
		Help: "Duration of single-frame model steps",
	})

	StreamResetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_resets_total",
		Help: "Total number of session resets",
	})

	LayerStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "layer_step_duration_seconds",
		Help:    "Histogram of per-layer step times",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	PreconditionViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "precondition_violations_total",
		Help: "Total number of per-call precondition violations",
	}, []string{"component", "violation"})

	// Conv buffer metrics
	ConvPushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conv_pushes_total",
		Help: "Total number of frames pushed through causal conv buffers",
	})

	ConvHistoryFrames = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "conv_history_frames",
		Help:    "Configured conv history lengths (dilation * (kernel-1))",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
	})

	// Attention cache metrics
	AttnCacheCapacity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attn_cache_capacity_entries",
		Help: "Configured attention cache capacity in timesteps (0 = unbounded)",
	})

	AttnCacheUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attn_cache_used_entries",
		Help: "Current number of cached timesteps",
	})

	AttnCacheAppends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attn_cache_appends_total",
		Help: "Total number of key/value pairs appended to attention caches",
	})

	AttnCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attn_cache_evictions_total",
		Help: "Total number of oldest entries evicted from bounded caches",
	})

	// RVQ metrics
	RVQEncodeDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "rvq_encode_duration_seconds",
		Help: "Duration of RVQ encode calls",
	})

	RVQReconstructionError = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rvq_reconstruction_error",
		Help:    "Euclidean distance between input and decode(encode(input))",
		Buckets: []float64{0, 0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
	})

	RVQStagesUsed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rvq_stages_used",
		Help:    "Number of quantizer stages used per encode",
		Buckets: []float64{1, 2, 4, 8, 16, 32},
	})

	// Normalization diagnostics
	NormInputRMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "norm_input_rms",
		Help:    "Root mean square of pre-normalization activations",
		Buckets: []float64{0, 0.1, 0.5, 1, 2, 5, 10, 50, 100},
	})

	// Flight transport metrics
	FlightBatchesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flight_batches_published_total",
		Help: "Total number of code batches published over Arrow Flight",
	})

	FlightPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flight_publish_errors_total",
		Help: "Total number of failed Flight publish attempts",
	})

	FlightRowsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flight_rows_published_total",
		Help: "Total number of code rows published over Arrow Flight",
	})
)

// RecordStep records one completed model step.
func RecordStep(duration time.Duration) {
	StreamStepsTotal.Inc()
	StreamStepDuration.Observe(duration.Seconds())
}

// RecordLayerStep records one per-layer step by layer kind.
func RecordLayerStep(kind string, duration time.Duration) {
	LayerStepDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordPreconditionViolation counts a rejected call by component and kind.
func RecordPreconditionViolation(component, violation string) {
	PreconditionViolations.WithLabelValues(component, violation).Inc()
}

// RecordConvPush records one causal conv buffer advance.
func RecordConvPush() {
	ConvPushesTotal.Inc()
}

// RecordAttnCacheAppend records an append and the resulting cache occupancy.
func RecordAttnCacheAppend(used int, evicted bool) {
	AttnCacheAppends.Inc()
	AttnCacheUsed.Set(float64(used))
	if evicted {
		AttnCacheEvictions.Inc()
	}
}

// RecordRVQEncode records an encode call with its reconstruction error.
func RecordRVQEncode(stages int, err float64, duration time.Duration) {
	RVQEncodeDuration.Observe(duration.Seconds())
	RVQStagesUsed.Observe(float64(stages))
	RVQReconstructionError.Observe(err)
}

// RecordFlightPublish records a Flight DoPut outcome.
func RecordFlightPublish(rows int, failed bool) {
	if failed {
		FlightPublishErrors.Inc()
		return
	}
	FlightBatchesPublished.Inc()
	FlightRowsPublished.Add(float64(rows))
}

// Package metrics defines the Prometheus instrumentation for the caption daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the caption pipeline
type Metrics struct {
	// Frame metrics
	FramesCaptured prometheus.Counter
	FramesDropped  prometheus.Counter
	FramesGated    prometheus.Counter
	QueueDepth     prometheus.Gauge

	// Segmentation metrics
	ChunksGenerated prometheus.Counter
	ChunkDuration   prometheus.Histogram

	// Engine metrics
	EngineRequests prometheus.Counter
	EngineFailures prometheus.Counter
	EngineDuration prometheus.Histogram

	// Output metrics
	LinesEmitted    prometheus.Counter
	LinesSuppressed *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on the default registry
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates the metrics on a specific registerer. Tests use this with
// a throwaway registry so repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "captiond_frames_captured_total",
			Help: "Total number of audio frames delivered by the source",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "captiond_frames_dropped_total",
			Help: "Total number of frames dropped by the bounded queue",
		}),
		FramesGated: factory.NewCounter(prometheus.CounterOpts{
			Name: "captiond_frames_gated_total",
			Help: "Total number of frames discarded by the amplitude gate",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "captiond_frame_queue_depth",
			Help: "Current number of frames waiting in the queue",
		}),

		ChunksGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "captiond_chunks_generated_total",
			Help: "Total number of speech chunks flushed by the segmenter",
		}),
		ChunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "captiond_chunk_duration_seconds",
			Help:    "Duration of flushed speech chunks",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 6), // 0.25s to 8s
		}),

		EngineRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "captiond_engine_requests_total",
			Help: "Total number of recognition engine calls",
		}),
		EngineFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "captiond_engine_failures_total",
			Help: "Total number of failed recognition engine calls",
		}),
		EngineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "captiond_engine_duration_seconds",
			Help:    "Duration of recognition engine calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		LinesEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "captiond_lines_emitted_total",
			Help: "Total number of caption lines emitted",
		}),
		LinesSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "captiond_lines_suppressed_total",
			Help: "Total number of caption lines suppressed before emission",
		}, []string{"reason"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "captiond_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "captiond_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordFrame counts one delivered frame
func (m *Metrics) RecordFrame() {
	m.FramesCaptured.Inc()
}

// RecordFrameGated counts one frame discarded by the amplitude gate
func (m *Metrics) RecordFrameGated() {
	m.FramesGated.Inc()
}

// SetFramesDropped sets the cumulative dropped-frame count from the source
func (m *Metrics) SetFramesDropped(previous, current uint64) {
	if current > previous {
		m.FramesDropped.Add(float64(current - previous))
	}
}

// SetQueueDepth sets the current queue depth
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// RecordChunk records a flushed chunk
func (m *Metrics) RecordChunk(durationSeconds float64) {
	m.ChunksGenerated.Inc()
	m.ChunkDuration.Observe(durationSeconds)
}

// RecordEngineCall records one engine call and its outcome
func (m *Metrics) RecordEngineCall(durationSeconds float64, failed bool) {
	m.EngineRequests.Inc()
	m.EngineDuration.Observe(durationSeconds)
	if failed {
		m.EngineFailures.Inc()
	}
}

// RecordLineEmitted counts one emitted caption line
func (m *Metrics) RecordLineEmitted() {
	m.LinesEmitted.Inc()
}

// RecordLineSuppressed counts one suppressed line by reason
func (m *Metrics) RecordLineSuppressed(reason string) {
	m.LinesSuppressed.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

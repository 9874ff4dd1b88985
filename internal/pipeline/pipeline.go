package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/yukissssss/whisper-playground/internal/audio"
	"github.com/yukissssss/whisper-playground/internal/metrics"
	"github.com/yukissssss/whisper-playground/internal/textnorm"
	"github.com/yukissssss/whisper-playground/internal/transcription"
)

// queueStats is implemented by sources with a bounded internal queue
type queueStats interface {
	Dropped() uint64
	QueueDepth() int
}

// Config contains pipeline parameters not owned by a component
type Config struct {
	MinLevel      float64       // amplitude gate floor on the int16 scale
	Debug         bool          // periodic throughput diagnostics
	DebugInterval time.Duration // 0 defaults to 10s
}

// Pipeline owns the consumer loop and all per-stream state. Construct one
// per transcription session; none of its state is shared across streams.
type Pipeline struct {
	config     Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	source     audio.Source
	segmenter  *audio.Segmenter
	dispatcher *transcription.Dispatcher
	dedup      *textnorm.Dedup
	normalizer *textnorm.Normalizer
	sinks      []Sink

	// Throughput counters for diagnostics
	framesSeen  uint64
	framesGated uint64
	chunksSent  uint64
	linesOut    uint64
	lastDropped uint64

	mu sync.RWMutex
}

// Stats is a snapshot of pipeline throughput for monitoring
type Stats struct {
	FramesSeen  uint64               `json:"frames_seen"`
	FramesGated uint64               `json:"frames_gated"`
	ChunksSent  uint64               `json:"chunks_sent"`
	LinesOut    uint64               `json:"lines_out"`
	Dropped     uint64               `json:"frames_dropped"`
	QueueDepth  int                  `json:"queue_depth"`
	Segmenter   audio.SegmenterStats `json:"segmenter"`
}

// New creates a pipeline over the given components
func New(config Config, logger *slog.Logger, m *metrics.Metrics, source audio.Source,
	segmenter *audio.Segmenter, dispatcher *transcription.Dispatcher,
	dedup *textnorm.Dedup, normalizer *textnorm.Normalizer, sinks ...Sink) *Pipeline {

	return &Pipeline{
		config:     config,
		logger:     logger,
		metrics:    m,
		source:     source,
		segmenter:  segmenter,
		dispatcher: dispatcher,
		dedup:      dedup,
		normalizer: normalizer,
		sinks:      sinks,
	}
}

// Run starts the source and drains it until the input ends or ctx is
// cancelled. Engine failures are fatal: the loop stops and the error is
// returned to the caller.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.source.Start(); err != nil {
		return fmt.Errorf("failed to start frame source: %w", err)
	}
	defer p.source.Stop()

	if p.config.Debug {
		stopDiag := p.startDiagnostics()
		defer stopDiag()
	}

	frames := p.source.Frames()

	for {
		select {
		case <-ctx.Done():
			// Shutdown: flush the pending chunk with a fresh context so the
			// last utterance is not lost, but do not treat its failure as fatal.
			if chunk := p.segmenter.Flush(); chunk != nil {
				flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := p.handleChunk(flushCtx, chunk); err != nil {
					p.logger.Warn("Final chunk transcription failed",
						slog.String("chunk_id", chunk.ID),
						slog.String("error", err.Error()),
					)
				}
				cancel()
			}
			return nil

		case frame, ok := <-frames:
			if !ok {
				// Source exhausted (file mode): flush and finish
				if chunk := p.segmenter.Flush(); chunk != nil {
					if err := p.handleChunk(ctx, chunk); err != nil {
						return err
					}
				}
				return nil
			}

			if err := p.processFrame(ctx, frame); err != nil {
				return err
			}
		}
	}
}

// processFrame runs the gate and the segmenter over one frame and dispatches
// a chunk when one was flushed.
func (p *Pipeline) processFrame(ctx context.Context, frame audio.Frame) error {
	p.mu.Lock()
	p.framesSeen++
	p.mu.Unlock()
	p.metrics.RecordFrame()

	// Amplitude gate runs before VAD so near-silent noise never opens a chunk
	if frame.MeanAbs() < p.config.MinLevel {
		p.mu.Lock()
		p.framesGated++
		p.mu.Unlock()
		p.metrics.RecordFrameGated()
		return nil
	}

	chunk := p.segmenter.Push(frame)
	if chunk == nil {
		return nil
	}

	return p.handleChunk(ctx, chunk)
}

// handleChunk synchronously transcribes one chunk and emits its segments.
// Chunk N+1 cannot begin recognition until this returns.
func (p *Pipeline) handleChunk(ctx context.Context, chunk *audio.Chunk) error {
	p.mu.Lock()
	p.chunksSent++
	p.mu.Unlock()
	p.metrics.RecordChunk(chunk.Duration.Seconds())

	p.logger.Debug("Dispatching chunk",
		slog.String("chunk_id", chunk.ID),
		slog.Float64("duration", chunk.Duration.Seconds()),
		slog.Int("samples", len(chunk.Samples)),
	)

	startTime := time.Now()
	segments, err := p.dispatcher.Dispatch(ctx, chunk)
	p.metrics.RecordEngineCall(time.Since(startTime).Seconds(), err != nil)

	if err != nil {
		return fmt.Errorf("transcription failed for chunk %s: %w", chunk.ID, err)
	}

	for _, segment := range segments {
		line := strings.TrimSpace(segment.Text)
		if line == "" {
			continue
		}

		if ok, reason := p.dedup.Accept(line); !ok {
			p.metrics.RecordLineSuppressed(string(reason))
			p.logger.Debug("Suppressed line",
				slog.String("reason", string(reason)),
				slog.String("line", line),
			)
			continue
		}

		out := p.normalizer.Normalize(line)
		for _, sink := range p.sinks {
			sink.Emit(out)
		}

		p.mu.Lock()
		p.linesOut++
		p.mu.Unlock()
		p.metrics.RecordLineEmitted()
	}

	return nil
}

// startDiagnostics logs periodic throughput numbers to the error stream
func (p *Pipeline) startDiagnostics() func() {
	interval := p.config.DebugInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				stats := p.Stats()
				p.logger.Debug("Pipeline throughput",
					slog.Uint64("frames", stats.FramesSeen),
					slog.Uint64("gated", stats.FramesGated),
					slog.Uint64("chunks", stats.ChunksSent),
					slog.Uint64("lines", stats.LinesOut),
					slog.Uint64("dropped", stats.Dropped),
					slog.Int("queue_depth", stats.QueueDepth),
				)
			}
		}
	}()

	return func() { close(done) }
}

// Stats returns a throughput snapshot
func (p *Pipeline) Stats() Stats {
	p.mu.RLock()
	stats := Stats{
		FramesSeen:  p.framesSeen,
		FramesGated: p.framesGated,
		ChunksSent:  p.chunksSent,
		LinesOut:    p.linesOut,
	}
	p.mu.RUnlock()

	stats.Segmenter = p.segmenter.Stats()

	if qs, ok := p.source.(queueStats); ok {
		stats.Dropped = qs.Dropped()
		stats.QueueDepth = qs.QueueDepth()

		p.mu.Lock()
		p.metrics.SetFramesDropped(p.lastDropped, stats.Dropped)
		p.lastDropped = stats.Dropped
		p.mu.Unlock()
		p.metrics.SetQueueDepth(stats.QueueDepth)
	}

	return stats
}

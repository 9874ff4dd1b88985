package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yukissssss/whisper-playground/internal/audio"
	"github.com/yukissssss/whisper-playground/internal/metrics"
	"github.com/yukissssss/whisper-playground/internal/textnorm"
	"github.com/yukissssss/whisper-playground/internal/transcription"
)

// fakeSource replays a fixed frame sequence and closes the channel
type fakeSource struct {
	frames []audio.Frame
	ch     chan audio.Frame
	hold   bool // keep the channel open after the frames are delivered
}

func (s *fakeSource) Start() error {
	s.ch = make(chan audio.Frame, len(s.frames)+1)
	for _, f := range s.frames {
		s.ch <- f
	}
	if !s.hold {
		close(s.ch)
	}
	return nil
}

func (s *fakeSource) Frames() <-chan audio.Frame { return s.ch }
func (s *fakeSource) Stop()                      {}

// fakeEngine returns one scripted text per call, then an error when the
// script runs out
type fakeEngine struct {
	texts []string
	errAt int // 1-based call index that fails, 0 = never
	calls int
}

func (e *fakeEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]transcription.Segment, error) {
	e.calls++
	if e.errAt > 0 && e.calls == e.errAt {
		return nil, fmt.Errorf("engine unavailable")
	}

	if e.calls > len(e.texts) {
		return nil, fmt.Errorf("unexpected call %d", e.calls)
	}

	return []transcription.Segment{{Text: e.texts[e.calls-1], End: 2.0}}, nil
}

func (e *fakeEngine) Close() error { return nil }

// alwaysSpeech satisfies vad.Detector for tests
type alwaysSpeech struct{}

func (alwaysSpeech) IsSpeech(samples []int16) bool { return true }

// captureSink collects emitted lines
type captureSink struct {
	lines []string
}

func (s *captureSink) Emit(line string) {
	s.lines = append(s.lines, line)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// loudFrames builds n 30ms frames at a constant amplitude well above the gate
func loudFrames(n int, amplitude int16) []audio.Frame {
	frames := make([]audio.Frame, n)
	for i := range frames {
		samples := make([]int16, 480)
		for j := range samples {
			samples[j] = amplitude
		}
		frames[i] = audio.Frame{
			Seq:      uint64(i),
			Samples:  samples,
			Duration: 30 * time.Millisecond,
		}
	}
	return frames
}

func newTestPipeline(t *testing.T, source audio.Source, engine transcription.Engine,
	minLevel float64, maxChunk time.Duration) (*Pipeline, *captureSink) {
	t.Helper()

	segmenter, err := audio.NewSegmenter(audio.SegmenterConfig{
		MaxChunk:   maxChunk,
		SampleRate: 16000,
	}, alwaysSpeech{})
	if err != nil {
		t.Fatalf("Failed to create segmenter: %v", err)
	}

	sink := &captureSink{}
	p := New(
		Config{MinLevel: minLevel},
		testLogger(),
		metrics.NewWith(prometheus.NewRegistry()),
		source,
		segmenter,
		transcription.NewDispatcher(engine),
		textnorm.NewDedup(),
		textnorm.NewNormalizer(textnorm.FallbackRules()),
		sink,
	)

	return p, sink
}

func TestPipelineEndToEnd(t *testing.T) {
	// 140 frames at 30ms with a 2s ceiling: two full chunks (67 frames each)
	// plus a 6-frame remainder flushed at end of input
	source := &fakeSource{frames: loudFrames(140, 5000)}
	engine := &fakeEngine{texts: []string{"主訴は頭痛です", "脈拍は72です", "以上です"}}

	p, sink := newTestPipeline(t, source, engine, 3000, 2*time.Second)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if engine.calls != 3 {
		t.Errorf("Expected 3 engine calls, got %d", engine.calls)
	}

	want := []string{"主訴は頭痛です", "脈拍は 72 です", "以上です"}
	if len(sink.lines) != len(want) {
		t.Fatalf("Expected %d lines, got %d: %v", len(want), len(sink.lines), sink.lines)
	}

	// Chunk order must survive into emission order
	for i, line := range want {
		if sink.lines[i] != line {
			t.Errorf("Line %d: expected %q, got %q", i, line, sink.lines[i])
		}
	}

	stats := p.Stats()
	if stats.FramesSeen != 140 {
		t.Errorf("Expected 140 frames seen, got %d", stats.FramesSeen)
	}
	if stats.ChunksSent != 3 {
		t.Errorf("Expected 3 chunks sent, got %d", stats.ChunksSent)
	}
	if stats.LinesOut != 3 {
		t.Errorf("Expected 3 lines out, got %d", stats.LinesOut)
	}
}

func TestPipelineAmplitudeGate(t *testing.T) {
	// Every frame sits below the gate floor, so the segmenter and the
	// engine must never be reached
	source := &fakeSource{frames: loudFrames(50, 1000)}
	engine := &fakeEngine{}

	p, sink := newTestPipeline(t, source, engine, 3000, 2*time.Second)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if engine.calls != 0 {
		t.Errorf("Gated frames should never reach the engine, got %d calls", engine.calls)
	}

	if len(sink.lines) != 0 {
		t.Errorf("Expected no output, got %v", sink.lines)
	}

	stats := p.Stats()
	if stats.FramesGated != 50 {
		t.Errorf("Expected 50 gated frames, got %d", stats.FramesGated)
	}
}

func TestPipelineDedup(t *testing.T) {
	// Both chunks transcribe to the same raw text; only the first is emitted
	source := &fakeSource{frames: loudFrames(134, 5000)}
	engine := &fakeEngine{texts: []string{"同じ結果です", "同じ結果です"}}

	p, sink := newTestPipeline(t, source, engine, 3000, 2*time.Second)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sink.lines) != 1 {
		t.Fatalf("Expected 1 line after dedup, got %d: %v", len(sink.lines), sink.lines)
	}
}

func TestPipelineFillerSuppression(t *testing.T) {
	source := &fakeSource{frames: loudFrames(134, 5000)}
	engine := &fakeEngine{texts: []string{"ご視聴ありがとうございました", "本題です"}}

	p, sink := newTestPipeline(t, source, engine, 3000, 2*time.Second)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sink.lines) != 1 || sink.lines[0] != "本題です" {
		t.Errorf("Expected only the non-filler line, got %v", sink.lines)
	}
}

func TestPipelineEngineFailureIsFatal(t *testing.T) {
	source := &fakeSource{frames: loudFrames(134, 5000)}
	engine := &fakeEngine{texts: []string{"一つ目"}, errAt: 2}

	p, sink := newTestPipeline(t, source, engine, 3000, 2*time.Second)

	err := p.Run(context.Background())
	if err == nil {
		t.Fatal("Expected Run to fail on the engine error")
	}

	// The chunk transcribed before the failure was still emitted
	if len(sink.lines) != 1 {
		t.Errorf("Expected 1 line before the failure, got %v", sink.lines)
	}

	// No retry: exactly one failing call
	if engine.calls != 2 {
		t.Errorf("Expected 2 engine calls total, got %d", engine.calls)
	}
}

func TestPipelineEmptySegmentsSkipped(t *testing.T) {
	source := &fakeSource{frames: loudFrames(67, 5000)}

	engine := &whitespaceEngine{}
	p, sink := newTestPipeline(t, source, engine, 3000, 2*time.Second)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sink.lines) != 0 {
		t.Errorf("Whitespace-only segments should be dropped, got %v", sink.lines)
	}
}

// whitespaceEngine returns segments with no usable text
type whitespaceEngine struct{}

func (whitespaceEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]transcription.Segment, error) {
	return []transcription.Segment{{Text: "   "}, {Text: ""}}, nil
}

func (whitespaceEngine) Close() error { return nil }

func TestPipelineCancelledContext(t *testing.T) {
	// The channel stays open; cancellation must end the run cleanly
	source := &fakeSource{hold: true}
	engine := &fakeEngine{}

	p, _ := newTestPipeline(t, source, engine, 3000, 2*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Cancelled run should return nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

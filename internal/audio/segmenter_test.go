package audio

import (
	"testing"
	"time"
)

// stubDetector returns a scripted verdict sequence, then false forever
type stubDetector struct {
	verdicts []bool
	calls    int
}

func (d *stubDetector) IsSpeech(samples []int16) bool {
	if d.calls >= len(d.verdicts) {
		d.calls++
		return false
	}
	v := d.verdicts[d.calls]
	d.calls++
	return v
}

// repeat builds a verdict sequence of n copies of v
func repeat(v bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}

const testFrameMs = 30

func makeFrame(seq uint64) Frame {
	return Frame{
		Seq:      seq,
		Samples:  make([]int16, 480),
		Duration: testFrameMs * time.Millisecond,
	}
}

func newTestSegmenter(t *testing.T, maxChunk, silenceTimeout time.Duration, verdicts []bool) (*Segmenter, *stubDetector) {
	t.Helper()

	detector := &stubDetector{verdicts: verdicts}
	segmenter, err := NewSegmenter(SegmenterConfig{
		MaxChunk:       maxChunk,
		SilenceTimeout: silenceTimeout,
		SampleRate:     16000,
	}, detector)
	if err != nil {
		t.Fatalf("Failed to create segmenter: %v", err)
	}

	return segmenter, detector
}

func TestNewSegmenterValidation(t *testing.T) {
	detector := &stubDetector{}

	tests := []struct {
		name        string
		config      SegmenterConfig
		detector    *stubDetector
		expectError bool
	}{
		{
			name:        "valid config",
			config:      SegmenterConfig{MaxChunk: 2 * time.Second, SampleRate: 16000},
			detector:    detector,
			expectError: false,
		},
		{
			name:        "zero max chunk",
			config:      SegmenterConfig{MaxChunk: 0, SampleRate: 16000},
			detector:    detector,
			expectError: true,
		},
		{
			name: "silence timeout above ceiling",
			config: SegmenterConfig{
				MaxChunk:       time.Second,
				SilenceTimeout: 2 * time.Second,
				SampleRate:     16000,
			},
			detector:    detector,
			expectError: true,
		},
		{
			name:        "zero sample rate",
			config:      SegmenterConfig{MaxChunk: time.Second},
			detector:    detector,
			expectError: true,
		},
		{
			name:        "nil detector",
			config:      SegmenterConfig{MaxChunk: time.Second, SampleRate: 16000},
			detector:    nil,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.detector == nil {
				_, err = NewSegmenter(tt.config, nil)
			} else {
				_, err = NewSegmenter(tt.config, tt.detector)
			}

			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestIdleDropsNonSpeech(t *testing.T) {
	segmenter, _ := newTestSegmenter(t, 2*time.Second, 0, repeat(false, 10))

	for seq := uint64(0); seq < 10; seq++ {
		if chunk := segmenter.Push(makeFrame(seq)); chunk != nil {
			t.Fatalf("Non-speech frame %d should not produce a chunk", seq)
		}
	}

	if !segmenter.IsIdle() {
		t.Error("Segmenter should stay idle on non-speech input")
	}

	stats := segmenter.Stats()
	if stats.FramesDropped != 10 {
		t.Errorf("Expected 10 dropped frames, got %d", stats.FramesDropped)
	}
	if stats.ChunksCreated != 0 {
		t.Errorf("Expected no chunks, got %d", stats.ChunksCreated)
	}
}

func TestSpeechOpensChunk(t *testing.T) {
	segmenter, _ := newTestSegmenter(t, 2*time.Second, 0, repeat(true, 5))

	if chunk := segmenter.Push(makeFrame(7)); chunk != nil {
		t.Fatal("First speech frame should not flush a 2s chunk")
	}

	if segmenter.IsIdle() {
		t.Error("Segmenter should be accumulating after a speech frame")
	}

	stats := segmenter.Stats()
	if stats.CurrentMs != testFrameMs {
		t.Errorf("Expected %dms accumulated, got %d", testFrameMs, stats.CurrentMs)
	}
}

func TestMaxDurationFlush(t *testing.T) {
	// 2s ceiling at 30ms frames: ceiling reached on frame 67 (67*30 = 2010ms)
	segmenter, _ := newTestSegmenter(t, 2*time.Second, 0, repeat(true, 100))

	var chunk *Chunk
	var pushed int
	for seq := uint64(0); chunk == nil && seq < 100; seq++ {
		chunk = segmenter.Push(makeFrame(seq))
		pushed++
	}

	if chunk == nil {
		t.Fatal("Expected a max-duration flush")
	}

	if pushed != 67 {
		t.Errorf("Expected flush on frame 67, got %d", pushed)
	}

	if chunk.Duration != 2010*time.Millisecond {
		t.Errorf("Expected chunk duration 2010ms, got %v", chunk.Duration)
	}

	if chunk.StartSeq != 0 || chunk.EndSeq != 66 {
		t.Errorf("Expected seq range 0..66, got %d..%d", chunk.StartSeq, chunk.EndSeq)
	}

	if len(chunk.Samples) != 67*480 {
		t.Errorf("Expected %d samples, got %d", 67*480, len(chunk.Samples))
	}

	if chunk.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", chunk.SampleRate)
	}

	if !segmenter.IsIdle() {
		t.Error("Segmenter should return to idle after flush")
	}
}

func TestSilenceTimeoutFlush(t *testing.T) {
	// 300ms timeout = 10 frames of trailing silence
	verdicts := append(repeat(true, 5), repeat(false, 10)...)
	segmenter, _ := newTestSegmenter(t, 2*time.Second, 300*time.Millisecond, verdicts)

	var chunk *Chunk
	var pushed int
	for seq := uint64(0); chunk == nil && seq < 20; seq++ {
		chunk = segmenter.Push(makeFrame(seq))
		pushed++
	}

	if chunk == nil {
		t.Fatal("Expected a silence-timeout flush")
	}

	// 5 speech + exactly 10 silence frames reach the 300ms run
	if pushed != 15 {
		t.Errorf("Expected flush on frame 15, got %d", pushed)
	}

	// Trailing silence frames are part of the chunk
	if chunk.Duration != 450*time.Millisecond {
		t.Errorf("Expected chunk duration 450ms, got %v", chunk.Duration)
	}
}

func TestSilenceRunResetsOnSpeech(t *testing.T) {
	// 9 silence frames (270ms) never reach the 300ms timeout when speech
	// interrupts the run
	verdicts := append(repeat(true, 2), repeat(false, 9)...)
	verdicts = append(verdicts, true)
	verdicts = append(verdicts, repeat(false, 9)...)
	segmenter, _ := newTestSegmenter(t, 2*time.Second, 300*time.Millisecond, verdicts)

	for seq := uint64(0); seq < uint64(len(verdicts)); seq++ {
		if chunk := segmenter.Push(makeFrame(seq)); chunk != nil {
			t.Fatalf("Interrupted silence runs should not flush, flushed on frame %d", seq)
		}
	}

	if segmenter.IsIdle() {
		t.Error("Segmenter should still be accumulating")
	}
}

func TestInChunkPausesRetained(t *testing.T) {
	// With no silence timeout, pauses inside the utterance stay in the chunk
	verdicts := append(repeat(true, 3), repeat(false, 5)...)
	verdicts = append(verdicts, repeat(true, 3)...)
	segmenter, _ := newTestSegmenter(t, 2*time.Second, 0, verdicts)

	for seq := uint64(0); seq < uint64(len(verdicts)); seq++ {
		segmenter.Push(makeFrame(seq))
	}

	chunk := segmenter.Flush()
	if chunk == nil {
		t.Fatal("Expected a pending chunk")
	}

	// All 11 frames, speech and pause alike, are in the chunk
	if len(chunk.Samples) != 11*480 {
		t.Errorf("Expected %d samples, got %d", 11*480, len(chunk.Samples))
	}
}

func TestZeroTimeoutFallsBackToCeiling(t *testing.T) {
	// Timeout 0: a long silence run inside a chunk only flushes when the
	// run (and thus the accumulated duration) reaches the ceiling
	verdicts := append(repeat(true, 1), repeat(false, 100)...)
	segmenter, _ := newTestSegmenter(t, 600*time.Millisecond, 0, verdicts)

	var chunk *Chunk
	var pushed int
	for seq := uint64(0); chunk == nil && seq < 100; seq++ {
		chunk = segmenter.Push(makeFrame(seq))
		pushed++
	}

	if chunk == nil {
		t.Fatal("Expected a ceiling flush")
	}

	// 600ms / 30ms = 20 frames
	if pushed != 20 {
		t.Errorf("Expected flush on frame 20, got %d", pushed)
	}
}

func TestFlush(t *testing.T) {
	segmenter, _ := newTestSegmenter(t, 2*time.Second, 0, repeat(true, 3))

	t.Run("idle flush returns nil", func(t *testing.T) {
		if chunk := segmenter.Flush(); chunk != nil {
			t.Error("Flush on idle segmenter should return nil")
		}
	})

	t.Run("pending chunk is flushed", func(t *testing.T) {
		for seq := uint64(0); seq < 3; seq++ {
			segmenter.Push(makeFrame(seq))
		}

		chunk := segmenter.Flush()
		if chunk == nil {
			t.Fatal("Expected the pending chunk")
		}

		if chunk.Duration != 90*time.Millisecond {
			t.Errorf("Expected 90ms chunk, got %v", chunk.Duration)
		}

		if !segmenter.IsIdle() {
			t.Error("Segmenter should be idle after flush")
		}
	})

	t.Run("second flush returns nil", func(t *testing.T) {
		if chunk := segmenter.Flush(); chunk != nil {
			t.Error("Nothing left to flush")
		}
	})
}

func TestChunkIDsAreUnique(t *testing.T) {
	segmenter, _ := newTestSegmenter(t, 2*time.Second, 0, repeat(true, 200))

	seen := make(map[string]bool)
	var seq uint64
	for i := 0; i < 2; i++ {
		var chunk *Chunk
		for chunk == nil {
			chunk = segmenter.Push(makeFrame(seq))
			seq++
		}

		if seen[chunk.ID] {
			t.Errorf("Duplicate chunk ID: %s", chunk.ID)
		}
		seen[chunk.ID] = true
	}
}

func TestSegmenterStats(t *testing.T) {
	verdicts := append(repeat(false, 4), repeat(true, 67)...)
	segmenter, _ := newTestSegmenter(t, 2*time.Second, 0, verdicts)

	for seq := uint64(0); seq < uint64(len(verdicts)); seq++ {
		segmenter.Push(makeFrame(seq))
	}

	stats := segmenter.Stats()

	if stats.FramesDropped != 4 {
		t.Errorf("Expected 4 dropped frames, got %d", stats.FramesDropped)
	}

	if stats.ChunksCreated != 1 {
		t.Errorf("Expected 1 chunk, got %d", stats.ChunksCreated)
	}

	if stats.TotalDuration != 2010*time.Millisecond {
		t.Errorf("Expected total duration 2010ms, got %v", stats.TotalDuration)
	}

	if stats.State != "idle" {
		t.Errorf("Expected idle state, got %s", stats.State)
	}
}

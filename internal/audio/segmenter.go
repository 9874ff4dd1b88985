package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/yukissssss/whisper-playground/internal/vad"
)

// SegmentState represents the current state of the segmentation machine
type SegmentState int

const (
	StateIdle SegmentState = iota
	StateAccumulating
)

// Chunk represents one utterance worth of contiguous frames, ready for
// transcription. Finalized exactly once, then discarded after dispatch.
type Chunk struct {
	ID         string        `json:"chunk_id"`
	StartSeq   uint64        `json:"start_seq"`
	EndSeq     uint64        `json:"end_seq"`
	SampleRate int           `json:"sample_rate"`
	Duration   time.Duration `json:"duration"`
	Samples    []int16       `json:"-"`
}

// SegmenterConfig contains the flush policy for chunk accumulation
type SegmenterConfig struct {
	MaxChunk       time.Duration // hard ceiling on accumulated duration
	SilenceTimeout time.Duration // 0 disables the early silence flush
	SampleRate     int
}

// Segmenter consumes frames, gates them through the VAD predicate, and
// accumulates contiguous speech into chunks.
//
// In StateIdle a speech frame opens a new chunk and a non-speech frame is
// dropped. In StateAccumulating every frame is appended regardless of its
// verdict, so short in-utterance pauses are retained; the silence run length
// resets on speech and grows by the frame duration otherwise. A chunk is
// flushed once the silence run reaches the effective timeout or the
// accumulated duration reaches MaxChunk.
type Segmenter struct {
	config   SegmenterConfig
	detector vad.Detector

	state       SegmentState
	current     *Chunk
	silenceRun  time.Duration
	accumulated time.Duration

	// Statistics
	chunksCreated uint64
	framesDropped uint64
	totalDuration time.Duration

	mu sync.RWMutex
}

// SegmenterStats represents segmenter statistics
type SegmenterStats struct {
	State         string        `json:"state"`
	ChunksCreated uint64        `json:"chunks_created"`
	FramesDropped uint64        `json:"frames_dropped"`
	TotalDuration time.Duration `json:"total_duration"`
	CurrentMs     int64         `json:"current_chunk_ms"`
}

// NewSegmenter creates a new speech segmenter
func NewSegmenter(config SegmenterConfig, detector vad.Detector) (*Segmenter, error) {
	if config.MaxChunk <= 0 {
		return nil, fmt.Errorf("max chunk duration must be positive, got %v", config.MaxChunk)
	}

	if config.SilenceTimeout < 0 || config.SilenceTimeout > config.MaxChunk {
		return nil, fmt.Errorf("silence timeout %v must be between 0 and max chunk %v",
			config.SilenceTimeout, config.MaxChunk)
	}

	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if detector == nil {
		return nil, fmt.Errorf("detector cannot be nil")
	}

	return &Segmenter{
		config:   config,
		detector: detector,
		state:    StateIdle,
	}, nil
}

// effectiveTimeout returns the silence timeout in effect. When none is
// configured the ceiling applies, i.e. no early silence-based flush.
func (s *Segmenter) effectiveTimeout() time.Duration {
	if s.config.SilenceTimeout > 0 {
		return s.config.SilenceTimeout
	}
	return s.config.MaxChunk
}

// Push feeds one frame through the state machine. It returns a finalized
// chunk when a flush condition was met, nil otherwise.
func (s *Segmenter) Push(frame Frame) *Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	speech := s.detector.IsSpeech(frame.Samples)

	switch s.state {
	case StateIdle:
		if !speech {
			s.framesDropped++
			return nil
		}

		s.current = &Chunk{
			ID:         fmt.Sprintf("chunk_%d_%d", frame.Seq, time.Now().UnixNano()),
			StartSeq:   frame.Seq,
			SampleRate: s.config.SampleRate,
		}
		s.silenceRun = 0
		s.accumulated = 0
		s.state = StateAccumulating
		s.appendFrame(frame)

	case StateAccumulating:
		s.appendFrame(frame)

		if speech {
			s.silenceRun = 0
		} else {
			s.silenceRun += frame.Duration
		}
	}

	if s.silenceRun >= s.effectiveTimeout() || s.accumulated >= s.config.MaxChunk {
		return s.finalize()
	}

	return nil
}

// appendFrame appends the frame to the current chunk. Caller holds the lock.
func (s *Segmenter) appendFrame(frame Frame) {
	s.current.Samples = append(s.current.Samples, frame.Samples...)
	s.current.EndSeq = frame.Seq
	s.accumulated += frame.Duration
}

// finalize closes the current chunk and resets to idle. Caller holds the lock.
func (s *Segmenter) finalize() *Chunk {
	chunk := s.current
	chunk.Duration = s.accumulated

	s.chunksCreated++
	s.totalDuration += s.accumulated

	s.current = nil
	s.silenceRun = 0
	s.accumulated = 0
	s.state = StateIdle

	return chunk
}

// Flush forces the pending chunk out, if any. Used at end of input.
func (s *Segmenter) Flush() *Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle || s.current == nil {
		return nil
	}

	return s.finalize()
}

// IsIdle reports whether no chunk is being accumulated
func (s *Segmenter) IsIdle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state == StateIdle
}

// Stats returns current segmenter statistics
func (s *Segmenter) Stats() SegmenterStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := "idle"
	if s.state == StateAccumulating {
		state = "accumulating"
	}

	return SegmenterStats{
		State:         state,
		ChunksCreated: s.chunksCreated,
		FramesDropped: s.framesDropped,
		TotalDuration: s.totalDuration,
		CurrentMs:     s.accumulated.Milliseconds(),
	}
}

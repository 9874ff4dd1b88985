package transcription

import (
	"context"
	"fmt"

	"github.com/yukissssss/whisper-playground/internal/audio"
)

// Segment is one ordered piece of recognized text with duration metadata
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Params are the fixed decoding parameters sent with every engine call
type Params struct {
	Model       string
	Language    string
	BeamSize    int
	BestOf      int
	Temperature float64
	Device      string
	ComputeType string
}

// Engine is the external speech-recognition collaborator. Input is mono PCM
// normalized to [-1, 1]; output is the ordered segment sequence. Failures
// are not recovered here and propagate to the caller.
type Engine interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]Segment, error)
	Close() error
}

// Dispatcher converts a finalized chunk's PCM to normalized float amplitude
// and hands it to the engine. The call is synchronous: the next chunk cannot
// begin recognition until this one returns.
type Dispatcher struct {
	engine Engine
}

// NewDispatcher creates a dispatcher over the given engine
func NewDispatcher(engine Engine) *Dispatcher {
	return &Dispatcher{engine: engine}
}

// Dispatch transcribes one chunk
func (d *Dispatcher) Dispatch(ctx context.Context, chunk *audio.Chunk) ([]Segment, error) {
	if chunk == nil || len(chunk.Samples) == 0 {
		return nil, fmt.Errorf("cannot dispatch empty chunk")
	}

	samples := make([]float32, len(chunk.Samples))
	for i, s := range chunk.Samples {
		samples[i] = float32(s) / 32768.0
	}

	return d.engine.Transcribe(ctx, samples, chunk.SampleRate)
}

// Close releases the underlying engine
func (d *Dispatcher) Close() error {
	return d.engine.Close()
}

// pcm16WAV converts normalized float samples back to a 16-bit WAV payload
// for engines that consume audio files.
func pcm16WAV(samples []float32, sampleRate int) ([]byte, error) {
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32768.0
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		pcm[i] = int16(v)
	}

	return audio.EncodeWAV(pcm, sampleRate)
}

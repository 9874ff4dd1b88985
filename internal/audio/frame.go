package audio

import (
	"math"
	"time"
)

// Frame is one fixed-duration block of 16-bit mono PCM samples.
// Seq is a monotonic sequence position assigned by the source; frames are
// produced in order and consumed exactly once.
type Frame struct {
	Seq      uint64
	Samples  []int16
	Duration time.Duration
}

// Source delivers fixed-duration frames from a capture device or a decoded
// file. Frames() yields frames in sequence order; the channel is closed when
// the source ends (file exhausted) or the source is stopped.
type Source interface {
	Start() error
	Frames() <-chan Frame
	Stop()
}

// MeanAbs returns the mean absolute amplitude of the frame on the int16 scale.
// It is the measure used by the pre-VAD amplitude gate.
func (f Frame) MeanAbs() float64 {
	if len(f.Samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range f.Samples {
		sum += math.Abs(float64(s))
	}

	return sum / float64(len(f.Samples))
}

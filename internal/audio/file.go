package audio

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// FileSource delivers frames decoded from a WAV file. The frame channel is
// closed once the file is exhausted, which lets the consumer flush any
// pending chunk and terminate.
type FileSource struct {
	samples    []int16
	sampleRate int
	frameLen   int
	frameDur   time.Duration

	frames   chan Frame
	stopOnce sync.Once
	done     chan struct{}
}

// NewFileSource decodes the WAV file at path into a frame source
func NewFileSource(path string, frameMs int, queueSize int) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file %s: %w", path, err)
	}

	samples, sampleRate, err := DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio file %s: %w", path, err)
	}

	return &FileSource{
		samples:    samples,
		sampleRate: sampleRate,
		frameLen:   sampleRate * frameMs / 1000,
		frameDur:   time.Duration(frameMs) * time.Millisecond,
		frames:     make(chan Frame, queueSize),
		done:       make(chan struct{}),
	}, nil
}

// SampleRate returns the sample rate decoded from the file header
func (f *FileSource) SampleRate() int {
	return f.sampleRate
}

// Start begins emitting frames. A trailing partial frame is discarded.
func (f *FileSource) Start() error {
	go func() {
		defer close(f.frames)

		var seq uint64
		for off := 0; off+f.frameLen <= len(f.samples); off += f.frameLen {
			frame := Frame{
				Seq:      seq,
				Samples:  f.samples[off : off+f.frameLen],
				Duration: f.frameDur,
			}
			seq++

			select {
			case f.frames <- frame:
			case <-f.done:
				return
			}
		}
	}()

	return nil
}

// Frames returns the frame channel; closed at end of file
func (f *FileSource) Frames() <-chan Frame {
	return f.frames
}

// Stop aborts frame delivery
func (f *FileSource) Stop() {
	f.stopOnce.Do(func() {
		close(f.done)
	})
}

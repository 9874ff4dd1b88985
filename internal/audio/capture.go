package audio

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

// CaptureSource delivers frames from a microphone via portaudio. Each stream
// read is sized to exactly one frame, so frames carry consecutive sequence
// positions with no re-slicing.
//
// The frame queue is bounded; when the consumer falls behind, the oldest
// queued frame is dropped to make room and the drop is counted.
type CaptureSource struct {
	sampleRate int
	frameLen   int // samples per frame
	frameDur   time.Duration
	deviceHint string
	logger     *slog.Logger

	frames  chan Frame
	stream  *portaudio.Stream
	buf     []int16
	seq     uint64
	dropped atomic.Uint64

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// CaptureConfig contains capture source configuration
type CaptureConfig struct {
	SampleRate int
	FrameMs    int
	QueueSize  int
	Device     string // device name substring, "" selects the default input
}

// NewCaptureSource initializes portaudio and prepares a microphone source
func NewCaptureSource(config CaptureConfig, logger *slog.Logger) (*CaptureSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	frameLen := config.SampleRate * config.FrameMs / 1000

	return &CaptureSource{
		sampleRate: config.SampleRate,
		frameLen:   frameLen,
		frameDur:   time.Duration(config.FrameMs) * time.Millisecond,
		deviceHint: config.Device,
		logger:     logger,
		frames:     make(chan Frame, config.QueueSize),
		buf:        make([]int16, frameLen),
		done:       make(chan struct{}),
	}, nil
}

// Start opens the capture stream and begins delivering frames
func (c *CaptureSource) Start() error {
	dev, err := c.selectDevice()
	if err != nil {
		return err
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(c.sampleRate),
		FramesPerBuffer: c.frameLen,
	}

	stream, err := portaudio.OpenStream(params, c.buf)
	if err != nil {
		return fmt.Errorf("failed to open capture stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start capture stream: %w", err)
	}

	c.stream = stream
	c.logger.Info("Audio capture started",
		slog.String("device", dev.Name),
		slog.Int("sample_rate", c.sampleRate),
		slog.Int("frame_samples", c.frameLen),
	)

	c.wg.Add(1)
	go c.readLoop()

	return nil
}

// selectDevice picks the capture device: the first input device whose name
// contains the configured hint, or the system default.
func (c *CaptureSource) selectDevice() (*portaudio.DeviceInfo, error) {
	if c.deviceHint == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("no default input device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	hint := strings.ToLower(c.deviceHint)
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		if strings.Contains(strings.ToLower(dev.Name), hint) {
			return dev, nil
		}
	}

	return nil, fmt.Errorf("no input device matching %q", c.deviceHint)
}

// readLoop blocks on the stream and pushes frames into the bounded queue
func (c *CaptureSource) readLoop() {
	defer c.wg.Done()
	defer close(c.frames)

	for {
		select {
		case <-c.done:
			return
		default:
		}

		if err := c.stream.Read(); err != nil {
			select {
			case <-c.done:
				// Expected during shutdown
			default:
				c.logger.Error("Capture read failed", slog.String("error", err.Error()))
			}
			return
		}

		frame := Frame{
			Seq:      c.seq,
			Samples:  append([]int16(nil), c.buf...),
			Duration: c.frameDur,
		}
		c.seq++

		select {
		case c.frames <- frame:
		default:
			// Queue full: drop the oldest frame to keep latency bounded
			select {
			case <-c.frames:
				c.dropped.Add(1)
			default:
			}
			select {
			case c.frames <- frame:
			default:
				c.dropped.Add(1)
			}
		}
	}
}

// Frames returns the frame channel; closed when capture stops
func (c *CaptureSource) Frames() <-chan Frame {
	return c.frames
}

// Dropped returns the number of frames discarded due to a full queue
func (c *CaptureSource) Dropped() uint64 {
	return c.dropped.Load()
}

// QueueDepth returns the number of frames currently buffered
func (c *CaptureSource) QueueDepth() int {
	return len(c.frames)
}

// Stop closes the stream and terminates portaudio
func (c *CaptureSource) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		if c.stream != nil {
			_ = c.stream.Abort()
			c.wg.Wait()
			_ = c.stream.Close()
		}
		_ = portaudio.Terminate()
	})
}

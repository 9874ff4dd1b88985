package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Detector classifies one fixed-duration audio frame as speech or non-speech.
// Implementations may keep internal state across frames of one stream; a
// detector instance must not be shared between concurrent streams.
type Detector interface {
	IsSpeech(samples []int16) bool
}

// EnergyDetector is an RMS-energy voice activity detector.
// Frame energy is normalized to the int16 full scale, so the threshold is
// a value in [0, 1].
type EnergyDetector struct {
	threshold float64

	// Statistics
	totalFrames  uint64
	speechFrames uint64
	lastEnergy   float64
	lastObserved time.Time

	mu sync.RWMutex
}

// DetectorStats represents detector statistics
type DetectorStats struct {
	Threshold        float64   `json:"threshold"`
	TotalFrames      uint64    `json:"total_frames"`
	SpeechFrames     uint64    `json:"speech_frames"`
	SpeechPercentage float64   `json:"speech_percentage"`
	LastEnergy       float64   `json:"last_energy"`
	LastObserved     time.Time `json:"last_observed"`
}

// NewEnergyDetector creates a new energy-based detector
func NewEnergyDetector(threshold float64) (*EnergyDetector, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	return &EnergyDetector{threshold: threshold}, nil
}

// IsSpeech reports whether the frame's normalized RMS energy reaches the threshold
func (d *EnergyDetector) IsSpeech(samples []int16) bool {
	energy := rms(samples)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.totalFrames++
	d.lastEnergy = energy
	d.lastObserved = time.Now()

	speech := energy >= d.threshold
	if speech {
		d.speechFrames++
	}

	return speech
}

// rms returns the root-mean-square amplitude normalized to [0, 1]
func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum/float64(len(samples))) / 32768.0
}

// Stats returns current detector statistics
func (d *EnergyDetector) Stats() DetectorStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	speechPercentage := float64(0)
	if d.totalFrames > 0 {
		speechPercentage = float64(d.speechFrames) / float64(d.totalFrames) * 100
	}

	return DetectorStats{
		Threshold:        d.threshold,
		TotalFrames:      d.totalFrames,
		SpeechFrames:     d.speechFrames,
		SpeechPercentage: speechPercentage,
		LastEnergy:       d.lastEnergy,
		LastObserved:     d.lastObserved,
	}
}

// Reset clears the detector state and statistics
func (d *EnergyDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.totalFrames = 0
	d.speechFrames = 0
	d.lastEnergy = 0
	d.lastObserved = time.Time{}
}

// Package vad provides frame-level voice activity detection.
// It exposes a boolean speech/non-speech predicate over fixed-duration PCM
// frames; the default detector is energy based with a configurable threshold.
package vad

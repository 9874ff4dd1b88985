// Package audio handles audio framing, capture, and format conversion.
// It delivers fixed-duration PCM frames from a microphone or a WAV file,
// accumulates speech-bearing frames into chunks under an adaptive flush
// policy, and encodes finished chunks to WAV for transcription.
package audio

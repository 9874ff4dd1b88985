// Package transcription dispatches finished speech chunks to an external
// recognition engine and returns ordered text segments. Two engine backends
// are provided: an HTTP client for a self-hosted whisper server and the
// OpenAI Whisper API.
package transcription

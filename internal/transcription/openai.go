package transcription

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEngine is the engine backend for the OpenAI Whisper API. Beam size,
// best-of, and the device/precision selectors have no API equivalent and are
// accepted but ignored; language and temperature are forwarded.
type OpenAIEngine struct {
	client *openai.Client
	params Params
}

// NewOpenAIEngine creates an OpenAI-backed engine
func NewOpenAIEngine(apiKey string, params Params) (*OpenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key cannot be empty for the openai backend")
	}

	if params.Model == "" || params.Model == "medium" {
		params.Model = openai.Whisper1
	}

	return &OpenAIEngine{
		client: openai.NewClient(apiKey),
		params: params,
	}, nil
}

// Transcribe uploads the chunk as WAV and maps the verbose response to
// ordered segments.
func (e *OpenAIEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]Segment, error) {
	wavData, err := pcm16WAV(samples, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audio: %w", err)
	}

	req := openai.AudioRequest{
		Model:       e.params.Model,
		FilePath:    uuid.NewString() + ".wav",
		Reader:      bytes.NewReader(wavData),
		Language:    e.params.Language,
		Temperature: float32(e.params.Temperature),
		Format:      openai.AudioResponseFormatVerboseJSON,
	}

	resp, err := e.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}

	if len(resp.Segments) == 0 {
		if resp.Text == "" {
			return nil, nil
		}
		return []Segment{{Text: resp.Text, End: resp.Duration}}, nil
	}

	segments := make([]Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, Segment{
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
		})
	}

	return segments, nil
}

// Close is a no-op for the API client
func (e *OpenAIEngine) Close() error {
	return nil
}

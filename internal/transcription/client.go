package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client is the HTTP engine backend for a self-hosted whisper server. Each
// chunk is uploaded as a WAV file in a multipart form together with the
// fixed decoding parameters.
type Client struct {
	config     ClientConfig
	httpClient *http.Client

	// Statistics
	totalRequests   uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// ClientConfig contains HTTP engine configuration
type ClientConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Params   Params
}

// serverResponse is the whisper server's reply
type serverResponse struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// NewClient creates a new whisper server client
func NewClient(config ClientConfig) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// Transcribe uploads the chunk and returns the ordered segments. Errors are
// not retried: a broken engine is unsafe to continue with, so failures
// propagate to the pipeline.
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]Segment, error) {
	startTime := time.Now()
	c.incrementTotalRequests()

	body, contentType, err := c.createMultipartRequest(samples, sampleRate)
	if err != nil {
		c.incrementFailedRequests()
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		c.incrementFailedRequests()
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.incrementFailedRequests()
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.incrementFailedRequests()
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.incrementFailedRequests()
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var serverResp serverResponse
	if err := json.Unmarshal(respBody, &serverResp); err != nil {
		c.incrementFailedRequests()
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	c.updateAvgResponseTime(time.Since(startTime))

	segments := serverResp.Segments
	if len(segments) == 0 && serverResp.Text != "" {
		segments = []Segment{{Text: serverResp.Text, End: serverResp.Duration}}
	}

	return segments, nil
}

// createMultipartRequest builds the multipart form with the WAV payload and
// the decoding parameter fields.
func (c *Client) createMultipartRequest(samples []float32, sampleRate int) (io.Reader, string, error) {
	wavData, err := pcm16WAV(samples, sampleRate)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode audio: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	requestID := uuid.NewString()
	fileWriter, err := writer.CreateFormFile("file", requestID+".wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"request_id":   requestID,
		"model":        c.config.Params.Model,
		"language":     c.config.Params.Language,
		"beam_size":    fmt.Sprintf("%d", c.config.Params.BeamSize),
		"best_of":      fmt.Sprintf("%d", c.config.Params.BestOf),
		"temperature":  fmt.Sprintf("%.2f", c.config.Params.Temperature),
		"device":       c.config.Params.Device,
		"compute_type": c.config.Params.ComputeType,
		"sample_rate":  fmt.Sprintf("%d", sampleRate),
		"timestamp":    time.Now().Format(time.RFC3339),
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// Stats returns current client statistics
func (c *Client) Stats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ClientStats{
		TotalRequests:   c.totalRequests,
		FailedRequests:  c.failedRequests,
		AvgResponseTime: c.avgResponseTime,
	}
}

// Close shuts down the client's idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

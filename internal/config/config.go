package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete daemon configuration
type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	Segmenter  SegmenterConfig  `yaml:"segmenter"`
	VAD        VADConfig        `yaml:"vad"`
	Engine     EngineConfig     `yaml:"engine"`
	Dictionary DictionaryConfig `yaml:"dictionary"`
	Batch      BatchConfig      `yaml:"batch"`
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// AudioConfig contains capture and framing parameters
type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"` // Hz
	FrameMs    int    `yaml:"frame_ms"`    // duration of one frame
	MinLevel   int    `yaml:"min_level"`   // mean-abs amplitude floor on int16 scale
	QueueSize  int    `yaml:"queue_size"`  // frame queue capacity
	Device     string `yaml:"device"`      // capture device name substring, "" = default
}

// SegmenterConfig contains the chunk flush policy
type SegmenterConfig struct {
	ChunkMaxMs       int `yaml:"chunk_max_ms"`       // hard ceiling per chunk
	SilenceTimeoutMs int `yaml:"silence_timeout_ms"` // 0 = no early silence flush
}

// VADConfig contains voice activity detection configuration
type VADConfig struct {
	Threshold float64 `yaml:"threshold"` // normalized RMS energy threshold, 0..1
}

// EngineConfig contains recognition engine configuration
type EngineConfig struct {
	Backend     string  `yaml:"backend"` // "server" or "openai"
	Endpoint    string  `yaml:"endpoint"`
	APIKey      string  `yaml:"api_key"` // falls back to CAPTIOND_API_KEY / OPENAI_API_KEY
	Model       string  `yaml:"model"`
	Language    string  `yaml:"language"`
	BeamSize    int     `yaml:"beam_size"`
	BestOf      int     `yaml:"best_of"`
	Temperature float64 `yaml:"temperature"`
	Device      string  `yaml:"device"`       // inference device selector
	ComputeType string  `yaml:"compute_type"` // numeric precision selector
	Timeout     int     `yaml:"timeout"`      // seconds
}

// DictionaryConfig locates the correction dictionary resource
type DictionaryConfig struct {
	Path string `yaml:"path"`
}

// BatchConfig controls the one-shot file mode
type BatchConfig struct {
	InputFile    string `yaml:"input_file"`
	ResultPrefix string `yaml:"result_prefix"`
}

// HTTPConfig contains the optional monitoring server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the built-in configuration used when no config file is present.
// The values mirror the fixed constants of the reference captioning setup:
// 16 kHz mono, 30 ms frames, 2 s chunks, Japanese decoding with beam 8.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate: 16000,
			FrameMs:    30,
			MinLevel:   3000,
			QueueSize:  1024,
		},
		Segmenter: SegmenterConfig{
			ChunkMaxMs:       2000,
			SilenceTimeoutMs: 0,
		},
		VAD: VADConfig{
			Threshold: 0.02,
		},
		Engine: EngineConfig{
			Backend:     "server",
			Endpoint:    "http://127.0.0.1:8080/transcribe",
			Model:       "medium",
			Language:    "ja",
			BeamSize:    8,
			BestOf:      2,
			Temperature: 0,
			Device:      "cpu",
			ComputeType: "int8",
			Timeout:     60,
		},
		Dictionary: DictionaryConfig{
			Path: "med_dict.tsv",
		},
		Batch: BatchConfig{
			InputFile:    "test.wav",
			ResultPrefix: "ファイル結果:",
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Address: "127.0.0.1",
			Port:    9090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file. Fields omitted in the file
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Segmenter.Validate(); err != nil {
		return fmt.Errorf("segmenter config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 8000 && a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 8000 or 16000 Hz, got %d", a.SampleRate)
	}

	if a.FrameMs < 10 || a.FrameMs > 100 {
		return fmt.Errorf("frame_ms must be between 10 and 100, got %d", a.FrameMs)
	}

	if a.MinLevel < 0 || a.MinLevel > 32767 {
		return fmt.Errorf("min_level must be between 0 and 32767, got %d", a.MinLevel)
	}

	if a.QueueSize < 16 {
		return fmt.Errorf("queue_size must be at least 16 frames, got %d", a.QueueSize)
	}

	return nil
}

// Validate validates the segmenter flush policy
func (s *SegmenterConfig) Validate() error {
	if s.ChunkMaxMs < 100 {
		return fmt.Errorf("chunk_max_ms must be at least 100, got %d", s.ChunkMaxMs)
	}

	if s.SilenceTimeoutMs < 0 {
		return fmt.Errorf("silence_timeout_ms cannot be negative, got %d", s.SilenceTimeoutMs)
	}

	if s.SilenceTimeoutMs > s.ChunkMaxMs {
		return fmt.Errorf("silence_timeout_ms (%d) cannot exceed chunk_max_ms (%d)",
			s.SilenceTimeoutMs, s.ChunkMaxMs)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.Threshold < 0 || v.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", v.Threshold)
	}

	return nil
}

// Validate validates engine configuration
func (e *EngineConfig) Validate() error {
	validBackends := map[string]bool{"server": true, "openai": true}
	if !validBackends[e.Backend] {
		return fmt.Errorf("backend must be 'server' or 'openai', got '%s'", e.Backend)
	}

	if e.Backend == "server" && e.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty for the server backend")
	}

	if e.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	if e.BeamSize < 1 {
		return fmt.Errorf("beam_size must be at least 1, got %d", e.BeamSize)
	}

	if e.BestOf < 1 {
		return fmt.Errorf("best_of must be at least 1, got %d", e.BestOf)
	}

	if e.Temperature < 0 || e.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", e.Temperature)
	}

	if e.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", e.Timeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// FrameDuration returns the frame duration as a time.Duration
func (a *AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameMs) * time.Millisecond
}

// SamplesPerFrame returns the number of PCM samples in one frame
func (a *AudioConfig) SamplesPerFrame() int {
	return a.SampleRate * a.FrameMs / 1000
}

// ChunkMaxDuration returns the chunk ceiling as a time.Duration
func (s *SegmenterConfig) ChunkMaxDuration() time.Duration {
	return time.Duration(s.ChunkMaxMs) * time.Millisecond
}

// SilenceTimeout returns the early-flush silence timeout as a time.Duration.
// Zero means the ceiling-only flush policy is in effect.
func (s *SegmenterConfig) SilenceTimeout() time.Duration {
	return time.Duration(s.SilenceTimeoutMs) * time.Millisecond
}

// TimeoutDuration returns the engine call timeout as a time.Duration
func (e *EngineConfig) TimeoutDuration() time.Duration {
	return time.Duration(e.Timeout) * time.Second
}

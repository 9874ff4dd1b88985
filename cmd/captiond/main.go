package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yukissssss/whisper-playground/internal/audio"
	"github.com/yukissssss/whisper-playground/internal/config"
	"github.com/yukissssss/whisper-playground/internal/metrics"
	"github.com/yukissssss/whisper-playground/internal/pipeline"
	"github.com/yukissssss/whisper-playground/internal/server"
	"github.com/yukissssss/whisper-playground/internal/textnorm"
	"github.com/yukissssss/whisper-playground/internal/transcription"
	"github.com/yukissssss/whisper-playground/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "captiond"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	dictPath := flag.String("dict", "", "Path to correction dictionary (overrides config)")
	silenceTimeout := flag.Int("silence-timeout", -1, "Silence flush timeout in ms, 0 disables (overrides config)")
	device := flag.String("device", "", "Engine inference device, e.g. cpu or cuda (overrides config)")
	compute := flag.String("compute", "", "Engine compute type, e.g. int8 or float16 (overrides config)")
	batchFile := flag.String("file", "", "Transcribe a WAV file and exit (overrides config)")
	debug := flag.Bool("debug", false, "Enable periodic throughput diagnostics")
	flag.Parse()

	// Local development keys live in .env; absence is fine
	_ = godotenv.Load()

	// Load configuration, falling back to built-in defaults when no file exists
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *dictPath, *silenceTimeout, *device, *compute, *batchFile)
	if *debug {
		// Diagnostics are logged at debug level; the flag implies it
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("frame_ms", cfg.Audio.FrameMs),
		slog.Int("min_level", cfg.Audio.MinLevel),
		slog.Int("chunk_max_ms", cfg.Segmenter.ChunkMaxMs),
		slog.Int("silence_timeout_ms", cfg.Segmenter.SilenceTimeoutMs),
		slog.Float64("vad_threshold", cfg.VAD.Threshold),
		slog.String("engine_backend", cfg.Engine.Backend),
		slog.String("engine_language", cfg.Engine.Language),
		slog.String("dictionary", cfg.Dictionary.Path),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context tied to shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.New()

	// Assemble the text stage: correction rules, normalizer, repeat filter
	rules := textnorm.LoadDict(cfg.Dictionary.Path, logger)
	normalizer := textnorm.NewNormalizer(rules)
	dedup := textnorm.NewDedup()
	logger.Info("Correction dictionary ready", slog.Int("rules", len(rules)))

	// Initialize the recognition engine
	engine, err := newEngine(cfg.Engine)
	if err != nil {
		logger.Error("Failed to create recognition engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	dispatcher := transcription.NewDispatcher(engine)
	defer dispatcher.Close()

	detector, err := vad.NewEnergyDetector(cfg.VAD.Threshold)
	if err != nil {
		logger.Error("Failed to create VAD detector", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Batch mode: the input file drives the same pipeline, then we exit
	if *batchFile != "" || fileExists(cfg.Batch.InputFile) {
		input := cfg.Batch.InputFile
		if *batchFile != "" {
			input = *batchFile
		}
		if err := runBatch(ctx, cfg, logger, appMetrics, detector, dispatcher, dedup, normalizer, input, *debug); err != nil {
			logger.Error("Batch transcription failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Batch transcription complete", slog.String("file", input))
		return
	}

	// Live mode: microphone capture until a shutdown signal arrives
	if err := runLive(ctx, cfg, logger, appMetrics, detector, dispatcher, dedup, normalizer, *debug); err != nil {
		logger.Error("Caption pipeline failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

// runLive captures from the microphone and streams captions to stdout and,
// when enabled, to the monitoring server's websocket subscribers.
func runLive(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics,
	detector vad.Detector, dispatcher *transcription.Dispatcher,
	dedup *textnorm.Dedup, normalizer *textnorm.Normalizer, debug bool) error {

	source, err := audio.NewCaptureSource(audio.CaptureConfig{
		SampleRate: cfg.Audio.SampleRate,
		FrameMs:    cfg.Audio.FrameMs,
		QueueSize:  cfg.Audio.QueueSize,
		Device:     cfg.Audio.Device,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to open capture device: %w", err)
	}

	segmenter, err := audio.NewSegmenter(audio.SegmenterConfig{
		MaxChunk:       cfg.Segmenter.ChunkMaxDuration(),
		SilenceTimeout: cfg.Segmenter.SilenceTimeout(),
		SampleRate:     cfg.Audio.SampleRate,
	}, detector)
	if err != nil {
		return fmt.Errorf("failed to create segmenter: %w", err)
	}

	sinks := []pipeline.Sink{pipeline.NewWriterSink(os.Stdout, "")}

	var broadcaster *server.CaptionBroadcaster
	if cfg.HTTP.Enabled {
		broadcaster = server.NewCaptionBroadcaster(logger)
		sinks = append(sinks, broadcaster)
	}

	p := pipeline.New(pipeline.Config{
		MinLevel: float64(cfg.Audio.MinLevel),
		Debug:    debug,
	}, logger, m, source, segmenter, dispatcher, dedup, normalizer, sinks...)

	// Start the monitoring server after the pipeline exists so /stats has
	// something to report
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(server.HTTPServerConfig{
			Address: cfg.HTTP.Address,
			Port:    cfg.HTTP.Port,
		}, logger, m, p.Stats, broadcaster)
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("failed to start monitoring server: %w", err)
		}
		logger.Info("Monitoring server started",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	logger.Info("Listening, press Ctrl-C to stop")
	runErr := p.Run(ctx)

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping monitoring server", slog.String("error", err.Error()))
		}
	}

	stats := p.Stats()
	logger.Info("Final pipeline statistics",
		slog.Uint64("frames_seen", stats.FramesSeen),
		slog.Uint64("frames_gated", stats.FramesGated),
		slog.Uint64("frames_dropped", stats.Dropped),
		slog.Uint64("chunks_sent", stats.ChunksSent),
		slog.Uint64("lines_out", stats.LinesOut),
	)

	return runErr
}

// runBatch replays a WAV file through the pipeline and prints each caption
// behind the configured result prefix.
func runBatch(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics,
	detector vad.Detector, dispatcher *transcription.Dispatcher,
	dedup *textnorm.Dedup, normalizer *textnorm.Normalizer, path string, debug bool) error {

	source, err := audio.NewFileSource(path, cfg.Audio.FrameMs, cfg.Audio.QueueSize)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}

	// The file dictates the sample rate; the flush policy stays the same
	segmenter, err := audio.NewSegmenter(audio.SegmenterConfig{
		MaxChunk:       cfg.Segmenter.ChunkMaxDuration(),
		SilenceTimeout: cfg.Segmenter.SilenceTimeout(),
		SampleRate:     source.SampleRate(),
	}, detector)
	if err != nil {
		return fmt.Errorf("failed to create segmenter: %w", err)
	}

	sink := pipeline.NewWriterSink(os.Stdout, cfg.Batch.ResultPrefix)

	p := pipeline.New(pipeline.Config{
		MinLevel: float64(cfg.Audio.MinLevel),
		Debug:    debug,
	}, logger, m, source, segmenter, dispatcher, dedup, normalizer, sink)

	return p.Run(ctx)
}

// newEngine builds the recognition backend selected by the configuration
func newEngine(cfg config.EngineConfig) (transcription.Engine, error) {
	params := transcription.Params{
		Model:       cfg.Model,
		Language:    cfg.Language,
		BeamSize:    cfg.BeamSize,
		BestOf:      cfg.BestOf,
		Temperature: cfg.Temperature,
		Device:      cfg.Device,
		ComputeType: cfg.ComputeType,
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("CAPTIOND_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	switch cfg.Backend {
	case "openai":
		return transcription.NewOpenAIEngine(apiKey, params)
	default:
		return transcription.NewClient(transcription.ClientConfig{
			Endpoint: cfg.Endpoint,
			APIKey:   apiKey,
			Timeout:  cfg.TimeoutDuration(),
			Params:   params,
		})
	}
}

// loadConfig reads the config file, or returns built-in defaults when the
// default path does not exist. An explicit -config path must exist.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath && !fileExists(path) {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(path)
}

// applyFlags layers non-empty flag overrides on top of the loaded config
func applyFlags(cfg *config.Config, dict string, silenceTimeout int, device, compute, batchFile string) {
	if dict != "" {
		cfg.Dictionary.Path = dict
	}
	if silenceTimeout >= 0 {
		cfg.Segmenter.SilenceTimeoutMs = silenceTimeout
	}
	if device != "" {
		cfg.Engine.Device = device
	}
	if compute != "" {
		cfg.Engine.ComputeType = compute
	}
	if batchFile != "" {
		cfg.Batch.InputFile = batchFile
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Captions own stdout, so logs default to stderr
	var output *os.File
	switch cfg.Output {
	case "stderr", "":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/loqalabs/loqa-interview/internal/api"
	"github.com/loqalabs/loqa-interview/internal/audio"
	"github.com/loqalabs/loqa-interview/internal/bus"
	"github.com/loqalabs/loqa-interview/internal/capability"
	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/loqalabs/loqa-interview/internal/pronunciation"
	"github.com/loqalabs/loqa-interview/internal/stt"
	"github.com/loqalabs/loqa-interview/internal/tts"
)

// newCapture builds the recorder over the configured microphone, or over a
// WAV file replayed in real time when audioFile is set.
func newCapture(cfg config.AudioConfig, audioFile string, log *slog.Logger) (*audio.Recorder, error) {
	rate := cfg.SampleRate
	if audioFile != "" {
		data, err := os.ReadFile(audioFile)
		if err != nil {
			return nil, fmt.Errorf("read audio file: %w", err)
		}
		samples, format, err := audio.DecodeWAV(data)
		if err != nil {
			return nil, fmt.Errorf("decode audio file: %w", err)
		}
		frameBytes := format.SampleRate * format.Channels * 2 * cfg.FrameDurationMS / 1000
		mic := &audio.StaticMicrophone{
			Data:       audio.SamplesToBytes(samples),
			FrameBytes: frameBytes,
			Pace:       time.Duration(cfg.FrameDurationMS) * time.Millisecond,
		}
		return audio.NewRecorder(mic, nil, format, rate, log), nil
	}

	mic, err := audio.NewExecMicrophone(cfg.MicrophoneCommand, cfg.FrameBytes(), log)
	if err != nil {
		return nil, err
	}
	input := audio.Format{SampleRate: cfg.InputSampleRate, Channels: cfg.InputChannels}
	var decoder audio.Decoder
	if cfg.DecoderCommand != "" {
		execDecoder, err := audio.NewExecDecoder(cfg.DecoderCommand)
		if err != nil {
			return nil, err
		}
		decoder = execDecoder
	}
	return audio.NewRecorder(mic, decoder, input, rate, log), nil
}

// newRecognizer returns the configured recognizer and a release func.
func newRecognizer(ctx context.Context, cfg config.Config, log *slog.Logger) (stt.Recognizer, func(), error) {
	if cfg.STT.Mode == "bus" {
		client, err := bus.Connect(ctx, cfg.RuntimeName, cfg.Bus, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to speech backend: %w", err)
		}
		if err := waitForBackend(ctx, cfg.Bus, client, log); err != nil {
			client.Close()
			return nil, nil, err
		}
		return stt.NewBusRecognizer(client, cfg.STT, cfg.Audio, log), client.Close, nil
	}
	engine, err := newEngine(cfg.STT)
	if err != nil {
		return nil, nil, err
	}
	return stt.NewLocalRecognizer(engine, cfg.STT, cfg.Audio, log), func() {}, nil
}

// waitForBackend fails when no `serve` process announces transcription.
func waitForBackend(ctx context.Context, cfg config.BusConfig, client *bus.Client, log *slog.Logger) error {
	registry, err := capability.NewRegistry(ctx, capability.Options{Role: "practice"}, cfg, client, log)
	if err != nil {
		return err
	}
	defer registry.Close()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.HeartbeatTimeout)*time.Millisecond)
	defer cancel()
	node, err := registry.WaitFor(ctx, capability.Transcription)
	if err != nil {
		return fmt.Errorf("speech backend unavailable, start `loqa-interview serve`: %w", err)
	}
	log.Info("speech backend online", slog.String("node", node.ID))
	return nil
}

// newEngine picks the transcription engine. In bus mode the engine runs in
// `serve`, which uses exec when a command is configured.
func newEngine(cfg config.STTConfig) (stt.Engine, error) {
	switch cfg.Mode {
	case "exec":
		return stt.NewExecEngine(cfg)
	case "bus":
		if cfg.Command != "" {
			return stt.NewExecEngine(cfg)
		}
		return stt.NewMockEngine(cfg.MockTranscript), nil
	default:
		return stt.NewMockEngine(cfg.MockTranscript), nil
	}
}

func newAssessor(cfg config.AssessorConfig, log *slog.Logger) (pronunciation.Assessor, error) {
	assessor, err := pronunciation.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create assessor: %w", err)
	}
	return assessor, nil
}

// newSpeaker returns nil when no prompt command is configured.
func newSpeaker(cfg config.PromptConfig, log *slog.Logger) (tts.Speaker, error) {
	if cfg.PlayerCommand == "" && cfg.SpeakCommand == "" {
		return nil, nil
	}
	speaker, err := tts.NewExecSpeaker(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create question speaker: %w", err)
	}
	return speaker, nil
}

func resolveUserID(cfg config.APIConfig) (string, error) {
	if cfg.UserID != "" {
		return cfg.UserID, nil
	}
	if cfg.AuthToken == "" {
		return "", errors.New("api.user_id or api.auth_token must be set")
	}
	id, err := api.UserIDFromToken(cfg.AuthToken)
	if err != nil {
		return "", fmt.Errorf("derive user id from token: %w", err)
	}
	return id, nil
}

// serveMetrics exposes the Prometheus handler while a practice run is active.
func serveMetrics(bind string, handler http.Handler) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: bind, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server failed", slog.String("bind", bind), slogError(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

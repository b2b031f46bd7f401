package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-interview/internal/bus"
	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/loqalabs/loqa-interview/internal/protocol"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// transcribeTimeout bounds one engine pass.
const transcribeTimeout = 45 * time.Second

// Service answers BusRecognizer sessions. Audio for each session accumulates
// into an utterance; partial passes run at most every partial_every_ms and
// the final pass runs once the client sends its last frame.
type Service struct {
	cfg    config.STTConfig
	bus    *bus.Client
	engine Engine
	log    *slog.Logger

	mu         sync.Mutex
	utterances map[string]*utterance
	sub        *nats.Subscription
	ready      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	passes metric.Int64Counter
}

// utterance is the server-side state of one recognizer session. Guarded by
// Service.mu.
type utterance struct {
	pcm        []byte
	rate       int
	channels   int
	lastFrame  time.Time
	lastPass   time.Time
	running    bool
	finalQueue bool
}

// due reports whether a partial pass may start now.
func (u *utterance) due(now time.Time, every time.Duration) bool {
	if u.running {
		return false
	}
	if u.lastPass.IsZero() {
		return true
	}
	return every > 0 && now.Sub(u.lastPass) >= every
}

// snapshot marks the utterance busy and returns a copy of its audio.
func (u *utterance) snapshot() []byte {
	u.running = true
	return append([]byte(nil), u.pcm...)
}

func NewService(parent context.Context, cfg config.STTConfig, busClient *bus.Client, engine Engine) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:        cfg,
		bus:        busClient,
		engine:     engine,
		log:        busClient.Logger().With(slog.String("component", "stt.service")),
		utterances: make(map[string]*utterance),
		ctx:        ctx,
		cancel:     cancel,
	}
	passes, err := otel.Meter("github.com/loqalabs/loqa-interview/internal/stt").Int64Counter(
		"interview.stt.passes", metric.WithDescription("Engine passes run for bus sessions"))
	if err != nil {
		s.log.Warn("failed to create pass counter", slogError(err))
	}
	s.passes = passes
	return s
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	subject := protocol.SubjectAudioFramePrefix + ".>"
	sub, err := s.bus.Conn().Subscribe(subject, s.handleFrame)
	if err != nil {
		return fmt.Errorf("subscribe audio frames: %w", err)
	}
	s.mu.Lock()
	s.sub = sub
	s.ready = true
	s.mu.Unlock()

	if s.cfg.IdleSessionMS > 0 {
		s.wg.Add(1)
		go s.sweep(time.Duration(s.cfg.IdleSessionMS) * time.Millisecond)
	}
	s.log.Info("transcription service listening", slog.String("subject", subject))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.mu.Lock()
	sub := s.sub
	s.ready = false
	s.mu.Unlock()
	if sub != nil {
		_ = sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	if !s.cfg.Enabled {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// ActiveSessions reports how many sessions are buffering audio.
func (s *Service) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.utterances)
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.log.Warn("failed to decode audio frame", slogError(err))
		return
	}
	if frame.SessionID == "" {
		return
	}

	now := time.Now()
	s.mu.Lock()
	u := s.utterances[frame.SessionID]
	if u == nil {
		u = &utterance{rate: frame.SampleRate, channels: frame.Channels}
		s.utterances[frame.SessionID] = u
	}
	u.pcm = append(u.pcm, frame.PCM...)
	u.lastFrame = now

	var pcm []byte
	var final bool
	switch {
	case frame.Final && u.running:
		u.finalQueue = true
		s.mu.Unlock()
		return
	case frame.Final:
		pcm, final = u.snapshot(), true
	case s.cfg.PublishInterim && u.due(now, time.Duration(s.cfg.PartialEveryMS)*time.Millisecond):
		pcm = u.snapshot()
	default:
		s.mu.Unlock()
		return
	}
	rate, channels := u.rate, u.channels
	s.mu.Unlock()
	s.launch(frame.SessionID, pcm, rate, channels, final)
}

// launch runs one engine pass in the background. The utterance must already
// be marked running.
func (s *Service) launch(sessionID string, pcm []byte, rate, channels int, final bool) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pass(sessionID, pcm, rate, channels, final)
	}()
}

func (s *Service) pass(sessionID string, pcm []byte, rate, channels int, final bool) {
	ctx, cancel := context.WithTimeout(s.ctx, transcribeTimeout)
	defer cancel()

	reason := EndSpeechEnded
	if len(pcm) > 0 {
		if s.passes != nil {
			s.passes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("final", final)))
		}
		result, err := s.engine.Transcribe(ctx, pcm, rate, channels, final)
		switch {
		case err != nil:
			s.log.Warn("stt transcription failed", slog.String("session_id", sessionID), slogError(err))
			reason = EndError
		case result.Text != "":
			s.publishTranscript(sessionID, result.Text, result.Confidence, final)
		}
	}

	s.mu.Lock()
	u := s.utterances[sessionID]
	if final {
		delete(s.utterances, sessionID)
		s.mu.Unlock()
		s.publishEnd(sessionID, reason)
		return
	}
	if u == nil {
		s.mu.Unlock()
		return
	}
	u.running = false
	u.lastPass = time.Now()
	if !u.finalQueue {
		s.mu.Unlock()
		return
	}
	// the last frame arrived while this partial pass was running
	next := u.snapshot()
	rate, channels = u.rate, u.channels
	s.mu.Unlock()
	s.pass(sessionID, next, rate, channels, true)
}

// sweep drops sessions whose client went away without sending a last frame.
func (s *Service) sweep(idle time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			for _, id := range s.expire(now, idle) {
				s.log.Warn("dropping idle transcription session", slog.String("session_id", id))
				s.publishEnd(id, EndTimeout)
			}
		}
	}
}

func (s *Service) expire(now time.Time, idle time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []string
	for id, u := range s.utterances {
		if !u.running && now.Sub(u.lastFrame) > idle {
			delete(s.utterances, id)
			expired = append(expired, id)
		}
	}
	return expired
}

func (s *Service) publishTranscript(sessionID, text string, confidence float64, final bool) {
	subject := protocol.SubjectTranscriptPartial
	if final {
		subject = protocol.SubjectTranscriptFinal
	}
	msg := protocol.Transcript{
		SessionID:  sessionID,
		Text:       text,
		Partial:    !final,
		Timestamp:  time.Now().UTC(),
		Confidence: confidence,
	}
	if err := s.bus.PublishJSON(subject, msg); err != nil {
		s.log.Warn("failed to publish transcript", slogError(err))
	}
}

func (s *Service) publishEnd(sessionID, reason string) {
	msg := protocol.SessionEnd{SessionID: sessionID, Reason: reason, Timestamp: time.Now().UTC()}
	if err := s.bus.PublishJSON(protocol.SubjectSessionEnd, msg); err != nil {
		s.log.Warn("failed to publish session end", slogError(err))
	}
}

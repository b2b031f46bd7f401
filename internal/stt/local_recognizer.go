package stt

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-interview/internal/config"
)

// LocalRecognizer runs an Engine in-process: a partial pass over the buffered
// audio every PartialEveryMS, and a final pass when the session stops.
type LocalRecognizer struct {
	engine     Engine
	cfg        config.STTConfig
	sampleRate int
	channels   int
	log        *slog.Logger
}

func NewLocalRecognizer(engine Engine, cfg config.STTConfig, audioCfg config.AudioConfig, log *slog.Logger) *LocalRecognizer {
	return &LocalRecognizer{
		engine:     engine,
		cfg:        cfg,
		sampleRate: audioCfg.SampleRate,
		channels:   audioCfg.Channels,
		log:        log.With(slog.String("component", "stt.local")),
	}
}

func (r *LocalRecognizer) Start(ctx context.Context, frames <-chan []byte) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &localSession{
		stream: newStream(uuid.NewString(), r.log),
		rec:    r,
		stop:   make(chan struct{}),
	}
	go s.run(ctx, frames)
	return s, nil
}

type localSession struct {
	*stream
	rec      *LocalRecognizer
	stop     chan struct{}
	stopOnce sync.Once
}

type partialResult struct {
	text string
	err  error
}

func (s *localSession) run(ctx context.Context, frames <-chan []byte) {
	var (
		buf      []byte
		lastLen  int
		inflight bool
		results  = make(chan partialResult, 1)
		tick     <-chan time.Time
	)
	if every := time.Duration(s.rec.cfg.PartialEveryMS) * time.Millisecond; every > 0 {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.end(EndCancelled, nil)
			return
		case <-s.stop:
			s.finish(ctx, drainFrames(frames, buf), EndStopped)
			return
		case chunk, ok := <-frames:
			if !ok {
				s.finish(ctx, buf, EndSpeechEnded)
				return
			}
			buf = append(buf, chunk...)
		case <-tick:
			if inflight || len(buf) == lastLen {
				continue
			}
			inflight = true
			lastLen = len(buf)
			pcm := append([]byte(nil), buf...)
			go func() {
				res, err := s.rec.engine.Transcribe(ctx, pcm, s.rec.sampleRate, s.rec.channels, false)
				results <- partialResult{text: res.Text, err: err}
			}()
		case res := <-results:
			inflight = false
			if res.err != nil {
				if ctx.Err() != nil {
					s.end(EndCancelled, nil)
				} else {
					s.end(EndError, res.err)
				}
				return
			}
			s.interim(res.text)
		}
	}
}

func (s *localSession) finish(ctx context.Context, pcm []byte, reason string) {
	if len(pcm) == 0 {
		s.end(reason, nil)
		return
	}
	res, err := s.rec.engine.Transcribe(ctx, pcm, s.rec.sampleRate, s.rec.channels, true)
	if err != nil {
		if ctx.Err() != nil {
			s.end(EndCancelled, nil)
			return
		}
		s.end(EndError, err)
		return
	}
	s.final(res.Text)
	s.end(reason, nil)
}

func (s *localSession) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		s.end(EndTimeout, ctx.Err())
		return ctx.Err()
	}
}

// drainFrames appends frames that are already queued without waiting for more.
func drainFrames(frames <-chan []byte, buf []byte) []byte {
	for {
		select {
		case chunk, ok := <-frames:
			if !ok {
				return buf
			}
			buf = append(buf, chunk...)
		default:
			return buf
		}
	}
}

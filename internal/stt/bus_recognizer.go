package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-interview/internal/bus"
	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/loqalabs/loqa-interview/internal/protocol"
	"github.com/nats-io/nats.go"
)

// BusRecognizer streams frames to a transcription service over NATS and
// turns the transcripts it publishes back into session events.
type BusRecognizer struct {
	bus         *bus.Client
	sampleRate  int
	channels    int
	stopTimeout time.Duration
	log         *slog.Logger
}

func NewBusRecognizer(client *bus.Client, cfg config.STTConfig, audioCfg config.AudioConfig, log *slog.Logger) *BusRecognizer {
	timeout := time.Duration(cfg.StopTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BusRecognizer{
		bus:         client,
		sampleRate:  audioCfg.SampleRate,
		channels:    audioCfg.Channels,
		stopTimeout: timeout,
		log:         log.With(slog.String("component", "stt.bus")),
	}
}

func (r *BusRecognizer) Start(ctx context.Context, frames <-chan []byte) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &busSession{
		stream: newStream(uuid.NewString(), r.log),
		rec:    r,
		stop:   make(chan struct{}),
	}

	// One subscription keeps transcripts and the end marker in publish order.
	conn := r.bus.Conn()
	sub, err := conn.Subscribe(protocol.SubjectSTTWildcard, s.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", protocol.SubjectSTTWildcard, err)
	}
	s.sub = sub
	if err := conn.Flush(); err != nil {
		s.unsubscribe()
		return nil, fmt.Errorf("flush subscriptions: %w", err)
	}

	go s.run(ctx, frames)
	return s, nil
}

type busSession struct {
	*stream
	rec      *BusRecognizer
	sub      *nats.Subscription
	stop     chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
	seq      int
}

func (s *busSession) handle(msg *nats.Msg) {
	switch msg.Subject {
	case protocol.SubjectTranscriptPartial, protocol.SubjectTranscriptFinal:
	case protocol.SubjectSessionEnd:
		var end protocol.SessionEnd
		if err := json.Unmarshal(msg.Data, &end); err != nil || end.SessionID != s.id {
			return
		}
		reason := end.Reason
		if reason == "" || reason == EndSpeechEnded {
			reason = EndSpeechEnded
			if s.stopped.Load() {
				reason = EndStopped
			}
		}
		s.end(reason, nil)
		return
	default:
		return
	}

	var tr protocol.Transcript
	if err := json.Unmarshal(msg.Data, &tr); err != nil {
		s.log.Warn("failed to decode transcript", slogError(err))
		return
	}
	if tr.SessionID != s.id {
		return
	}
	if tr.Partial {
		s.interim(tr.Text)
	} else {
		s.final(tr.Text)
	}
}

func (s *busSession) run(ctx context.Context, frames <-chan []byte) {
	defer s.unsubscribe()

	sending := true
	for sending {
		select {
		case <-ctx.Done():
			s.end(EndCancelled, nil)
			return
		case <-s.Done():
			return
		case <-s.stop:
			if pending := drainFrames(frames, nil); len(pending) > 0 {
				if err := s.publish(pending, false); err != nil {
					s.end(EndError, err)
					return
				}
			}
			sending = false
		case chunk, ok := <-frames:
			if !ok {
				sending = false
				break
			}
			if err := s.publish(chunk, false); err != nil {
				s.end(EndError, err)
				return
			}
		}
	}

	if err := s.publish(nil, true); err != nil {
		s.end(EndError, err)
		return
	}

	timer := time.NewTimer(s.rec.stopTimeout)
	defer timer.Stop()
	select {
	case <-s.Done():
	case <-ctx.Done():
		s.end(EndCancelled, nil)
	case <-timer.C:
		s.end(EndTimeout, errors.New("no final transcript before stop timeout"))
	}
}

func (s *busSession) publish(pcm []byte, final bool) error {
	frame := protocol.AudioFrame{
		SessionID:  s.id,
		Sequence:   s.seq,
		SampleRate: s.rec.sampleRate,
		Channels:   s.rec.channels,
		PCM:        pcm,
		Final:      final,
	}
	s.seq++
	return s.rec.bus.PublishJSON(protocol.AudioFrameSubject(s.id), frame)
}

func (s *busSession) unsubscribe() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
}

func (s *busSession) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stop)
	})
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		s.end(EndTimeout, ctx.Err())
		return ctx.Err()
	}
}

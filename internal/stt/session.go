package stt

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// EventKind classifies recognizer session events.
type EventKind int

const (
	EventInterim EventKind = iota
	EventFinal
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventInterim:
		return "interim"
	case EventFinal:
		return "final"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// End reasons.
const (
	EndStopped     = "stopped"
	EndSpeechEnded = "speech_ended"
	EndCancelled   = "cancelled"
	EndError       = "error"
	EndTimeout     = "timeout"
)

// FinalConfidence is reported on final events; recognizer segments carry no
// usable confidence of their own.
const FinalConfidence = 0.9

// Event is one recognizer observation. Interim and Final carry the running
// transcript of the whole session, not only the latest segment.
type Event struct {
	Kind       EventKind
	Transcript string
	Confidence float64
	Reason     string
}

// Session is a single continuous recognition run.
type Session interface {
	ID() string
	// Events is closed right after the End event.
	Events() <-chan Event
	// Stop flushes pending audio, waits for the final result and ends the
	// session. Safe to call more than once and after the session ended.
	Stop(ctx context.Context) error
}

// Recognizer opens sessions over a stream of 16 kHz mono PCM frames. The
// session ends on its own when frames is closed.
type Recognizer interface {
	Start(ctx context.Context, frames <-chan []byte) (Session, error)
}

// stream owns the event channel and the running transcript for a session.
type stream struct {
	id     string
	log    *slog.Logger
	events chan Event
	done   chan struct{}

	mu          sync.Mutex
	accumulated string
	ended       bool
	once        sync.Once
}

func newStream(id string, log *slog.Logger) *stream {
	return &stream{
		id:     id,
		log:    log.With(slog.String("session_id", id)),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

func (s *stream) ID() string { return s.id }

func (s *stream) Events() <-chan Event { return s.events }

func (s *stream) Done() <-chan struct{} { return s.done }

func (s *stream) interim(partial string) {
	partial = strings.TrimSpace(partial)
	if partial == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.send(Event{Kind: EventInterim, Transcript: joinText(s.accumulated, partial)})
}

func (s *stream) final(segment string) {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.accumulated = joinText(s.accumulated, segment)
	s.send(Event{Kind: EventFinal, Transcript: s.accumulated, Confidence: FinalConfidence})
}

// end emits End exactly once and closes the event channel.
func (s *stream) end(reason string, err error) {
	s.once.Do(func() {
		if err != nil {
			s.log.Warn("recognizer session failed", slog.String("reason", reason), slogError(err))
		} else {
			s.log.Debug("recognizer session ended", slog.String("reason", reason))
		}
		s.mu.Lock()
		s.ended = true
		s.sendEnd(Event{Kind: EventEnd, Transcript: s.accumulated, Reason: reason})
		close(s.events)
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *stream) transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accumulated
}

// send drops interim events when the consumer falls behind; finals block.
// Callers hold s.mu.
func (s *stream) send(ev Event) {
	if ev.Kind == EventInterim {
		select {
		case s.events <- ev:
		default:
		}
		return
	}
	s.events <- ev
}

// sendEnd makes room for End if the buffer is full of stale interims.
func (s *stream) sendEnd(ev Event) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
		default:
		}
	}
}

func joinText(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

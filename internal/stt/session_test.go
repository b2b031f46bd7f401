package stt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("events channel not closed; got %+v", out)
		}
	}
}

func TestStreamAccumulatesAndEndsOnce(t *testing.T) {
	s := newStream("s1", discardLogger())
	s.interim("hello")
	s.final("hello there")
	s.interim("general")
	s.final("kenobi")
	s.end(EndStopped, nil)
	s.end(EndError, errors.New("late"))
	s.final("ignored")

	events := collect(t, s.Events())
	require.Len(t, events, 5)
	require.Equal(t, Event{Kind: EventInterim, Transcript: "hello"}, events[0])
	require.Equal(t, Event{Kind: EventFinal, Transcript: "hello there", Confidence: FinalConfidence}, events[1])
	require.Equal(t, "hello there general", events[2].Transcript)
	require.Zero(t, events[2].Confidence)
	require.Equal(t, "hello there kenobi", events[3].Transcript)
	require.Equal(t, EventEnd, events[4].Kind)
	require.Equal(t, EndStopped, events[4].Reason)
	require.Equal(t, "hello there kenobi", events[4].Transcript)
}

func TestStreamSkipsBlankSegments(t *testing.T) {
	s := newStream("s1", discardLogger())
	s.interim("   ")
	s.final("")
	s.end(EndSpeechEnded, nil)

	events := collect(t, s.Events())
	require.Len(t, events, 1)
	require.Equal(t, EventEnd, events[0].Kind)
}

func TestLocalRecognizerFinalOnFramesClosed(t *testing.T) {
	rec := NewLocalRecognizer(NewMockEngine("I led a team of five"), config.STTConfig{}, config.Default().Audio, discardLogger())
	frames := make(chan []byte, 4)
	sess, err := rec.Start(context.Background(), frames)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID())

	frames <- make([]byte, 16000)
	close(frames)

	events := collect(t, sess.Events())
	require.Len(t, events, 2)
	require.Equal(t, EventFinal, events[0].Kind)
	require.Equal(t, "I led a team of five", events[0].Transcript)
	require.Equal(t, EventEnd, events[1].Kind)
	require.Equal(t, EndSpeechEnded, events[1].Reason)

	require.NoError(t, sess.Stop(context.Background()))
}

func TestLocalRecognizerStop(t *testing.T) {
	rec := NewLocalRecognizer(NewMockEngine("short answer"), config.STTConfig{}, config.Default().Audio, discardLogger())
	frames := make(chan []byte)
	sess, err := rec.Start(context.Background(), frames)
	require.NoError(t, err)

	frames <- make([]byte, 640)
	require.NoError(t, sess.Stop(context.Background()))
	require.NoError(t, sess.Stop(context.Background()))

	events := collect(t, sess.Events())
	require.Equal(t, EventEnd, events[len(events)-1].Kind)
	require.Equal(t, EndStopped, events[len(events)-1].Reason)
	require.Equal(t, "short answer", events[len(events)-1].Transcript)
}

func TestLocalRecognizerPartials(t *testing.T) {
	cfg := config.STTConfig{PartialEveryMS: 10}
	rec := NewLocalRecognizer(NewMockEngine("one two three four"), cfg, config.Default().Audio, discardLogger())
	frames := make(chan []byte, 4)
	sess, err := rec.Start(context.Background(), frames)
	require.NoError(t, err)

	frames <- make([]byte, 100)
	var first Event
	select {
	case first = <-sess.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("expected an interim event")
	}
	require.Equal(t, EventInterim, first.Kind)
	require.Equal(t, "one", first.Transcript)
	require.Zero(t, first.Confidence)

	close(frames)
	events := collect(t, sess.Events())
	require.Equal(t, EventEnd, events[len(events)-1].Kind)
	require.Equal(t, "one two three four", events[len(events)-1].Transcript)
}

type failingEngine struct{}

func (failingEngine) Transcribe(context.Context, []byte, int, int, bool) (Result, error) {
	return Result{}, errors.New("engine unavailable")
}

func TestLocalRecognizerEngineErrorEndsSession(t *testing.T) {
	rec := NewLocalRecognizer(failingEngine{}, config.STTConfig{}, config.Default().Audio, discardLogger())
	frames := make(chan []byte, 1)
	sess, err := rec.Start(context.Background(), frames)
	require.NoError(t, err)

	frames <- make([]byte, 640)
	close(frames)

	events := collect(t, sess.Events())
	require.Len(t, events, 1)
	require.Equal(t, EndError, events[0].Reason)
}

func TestLocalRecognizerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := NewLocalRecognizer(NewMockEngine(""), config.STTConfig{}, config.Default().Audio, discardLogger())
	sess, err := rec.Start(ctx, make(chan []byte))
	require.NoError(t, err)

	cancel()
	events := collect(t, sess.Events())
	require.Len(t, events, 1)
	require.Equal(t, EndCancelled, events[0].Reason)
}

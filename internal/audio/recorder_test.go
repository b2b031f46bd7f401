package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"testing"
	"time"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRecorderProducesWAV(t *testing.T) {
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16(i)
	}
	mic := &StaticMicrophone{Data: SamplesToBytes(samples), FrameBytes: 320}
	rec := NewRecorder(mic, nil, CaptureFormat, 16000, newLogger())

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	var live int
	for chunk := range rec.Live() {
		live += len(chunk)
		if live == len(samples)*2 {
			break
		}
	}

	data, err := rec.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	decoded, format, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if format.SampleRate != 16000 || format.Channels != 1 {
		t.Fatalf("unexpected format %+v", format)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
}

func TestRecorderLiveFeedUsesDecoder(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	samples := make([]int16, 320)
	for i := range samples {
		samples[i] = int16(i * 7)
	}
	data := SamplesToBytes(samples)
	// The transcoder already emits capture-rate audio, so nothing may
	// resample the 8 kHz container on the live path.
	decoder, err := NewExecDecoder("cat")
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	mic := &StaticMicrophone{Data: data, FrameBytes: 160}
	rec := NewRecorder(mic, decoder, Format{SampleRate: 8000, Channels: 1}, 16000, newLogger())
	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	var live []byte
	timeout := time.After(3 * time.Second)
	for len(live) < len(data) {
		select {
		case chunk, ok := <-rec.Live():
			if !ok {
				t.Fatalf("live feed closed after %d bytes", len(live))
			}
			live = append(live, chunk...)
		case <-timeout:
			t.Fatalf("live feed stalled after %d bytes", len(live))
		}
	}
	if !bytes.Equal(live[:len(data)], data) {
		t.Fatalf("live feed was not the decoder output")
	}

	wav, err := rec.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	decoded, _, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(SamplesToBytes(decoded), live[:len(data)]) {
		t.Fatalf("stored take differs from the live feed")
	}
}

func TestRecorderEmptyTake(t *testing.T) {
	rec := NewRecorder(&StaticMicrophone{}, nil, CaptureFormat, 16000, newLogger())
	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	data, err := rec.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(data) != WAVHeaderSize {
		t.Fatalf("expected header-only wav, got %d bytes", len(data))
	}
}

func TestRecorderPermissionDenied(t *testing.T) {
	rec := NewRecorder(&StaticMicrophone{Deny: true}, nil, CaptureFormat, 16000, newLogger())
	err := rec.Start(context.Background())
	if !errors.Is(err, ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if _, err := rec.Stop(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording after failed start, got %v", err)
	}
}

func TestRecorderRejectsDoubleStart(t *testing.T) {
	rec := NewRecorder(&StaticMicrophone{}, nil, CaptureFormat, 16000, newLogger())
	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(rec.Abort)
	if err := rec.Start(context.Background()); err == nil {
		t.Fatal("expected error on second start")
	}
}

func TestTapFansOut(t *testing.T) {
	mic := &StaticMicrophone{Data: make([]byte, 640*3), FrameBytes: 640}
	stream, err := mic.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	tap := NewTap(stream)
	a, _ := tap.Subscribe(8)
	b, _ := tap.Subscribe(8)
	tap.Start()

	for i := 0; i < 3; i++ {
		<-a
		<-b
	}
	if err := tap.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := <-a; ok {
		t.Fatal("expected subscriber channel closed")
	}
}

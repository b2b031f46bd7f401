package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var ErrNotRecording = errors.New("no recording in progress")

// Recorder buffers one take from the microphone and hands back a WAV file on Stop.
// It is reusable: Start may be called again after Stop or Abort.
type Recorder struct {
	mic     Microphone
	decoder Decoder
	input   Format
	rate    int
	log     *slog.Logger

	mu   sync.Mutex
	take *take
}

type take struct {
	ctx    context.Context
	cancel context.CancelFunc
	tap    *Tap
	buf    bytes.Buffer
	live   chan []byte
	done   chan struct{}
	stop   chan struct{}
}

func NewRecorder(mic Microphone, decoder Decoder, input Format, rate int, log *slog.Logger) *Recorder {
	if decoder == nil {
		decoder = PCMDecoder{Input: input, Rate: rate}
	}
	return &Recorder{
		mic:     mic,
		decoder: decoder,
		input:   input,
		rate:    rate,
		log:     log.With(slog.String("component", "recorder")),
	}
}

// Start opens the microphone and begins buffering. It fails with ErrPermission
// when the device cannot be opened.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.take != nil {
		return errors.New("recording already in progress")
	}
	stream, err := r.mic.Open(ctx)
	if err != nil {
		return err
	}
	takeCtx, cancel := context.WithCancel(ctx)
	t := &take{
		ctx:    takeCtx,
		cancel: cancel,
		tap:    NewTap(stream),
		live:   make(chan []byte, 256),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	chunks, _ := t.tap.Subscribe(256)
	raw, release := t.tap.Subscribe(256)
	go func() {
		defer close(t.done)
		for chunk := range chunks {
			t.buf.Write(chunk)
		}
	}()
	go r.convert(t, raw, release)
	t.tap.Start()
	r.take = t
	r.log.Debug("recording started")
	return nil
}

// Live returns the current take converted to capture-format PCM for a
// streaming recognizer. The channel closes when the take stops.
func (r *Recorder) Live() <-chan []byte {
	r.mu.Lock()
	t := r.take
	r.mu.Unlock()
	if t == nil {
		out := make(chan []byte)
		close(out)
		return out
	}
	return t.live
}

func (r *Recorder) convert(t *take, raw <-chan []byte, release func()) {
	defer close(t.live)
	defer release()
	if stream, ok := r.decoder.(StreamDecoder); ok {
		r.convertStream(t, stream, raw)
		return
	}
	frame := 2 * max(r.input.Channels, 1)
	for chunk := range raw {
		chunk = chunk[:len(chunk)-len(chunk)%frame]
		samples, err := Normalize(chunk, r.input, r.rate)
		if err != nil || len(samples) == 0 {
			continue
		}
		select {
		case t.live <- SamplesToBytes(samples):
		case <-t.stop:
			return
		}
	}
}

// convertStream feeds the take through the decoder so the live feed and the
// stored take decode the same way.
func (r *Recorder) convertStream(t *take, stream StreamDecoder, raw <-chan []byte) {
	decoded, err := stream.DecodeStream(t.ctx, raw)
	if err != nil {
		r.log.Warn("live decoder failed to start", slog.String("error", err.Error()))
		return
	}
	for pcm := range decoded {
		select {
		case t.live <- pcm:
		case <-t.stop:
			return
		}
	}
}

// Stop releases the microphone, decodes the buffered stream and returns it as
// a mono WAV at the capture rate. A take with no audio yields a header-only WAV.
func (r *Recorder) Stop(ctx context.Context) ([]byte, error) {
	t := r.detach()
	if t == nil {
		return nil, ErrNotRecording
	}
	encoded := t.buf.Bytes()
	samples, err := r.decoder.Decode(ctx, encoded)
	if err != nil {
		return nil, fmt.Errorf("decode capture: %w", err)
	}
	wav, err := WAVBytes(samples, Format{SampleRate: r.rate, Channels: 1})
	if err != nil {
		return nil, err
	}
	r.log.Debug("recording stopped", slog.Int("encoded_bytes", len(encoded)), slog.Int("samples", len(samples)))
	return wav, nil
}

// Abort releases the microphone and discards the take.
func (r *Recorder) Abort() {
	if t := r.detach(); t != nil {
		r.log.Debug("recording aborted")
	}
}

func (r *Recorder) detach() *take {
	r.mu.Lock()
	t := r.take
	r.take = nil
	r.mu.Unlock()
	if t == nil {
		return nil
	}
	close(t.stop)
	t.cancel()
	if err := t.tap.Close(); err != nil {
		r.log.Warn("failed to release microphone", slog.String("error", err.Error()))
	}
	<-t.done
	return t
}

package stt

import (
	"context"
)

// Result captures engine output for one transcription pass.
type Result struct {
	Text       string
	Confidence float64
}

// Engine transcribes a buffer of 16-bit PCM. final distinguishes the closing
// pass over a whole utterance from periodic partial passes.
type Engine interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int, final bool) (Result, error)
}

package stt

import (
	"context"
	"fmt"
	"strings"
)

type mockEngine struct {
	script []string
}

// NewMockEngine returns an engine that reveals script word by word as audio
// accumulates (one word per 8000 bytes, a quarter second at 16kHz). An empty
// script describes the buffer instead.
func NewMockEngine(script string) Engine {
	return &mockEngine{script: strings.Fields(script)}
}

func (m *mockEngine) Transcribe(_ context.Context, pcm []byte, _ int, _ int, final bool) (Result, error) {
	if len(m.script) == 0 {
		mode := "partial"
		if final {
			mode = "final"
		}
		return Result{Text: fmt.Sprintf("[%s transcript length=%d]", mode, len(pcm))}, nil
	}
	if len(pcm) == 0 {
		return Result{}, nil
	}
	if final {
		return Result{Text: strings.Join(m.script, " "), Confidence: 0.9}, nil
	}
	words := min(len(pcm)/8000+1, len(m.script))
	return Result{Text: strings.Join(m.script[:words], " ")}, nil
}

// Package tts reads interview questions aloud before the user answers.
package tts

import "context"

// Prompt is one question to voice. AudioURL is the recorded question audio
// served by the interview API; Text is used when no recording exists.
type Prompt struct {
	Text     string
	AudioURL string
}

// Speaker plays a prompt and returns once playback ends or ctx is cancelled.
type Speaker interface {
	Speak(ctx context.Context, p Prompt) error
}

// Silent is a Speaker that plays nothing.
type Silent struct{}

func (Silent) Speak(context.Context, Prompt) error { return nil }

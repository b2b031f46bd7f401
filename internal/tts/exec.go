package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/mattn/go-shellwords"
)

// ErrNothingToPlay is returned when a prompt has neither audio nor a usable
// synthesizer.
var ErrNothingToPlay = errors.New("no playable audio for prompt")

// ExecSpeaker hands question audio to external programs: the player receives
// the audio URL as its last argument, the synthesizer receives the text on
// stdin (e.g. `espeak-ng --stdin`).
type ExecSpeaker struct {
	player []string
	synth  []string
	voice  string
	log    *slog.Logger
	mu     sync.Mutex
}

func NewExecSpeaker(cfg config.PromptConfig, log *slog.Logger) (*ExecSpeaker, error) {
	player, err := parseCommand(cfg.PlayerCommand)
	if err != nil {
		return nil, fmt.Errorf("parse player command: %w", err)
	}
	synth, err := parseCommand(cfg.SpeakCommand)
	if err != nil {
		return nil, fmt.Errorf("parse speak command: %w", err)
	}
	if player == nil && synth == nil {
		return nil, errors.New("prompt needs player_command or speak_command")
	}
	return &ExecSpeaker{
		player: player,
		synth:  synth,
		voice:  cfg.Voice,
		log:    log.With(slog.String("component", "tts")),
	}, nil
}

func parseCommand(command string) ([]string, error) {
	if strings.TrimSpace(command) == "" {
		return nil, nil
	}
	return shellwords.NewParser().Parse(command)
}

// Speak plays one prompt at a time; a second call waits for the first.
func (e *ExecSpeaker) Speak(ctx context.Context, p Prompt) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var cmd *exec.Cmd
	switch {
	case p.AudioURL != "" && e.player != nil:
		args := append(append([]string{}, e.player[1:]...), p.AudioURL)
		cmd = exec.CommandContext(ctx, e.player[0], args...)
	case strings.TrimSpace(p.Text) != "" && e.synth != nil:
		args := append([]string{}, e.synth[1:]...)
		cmd = exec.CommandContext(ctx, e.synth[0], args...)
		cmd.Stdin = strings.NewReader(p.Text)
		if e.voice != "" {
			cmd.Env = append(cmd.Environ(), "LOQA_VOICE="+e.voice)
		}
	default:
		return ErrNothingToPlay
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w (%s)", cmd.Path, err, strings.TrimSpace(stderr.String()))
	}
	e.log.Debug("prompt played", slog.Bool("recorded", p.AudioURL != "" && e.player != nil))
	return nil
}

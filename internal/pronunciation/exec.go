package pronunciation

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/mattn/go-shellwords"
)

// ExecAssessor hands the recording to an external scorer. The command gets
// `--audio <file.wav> --reference <text>` and prints a detailed recognition
// result with an NBest list on stdout.
type ExecAssessor struct {
	cmd      []string
	language string
	timeout  time.Duration
	log      *slog.Logger
}

func NewExecAssessor(cfg config.AssessorConfig, log *slog.Logger) (*ExecAssessor, error) {
	args, err := shellwords.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse assessor command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("assessor command is empty")
	}
	return &ExecAssessor{
		cmd:      args,
		language: cfg.Language,
		timeout:  time.Duration(cfg.TimeoutMS) * time.Millisecond,
		log:      log,
	}, nil
}

func (e *ExecAssessor) Assess(ctx context.Context, wav []byte, reference string) (Sample, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	file, err := os.CreateTemp("", "loqa_interview_assess_*.wav")
	if err != nil {
		return Sample{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	if _, err := file.Write(wav); err != nil {
		file.Close()
		return Sample{}, fmt.Errorf("write temp wav: %w", err)
	}
	if err := file.Close(); err != nil {
		return Sample{}, err
	}

	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--audio", file.Name(), "--reference", reference)
	if e.language != "" {
		args = append(args, "--language", e.language)
	}

	command := exec.CommandContext(ctx, e.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		e.log.Warn("assessor command failed", slogError(err), slog.String("stderr", stderr.String()))
		return Sample{}, fmt.Errorf("assessor command failed: %w", err)
	}
	return sampleFromResult(stdout.Bytes(), reference)
}

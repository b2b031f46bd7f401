package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

// ErrPermission reports that the microphone could not be opened.
var ErrPermission = errors.New("microphone access denied")

// Stream is an open microphone. Chunks is closed when the input ends or Close is called.
type Stream interface {
	Chunks() <-chan []byte
	Close() error
}

// Microphone acquires audio input.
type Microphone interface {
	Open(ctx context.Context) (Stream, error)
}

// ExecMicrophone reads raw audio from a capture command's stdout, e.g. arecord or sox.
type ExecMicrophone struct {
	cmd        []string
	frameBytes int
	log        *slog.Logger
}

func NewExecMicrophone(command string, frameBytes int, log *slog.Logger) (*ExecMicrophone, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse microphone command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("microphone command is empty")
	}
	if frameBytes <= 0 {
		frameBytes = 640
	}
	return &ExecMicrophone{cmd: args, frameBytes: frameBytes, log: log.With(slog.String("component", "microphone"))}, nil
}

func (m *ExecMicrophone) Open(ctx context.Context) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	command := exec.CommandContext(ctx, m.cmd[0], m.cmd[1:]...)
	stdout, err := command.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("microphone stdout: %w", err)
	}
	var stderr bytes.Buffer
	command.Stderr = &stderr
	if err := command.Start(); err != nil {
		cancel()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrPermission, err)
		}
		return nil, fmt.Errorf("start microphone: %w", err)
	}

	s := &execStream{
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(s.done)
		defer close(s.chunks)
		s.pump(ctx, stdout, m.frameBytes)
		if err := command.Wait(); err != nil && ctx.Err() == nil {
			m.log.Warn("microphone command exited", slog.String("error", err.Error()), slog.String("stderr", stderr.String()))
		}
	}()
	return s, nil
}

type execStream struct {
	chunks chan []byte
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

func (s *execStream) pump(ctx context.Context, r io.Reader, frameBytes int) {
	for {
		frame := make([]byte, frameBytes)
		n, err := io.ReadFull(r, frame)
		if n > 0 {
			select {
			case s.chunks <- frame[:n]:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *execStream) Chunks() <-chan []byte { return s.chunks }

func (s *execStream) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

// StaticMicrophone replays a fixed buffer, optionally paced in real time.
// It stands in for a device in tests and in file-driven practice runs.
type StaticMicrophone struct {
	Data       []byte
	FrameBytes int
	Pace       time.Duration
	Deny       bool
}

func (m *StaticMicrophone) Open(ctx context.Context) (Stream, error) {
	if m.Deny {
		return nil, ErrPermission
	}
	frameBytes := m.FrameBytes
	if frameBytes <= 0 {
		frameBytes = 640
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &execStream{
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(s.done)
		defer close(s.chunks)
		for off := 0; off < len(m.Data); off += frameBytes {
			end := min(off+frameBytes, len(m.Data))
			chunk := append([]byte(nil), m.Data[off:end]...)
			select {
			case s.chunks <- chunk:
			case <-ctx.Done():
				return
			}
			if m.Pace > 0 {
				select {
				case <-time.After(m.Pace):
				case <-ctx.Done():
					return
				}
			}
		}
		// Hold the stream open like a live device until released.
		<-ctx.Done()
	}()
	return s, nil
}

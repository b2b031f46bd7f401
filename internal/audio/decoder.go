package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

// Decoder turns the buffered capture stream into mono samples at the capture rate.
type Decoder interface {
	Decode(ctx context.Context, encoded []byte) ([]int16, error)
}

// StreamDecoder decodes a capture while it is recorded, so the live feed
// carries the same audio as the stored take.
type StreamDecoder interface {
	DecodeStream(ctx context.Context, encoded <-chan []byte) (<-chan []byte, error)
}

// PCMDecoder handles microphones that already emit raw PCM, possibly at another rate or layout.
type PCMDecoder struct {
	Input Format
	Rate  int
}

func (d PCMDecoder) Decode(_ context.Context, encoded []byte) ([]int16, error) {
	if len(encoded) == 0 {
		return nil, nil
	}
	// A partial trailing sample is dropped rather than failing the whole take.
	frame := 2 * max(d.Input.Channels, 1)
	encoded = encoded[:len(encoded)-len(encoded)%frame]
	return Normalize(encoded, d.Input, d.Rate)
}

// ExecDecoder pipes the encoded stream through an external transcoder such as
// `ffmpeg -i pipe:0 -f s16le -ac 1 -ar 16000 pipe:1`.
type ExecDecoder struct {
	cmd []string
}

func NewExecDecoder(command string) (*ExecDecoder, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse decoder command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("decoder command is empty")
	}
	return &ExecDecoder{cmd: args}, nil
}

func (d *ExecDecoder) Decode(ctx context.Context, encoded []byte) ([]int16, error) {
	if len(encoded) == 0 {
		return nil, nil
	}
	command := exec.CommandContext(ctx, d.cmd[0], d.cmd[1:]...)
	command.Stdin = bytes.NewReader(encoded)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("decoder command failed: %w: %s", err, stderr.String())
	}
	pcm := stdout.Bytes()
	return BytesToSamples(pcm[:len(pcm)-len(pcm)%2])
}

// DecodeStream runs the transcoder for the length of a take. The returned
// channel carries capture-format PCM with whole samples only and closes when
// the command exits.
func (d *ExecDecoder) DecodeStream(ctx context.Context, encoded <-chan []byte) (<-chan []byte, error) {
	command := exec.CommandContext(ctx, d.cmd[0], d.cmd[1:]...)
	stdin, err := command.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("decoder stdin: %w", err)
	}
	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("decoder stdout: %w", err)
	}
	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("start decoder command: %w", err)
	}

	go func() {
		defer stdin.Close()
		for {
			select {
			case chunk, ok := <-encoded:
				if !ok {
					return
				}
				if _, err := stdin.Write(chunk); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer func() { _ = command.Wait() }()
		buf := make([]byte, 4096)
		var carry []byte
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				pcm := append(carry, buf[:n]...)
				whole := len(pcm) - len(pcm)%2
				carry = append([]byte(nil), pcm[whole:]...)
				if whole > 0 {
					select {
					case out <- pcm[:whole]:
					case <-ctx.Done():
						return
					}
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}

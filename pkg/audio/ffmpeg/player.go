package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/MrWong99/lingobridge/pkg/audio"
)

const defaultPlayer = "ffplay"

// Player is an [audio.Sink] that pipes raw PCM into an ffplay subprocess.
// Each Play call starts a fresh process; cancelling ctx kills it mid-utterance.
type Player struct {
	command string
}

// NewPlayer returns a Player using the given ffplay executable. An empty
// command selects "ffplay" from PATH.
func NewPlayer(command string) *Player {
	if command == "" {
		command = defaultPlayer
	}
	return &Player{command: command}
}

// Command returns the configured ffplay executable.
func (p *Player) Command() string { return p.command }

func playerArgs(format audio.Format) []string {
	layout := "mono"
	if format.Channels == 2 {
		layout = "stereo"
	}
	return []string{
		"-nodisp",
		"-autoexit",
		"-loglevel", "warning",
		"-f", "s16le",
		"-ar", strconv.Itoa(format.SampleRate),
		"-ch_layout", layout,
		"-i", "-",
	}
}

// Play implements [audio.Sink]. It blocks until every chunk has been written
// and ffplay has finished, or until ctx is cancelled. Cancellation is not an
// error. The audio channel is drained before returning so the producer never
// blocks.
func (p *Player) Play(ctx context.Context, pcm <-chan []byte, format audio.Format) error {
	defer audio.Drain(pcm)

	if format.SampleRate <= 0 {
		return fmt.Errorf("ffplay: invalid sample rate %d", format.SampleRate)
	}

	cmd := exec.CommandContext(ctx, p.command, playerArgs(format)...)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffplay: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start %s: %v", audio.ErrDeviceUnavailable, p.command, err)
	}

	writeErr := pump(ctx, stdin, pcm)
	_ = stdin.Close()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if writeErr != nil && !errors.Is(writeErr, io.ErrClosedPipe) {
		return fmt.Errorf("ffplay: write: %w", writeErr)
	}
	if waitErr != nil {
		return fmt.Errorf("ffplay: %w: %s", waitErr, stderr.Trimmed())
	}
	return nil
}

// pump copies chunks into w until pcm closes or ctx is done.
func pump(ctx context.Context, w io.Writer, pcm <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-pcm:
			if !ok {
				return nil
			}
			if len(chunk) == 0 {
				continue
			}
			if _, err := w.Write(chunk); err != nil {
				return err
			}
		}
	}
}

var _ audio.Sink = (*Player)(nil)

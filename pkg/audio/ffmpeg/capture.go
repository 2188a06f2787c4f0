// Package ffmpeg implements [audio.Source] and [audio.Sink] on top of the
// ffmpeg and ffplay command-line tools.
//
// Capture runs `ffmpeg` reading from a platform input device (pulse, alsa,
// avfoundation, dshow) and writing raw s16le PCM to stdout. Playback pipes raw
// PCM into `ffplay` on stdin. Neither needs cgo or native audio bindings.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/lingobridge/pkg/audio"
)

const (
	defaultCommand     = "ffmpeg"
	defaultInputFormat = "pulse"
	defaultInputDevice = "default"
	defaultChunk       = 20 * time.Millisecond
	startupGrace       = 250 * time.Millisecond
	stopGrace          = 1200 * time.Millisecond
)

// Option configures a [Capture].
type Option func(*Capture)

// WithCommand overrides the ffmpeg executable path.
func WithCommand(cmd string) Option {
	return func(c *Capture) {
		if cmd != "" {
			c.command = cmd
		}
	}
}

// WithInput selects the ffmpeg input format and device, e.g. ("alsa", "hw:0")
// or ("avfoundation", ":0").
func WithInput(format, device string) Option {
	return func(c *Capture) {
		if format != "" {
			c.inputFormat = format
		}
		if device != "" {
			c.inputDevice = device
		}
	}
}

// WithChunkDuration sets how much audio each emitted frame carries.
func WithChunkDuration(d time.Duration) Option {
	return func(c *Capture) {
		if d > 0 {
			c.chunk = d
		}
	}
}

// Capture is an [audio.Source] backed by an ffmpeg subprocess.
type Capture struct {
	command     string
	inputFormat string
	inputDevice string
	chunk       time.Duration
}

// NewCapture returns a Capture with the given options applied.
func NewCapture(opts ...Option) *Capture {
	c := &Capture{
		command:     defaultCommand,
		inputFormat: defaultInputFormat,
		inputDevice: defaultInputDevice,
		chunk:       defaultChunk,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Command returns the configured ffmpeg executable.
func (c *Capture) Command() string { return c.command }

// captureArgs builds the ffmpeg argument list for the requested format.
func (c *Capture) captureArgs(format audio.Format) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", c.inputFormat,
		"-i", c.inputDevice,
		"-ac", strconv.Itoa(format.Channels),
		"-ar", strconv.Itoa(format.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// Start implements [audio.Source]. It spawns ffmpeg and waits briefly to
// catch immediate failures such as a missing device.
func (c *Capture) Start(ctx context.Context, format audio.Format) (audio.Stream, error) {
	if format.SampleRate <= 0 {
		format.SampleRate = 16000
	}
	if format.Channels <= 0 {
		format.Channels = 1
	}

	cmd := exec.Command(c.command, c.captureArgs(format)...)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", audio.ErrDeviceUnavailable, c.command, err)
	}

	chunkBytes := format.BytesPerSecond() * int(c.chunk/time.Millisecond) / 1000
	chunkBytes -= chunkBytes % (2 * format.Channels)

	s := &stream{
		cmd:     cmd,
		stdout:  stdout,
		stderr:  stderr,
		format:  format,
		frames:  make(chan audio.Frame, 32),
		exited:  make(chan struct{}),
		stopReq: make(chan struct{}),
	}
	go s.readLoop(max(chunkBytes, 2*format.Channels))

	select {
	case <-s.exited:
		return nil, fmt.Errorf("%w: ffmpeg exited before capture started: %s", audio.ErrDeviceUnavailable, s.stderr.Trimmed())
	case <-ctx.Done():
		_ = s.Stop()
		return nil, ctx.Err()
	case <-time.After(startupGrace):
	}

	slog.Debug("ffmpeg capture started",
		"input_format", c.inputFormat,
		"input_device", c.inputDevice,
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
	)
	return s, nil
}

var _ audio.Source = (*Capture)(nil)

// stream is a running ffmpeg capture. It implements [audio.Stream].
type stream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *syncBuffer
	format audio.Format
	frames chan audio.Frame

	exited  chan struct{}
	stopReq chan struct{}

	mu      sync.Mutex
	waitErr error

	stopOnce sync.Once
	stopErr  error
}

func (s *stream) Frames() <-chan audio.Frame { return s.frames }

// readLoop chunks stdout into frames until EOF, then reaps the process.
func (s *stream) readLoop(chunkBytes int) {
	defer close(s.exited)
	defer close(s.frames)

	var elapsed time.Duration
	perByte := time.Second / time.Duration(s.format.BytesPerSecond())
	for {
		buf := make([]byte, chunkBytes)
		n, err := io.ReadFull(s.stdout, buf)
		if n > 0 {
			n -= n % (2 * s.format.Channels)
			f := audio.Frame{
				Data:       buf[:n],
				SampleRate: s.format.SampleRate,
				Channels:   s.format.Channels,
				Timestamp:  elapsed,
			}
			elapsed += time.Duration(n) * perByte
			select {
			case s.frames <- f:
			case <-s.stopReq:
			}
		}
		if err != nil {
			break
		}
	}

	werr := s.cmd.Wait()
	s.mu.Lock()
	s.waitErr = werr
	s.mu.Unlock()
}

// Stop implements [audio.Stream]. It interrupts ffmpeg, escalating to kill
// if the process does not exit within the grace period.
func (s *stream) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopReq)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Signal(os.Interrupt)
		}
		select {
		case <-s.exited:
		case <-time.After(stopGrace):
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
			<-s.exited
		}
		if err := normalizeExit(s.exitErr()); err != nil {
			s.stopErr = fmt.Errorf("ffmpeg: stop: %w: %s", err, s.stderr.Trimmed())
		}
	})
	return s.stopErr
}

// Err implements [audio.Stream].
func (s *stream) Err() error {
	select {
	case <-s.exited:
	default:
		return nil
	}
	select {
	case <-s.stopReq:
		return nil
	default:
	}
	err := s.exitErr()
	if err == nil {
		return fmt.Errorf("%w: ffmpeg stopped delivering audio", audio.ErrDeviceUnavailable)
	}
	return fmt.Errorf("%w: %v: %s", audio.ErrDeviceUnavailable, err, s.stderr.Trimmed())
}

func (s *stream) exitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitErr
}

var _ audio.Stream = (*stream)(nil)

// normalizeExit treats the non-zero exit status ffmpeg reports after SIGINT as
// a clean stop.
func normalizeExit(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes exec performs
// while other goroutines read it for error messages.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Trimmed returns the buffered output without surrounding whitespace.
func (b *syncBuffer) Trimmed() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}

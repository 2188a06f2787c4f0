package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/lingobridge/pkg/audio"
)

func TestCaptureArgs(t *testing.T) {
	t.Parallel()

	c := NewCapture(WithInput("alsa", "hw:1"))
	got := c.captureArgs(audio.Format{SampleRate: 16000, Channels: 1})
	want := []string{
		"-nostdin", "-hide_banner", "-loglevel", "warning",
		"-f", "alsa", "-i", "hw:1",
		"-ac", "1", "-ar", "16000",
		"-f", "s16le", "-",
	}
	if !slices.Equal(got, want) {
		t.Errorf("args:\n got  %v\n want %v", got, want)
	}
}

func TestNewCapture_Defaults(t *testing.T) {
	t.Parallel()

	c := NewCapture(WithInput("", ""), WithCommand(""), WithChunkDuration(0))
	if c.Command() != "ffmpeg" {
		t.Errorf("command: got %q", c.Command())
	}
	if c.inputFormat != "pulse" || c.inputDevice != "default" {
		t.Errorf("input: got %s/%s", c.inputFormat, c.inputDevice)
	}
	if c.chunk != 20*time.Millisecond {
		t.Errorf("chunk: got %v", c.chunk)
	}
}

func TestCapture_MissingBinary(t *testing.T) {
	t.Parallel()

	c := NewCapture(WithCommand("/nonexistent/lingobridge-ffmpeg"))
	_, err := c.Start(context.Background(), audio.Format{SampleRate: 16000, Channels: 1})
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestPlayerArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format audio.Format
		layout string
	}{
		{"mono", audio.Format{SampleRate: 22050, Channels: 1}, "mono"},
		{"stereo", audio.Format{SampleRate: 48000, Channels: 2}, "stereo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			args := playerArgs(tt.format)
			i := slices.Index(args, "-ch_layout")
			if i < 0 || args[i+1] != tt.layout {
				t.Errorf("layout: got %v, want %s", args, tt.layout)
			}
			if args[len(args)-1] != "-" {
				t.Errorf("expected stdin input, got %v", args)
			}
		})
	}
}

func TestPlayer_MissingBinaryDrainsInput(t *testing.T) {
	t.Parallel()

	p := NewPlayer("/nonexistent/lingobridge-ffplay")
	ch := make(chan []byte, 2)
	ch <- []byte{1, 2}
	ch <- []byte{3, 4}
	close(ch)

	err := p.Play(context.Background(), ch, audio.Format{SampleRate: 16000, Channels: 1})
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if len(ch) != 0 {
		t.Errorf("input not drained: %d chunks left", len(ch))
	}
}

func TestPump(t *testing.T) {
	t.Parallel()

	ch := make(chan []byte, 3)
	ch <- []byte("ab")
	ch <- nil
	ch <- []byte("cd")
	close(ch)

	var buf bytes.Buffer
	if err := pump(context.Background(), &buf, ch); err != nil {
		t.Fatalf("pump: %v", err)
	}
	if buf.String() != "abcd" {
		t.Errorf("got %q, want %q", buf.String(), "abcd")
	}
}

func TestPump_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pump(ctx, &bytes.Buffer{}, make(chan []byte)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNormalizeExit(t *testing.T) {
	t.Parallel()

	if normalizeExit(nil) != nil {
		t.Error("nil should stay nil")
	}
	sentinel := errors.New("boom")
	if !errors.Is(normalizeExit(sentinel), sentinel) {
		t.Error("non-exit errors must pass through")
	}
}

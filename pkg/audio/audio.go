// Package audio defines the microphone capture and speaker playback
// abstractions used by lingobridge.
//
// The two primary abstractions are:
//
//   - [Source] opens the microphone and returns a [Stream] of PCM [Frame]s.
//   - [Sink] plays a stream of synthesized PCM bytes through the speaker.
//
// Both the microphone and the speaker are process-wide singletons in
// practice. Implementations must therefore make [Stream.Stop] idempotent and
// must have fully released the input device by the time Stop returns, so that
// a subsequent [Source.Start] never finds the device still tapped.
//
// Implementations live in sub-packages (audio/ffmpeg, audio/mock).
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrDeviceUnavailable is returned by [Source.Start] when the input device
// cannot be opened or configured.
var ErrDeviceUnavailable = errors.New("audio: input device unavailable")

// Format describes the sample rate and channel count of 16-bit little-endian
// PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the byte rate of s16le audio in this format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Frame is a chunk of captured PCM audio.
type Frame struct {
	// Data holds s16le PCM samples.
	Data []byte

	// SampleRate in Hz (e.g. 48000 for a desktop microphone, 16000 for STT).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Stream is an open microphone capture.
//
// Implementations must be safe for concurrent use.
type Stream interface {
	// Frames returns the channel of captured audio. It is closed after Stop
	// or when the device stops delivering audio.
	Frames() <-chan Frame

	// Stop releases the input device. It blocks until the device has been
	// released and the Frames channel is closed. Calling Stop more than once
	// is safe; later calls return the result of the first.
	Stop() error

	// Err reports why the stream ended on its own. It returns nil while the
	// stream is running and after a clean Stop.
	Err() error
}

// Source opens microphone captures.
type Source interface {
	// Start opens the input device and begins capturing in the requested
	// format. Errors wrap [ErrDeviceUnavailable] when the device itself could
	// not be opened.
	Start(ctx context.Context, format Format) (Stream, error)
}

// Sink plays synthesized speech.
type Sink interface {
	// Play writes PCM chunks from audio to the output device until the
	// channel is closed or ctx is cancelled. It returns once playback has
	// finished or been cut off. A cancelled ctx is not an error.
	Play(ctx context.Context, audio <-chan []byte, format Format) error
}

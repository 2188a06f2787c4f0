// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g. ElevenLabs) and
// presents a uniform streaming interface. SynthesizeStream accepts a channel of
// text fragments and returns a channel of raw PCM audio as it becomes
// available, so playback can begin before synthesis has finished.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"

	"github.com/MrWong99/lingobridge/pkg/audio"
	"github.com/MrWong99/lingobridge/pkg/types"
)

// ErrNoVoice is returned when no voice is configured for the requested locale.
var ErrNoVoice = errors.New("tts: no voice for locale")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel that emits raw s16le PCM chunks in OutputFormat.
	//
	// The returned audio channel is closed by the implementation when all text
	// has been synthesised or when ctx is cancelled. The caller must drain the
	// audio channel to avoid blocking the provider's internal goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// encountered during synthesis close the audio channel early; callers
	// check ctx.Err() to distinguish cancellation from provider errors.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)

	// OutputFormat reports the PCM layout of the audio SynthesizeStream emits.
	OutputFormat() audio.Format
}

// Say is a convenience wrapper around SynthesizeStream for a single complete
// utterance.
func Say(ctx context.Context, p Provider, text string, voice types.VoiceProfile) (<-chan []byte, error) {
	ch := make(chan string, 1)
	ch <- text
	close(ch)
	return p.SynthesizeStream(ctx, ch, voice)
}

package resilience

import (
	"context"
	"fmt"

	"github.com/MrWong99/lingobridge/pkg/audio"
	"github.com/MrWong99/lingobridge/pkg/provider/tts"
	"github.com/MrWong99/lingobridge/pkg/types"
)

// TTSFallback implements [tts.Provider] with failover across several
// synthesizers that share one output format.
type TTSFallback struct {
	group  *FallbackGroup[tts.Provider]
	format audio.Format
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	cfg.CircuitBreaker.IsFailure = ignoring(cfg.CircuitBreaker.IsFailure, tts.ErrNoVoice)
	return &TTSFallback{
		group:  NewFallbackGroup(primary, primaryName, cfg),
		format: primary.OutputFormat(),
	}
}

// AddFallback registers an additional synthesizer. Its PCM format must match
// the primary's because playback is configured once per utterance.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) error {
	if got := provider.OutputFormat(); got != f.format {
		return fmt.Errorf("resilience: tts fallback %q produces %d Hz/%d ch, primary produces %d Hz/%d ch",
			name, got.SampleRate, got.Channels, f.format.SampleRate, f.format.Channels)
	}
	f.group.AddFallback(name, provider)
	return nil
}

// Names returns the backend names in failover order.
func (f *TTSFallback) Names() []string { return f.group.Names() }

// Healthy reports whether any backend is currently accepting calls.
func (f *TTSFallback) Healthy() bool { return f.group.Healthy() }

// SynthesizeStream starts synthesis on the first healthy backend. Only stream
// setup is covered by failover.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}

// ListVoices returns the voices of the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// OutputFormat returns the format shared by all backends.
func (f *TTSFallback) OutputFormat() audio.Format { return f.format }

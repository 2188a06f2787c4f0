// Package mock provides a scripted tts.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lingobridge/pkg/audio"
	"github.com/MrWong99/lingobridge/pkg/provider/tts"
	"github.com/MrWong99/lingobridge/pkg/types"
)

// Call is one SynthesizeStream invocation.
type Call struct {
	Ctx   context.Context
	Voice types.VoiceProfile
	// Text is filled in as fragments are read; it is complete once the audio
	// channel has closed.
	Text []string
}

// Provider drains the text channel and then emits SynthesizeChunks.
type Provider struct {
	SynthesizeChunks [][]byte
	SynthesizeErr    error

	ListVoicesResult []types.VoiceProfile
	ListVoicesErr    error

	// Format defaults to 16 kHz mono.
	Format audio.Format

	mu    sync.Mutex
	calls []Call
}

func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Ctx: ctx, Voice: voice})
	idx := len(p.calls) - 1
	chunks, err := append([][]byte(nil), p.SynthesizeChunks...), p.SynthesizeErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	out := make(chan []byte, len(chunks))
	go func() {
		defer close(out)
		for s := range text {
			p.mu.Lock()
			p.calls[idx].Text = append(p.calls[idx].Text, s)
			p.mu.Unlock()
		}
		for _, c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *Provider) ListVoices(context.Context) ([]types.VoiceProfile, error) {
	return p.ListVoicesResult, p.ListVoicesErr
}

func (p *Provider) OutputFormat() audio.Format {
	if p.Format.SampleRate == 0 {
		return audio.Format{SampleRate: 16000, Channels: 1}
	}
	return p.Format
}

// Calls returns a snapshot of the recorded calls, Text slices included.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	for i, c := range p.calls {
		c.Text = append([]string(nil), c.Text...)
		out[i] = c
	}
	return out
}

var _ tts.Provider = (*Provider)(nil)

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/lingobridge/internal/config"
	"github.com/MrWong99/lingobridge/internal/resilience"
	"github.com/MrWong99/lingobridge/pkg/audio"
	"github.com/MrWong99/lingobridge/pkg/provider/llm"
	"github.com/MrWong99/lingobridge/pkg/provider/stt"
	"github.com/MrWong99/lingobridge/pkg/provider/tts"
)

// Providers holds one value per provider slot. TTS and Sink may be nil, in
// which case translations are shown but not spoken.
type Providers struct {
	STT   stt.Provider
	TTS   tts.Provider
	LLM   llm.Provider
	Audio audio.Source
	Sink  audio.Sink

	// TTSName labels synthesis metrics.
	TTSName string
}

// BuildProviders instantiates every provider named in cfg through reg. A
// provider with fallbacks is wrapped in the matching resilience group so a
// failing backend is skipped behind its circuit breaker.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}
	fb := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{OnStateChange: logBreaker},
	}

	sttEntry := cfg.Providers.STT
	primarySTT, err := reg.CreateSTT(sttEntry)
	if err != nil {
		return nil, fmt.Errorf("app: create stt provider %q: %w", sttEntry.Name, err)
	}
	ps.STT = primarySTT
	if len(sttEntry.Fallbacks) > 0 {
		group := resilience.NewSTTFallback(primarySTT, sttEntry.Name, fb)
		for _, e := range sttEntry.Fallbacks {
			p, err := reg.CreateSTT(e)
			if err != nil {
				return nil, fmt.Errorf("app: create stt fallback %q: %w", e.Name, err)
			}
			group.AddFallback(e.Name, p)
		}
		ps.STT = group
	}
	slog.Info("provider created", "kind", "stt", "name", sttEntry.Name, "fallbacks", len(sttEntry.Fallbacks))

	llmEntry := cfg.Providers.LLM
	primaryLLM, err := reg.CreateLLM(llmEntry)
	if err != nil {
		return nil, fmt.Errorf("app: create llm provider %q: %w", llmEntry.Name, err)
	}
	ps.LLM = primaryLLM
	if len(llmEntry.Fallbacks) > 0 {
		group := resilience.NewLLMFallback(primaryLLM, llmEntry.Name, fb)
		for _, e := range llmEntry.Fallbacks {
			p, err := reg.CreateLLM(e)
			if err != nil {
				return nil, fmt.Errorf("app: create llm fallback %q: %w", e.Name, err)
			}
			group.AddFallback(e.Name, p)
		}
		ps.LLM = group
	}
	slog.Info("provider created", "kind", "llm", "name", llmEntry.Name, "model", llmEntry.Model, "fallbacks", len(llmEntry.Fallbacks))

	if ttsEntry := cfg.Providers.TTS; ttsEntry.Name != "" {
		primaryTTS, err := reg.CreateTTS(ttsEntry)
		if err != nil {
			return nil, fmt.Errorf("app: create tts provider %q: %w", ttsEntry.Name, err)
		}
		ps.TTS, ps.TTSName = primaryTTS, ttsEntry.Name
		if len(ttsEntry.Fallbacks) > 0 {
			group := resilience.NewTTSFallback(primaryTTS, ttsEntry.Name, fb)
			for _, e := range ttsEntry.Fallbacks {
				p, err := reg.CreateTTS(e)
				if err != nil {
					return nil, fmt.Errorf("app: create tts fallback %q: %w", e.Name, err)
				}
				if err := group.AddFallback(e.Name, p); err != nil {
					return nil, fmt.Errorf("app: %w", err)
				}
			}
			ps.TTS = group
		}
		slog.Info("provider created", "kind", "tts", "name", ttsEntry.Name, "fallbacks", len(ttsEntry.Fallbacks))
	}

	src, sink, err := reg.CreateAudio(cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("app: create audio backend: %w", err)
	}
	ps.Audio, ps.Sink = src, sink

	return ps, nil
}

// validate reports missing required slots.
func (p *Providers) validate() error {
	var errs []error
	if p.STT == nil {
		errs = append(errs, errors.New("speech recognizer"))
	}
	if p.LLM == nil {
		errs = append(errs, errors.New("llm"))
	}
	if p.Audio == nil {
		errs = append(errs, errors.New("audio source"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("app: missing providers: %w", err)
	}
	return nil
}

func logBreaker(name string, from, to resilience.State) {
	level := slog.LevelInfo
	if to == resilience.StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
}

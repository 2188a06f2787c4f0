package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/lingobridge/pkg/audio"
	"github.com/MrWong99/lingobridge/pkg/provider/llm"
	"github.com/MrWong99/lingobridge/pkg/provider/stt"
	"github.com/MrWong99/lingobridge/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// defaultAudioBackend is used when audio.backend is empty.
const defaultAudioBackend = "ffmpeg"

// AudioFactory opens the capture source and playback sink for a backend.
type AudioFactory func(AudioConfig) (audio.Source, audio.Sink, error)

// factories is one kind's name-to-constructor table.
type factories[F any] struct {
	kind string
	m    map[string]F
}

func newFactories[F any](kind string) factories[F] {
	return factories[F]{kind: kind, m: make(map[string]F)}
}

func (f factories[F]) lookup(name string) (F, error) {
	fn, ok := f.m[name]
	if !ok {
		have := strings.Join(slices.Sorted(maps.Keys(f.m)), ", ")
		return fn, fmt.Errorf("%w: %s/%q (registered: %s)", ErrProviderNotRegistered, f.kind, name, have)
	}
	return fn, nil
}

// Registry maps provider names from the config file to constructors. Later
// registrations under the same name replace earlier ones. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	llm   factories[func(ProviderEntry) (llm.Provider, error)]
	stt   factories[func(ProviderEntry) (stt.Provider, error)]
	tts   factories[func(ProviderEntry) (tts.Provider, error)]
	audio factories[AudioFactory]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:   newFactories[func(ProviderEntry) (llm.Provider, error)]("llm"),
		stt:   newFactories[func(ProviderEntry) (stt.Provider, error)]("stt"),
		tts:   newFactories[func(ProviderEntry) (tts.Provider, error)]("tts"),
		audio: newFactories[AudioFactory]("audio"),
	}
}

func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	r.llm.m[name] = factory
	r.mu.Unlock()
}

func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	r.stt.m[name] = factory
	r.mu.Unlock()
}

func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	r.tts.m[name] = factory
	r.mu.Unlock()
}

func (r *Registry) RegisterAudio(name string, factory AudioFactory) {
	r.mu.Lock()
	r.audio.m[name] = factory
	r.mu.Unlock()
}

// CreateLLM builds the provider registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	f, err := r.llm.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateSTT builds the recognizer registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	f, err := r.stt.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateTTS builds the synthesizer registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	f, err := r.tts.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateAudio opens the backend named by cfg.Backend, or ffmpeg when unset.
func (r *Registry) CreateAudio(cfg AudioConfig) (audio.Source, audio.Sink, error) {
	name := cfg.Backend
	if name == "" {
		name = defaultAudioBackend
	}
	r.mu.RLock()
	f, err := r.audio.lookup(name)
	r.mu.RUnlock()
	if err != nil {
		return nil, nil, err
	}
	return f(cfg)
}

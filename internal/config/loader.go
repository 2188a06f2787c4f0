package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/lingobridge/internal/permission"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":   {"deepgram"},
	"tts":   {"elevenlabs"},
	"llm":   {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"audio": {"ffmpeg"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Languages
	switch {
	case cfg.Languages.Source == "":
		errs = append(errs, errors.New("languages.source is required"))
	case cfg.Languages.Target == "":
		errs = append(errs, errors.New("languages.target is required"))
	default:
		if err := cfg.Languages.Pair().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("languages: %w", err))
		}
	}

	// Session timings
	for name, d := range map[string]int64{
		"session.settle_delay":      int64(cfg.Session.SettleDelay),
		"session.no_speech_timeout": int64(cfg.Session.NoSpeechTimeout),
		"session.translate_timeout": int64(cfg.Session.TranslateTimeout),
		"audio.chunk_duration":      int64(cfg.Audio.ChunkDuration),
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is out of range [1, 2]", cfg.Audio.Channels))
	}
	validateProviderName("audio", cfg.Audio.Backend)

	// Providers
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required for translation"))
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; translations will not be spoken")
	}
	for kind, entry := range map[string]ProviderEntry{
		"stt": cfg.Providers.STT,
		"tts": cfg.Providers.TTS,
		"llm": cfg.Providers.LLM,
	} {
		validateProviderName(kind, entry.Name)
		for i, fb := range entry.Fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i))
				continue
			}
			validateProviderName(kind, fb.Name)
		}
	}

	// Translation
	if t := cfg.Translation.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("translation.temperature %.2f is out of range [0, 2]", *t))
	}
	if cfg.Translation.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("translation.max_tokens %d must not be negative", cfg.Translation.MaxTokens))
	}

	// Voices
	localesSeen := make(map[string]int, len(cfg.Voices))
	defaultVoice := -1
	for i, v := range cfg.Voices {
		prefix := fmt.Sprintf("voices[%d]", i)
		if v.VoiceID == "" {
			errs = append(errs, fmt.Errorf("%s.voice_id is required", prefix))
		}
		if tag, err := language.Parse(v.Locale); err != nil {
			errs = append(errs, fmt.Errorf("%s.locale %q is not a valid BCP-47 tag", prefix, v.Locale))
		} else {
			if prev, ok := localesSeen[tag.String()]; ok {
				errs = append(errs, fmt.Errorf("%s.locale %q is a duplicate of voices[%d]", prefix, v.Locale, prev))
			}
			localesSeen[tag.String()] = i
		}
		if v.SpeedFactor != 0 && (v.SpeedFactor < 0.5 || v.SpeedFactor > 2.0) {
			errs = append(errs, fmt.Errorf("%s.speed_factor %.2f is out of range [0.5, 2.0]", prefix, v.SpeedFactor))
		}
		if v.Default {
			if defaultVoice >= 0 {
				errs = append(errs, fmt.Errorf("%s is marked default but voices[%d] already is", prefix, defaultVoice))
			}
			defaultVoice = i
		}
	}
	if cfg.Providers.TTS.Name != "" && len(cfg.Voices) == 0 {
		slog.Warn("providers.tts is configured but no voices are; every utterance will fail voice lookup")
	}

	// History
	if cfg.History.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("history.max_entries %d must not be negative", cfg.History.MaxEntries))
	}

	// Permission
	switch cfg.Permission.Mode {
	case "", permission.ModeAllow, permission.ModeDeny, permission.ModeBinary:
	default:
		errs = append(errs, fmt.Errorf("permission.mode %q is invalid; valid values: allow, deny, binary", cfg.Permission.Mode))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

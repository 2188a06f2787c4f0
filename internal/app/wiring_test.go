package app

import (
	"testing"
	"time"

	"github.com/MrWong99/lingobridge/internal/config"
)

func TestSessionConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Languages: config.LanguagesConfig{Source: "en", Target: "zh-Hans"},
		Session: config.SessionConfig{
			SettleDelay:     300 * time.Millisecond,
			NoSpeechTimeout: 8 * time.Second,
			StartMuted:      true,
			Keywords:        []string{"Kubernetes", "Grafana"},
		},
		Audio: config.AudioConfig{SampleRate: 48000, Channels: 2},
	}

	sc := sessionConfig(cfg)
	if sc.Pair.Source != "en" || sc.Pair.Target != "zh-Hans" {
		t.Errorf("Pair = %+v", sc.Pair)
	}
	if sc.SettleDelay != 300*time.Millisecond || sc.NoSpeechTimeout != 8*time.Second {
		t.Errorf("timings = %v / %v", sc.SettleDelay, sc.NoSpeechTimeout)
	}
	if !sc.StartMuted {
		t.Error("StartMuted = false, want true")
	}
	if sc.CaptureFormat.SampleRate != 48000 || sc.CaptureFormat.Channels != 2 {
		t.Errorf("CaptureFormat = %+v", sc.CaptureFormat)
	}
	if len(sc.Keywords) != 2 || sc.Keywords[1].Keyword != "Grafana" || sc.Keywords[1].Boost != keywordBoost {
		t.Errorf("Keywords = %+v", sc.Keywords)
	}
}

func TestVoiceProfiles(t *testing.T) {
	t.Parallel()

	voices, fallback := voiceProfiles([]config.VoiceConfig{
		{Locale: "zh", VoiceID: "v-zh", Name: "Mei", SpeedFactor: 1.1},
		{Locale: "en", VoiceID: "v-en", Default: true},
	}, "elevenlabs")

	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	zh := voices[0]
	if zh.ID != "v-zh" || zh.Name != "Mei" || zh.Language != "zh" || zh.Provider != "elevenlabs" || zh.SpeedFactor != 1.1 {
		t.Errorf("voices[0] = %+v", zh)
	}
	if fallback == nil || fallback.ID != "v-en" {
		t.Errorf("fallback = %+v, want v-en", fallback)
	}

	if _, fb := voiceProfiles([]config.VoiceConfig{{Locale: "zh", VoiceID: "v-zh"}}, "x"); fb != nil {
		t.Errorf("fallback without a default voice = %+v, want nil", fb)
	}
}

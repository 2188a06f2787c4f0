package config_test

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/lingobridge/internal/config"
)

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	a, b := mustLoad(t, sampleYAML), mustLoad(t, sampleYAML)
	if d := config.Diff(a, b); !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_HotFields(t *testing.T) {
	t.Parallel()

	old := mustLoad(t, sampleYAML)
	cur := mustLoad(t, sampleYAML)
	cur.Server.LogLevel = config.LogDebug
	cur.Session.StartMuted = true
	cur.Messages.NoSpeech = "Say something."

	d := config.Diff(old, cur)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level: got changed=%v new=%q", d.LogLevelChanged, d.NewLogLevel)
	}
	if !d.MutedChanged || !d.NewMuted {
		t.Errorf("muted: got changed=%v new=%v", d.MutedChanged, d.NewMuted)
	}
	if !d.MessagesChanged {
		t.Error("messages change not detected")
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("hot fields must not require restart, got %v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	old := mustLoad(t, sampleYAML)
	cur := mustLoad(t, sampleYAML)
	cur.Languages.Target = "ja"
	cur.Session.SettleDelay = time.Second
	cur.Voices[0].VoiceID = "voice-zh-2"
	cur.Server.ListenAddr = ":9090"

	d := config.Diff(old, cur)
	want := []string{"languages", "server", "session", "voices"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.LogLevelChanged || d.MutedChanged {
		t.Errorf("unexpected hot changes: %+v", d)
	}
}

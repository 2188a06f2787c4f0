package config_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/lingobridge/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// bump moves the file's mtime forward so the next check cannot miss an edit
// made within the filesystem's timestamp granularity.
func bump(t *testing.T, path string, by time.Duration) {
	t.Helper()
	ts := time.Now().Add(by)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func newWatchedFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lingobridge.yaml")
	writeFile(t, path, minimalYAML+"server:\n  log_level: info\n")
	return path
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	w, err := config.NewWatcher(newWatchedFile(t), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", got, config.LogInfo)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()

	if _, err := config.NewWatcher("/nonexistent/path.yaml", nil); err == nil {
		t.Fatal("expected error for non-existent file, got nil")
	}
}

func TestWatcher_Check(t *testing.T) {
	t.Parallel()

	path := newWatchedFile(t)
	var old, cur *config.Config
	calls := 0
	w, err := config.NewWatcher(path, func(o, n *config.Config) {
		old, cur = o, n
		calls++
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if w.Check() {
		t.Error("Check reported a change for an untouched file")
	}

	// Touch only.
	bump(t, path, time.Second)
	if w.Check() || calls != 0 {
		t.Errorf("touch without edit fired the callback (%d calls)", calls)
	}

	// Invalid edit keeps the old config.
	writeFile(t, path, minimalYAML+"server:\n  log_level: bananas\n")
	bump(t, path, 2*time.Second)
	if w.Check() || calls != 0 {
		t.Errorf("invalid config fired the callback (%d calls)", calls)
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current() after invalid edit: log_level %q, want info", got)
	}

	// Valid edit.
	writeFile(t, path, minimalYAML+"server:\n  log_level: debug\n")
	bump(t, path, 3*time.Second)
	if !w.Check() {
		t.Fatal("Check missed a valid edit")
	}
	if calls != 1 || old.Server.LogLevel != config.LogInfo || cur.Server.LogLevel != config.LogDebug {
		t.Errorf("callback: calls=%d old=%v new=%v", calls, old, cur)
	}
	if w.Current() != cur {
		t.Error("Current() does not return the reloaded config")
	}
}

func TestWatcher_Run(t *testing.T) {
	t.Parallel()

	path := newWatchedFile(t)
	var mu sync.Mutex
	var got *config.Config
	called := make(chan struct{}, 1)
	w, err := config.NewWatcher(path, func(_, n *config.Config) {
		mu.Lock()
		got = n
		mu.Unlock()
		select {
		case called <- struct{}{}:
		default:
		}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeFile(t, path, strings.Replace(minimalYAML, "target: zh", "target: ja", 1))
	bump(t, path, time.Second)

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked within timeout")
	}
	mu.Lock()
	if got.Languages.Target != "ja" {
		t.Errorf("languages.target: got %q, want ja", got.Languages.Target)
	}
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

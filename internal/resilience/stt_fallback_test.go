package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/lingobridge/pkg/provider/stt"
	sttmock "github.com/MrWong99/lingobridge/pkg/provider/stt/mock"
)

func TestSTTFallback_StartStream(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		primaryErr     error
		wantPrimary    int
		wantSecondary  int
		wantPrimaryWon bool
	}{
		{"primary succeeds", nil, 1, 0, true},
		{"primary down", errors.New("dial tcp: refused"), 1, 1, false},
		{"primary lacks language", fmt.Errorf("deepgram: %w", stt.ErrLanguageUnsupported), 1, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			primary := &sttmock.Provider{StartStreamErr: tt.primaryErr}
			secondary := &sttmock.Provider{}

			fb := NewSTTFallback(primary, "deepgram", FallbackConfig{})
			fb.AddFallback("backup", secondary)

			handle, err := fb.StartStream(context.Background(), stt.StreamConfig{
				SampleRate: 16000,
				Channels:   1,
				Language:   "zh-CN",
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer handle.Close()

			if got := len(primary.Calls()); got != tt.wantPrimary {
				t.Errorf("primary calls = %d, want %d", got, tt.wantPrimary)
			}
			if got := len(secondary.Calls()); got != tt.wantSecondary {
				t.Errorf("secondary calls = %d, want %d", got, tt.wantSecondary)
			}
			if tt.wantPrimaryWon && handle != stt.SessionHandle(primary.Last()) {
				t.Error("handle does not come from the primary")
			}
			if !tt.wantPrimaryWon && handle != stt.SessionHandle(secondary.Last()) {
				t.Error("handle does not come from the secondary")
			}
		})
	}
}

func TestSTTFallback_LanguageUnsupportedKeepsBreakerClosed(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{StartStreamErr: stt.ErrLanguageUnsupported}
	fb := NewSTTFallback(primary, "deepgram", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})

	for range 3 {
		_, err := fb.StartStream(context.Background(), stt.StreamConfig{Language: "tlh"})
		if !errors.Is(err, stt.ErrLanguageUnsupported) {
			t.Fatalf("err = %v, want ErrLanguageUnsupported in chain", err)
		}
	}
	if got := len(primary.Calls()); got != 3 {
		t.Errorf("primary calls = %d, want 3 (breaker must stay closed)", got)
	}
	if !fb.Healthy() {
		t.Error("fallback should remain healthy")
	}
}

func TestSTTFallback_AllFail(t *testing.T) {
	t.Parallel()

	fb := NewSTTFallback(&sttmock.Provider{StartStreamErr: errTest}, "a", FallbackConfig{})
	fb.AddFallback("b", &sttmock.Provider{StartStreamErr: errTest})

	if _, err := fb.StartStream(context.Background(), stt.StreamConfig{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if got := fb.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Names() = %v", got)
	}
}

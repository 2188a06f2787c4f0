package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/lingobridge/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with failover across several
// recognizers. Only stream setup is covered; once a stream is open its
// transcripts and terminal error belong to that backend.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend. A backend rejecting the requested language is skipped without
// counting against its breaker.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	cfg.CircuitBreaker.IsFailure = ignoring(cfg.CircuitBreaker.IsFailure, stt.ErrLanguageUnsupported)
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional recognizer.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backend names in failover order.
func (f *STTFallback) Names() []string { return f.group.Names() }

// Healthy reports whether any backend is currently accepting calls.
func (f *STTFallback) Healthy() bool { return f.group.Healthy() }

// StartStream opens a stream on the first backend that accepts it.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}

// ignoring wraps a failure classifier so that errors matching any of the
// given sentinels never count as failures.
func ignoring(base func(error) bool, sentinels ...error) func(error) bool {
	if base == nil {
		base = CountsAsFailure
	}
	return func(err error) bool {
		for _, s := range sentinels {
			if errors.Is(err, s) {
				return false
			}
		}
		return base(err)
	}
}

package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has
// an open circuit breaker. The last entry's error is wrapped alongside it.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the per-entry circuit breaker created for each
// provider in a [FallbackGroup].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the
// same provider type. Entries are tried in registration order; entries with
// an open breaker are skipped. Fallbacks must be added before the group is
// shared between goroutines.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a provider after the existing entries.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Names returns the entry names in the order they are tried.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, 0, len(fg.entries))
	for _, e := range fg.entries {
		names = append(names, e.name)
	}
	return names
}

// Healthy reports whether any entry would currently be attempted.
func (fg *FallbackGroup[T]) Healthy() bool {
	return slices.ContainsFunc(fg.entries, func(e fallbackEntry[T]) bool {
		return e.breaker.State() != StateOpen
	})
}

// Primary returns the first entry's value.
func (fg *FallbackGroup[T]) Primary() T {
	return fg.entries[0].value
}

// Execute tries fn against each entry in order until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult walks the group until fn succeeds on an entry and returns
// that result. A cancelled or expired context ends the walk and is returned
// as is; otherwise the error wraps [ErrAllFailed] and the last entry's error.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range fg.entries {
		res, err := attempt(&fg.entries[i], fn)
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			var zero R
			return zero, err
		}
		lastErr = err
	}
	var zero R
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

// attempt runs fn through e's breaker and logs why the entry was passed over.
func attempt[T any, R any](e *fallbackEntry[T], fn func(T) (R, error)) (res R, err error) {
	err = e.breaker.Execute(func() error {
		var ferr error
		res, ferr = fn(e.value)
		return ferr
	})
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	case errors.Is(err, ErrCircuitOpen):
		slog.Debug("resilience: circuit open, skipping", "provider", e.name)
	default:
		slog.Warn("resilience: provider failed, falling back", "provider", e.name, "err", err)
	}
	return res, err
}

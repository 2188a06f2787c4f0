// Package speech owns the single speaking slot of the process.
//
// [Speaker.Speak] cancels whatever is being said and starts synthesizing and
// playing the new text in the background. At most one utterance holds the
// audio output at a time: a new utterance only reaches the sink after the
// previous one has released it. Synthesis and playback failures are logged
// and counted but never reported to the caller.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/lingobridge/internal/observe"
	"github.com/MrWong99/lingobridge/pkg/audio"
	"github.com/MrWong99/lingobridge/pkg/provider/tts"
)

// Option configures a Speaker.
type Option func(*Speaker)

// WithMetrics records synthesis latency and failures to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Speaker) { s.metrics = m }
}

// WithProviderName labels provider metrics. Default: "tts".
func WithProviderName(name string) Option {
	return func(s *Speaker) { s.providerName = name }
}

// Speaker speaks text through a tts.Provider and an audio.Sink.
type Speaker struct {
	tts          tts.Provider
	sink         audio.Sink
	voices       *VoiceBook
	metrics      *observe.Metrics
	providerName string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// New returns a Speaker.
func New(p tts.Provider, sink audio.Sink, voices *VoiceBook, opts ...Option) *Speaker {
	s := &Speaker{
		tts:          p,
		sink:         sink,
		voices:       voices,
		providerName: "tts",
	}
	if s.voices == nil {
		s.voices = &VoiceBook{}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Speak interrupts the current utterance, if any, and speaks text in locale.
// It returns immediately.
func (s *Speaker) Speak(text, locale string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	prev := s.done
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx, cancel, prev, done, text, locale)
}

func (s *Speaker) run(ctx context.Context, cancel context.CancelFunc, prev <-chan struct{}, done chan struct{}, text, locale string) {
	defer s.wg.Done()
	defer close(done)
	defer s.release(done, cancel)

	if prev != nil {
		<-prev
	}
	if ctx.Err() != nil {
		return
	}

	log := slog.With("locale", locale, "provider", s.providerName)
	start := time.Now()
	err := s.say(ctx, text, locale)
	switch {
	case err == nil:
		if s.metrics != nil {
			s.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
			s.metrics.RecordProviderRequest(context.Background(), s.providerName, "tts", "ok")
		}
		log.Debug("utterance finished", "duration", time.Since(start))
	case errors.Is(err, context.Canceled):
		log.Debug("utterance interrupted")
	default:
		log.Warn("speech output failed", "err", err)
		if s.metrics != nil {
			s.metrics.RecordProviderRequest(context.Background(), s.providerName, "tts", "error")
			s.metrics.RecordProviderError(context.Background(), s.providerName, "tts")
		}
	}
}

func (s *Speaker) say(ctx context.Context, text, locale string) error {
	voice, err := s.voices.Lookup(locale)
	if err != nil {
		return err
	}
	pcm, err := tts.Say(ctx, s.tts, text, voice)
	if err != nil {
		return err
	}
	defer audio.Drain(pcm)
	if err := s.sink.Play(ctx, pcm, s.tts.OutputFormat()); err != nil {
		return err
	}
	return ctx.Err()
}

// release clears the slot if it still belongs to the finished utterance.
func (s *Speaker) release(done chan struct{}, cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	if s.done == done {
		s.cancel = nil
	}
	s.mu.Unlock()
}

// Cancel stops the current utterance. It does not wait for the output device
// to be released.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Speaking reports whether an utterance currently holds the slot.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Wait blocks until every started utterance has finished.
func (s *Speaker) Wait() {
	s.wg.Wait()
}

// Close cancels the current utterance, waits for playback to stop and
// ignores later Speak calls.
func (s *Speaker) Close() error {
	s.mu.Lock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

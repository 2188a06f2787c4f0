// Package session implements the push-to-talk translation controller.
//
// A [Controller] owns one [LanguagePair] and drives every capture through
// Idle → Capturing → Settling → Translating → Idle. It opens the microphone
// and a streaming recognizer, publishes the live transcript while the user
// speaks, keeps listening for a short settle window after the user lets go so
// trailing words still arrive, then translates the committed text and hands
// the result to a [Speaker].
//
// At most one capture is active at a time. Translation sessions for both
// directions are provisioned in the background at construction; a capture
// whose direction has no session yet is dropped and provisioning is retried.
//
// All exported methods are safe for concurrent use.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/lingobridge/internal/history"
	"github.com/MrWong99/lingobridge/internal/observe"
	"github.com/MrWong99/lingobridge/internal/permission"
	"github.com/MrWong99/lingobridge/pkg/audio"
	"github.com/MrWong99/lingobridge/pkg/provider/stt"
	"github.com/MrWong99/lingobridge/pkg/provider/translate"
	"github.com/MrWong99/lingobridge/pkg/types"
)

// Default timings applied by [New] for zero [Config] fields.
const (
	DefaultSettleDelay      = 500 * time.Millisecond
	DefaultTranslateTimeout = 30 * time.Second
)

// subscriberBuffer is the channel capacity handed out by Subscribe.
const subscriberBuffer = 64

// journalTimeout bounds a single history write.
const journalTimeout = 5 * time.Second

// Speaker voices a translation. Speak must return immediately and must not
// call back into the controller, which holds its lock while calling it. A new
// call replaces whatever is still playing.
type Speaker interface {
	Speak(text, locale string)
	Cancel()
}

// Corrector rewrites recognized text spoken in locale, typically to fix
// misheard names.
type Corrector interface {
	Correct(locale, text string) string
}

// Journal receives every successful translation.
type Journal interface {
	Record(ctx context.Context, ex history.Exchange) error
}

// Config holds the tunables of a [Controller].
type Config struct {
	// Pair is the configured language pair. Source and Target must differ.
	Pair LanguagePair

	// SettleDelay is how long the recognizer keeps delivering results after
	// EndCapture before the text is committed. Default: 500ms.
	SettleDelay time.Duration

	// NoSpeechTimeout ends a capture that has produced no text after this
	// long. Zero disables the check.
	NoSpeechTimeout time.Duration

	// TranslateTimeout bounds a single translation. Default: 30s.
	TranslateTimeout time.Duration

	// CaptureFormat is requested from the audio source. Default: 16 kHz mono.
	CaptureFormat audio.Format

	// RecognitionFormat is what the recognizer is fed. Captured frames are
	// converted when the two differ. Default: CaptureFormat.
	RecognitionFormat audio.Format

	// Keywords are passed to the recognizer as vocabulary hints.
	Keywords []types.KeywordBoost

	// Messages overrides the user-facing error texts.
	Messages Messages

	// StartMuted sets the initial mute state.
	StartMuted bool
}

func (c Config) withDefaults() Config {
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.TranslateTimeout <= 0 {
		c.TranslateTimeout = DefaultTranslateTimeout
	}
	if c.CaptureFormat.SampleRate <= 0 {
		c.CaptureFormat.SampleRate = 16000
	}
	if c.CaptureFormat.Channels <= 0 {
		c.CaptureFormat.Channels = 1
	}
	if c.RecognitionFormat.SampleRate <= 0 {
		c.RecognitionFormat.SampleRate = c.CaptureFormat.SampleRate
	}
	if c.RecognitionFormat.Channels <= 0 {
		c.RecognitionFormat.Channels = c.CaptureFormat.Channels
	}
	return c
}

// Deps are the collaborators of a [Controller]. Audio, Recognizer and
// Translator are required.
type Deps struct {
	Audio      audio.Source
	Recognizer stt.Provider
	Translator translate.Provider

	// Speaker voices translations. Nil disables speech output.
	Speaker Speaker

	// Permission is asked before every capture. Nil grants every request.
	Permission permission.Gate

	// Journal records completed translations. Nil disables history.
	Journal Journal

	// Corrector repairs committed text before it is translated. Nil leaves
	// the text as recognized.
	Corrector Corrector
}

// Option configures a [Controller].
type Option func(*Controller)

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the base logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// Controller runs the capture, recognition, translation and playback cycle
// for one language pair.
type Controller struct {
	cfg     Config
	deps    Deps
	speaker Speaker
	metrics *observe.Metrics
	log     *slog.Logger

	// ctx is cancelled by Close and parents every background operation.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	closed       bool
	state        State
	messages     Messages
	cur          *capture
	settle       *time.Timer
	sessions     map[translate.Pair]translate.Session
	provisioning map[translate.Pair]bool
	subs         map[int]chan Update
	nextSub      int
}

// New validates cfg and starts provisioning translation sessions for both
// directions of cfg.Pair.
func New(cfg Config, deps Deps, opts ...Option) (*Controller, error) {
	if err := cfg.Pair.Validate(); err != nil {
		return nil, err
	}
	if deps.Audio == nil || deps.Recognizer == nil || deps.Translator == nil {
		return nil, errors.New("session: audio source, recognizer and translator are required")
	}
	cfg = cfg.withDefaults()
	if deps.Permission == nil {
		deps.Permission = permission.Static(true)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:          cfg,
		deps:         deps,
		speaker:      deps.Speaker,
		ctx:          ctx,
		cancel:       cancel,
		messages:     cfg.Messages.withDefaults(),
		sessions:     make(map[translate.Pair]translate.Session),
		provisioning: make(map[translate.Pair]bool),
		subs:         make(map[int]chan Update),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With("component", "session", "source", cfg.Pair.Source, "target", cfg.Pair.Target)
	if c.speaker == nil {
		c.speaker = silentSpeaker{}
	}
	c.state.IsMuted = cfg.StartMuted

	c.mu.Lock()
	c.provisionLocked(cfg.Pair.Route(SourceToTarget))
	c.provisionLocked(cfg.Pair.Route(TargetToSource))
	c.mu.Unlock()

	c.log.Info("translation controller started",
		"settle_delay", cfg.SettleDelay,
		"muted", cfg.StartMuted,
	)
	return c, nil
}

// Pair returns the configured language pair.
func (c *Controller) Pair() LanguagePair { return c.cfg.Pair }

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe returns a channel receiving one [Update] per field change and a
// function that cancels the subscription. Updates are dropped for a
// subscriber whose buffer is full; [Controller.Snapshot] is always current.
// The channel is closed on cancel or when the controller closes.
func (c *Controller) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBuffer)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if s, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(s)
		}
	}
}

// SetMuted toggles speech output. Muting also stops the current utterance.
// Translated text is still produced while muted.
func (c *Controller) SetMuted(muted bool) {
	c.mu.Lock()
	changed := c.state.IsMuted != muted
	if changed {
		c.state.IsMuted = muted
		c.publishLocked(FieldIsMuted)
	}
	c.mu.Unlock()

	if muted {
		c.speaker.Cancel()
	}
	if changed {
		c.log.Info("speech output mute changed", "muted", muted)
	}
}

// SetMessages replaces the user-facing texts. Empty fields use the defaults.
func (c *Controller) SetMessages(m Messages) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = m.withDefaults()
}

// Close aborts any capture, cancels provisioning and in-flight translations,
// waits for background work and closes all subscriptions. Close is
// idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cp := c.cur
	c.cur = nil
	if cp != nil {
		cp.stopping = true
		stopTimer(cp.noSpeech)
	}
	if c.settle != nil && c.settle.Stop() {
		c.wg.Done()
	}
	c.settle = nil
	c.idleLocked()
	ready := len(c.sessions)
	c.mu.Unlock()

	c.cancel()
	if cp != nil {
		c.release(cp)
	}
	c.speaker.Cancel()
	c.wg.Wait()

	c.mu.Lock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	c.metrics.ReadySessions.Add(context.Background(), -int64(ready))
	c.log.Info("translation controller closed")
	return nil
}

// ─── state helpers (c.mu held) ───────────────────────────────────────────────

func (c *Controller) publishLocked(f Field) {
	if len(c.subs) == 0 {
		return
	}
	u := Update{Field: f, State: c.state.clone()}
	for _, ch := range c.subs {
		select {
		case ch <- u:
		default:
			c.log.Debug("state subscriber is slow, dropping update", "field", f.String())
		}
	}
}

func (c *Controller) setPhaseLocked(p Phase, dir *Direction) {
	if !sameDirection(c.state.ActiveDirection, dir) {
		c.state.ActiveDirection = dir
		c.publishLocked(FieldActiveDirection)
	}
	if c.state.Phase != p {
		c.state.Phase = p
		c.publishLocked(FieldPhase)
	}
}

func (c *Controller) idleLocked() { c.setPhaseLocked(PhaseIdle, nil) }

func (c *Controller) setTextLocked(f Field, dst *string, v string) {
	if *dst == v {
		return
	}
	*dst = v
	c.publishLocked(f)
}

func (c *Controller) setTranslatingLocked(v bool) {
	if c.state.IsTranslating == v {
		return
	}
	c.state.IsTranslating = v
	c.publishLocked(FieldIsTranslating)
}

func (c *Controller) failLocked(kind ErrorKind) {
	c.state.ErrorKind = kind
	c.state.ErrorMessage = c.messages.forKind(kind)
	c.publishLocked(FieldError)
	c.metrics.RecordSessionError(c.ctx, string(kind))
}

func (c *Controller) clearErrorLocked() {
	if c.state.ErrorKind == KindNone && c.state.ErrorMessage == "" {
		return
	}
	c.state.ErrorKind = KindNone
	c.state.ErrorMessage = ""
	c.publishLocked(FieldError)
}

func sameDirection(a, b *Direction) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// silentSpeaker is used when no Speaker is configured.
type silentSpeaker struct{}

func (silentSpeaker) Speak(string, string) {}
func (silentSpeaker) Cancel()              {}

package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/lingobridge/internal/history"
	"github.com/MrWong99/lingobridge/internal/observe"
	"github.com/MrWong99/lingobridge/pkg/provider/translate"
)

// Translate translates text in direction d without a capture, for typed
// input. It runs only while the controller is idle and returns [ErrBusy]
// otherwise. The result is published like a spoken translation and voiced
// unless muted.
//
// [ErrTranslationNotReady] is returned while the route's session is still
// being provisioned. Translator failures are returned wrapped in
// [ErrTranslation] and also shown in [State.TranslatedText].
func (c *Controller) Translate(ctx context.Context, d Direction, text string) (string, error) {
	if !d.Valid() {
		return "", fmt.Errorf("session: invalid direction %d", int(d))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if c.state.Phase != PhaseIdle {
		c.mu.Unlock()
		return "", ErrBusy
	}
	dir := d
	c.setPhaseLocked(PhaseTranslating, &dir)
	c.setTextLocked(FieldRecognizedText, &c.state.RecognizedText, "")
	c.setTextLocked(FieldPendingTranslationText, &c.state.PendingTranslationText, text)
	c.setTextLocked(FieldTranslatedText, &c.state.TranslatedText, "")
	c.clearErrorLocked()
	c.mu.Unlock()

	return c.translate(ctx, d, text)
}

// translate runs one translation for d and returns the controller to idle.
// The caller has already moved the phase out of idle. parent only supplies
// the trace; cancellation comes from the controller's own lifetime.
func (c *Controller) translate(parent context.Context, d Direction, text string) (string, error) {
	route := c.cfg.Pair.Route(d)

	c.mu.Lock()
	if c.closed {
		c.idleLocked()
		c.mu.Unlock()
		return "", ErrClosed
	}
	sess, ok := c.sessions[route]
	if !ok {
		c.provisionLocked(route)
		c.idleLocked()
		c.mu.Unlock()
		c.log.Info("translation session not ready, dropping text", "pair", route.String())
		return "", ErrTranslationNotReady
	}
	if text == "" {
		c.idleLocked()
		c.mu.Unlock()
		return "", nil
	}
	if c.state.IsTranslating {
		c.mu.Unlock()
		return "", ErrBusy
	}
	dir := d
	c.setPhaseLocked(PhaseTranslating, &dir)
	c.setTranslatingLocked(true)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.TranslateTimeout)
	defer cancel()
	ctx = trace.ContextWithSpanContext(ctx, trace.SpanContextFromContext(parent))
	ctx, span := observe.StartSpan(ctx, "session.translate",
		trace.WithAttributes(
			attribute.String("pair", route.String()),
			attribute.String("direction", d.String()),
		),
	)
	defer span.End()

	start := time.Now()
	result, err := sess.Translate(ctx, text)
	latency := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.metrics.RecordTranslation(ctx, route.String(), status, latency.Seconds())

	c.mu.Lock()
	if err != nil {
		c.setTextLocked(FieldTranslatedText, &c.state.TranslatedText, c.messages.translationFailed(err))
	} else {
		c.setTextLocked(FieldTranslatedText, &c.state.TranslatedText, result)
	}
	c.setTranslatingLocked(false)
	c.idleLocked()
	// Speak under mu: a concurrent SetMuted(true) either suppresses the
	// utterance here or cancels it after.
	muted := c.state.IsMuted
	if err == nil && !muted {
		c.speaker.Speak(result, route.To)
	}
	c.mu.Unlock()

	if err != nil {
		c.metrics.RecordSessionError(ctx, string(KindTranslation))
		c.log.Warn("translation failed", "pair", route.String(), "err", err)
		return "", fmt.Errorf("%w: %w", ErrTranslation, err)
	}

	c.log.Info("translated",
		"pair", route.String(),
		"latency", latency,
		"chars", len([]rune(text)),
		"muted", muted,
	)
	c.record(ctx, d, route, text, result, latency)
	return result, nil
}

// record hands a finished exchange to the journal.
func (c *Controller) record(ctx context.Context, d Direction, route translate.Pair, text, result string, latency time.Duration) {
	if c.deps.Journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()

	ex := history.Exchange{
		Direction:      d.String(),
		Source:         route.From,
		Target:         route.To,
		SourceText:     text,
		TranslatedText: result,
		Latency:        latency,
	}
	if err := c.deps.Journal.Record(ctx, ex); err != nil {
		c.log.Warn("recording translation history", "err", err)
	}
}

// provisionLocked starts preparing a session for pair unless one exists or is
// already being prepared. Sessions are kept for the controller's lifetime.
func (c *Controller) provisionLocked(pair translate.Pair) {
	if c.closed || c.provisioning[pair] {
		return
	}
	if _, ok := c.sessions[pair]; ok {
		return
	}
	c.provisioning[pair] = true
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		start := time.Now()
		s, err := c.deps.Translator.Prepare(c.ctx, pair)

		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.provisioning, pair)
		switch {
		case err != nil:
			if !c.closed {
				c.log.Warn("provisioning translation session failed", "pair", pair.String(), "err", err)
			}
			return
		case s == nil:
			c.log.Error("translator returned no session", "pair", pair.String())
			return
		case s.Pair() != pair:
			c.log.Error("translator returned a session for another pair",
				"want", pair.String(),
				"got", s.Pair().String(),
			)
			return
		}
		if _, ok := c.sessions[pair]; ok {
			return
		}
		c.sessions[pair] = s
		c.state.ReadySessions = append(c.state.ReadySessions, pair)
		c.publishLocked(FieldReadySessions)
		c.metrics.ReadySessions.Add(c.ctx, 1)
		c.log.Info("translation session ready", "pair", pair.String(), "elapsed", time.Since(start))
	}()
}

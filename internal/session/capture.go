package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/lingobridge/internal/observe"
	"github.com/MrWong99/lingobridge/pkg/audio"
	"github.com/MrWong99/lingobridge/pkg/provider/stt"
	"github.com/MrWong99/lingobridge/pkg/types"
)

// capture holds the resources of one push-to-talk cycle. Fields other than
// stopOnce are guarded by Controller.mu.
type capture struct {
	dir     Direction
	started time.Time

	// stream and handle are nil until BeginCapture has acquired both.
	stream audio.Stream
	handle stt.SessionHandle

	noSpeech *time.Timer

	// committed holds the finalized segments; partial the segment in flight.
	committed string
	partial   string
	heard     bool

	// endAsked records an EndCapture that arrived while resources were still
	// being acquired.
	endAsked bool

	// stopping is set once the capture is ending or being torn down. Later
	// events for it are ignored.
	stopping bool

	stopOnce sync.Once
}

// BeginCapture starts listening in direction d. It returns [ErrBusy] without
// touching state unless the controller is idle. On success the recognizer
// streams results into [State.RecognizedText] until [Controller.EndCapture].
//
// Failures leave the controller idle with a user-facing error in the state
// and return one of [ErrPermissionDenied], [ErrRecognizerUnavailable] or
// [ErrAudioEngine].
func (c *Controller) BeginCapture(ctx context.Context, d Direction) error {
	if !d.Valid() {
		return fmt.Errorf("session: invalid direction %d", int(d))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Phase != PhaseIdle {
		phase := c.state.Phase
		c.mu.Unlock()
		c.log.Debug("capture request ignored", "direction", d.String(), "phase", phase.String())
		return ErrBusy
	}
	cp := &capture{dir: d, started: time.Now()}
	c.cur = cp
	dir := d
	c.setPhaseLocked(PhaseCapturing, &dir)
	c.setTextLocked(FieldRecognizedText, &c.state.RecognizedText, "")
	c.setTextLocked(FieldPendingTranslationText, &c.state.PendingTranslationText, "")
	c.setTextLocked(FieldTranslatedText, &c.state.TranslatedText, "")
	c.clearErrorLocked()
	c.mu.Unlock()

	locale := c.cfg.Pair.InputLocale(d)

	granted, err := c.deps.Permission.Check(ctx)
	if err != nil {
		return c.startFailed(cp, ErrPermissionDenied, err)
	}
	if !granted {
		return c.startFailed(cp, ErrPermissionDenied, nil)
	}

	handle, err := c.deps.Recognizer.StartStream(c.ctx, stt.StreamConfig{
		SampleRate: c.cfg.RecognitionFormat.SampleRate,
		Channels:   c.cfg.RecognitionFormat.Channels,
		Language:   locale,
		Keywords:   c.cfg.Keywords,
	})
	if err != nil {
		return c.startFailed(cp, ErrRecognizerUnavailable, err)
	}

	stream, err := c.deps.Audio.Start(c.ctx, c.cfg.CaptureFormat)
	if err != nil {
		if cerr := handle.Close(); cerr != nil {
			c.log.Debug("releasing recognizer after audio failure", "err", cerr)
		}
		return c.startFailed(cp, ErrAudioEngine, err)
	}

	c.mu.Lock()
	if c.closed || c.cur != cp {
		c.mu.Unlock()
		_ = stream.Stop()
		_ = handle.Close()
		return ErrClosed
	}
	cp.stream = stream
	cp.handle = handle
	if c.cfg.NoSpeechTimeout > 0 {
		cp.noSpeech = time.AfterFunc(c.cfg.NoSpeechTimeout, func() { c.noSpeechTimeout(cp) })
	}
	c.wg.Add(2)
	go c.pumpAudio(cp)
	go c.forwardTranscripts(cp)
	endAsked := cp.endAsked
	c.mu.Unlock()

	c.metrics.ActiveCaptures.Add(c.ctx, 1)
	c.log.Info("capture started", "direction", d.String(), "locale", locale)

	if endAsked {
		c.EndCapture()
	}
	return nil
}

// startFailed reports a capture that never got its resources.
func (c *Controller) startFailed(cp *capture, sentinel, cause error) error {
	kind := KindOf(sentinel)

	c.mu.Lock()
	if c.cur == cp {
		c.cur = nil
		c.failLocked(kind)
		c.idleLocked()
	}
	c.mu.Unlock()

	c.metrics.RecordCapture(c.ctx, cp.dir.String(), observe.OutcomeFailed, time.Since(cp.started).Seconds())
	if cause == nil {
		c.log.Warn("capture not started", "direction", cp.dir.String(), "kind", string(kind))
		return sentinel
	}
	c.log.Warn("capture not started", "direction", cp.dir.String(), "kind", string(kind), "err", cause)
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// EndCapture stops listening. The microphone is released before EndCapture
// returns; the recognizer keeps delivering results for the settle delay, after
// which the recognized text is committed and translated. Calling EndCapture
// when no capture is running does nothing.
func (c *Controller) EndCapture() {
	c.mu.Lock()
	cp := c.cur
	if cp == nil || cp.stopping || c.state.Phase != PhaseCapturing {
		c.mu.Unlock()
		return
	}
	if cp.stream == nil {
		cp.endAsked = true
		c.mu.Unlock()
		return
	}
	cp.stopping = true
	stopTimer(cp.noSpeech)
	dir := cp.dir
	c.setPhaseLocked(PhaseSettling, &dir)
	c.mu.Unlock()

	c.stopAudio(cp)
	if err := cp.handle.CloseSend(); err != nil {
		c.log.Debug("recognizer close-send failed", "err", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.cur != cp {
		return
	}
	c.wg.Add(1)
	c.settle = time.AfterFunc(c.cfg.SettleDelay, func() {
		defer c.wg.Done()
		c.settled(cp)
	})
	c.log.Debug("capture ended, settling", "direction", dir.String(), "delay", c.cfg.SettleDelay)
}

// settled commits the recognized text once the settle delay has passed.
func (c *Controller) settled(cp *capture) {
	c.mu.Lock()
	if c.cur != cp || c.state.Phase != PhaseSettling {
		c.mu.Unlock()
		return
	}
	c.cur = nil
	c.settle = nil
	text := strings.TrimSpace(c.state.RecognizedText)
	if text != "" && c.deps.Corrector != nil {
		text = c.deps.Corrector.Correct(c.cfg.Pair.InputLocale(cp.dir), text)
	}
	c.setTextLocked(FieldPendingTranslationText, &c.state.PendingTranslationText, text)
	c.mu.Unlock()

	recErr := cp.handle.Err()
	if err := cp.handle.Close(); err != nil {
		c.log.Debug("closing recognizer", "err", err)
	}
	elapsed := time.Since(cp.started).Seconds()

	if text == "" {
		c.mu.Lock()
		switch {
		case errors.Is(recErr, stt.ErrNoSpeech):
			c.failLocked(KindNoSpeech)
		case recErr != nil:
			c.failLocked(KindRecognition)
		}
		c.idleLocked()
		c.mu.Unlock()

		c.metrics.RecordCapture(c.ctx, cp.dir.String(), observe.OutcomeNoSpeech, elapsed)
		c.log.Info("capture ended without speech", "direction", cp.dir.String(), "recognizer_err", recErr)
		return
	}

	c.metrics.RecordCapture(c.ctx, cp.dir.String(), observe.OutcomeTranslated, elapsed)
	_, _ = c.translate(c.ctx, cp.dir, text)
}

// abort tears a running capture down and reports kind once every resource
// has been released.
func (c *Controller) abort(cp *capture, kind ErrorKind, cause error) {
	c.mu.Lock()
	if c.cur != cp || cp.stopping {
		c.mu.Unlock()
		return
	}
	cp.stopping = true
	stopTimer(cp.noSpeech)
	c.mu.Unlock()

	c.release(cp)

	c.mu.Lock()
	if c.cur == cp {
		c.cur = nil
		c.failLocked(kind)
		c.idleLocked()
	}
	c.mu.Unlock()

	outcome := observe.OutcomeFailed
	if kind == KindNoSpeech {
		outcome = observe.OutcomeNoSpeech
	}
	c.metrics.RecordCapture(c.ctx, cp.dir.String(), outcome, time.Since(cp.started).Seconds())
	c.log.Warn("capture aborted", "direction", cp.dir.String(), "kind", string(kind), "err", cause)
}

func (c *Controller) noSpeechTimeout(cp *capture) {
	c.mu.Lock()
	expired := c.cur == cp && !cp.heard && !cp.stopping && c.state.Phase == PhaseCapturing
	c.mu.Unlock()
	if expired {
		c.abort(cp, KindNoSpeech, ErrNoSpeechDetected)
	}
}

// stopAudio stops the microphone exactly once.
func (c *Controller) stopAudio(cp *capture) {
	if cp.stream == nil {
		return
	}
	cp.stopOnce.Do(func() {
		if err := cp.stream.Stop(); err != nil {
			c.log.Warn("stopping audio capture", "err", err)
		}
		c.metrics.ActiveCaptures.Add(context.Background(), -1)
	})
}

// release frees both the microphone and the recognizer.
func (c *Controller) release(cp *capture) {
	c.stopAudio(cp)
	if cp.handle != nil {
		if err := cp.handle.Close(); err != nil {
			c.log.Debug("closing recognizer", "err", err)
		}
	}
}

// pumpAudio feeds captured frames to the recognizer until the stream ends.
func (c *Controller) pumpAudio(cp *capture) {
	defer c.wg.Done()

	conv := audio.NewConverter(c.cfg.RecognitionFormat)
	var sendErr error
	for frame := range cp.stream.Frames() {
		if sendErr != nil {
			continue
		}
		f := conv.Convert(frame)
		if len(f.Data) == 0 {
			continue
		}
		if err := cp.handle.SendAudio(f.Data); err != nil {
			sendErr = err
			if errors.Is(err, stt.ErrSessionClosed) {
				continue
			}
			// Keep draining frames so the device is never blocked on us.
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.abort(cp, KindRecognition, err)
			}()
		}
	}

	if err := cp.stream.Err(); err != nil {
		c.abort(cp, KindAudioEngine, err)
	}
}

// forwardTranscripts publishes recognizer results and reacts to the end of
// the recognition stream.
func (c *Controller) forwardTranscripts(cp *capture) {
	defer c.wg.Done()

	for t := range cp.handle.Transcripts() {
		c.onTranscript(cp, t)
	}
	c.recognitionEnded(cp, cp.handle.Err())
}

func (c *Controller) onTranscript(cp *capture, t types.Transcript) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != cp {
		return
	}
	if c.state.Phase != PhaseCapturing && c.state.Phase != PhaseSettling {
		return
	}

	text := strings.TrimSpace(t.Text)
	if t.IsFinal {
		cp.committed = joinSegments(cp.committed, text)
		cp.partial = ""
	} else {
		cp.partial = text
	}
	recognized := joinSegments(cp.committed, cp.partial)
	if recognized != "" && !cp.heard {
		cp.heard = true
		stopTimer(cp.noSpeech)
	}
	c.setTextLocked(FieldRecognizedText, &c.state.RecognizedText, recognized)
}

// recognitionEnded handles the recognizer closing its result stream. While
// settling this is expected; while still capturing a clean end finishes the
// capture and an error aborts it.
func (c *Controller) recognitionEnded(cp *capture, err error) {
	c.mu.Lock()
	live := c.cur == cp && !cp.stopping && c.state.Phase == PhaseCapturing
	c.mu.Unlock()
	if !live {
		return
	}

	switch {
	case err == nil:
		c.log.Debug("recognizer finished the stream, ending capture")
		c.EndCapture()
	case errors.Is(err, stt.ErrNoSpeech):
		c.abort(cp, KindNoSpeech, err)
	default:
		c.abort(cp, KindRecognition, err)
	}
}

// joinSegments appends b to a, separated by a space unless either side of the
// boundary is written without word spacing.
func joinSegments(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	last, _ := utf8.DecodeLastRuneInString(a)
	first, _ := utf8.DecodeRuneInString(b)
	if unspaced(last) || unspaced(first) {
		return a + b
	}
	return a + " " + b
}

func unspaced(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Thai)
}

// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/text/language"

	"github.com/MrWong99/lingobridge/pkg/provider/stt"
	"github.com/MrWong99/lingobridge/pkg/types"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// supportedLanguages lists the streaming languages of the nova family. Tags
// not listed here are matched to the closest entry by base language.
var supportedLanguages = []language.Tag{
	language.English,
	language.AmericanEnglish,
	language.BritishEnglish,
	language.MustParse("en-AU"),
	language.MustParse("en-IN"),
	language.German,
	language.MustParse("de-CH"),
	language.Spanish,
	language.LatinAmericanSpanish,
	language.French,
	language.CanadianFrench,
	language.Italian,
	language.Portuguese,
	language.BrazilianPortuguese,
	language.Dutch,
	language.MustParse("nl-BE"),
	language.Japanese,
	language.Korean,
	language.SimplifiedChinese,
	language.TraditionalChinese,
	language.Hindi,
	language.Russian,
	language.Ukrainian,
	language.Polish,
	language.Swedish,
	language.Danish,
	language.Norwegian,
	language.Finnish,
	language.Turkish,
	language.Indonesian,
	language.Vietnamese,
	language.Czech,
	language.Greek,
	language.Hungarian,
	language.Romanian,
	language.Bulgarian,
	language.Catalan,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default BCP-47 language used when a stream does not
// name one.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSampleRate sets the audio sample rate in Hz for the provider-level default.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpoint overrides the streaming endpoint. Tests point it at an
// httptest server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
	endpoint   string
	keepAlive  time.Duration
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		endpoint:   deepgramEndpoint,
		keepAlive:  defaultKeepAlive,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram. ctx
// bounds the connection handshake only; the stream lives until Close.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &session{
		conn:     conn,
		cancel:   cancel,
		out:      make(chan types.Transcript, 64),
		audio:    make(chan []byte, 256),
		sendDone: make(chan struct{}),
		done:     make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(streamCtx)
	go sess.writeLoop(streamCtx, p.keepAlive)

	return sess, nil
}

// resolveLanguage maps a BCP-47 tag onto the closest supported Deepgram
// language. It returns stt.ErrLanguageUnsupported when no entry matches.
func resolveLanguage(tag string) (string, error) {
	t, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("deepgram: %w: %q: %v", stt.ErrLanguageUnsupported, tag, err)
	}
	for _, s := range supportedLanguages {
		if s == t {
			return s.String(), nil
		}
	}
	_, idx, conf := languageMatcher.Match(t)
	if conf == language.No {
		return "", fmt.Errorf("deepgram: %w: %q", stt.ErrLanguageUnsupported, tag)
	}
	return supportedLanguages[idx].String(), nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	lang, err = resolveLanguage(lang)
	if err != nil {
		return "", err
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}

	for _, kw := range cfg.Keywords {
		// Deepgram keyword format: word:boost (e.g., "Zürich:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// defaultKeepAlive is well inside Deepgram's ten second idle timeout.
const defaultKeepAlive = 4 * time.Second

var (
	msgKeepAlive   = []byte(`{"type":"KeepAlive"}`)
	msgCloseStream = []byte(`{"type":"CloseStream"}`)
)

type word struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Words      []word  `json:"words"`
}

// result is a "Results" event. Other event types (Metadata, SpeechStarted,
// UtteranceEnd) are skipped.
type result struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []alternative `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram streaming session. It implements stt.SessionHandle.
type session struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	out    chan types.Transcript
	audio  chan []byte

	sendDone      chan struct{}
	closeSendOnce sync.Once
	done          chan struct{}
	closeOnce     sync.Once
	wg            sync.WaitGroup

	mu    sync.Mutex
	err   error
	heard bool
}

// SendAudio queues a PCM audio chunk for delivery to Deepgram.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	case <-s.sendDone:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	case <-s.sendDone:
		return stt.ErrSessionClosed
	}
}

// Transcripts returns the ordered stream of partial and final results.
func (s *session) Transcripts() <-chan types.Transcript { return s.out }

// CloseSend flushes queued audio and asks Deepgram to finalise the stream.
func (s *session) CloseSend() error {
	s.closeSendOnce.Do(func() { close(s.sendDone) })
	return nil
}

// Err returns the terminal stream error once Transcripts is closed.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close terminates the session without waiting for pending results.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

// writeLoop forwards queued audio as binary messages and keeps the
// connection alive while no audio flows. After CloseSend it flushes the queue
// and sends CloseStream so Deepgram emits its last finals and hangs up.
func (s *session) writeLoop(ctx context.Context, keepAlive time.Duration) {
	defer s.wg.Done()
	tick := time.NewTicker(keepAlive)
	defer tick.Stop()

	idle := true
	write := func(typ websocket.MessageType, b []byte) bool {
		return s.conn.Write(ctx, typ, b) == nil
	}
	for {
		select {
		case chunk := <-s.audio:
			if !write(websocket.MessageBinary, chunk) {
				return
			}
			idle = false
		case <-tick.C:
			if idle && !write(websocket.MessageText, msgKeepAlive) {
				return
			}
			idle = true
		case <-s.sendDone:
			for {
				select {
				case chunk := <-s.audio:
					if !write(websocket.MessageBinary, chunk) {
						return
					}
				default:
					write(websocket.MessageText, msgCloseStream)
					return
				}
			}
		case <-s.done:
			return
		}
	}
}

// readLoop receives JSON messages from Deepgram and forwards parsed results
// in order. It records the terminal error and closes the output channel when
// the connection ends.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()

	var readErr error
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			readErr = err
			break
		}

		t, ok := parseResult(msg)
		if !ok {
			continue
		}
		if t.Text != "" {
			s.mu.Lock()
			s.heard = true
			s.mu.Unlock()
		}

		select {
		case s.out <- t:
		case <-s.done:
		}
	}

	s.mu.Lock()
	s.err = s.terminalError(readErr)
	s.mu.Unlock()
	close(s.out)
}

// terminalError classifies the error that ended the read loop. Must be called
// with s.mu held.
func (s *session) terminalError(readErr error) error {
	select {
	case <-s.done:
		return nil
	default:
	}
	if readErr != nil && websocket.CloseStatus(readErr) != websocket.StatusNormalClosure {
		return fmt.Errorf("deepgram: read: %w", readErr)
	}
	if !s.heard {
		return stt.ErrNoSpeech
	}
	return nil
}

// parseResult converts a Results event into a Transcript. ok is false for
// anything else, including malformed JSON.
func parseResult(data []byte) (t types.Transcript, ok bool) {
	var r result
	if json.Unmarshal(data, &r) != nil || r.Type != "Results" || len(r.Channel.Alternatives) == 0 {
		return types.Transcript{}, false
	}
	alt := r.Channel.Alternatives[0]
	t = types.Transcript{
		Text:       alt.Transcript,
		IsFinal:    r.IsFinal,
		Confidence: alt.Confidence,
		Words:      make([]types.WordDetail, len(alt.Words)),
		Timestamp:  seconds(r.Start),
		Duration:   seconds(r.Duration),
	}
	for i, w := range alt.Words {
		t.Words[i] = types.WordDetail{
			Word:       w.Word,
			Start:      seconds(w.Start),
			End:        seconds(w.End),
			Confidence: w.Confidence,
		}
	}
	return t, true
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

var _ stt.Provider = (*Provider)(nil)

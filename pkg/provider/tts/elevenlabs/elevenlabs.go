// Package elevenlabs implements tts.Provider on the ElevenLabs stream-input
// WebSocket API. Translated text is pushed fragment by fragment and raw PCM
// comes back while the sentence is still being sent.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"golang.org/x/text/language"

	"github.com/MrWong99/lingobridge/pkg/audio"
	"github.com/MrWong99/lingobridge/pkg/provider/tts"
	"github.com/MrWong99/lingobridge/pkg/types"
)

const (
	defaultWSBase  = "wss://api.elevenlabs.io"
	defaultAPIBase = "https://api.elevenlabs.io"
	defaultModel   = "eleven_flash_v2_5"
	defaultFormat  = "pcm_16000"
)

// Option configures a Provider.
type Option func(*Provider)

// WithModel selects the model, e.g. "eleven_multilingual_v2".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat selects a raw PCM format such as "pcm_24000". Encoded
// formats (mp3, opus) are rejected by New since the sink plays PCM only.
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.format = format }
}

// WithBaseURLs overrides the WebSocket and REST endpoints.
func WithBaseURLs(wsBase, apiBase string) Option {
	return func(p *Provider) {
		p.wsBase = strings.TrimRight(wsBase, "/")
		p.apiBase = strings.TrimRight(apiBase, "/")
	}
}

// Provider implements tts.Provider.
type Provider struct {
	apiKey  string
	model   string
	format  string
	pcm     audio.Format
	wsBase  string
	apiBase string
	client  *http.Client
}

// New returns a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		format:  defaultFormat,
		wsBase:  defaultWSBase,
		apiBase: defaultAPIBase,
		client:  http.DefaultClient,
	}
	for _, o := range opts {
		o(p)
	}
	pcm, err := parseOutputFormat(p.format)
	if err != nil {
		return nil, err
	}
	p.pcm = pcm
	return p, nil
}

// OutputFormat implements tts.Provider.
func (p *Provider) OutputFormat() audio.Format { return p.pcm }

// parseOutputFormat maps "pcm_<rate>" to its layout. ElevenLabs PCM is
// always 16-bit mono.
func parseOutputFormat(name string) (audio.Format, error) {
	rate, ok := strings.CutPrefix(name, "pcm_")
	if !ok {
		return audio.Format{}, fmt.Errorf("elevenlabs: output format %q is not raw PCM", name)
	}
	n, err := strconv.Atoi(rate)
	if err != nil || n <= 0 {
		return audio.Format{}, fmt.Errorf("elevenlabs: invalid output format %q", name)
	}
	return audio.Format{SampleRate: n, Channels: 1}, nil
}

// message is every frame the client sends. The first frame carries the key
// and voice settings; a frame with empty Text ends the input.
type message struct {
	Text                 string         `json:"text"`
	VoiceSettings        *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey             string         `json:"xi_api_key,omitempty"`
	TryTriggerGeneration bool           `json:"try_trigger_generation,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// reply is every frame the server sends.
type reply struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func settingsFor(voice types.VoiceProfile) *voiceSettings {
	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	if voice.SpeedFactor > 0 && voice.SpeedFactor != 1 {
		vs.Speed = voice.SpeedFactor
	}
	return vs
}

// streamURL addresses voice's stream-input endpoint. The language_code hint
// is the base language of voice.Language, so "zh-CN" is sent as "zh".
func (p *Provider) streamURL(voice types.VoiceProfile) string {
	q := url.Values{"model_id": {p.model}, "output_format": {p.format}}
	if tag, err := language.Parse(voice.Language); err == nil && voice.Language != "" {
		base, _ := tag.Base()
		q.Set("language_code", base.String())
	}
	return p.wsBase + "/v1/text-to-speech/" + url.PathEscape(voice.ID) + "/stream-input?" + q.Encode()
}

// SynthesizeStream implements tts.Provider. Text fragments are forwarded as
// they arrive; closing text flushes the remaining audio.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}
	conn, _, err := websocket.Dial(ctx, p.streamURL(voice), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	s := &stream{conn: conn, voice: voice.ID, out: make(chan []byte, 256)}

	// The API rejects an empty first text, hence the single space.
	if err := s.send(ctx, message{Text: " ", VoiceSettings: settingsFor(voice), XiAPIKey: p.apiKey}); err != nil {
		conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, fmt.Errorf("elevenlabs: send handshake: %w", err)
	}

	go func() {
		defer close(s.out)
		defer conn.CloseNow()

		done := make(chan struct{})
		go func() {
			defer close(done)
			s.receive(ctx)
		}()
		s.forward(ctx, text, done)
		<-done
	}()
	return s.out, nil
}

type stream struct {
	conn  *websocket.Conn
	voice string
	out   chan []byte
}

func (s *stream) send(ctx context.Context, m message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, b)
}

// forward pushes fragments until text closes, then sends end of input.
func (s *stream) forward(ctx context.Context, text <-chan string, done <-chan struct{}) {
	for {
		select {
		case frag, ok := <-text:
			if !ok {
				_ = s.send(ctx, message{})
				return
			}
			if frag == "" {
				continue
			}
			// Fragments are joined server-side; each needs a trailing separator.
			if !strings.HasSuffix(frag, " ") {
				frag += " "
			}
			if err := s.send(ctx, message{Text: frag, TryTriggerGeneration: true}); err != nil {
				s.conn.CloseNow()
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			s.conn.CloseNow()
			return
		}
	}
}

// receive emits decoded PCM until the final frame, an error frame or a read
// failure.
func (s *stream) receive(ctx context.Context) {
	for {
		_, b, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		var r reply
		if json.Unmarshal(b, &r) != nil {
			continue
		}
		if r.Error != "" {
			slog.Warn("elevenlabs: synthesis error", "voice", s.voice, "err", r.Error)
			return
		}
		if r.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(r.Audio)
			if err != nil {
				continue
			}
			select {
			case s.out <- pcm:
			case <-ctx.Done():
				return
			}
		}
		if r.IsFinal {
			return
		}
	}
}

type apiVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices implements tts.Provider using GET /v1/voices.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: status %d", resp.StatusCode)
	}
	return decodeVoices(resp.Body)
}

// decodeVoices turns a /v1/voices body into profiles. The "language" label
// becomes the profile language and the category is kept in Metadata.
func decodeVoices(r io.Reader) ([]types.VoiceProfile, error) {
	var body struct {
		Voices []apiVoice `json:"voices"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, fmt.Errorf("elevenlabs: decode voices: %w", err)
	}
	profiles := make([]types.VoiceProfile, 0, len(body.Voices))
	for _, v := range body.Voices {
		meta := maps.Clone(v.Labels)
		if meta == nil {
			meta = make(map[string]string, 1)
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, types.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Language: v.Labels["language"],
			Metadata: meta,
		})
	}
	return profiles, nil
}

var _ tts.Provider = (*Provider)(nil)

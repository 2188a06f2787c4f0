// Package llmtranslate implements translate.Provider on top of any
// llm.Provider. Each session carries a system prompt naming its source and
// target languages and asks the model for the bare translation.
package llmtranslate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MrWong99/lingobridge/pkg/provider/llm"
	"github.com/MrWong99/lingobridge/pkg/provider/translate"
)

const defaultPromptTemplate = "You are a live interpreter. Translate the user's message from %s to %s. " +
	"Reply with the translation only: no quotes, notes, transliteration or explanations. " +
	"Keep names, numbers and the speaker's tone."

// Option configures a Provider.
type Option func(*Provider)

// WithTemperature sets the sampling temperature for translation requests.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = t }
}

// WithMaxTokens caps the completion length of one translation.
func WithMaxTokens(n int) Option {
	return func(p *Provider) { p.maxTokens = n }
}

// WithWarmup makes Prepare issue one short probe translation before handing
// out a session. A failed probe fails provisioning.
func WithWarmup(enabled bool) Option {
	return func(p *Provider) { p.warmup = enabled }
}

// WithPromptTemplate replaces the system prompt. The template receives the
// English names of the source and target languages, in that order.
func WithPromptTemplate(tmpl string) Option {
	return func(p *Provider) {
		if tmpl != "" {
			p.promptTemplate = tmpl
		}
	}
}

// Provider provisions LLM-backed translation sessions.
type Provider struct {
	llm            llm.Provider
	temperature    float64
	maxTokens      int
	warmup         bool
	promptTemplate string

	group singleflight.Group
}

// New returns a Provider that translates with backend.
func New(backend llm.Provider, opts ...Option) (*Provider, error) {
	if backend == nil {
		return nil, errors.New("llmtranslate: llm provider must not be nil")
	}
	p := &Provider{
		llm:            backend,
		temperature:    0.2,
		maxTokens:      1024,
		promptTemplate: defaultPromptTemplate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Prepare implements translate.Provider. Concurrent calls for the same pair
// share one provisioning attempt.
func (p *Provider) Prepare(ctx context.Context, pair translate.Pair) (translate.Session, error) {
	from, to, err := pair.Tags()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", translate.ErrPairUnsupported, err)
	}
	fromBase, _ := from.Base()
	toBase, _ := to.Base()
	if fromBase == toBase {
		return nil, fmt.Errorf("%w: %s", translate.ErrPairUnsupported, pair)
	}

	v, err, shared := p.group.Do(pair.String(), func() (any, error) {
		s := &session{
			provider: p,
			pair:     pair,
			prompt:   fmt.Sprintf(p.promptTemplate, languageName(from), languageName(to)),
		}
		if p.warmup {
			if _, err := s.Translate(ctx, "Hello."); err != nil {
				return nil, fmt.Errorf("llmtranslate: warm-up %s: %w", pair, err)
			}
		}
		slog.Debug("translation session ready", "pair", pair.String(), "warmup", p.warmup)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("translation session provisioning shared", "pair", pair.String())
	}
	return v.(translate.Session), nil
}

// languageName returns the English display name of tag, e.g. "Chinese" or
// "Brazilian Portuguese", falling back to the tag itself.
func languageName(tag language.Tag) string {
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return tag.String()
}

// session is a translate.Session for one ordered pair.
type session struct {
	provider *Provider
	pair     translate.Pair
	prompt   string
}

func (s *session) Pair() translate.Pair { return s.pair }

// Translate implements translate.Session.
func (s *session) Translate(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	resp, err := s.provider.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: s.prompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: text}},
		Temperature:  s.provider.temperature,
		MaxTokens:    s.provider.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("llmtranslate: empty response")
	}
	out := cleanOutput(resp.Content)
	if out == "" {
		return "", errors.New("llmtranslate: model returned no translation")
	}
	return out, nil
}

// cleanOutput strips whitespace and one layer of wrapping quotes some models
// add despite the prompt.
func cleanOutput(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range [][2]string{{`"`, `"`}, {"“", "”"}, {"「", "」"}, {"«", "»"}} {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			return strings.TrimSpace(s[len(q[0]) : len(s)-len(q[1])])
		}
	}
	return s
}

var _ translate.Provider = (*Provider)(nil)

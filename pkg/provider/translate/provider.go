// Package translate defines the Translator abstraction: a provider that
// provisions directional translation sessions per ordered locale pair.
//
// Provisioning is asynchronous and may take a while (a model download, a
// warm-up request), so callers request a session early with Prepare and store
// it once it becomes available. A session for (en, zh) only ever translates
// from English to Chinese; the reverse direction needs its own session.
package translate

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/language"
)

// ErrPairUnsupported is returned by Prepare when the provider cannot translate
// between the requested locales.
var ErrPairUnsupported = errors.New("translate: locale pair not supported")

// Pair is an ordered (input locale, output locale) tuple of BCP-47 tags.
type Pair struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Reverse returns the pair for the opposite direction.
func (p Pair) Reverse() Pair { return Pair{From: p.To, To: p.From} }

// String renders the pair as "from->to".
func (p Pair) String() string { return p.From + "->" + p.To }

// Tags parses both locales. It fails when either tag is malformed.
func (p Pair) Tags() (from, to language.Tag, err error) {
	from, err = language.Parse(p.From)
	if err != nil {
		return language.Und, language.Und, fmt.Errorf("translate: source locale %q: %w", p.From, err)
	}
	to, err = language.Parse(p.To)
	if err != nil {
		return language.Und, language.Und, fmt.Errorf("translate: target locale %q: %w", p.To, err)
	}
	return from, to, nil
}

// Session translates text for exactly one ordered locale pair.
//
// Implementations must be safe for concurrent use.
type Session interface {
	// Translate returns text rendered in the session's target locale.
	Translate(ctx context.Context, text string) (string, error)

	// Pair reports the ordered locale pair this session serves.
	Pair() Pair
}

// Provider provisions translation sessions.
type Provider interface {
	// Prepare blocks until a session for pair is available, ctx is done, or
	// provisioning fails. Concurrent calls for the same pair may share one
	// provisioning attempt.
	Prepare(ctx context.Context, pair Pair) (Session, error)
}

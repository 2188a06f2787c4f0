// Package transcript repairs recognized speech before it is translated.
//
// Recognizers routinely mangle names, product terms and jargon. A
// [Corrector] snaps phrases that sound like one of the configured keywords
// back to the keyword's spelling, so the translator sees "Eldrinax" rather
// than "elder nacks".
package transcript

import (
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/language"

	"github.com/MrWong99/lingobridge/internal/transcript/phonetic"
)

// Correction is one substitution made by a [Corrector].
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64
}

// minWordRunes keeps short function words ("at", "of") from being snapped
// to a keyword on their own.
const minWordRunes = 3

// Corrector rewrites keyword-like phrases in English transcripts.
// It is safe for concurrent use.
type Corrector struct {
	matcher *phonetic.Matcher
	log     *slog.Logger
}

// NewCorrector returns a corrector for keywords. opts tune the underlying
// [phonetic.Matcher].
func NewCorrector(keywords []string, opts ...phonetic.Option) *Corrector {
	return &Corrector{
		matcher: phonetic.New(keywords, opts...),
		log:     slog.Default().With("component", "transcript"),
	}
}

// Correct implements the session's transcript corrector. Text in a locale
// other than English is returned unchanged.
func (c *Corrector) Correct(locale, text string) string {
	if !english(locale) {
		return text
	}
	out, corrections := c.Apply(text)
	for _, cr := range corrections {
		c.log.Debug("transcript corrected", "original", cr.Original, "corrected", cr.Corrected, "confidence", cr.Confidence)
	}
	return out
}

// Apply scans text left to right. At each word the longest phrase that
// matches a keyword is replaced, keeping the punctuation around it.
func (c *Corrector) Apply(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	maxWords := c.matcher.MaxWords()
	if len(tokens) == 0 || maxWords == 0 {
		return text, nil
	}

	var (
		out         []string
		corrections []Correction
	)
	for i := 0; i < len(tokens); {
		n, replaced, cr := c.matchAt(tokens[i:], maxWords)
		if n == 0 {
			out = append(out, tokens[i])
			i++
			continue
		}
		out = append(out, replaced)
		if cr.Original != cr.Corrected {
			corrections = append(corrections, cr)
		}
		i += n
	}
	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(out, " "), corrections
}

// matchAt tries the phrases starting at tokens[0], longest first. It returns
// how many tokens were consumed, or 0.
func (c *Corrector) matchAt(tokens []string, maxWords int) (int, string, Correction) {
	for n := min(maxWords, len(tokens)); n >= 1; n-- {
		window := tokens[:n]
		lead, _, _ := splitPunct(window[0])
		_, _, trail := splitPunct(window[n-1])

		words := make([]string, n)
		for j, tok := range window {
			_, words[j], _ = splitPunct(tok)
		}
		phrase := strings.Join(words, " ")
		if n == 1 && len([]rune(phrase)) < minWordRunes {
			continue
		}
		kw, conf, ok := c.matcher.Match(phrase)
		if !ok {
			continue
		}
		return n, lead + kw + trail, Correction{Original: phrase, Corrected: kw, Confidence: conf}
	}
	return 0, "", Correction{}
}

// splitPunct separates leading and trailing punctuation from tok.
func splitPunct(tok string) (lead, core, trail string) {
	core = strings.TrimLeftFunc(tok, unicode.IsPunct)
	lead = tok[:len(tok)-len(core)]
	trimmed := strings.TrimRightFunc(core, unicode.IsPunct)
	trail = core[len(trimmed):]
	return lead, trimmed, trail
}

func english(locale string) bool {
	tag, err := language.Parse(locale)
	if err != nil {
		return false
	}
	base, _ := tag.Base()
	return base.String() == "en"
}

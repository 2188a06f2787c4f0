// Package phonetic matches misheard phrases against a fixed keyword list
// using Double Metaphone codes combined with Jaro-Winkler similarity.
//
// A phrase is a candidate for a keyword when both have the same number of
// words, or when a single-word keyword was heard as two words ("elder nacks"
// for "Eldrinax") and the two sound alike. Candidates whose concatenated
// Double Metaphone codes agree need to clear the phonetic threshold; all
// others need the stricter fuzzy threshold.
//
// The codes model English pronunciation, so the matcher is only meaningful
// for English transcripts.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a keyword
// that sounds like the phrase. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a keyword that
// does not sound like the phrase. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

type keyword struct {
	text   string
	folded string
	joined string
	words  int
	codes  [2]string
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	keywords          []keyword
	maxWords          int
}

// New prepares keywords for matching. Blank keywords are ignored.
func New(keywords []string, opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	for _, k := range keywords {
		words := strings.Fields(strings.ToLower(k))
		if len(words) == 0 {
			continue
		}
		joined := strings.Join(words, "")
		m.keywords = append(m.keywords, keyword{
			text:   strings.Join(strings.Fields(k), " "),
			folded: strings.Join(words, " "),
			joined: joined,
			words:  len(words),
			codes:  codes(joined),
		})
		// A one-word keyword may be heard as two words.
		m.maxWords = max(m.maxWords, len(words), min(len(words)+1, 2))
	}
	return m
}

// MaxWords is the longest phrase, in words, that can match any keyword.
func (m *Matcher) MaxWords() int { return m.maxWords }

// Match returns the keyword that phrase most likely was meant to be. When
// matched is false, corrected equals phrase and confidence is 0.
func (m *Matcher) Match(phrase string) (corrected string, confidence float64, matched bool) {
	words := strings.Fields(strings.ToLower(phrase))
	if len(words) == 0 || len(m.keywords) == 0 {
		return phrase, 0, false
	}
	folded := strings.Join(words, " ")
	joined := strings.Join(words, "")
	phraseCodes := codes(joined)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, k := range m.keywords {
		split := k.words == 1 && len(words) == 2
		if k.words != len(words) && !split {
			continue
		}
		if !similarLength(joined, k.joined) {
			continue
		}
		sounds := codesAgree(phraseCodes, k.codes)
		if split && !sounds {
			continue
		}
		score := max(
			matchr.JaroWinkler(folded, k.folded, false),
			matchr.JaroWinkler(joined, k.joined, false),
		)
		switch {
		case sounds && score >= m.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = k.text, score, true
			}
		case !sounds && !bestPhonetic && score >= m.fuzzyThreshold:
			if score > bestScore {
				best, bestScore = k.text, score
			}
		}
	}
	if best == "" {
		return phrase, 0, false
	}
	return best, bestScore, true
}

// similarLength rejects phrases that are a keyword plus or minus a whole
// word, such as "grimjaw then" for "Grimjaw".
func similarLength(phrase, keyword string) bool {
	a, b := len([]rune(phrase)), len([]rune(keyword))
	return abs(a-b) <= max(2, b/3)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func codes(s string) [2]string {
	p, alt := matchr.DoubleMetaphone(s)
	return [2]string{p, alt}
}

// codesAgree reports whether any non-empty code of a equals one of b.
func codesAgree(a, b [2]string) bool {
	for _, x := range a {
		if x == "" {
			continue
		}
		if x == b[0] || x == b[1] {
			return true
		}
	}
	return false
}

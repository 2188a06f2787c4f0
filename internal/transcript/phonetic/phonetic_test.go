package phonetic_test

import (
	"testing"

	"github.com/MrWong99/lingobridge/internal/transcript/phonetic"
)

var keywords = []string{"Eldrinax", "Grimjaw", "Tower of Whispers"}

func TestMatcher_Match(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		phrase  string
		want    string
		minConf float64
	}{
		{name: "exact", phrase: "grimjaw", want: "Grimjaw", minConf: 0.9},
		{name: "case insensitive", phrase: "ELDRINAX", want: "Eldrinax", minConf: 0.9},
		{name: "heard as two words", phrase: "elder nacks", want: "Eldrinax", minConf: 0.7},
		{name: "multi-word keyword", phrase: "tower of wispers", want: "Tower of Whispers", minConf: 0.85},
	}

	m := phonetic.New(keywords)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, conf, ok := m.Match(tt.phrase)
			if !ok {
				t.Fatalf("Match(%q) matched=false, want true", tt.phrase)
			}
			if got != tt.want {
				t.Errorf("Match(%q) = %q, want %q", tt.phrase, got, tt.want)
			}
			if conf < tt.minConf {
				t.Errorf("Match(%q) confidence = %f, want >= %f", tt.phrase, conf, tt.minConf)
			}
		})
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		keywords []string
		phrase   string
	}{
		{name: "unrelated word", keywords: keywords, phrase: "hello"},
		{name: "word count differs", keywords: []string{"Tower of Whispers"}, phrase: "tower"},
		{name: "keyword plus a word", keywords: keywords, phrase: "grimjaw then"},
		{name: "no keywords", keywords: nil, phrase: "eldrinax"},
		{name: "empty phrase", keywords: keywords, phrase: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, conf, ok := phonetic.New(tt.keywords).Match(tt.phrase)
			if ok {
				t.Fatalf("Match(%q) matched %q, want no match", tt.phrase, got)
			}
			if got != tt.phrase || conf != 0 {
				t.Errorf("Match(%q) = (%q, %f), want the phrase unchanged with confidence 0", tt.phrase, got, conf)
			}
		})
	}
}

func TestMatcher_Thresholds(t *testing.T) {
	t.Parallel()

	m := phonetic.New(keywords,
		phonetic.WithPhoneticThreshold(0.99),
		phonetic.WithFuzzyThreshold(0.99),
	)
	if got, _, ok := m.Match("elder nacks"); ok {
		t.Errorf("Match with 0.99 thresholds accepted %q", got)
	}
}

func TestMatcher_MaxWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		keywords []string
		want     int
	}{
		{nil, 0},
		{[]string{"  "}, 0},
		{[]string{"Grimjaw"}, 2},
		{keywords, 3},
	}
	for _, tt := range tests {
		if got := phonetic.New(tt.keywords).MaxWords(); got != tt.want {
			t.Errorf("New(%q).MaxWords() = %d, want %d", tt.keywords, got, tt.want)
		}
	}
}

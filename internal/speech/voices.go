package speech

import (
	"fmt"

	"golang.org/x/text/language"

	"github.com/MrWong99/lingobridge/pkg/provider/tts"
	"github.com/MrWong99/lingobridge/pkg/types"
)

// VoiceBook picks a synthesis voice for a locale. Locales match configured
// voices by language with regional fallback, so a voice registered for
// "en-US" also serves "en-GB".
type VoiceBook struct {
	voices   []types.VoiceProfile
	matcher  language.Matcher
	fallback *types.VoiceProfile
}

// NewVoiceBook builds a book from voices. Each voice's Language must be a
// valid BCP-47 tag. fallback, if non-nil, is used for locales nothing matches.
func NewVoiceBook(voices []types.VoiceProfile, fallback *types.VoiceProfile) (*VoiceBook, error) {
	tags := make([]language.Tag, 0, len(voices))
	for _, v := range voices {
		tag, err := language.Parse(v.Language)
		if err != nil {
			return nil, fmt.Errorf("speech: voice %q: invalid language %q: %w", v.ID, v.Language, err)
		}
		tags = append(tags, tag)
	}
	b := &VoiceBook{voices: voices, fallback: fallback}
	if len(tags) > 0 {
		b.matcher = language.NewMatcher(tags)
	}
	return b, nil
}

// Lookup returns the voice for locale, with Language set to locale.
func (b *VoiceBook) Lookup(locale string) (types.VoiceProfile, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return types.VoiceProfile{}, fmt.Errorf("speech: locale %q: %w", locale, err)
	}
	if b.matcher != nil {
		_, idx, conf := b.matcher.Match(tag)
		if conf != language.No {
			v := b.voices[idx]
			v.Language = locale
			return v, nil
		}
	}
	if b.fallback != nil {
		v := *b.fallback
		v.Language = locale
		return v, nil
	}
	return types.VoiceProfile{}, fmt.Errorf("%w: %s", tts.ErrNoVoice, locale)
}

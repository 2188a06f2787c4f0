package session

import (
	"fmt"
	"slices"

	"golang.org/x/text/language"

	"github.com/MrWong99/lingobridge/pkg/provider/translate"
)

// Direction selects which locale of the [LanguagePair] is spoken.
type Direction int

const (
	// SourceToTarget listens in the source locale and speaks the target locale.
	SourceToTarget Direction = iota

	// TargetToSource listens in the target locale and speaks the source locale.
	TargetToSource
)

// String returns the wire name of the direction.
func (d Direction) String() string {
	switch d {
	case SourceToTarget:
		return "source_to_target"
	case TargetToSource:
		return "target_to_source"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Valid reports whether d is one of the two defined directions.
func (d Direction) Valid() bool {
	return d == SourceToTarget || d == TargetToSource
}

// MarshalText implements [encoding.TextMarshaler].
func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("session: invalid direction %d", int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDirection parses a wire name produced by [Direction.String].
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "source_to_target":
		return SourceToTarget, nil
	case "target_to_source":
		return TargetToSource, nil
	default:
		return 0, fmt.Errorf("session: unknown direction %q", s)
	}
}

// LanguagePair is the configured (source, target) pair of BCP-47 locales.
type LanguagePair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Validate checks that both locales parse and that they differ.
func (p LanguagePair) Validate() error {
	src, err := language.Parse(p.Source)
	if err != nil {
		return fmt.Errorf("%w: source locale %q: %v", ErrUnsupportedPair, p.Source, err)
	}
	tgt, err := language.Parse(p.Target)
	if err != nil {
		return fmt.Errorf("%w: target locale %q: %v", ErrUnsupportedPair, p.Target, err)
	}
	if src == tgt {
		return fmt.Errorf("%w: source and target are both %s", ErrUnsupportedPair, src)
	}
	return nil
}

// InputLocale is the locale the user speaks in direction d.
func (p LanguagePair) InputLocale(d Direction) string {
	if d == TargetToSource {
		return p.Target
	}
	return p.Source
}

// OutputLocale is the locale the translation is rendered in for direction d.
func (p LanguagePair) OutputLocale(d Direction) string {
	if d == TargetToSource {
		return p.Source
	}
	return p.Target
}

// Route returns the ordered translator pair that serves direction d.
func (p LanguagePair) Route(d Direction) translate.Pair {
	return translate.Pair{From: p.InputLocale(d), To: p.OutputLocale(d)}
}

// Phase is the capture lifecycle stage.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCapturing
	PhaseSettling
	PhaseTranslating
)

// String returns the wire name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCapturing:
		return "capturing"
	case PhaseSettling:
		return "settling"
	case PhaseTranslating:
		return "translating"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (p *Phase) UnmarshalText(b []byte) error {
	for _, v := range []Phase{PhaseIdle, PhaseCapturing, PhaseSettling, PhaseTranslating} {
		if v.String() == string(b) {
			*p = v
			return nil
		}
	}
	return fmt.Errorf("session: unknown phase %q", b)
}

// State is an observable snapshot of the controller.
type State struct {
	// ActiveDirection is nil while idle.
	ActiveDirection *Direction `json:"active_direction"`

	Phase Phase `json:"phase"`

	// RecognizedText is the live transcript of the current or last capture.
	RecognizedText string `json:"recognized_text"`

	// PendingTranslationText is the committed text handed to the translator.
	PendingTranslationText string `json:"pending_translation_text"`

	// TranslatedText holds the last translation or an inline failure message.
	TranslatedText string `json:"translated_text"`

	IsTranslating bool `json:"is_translating"`
	IsMuted       bool `json:"is_muted"`

	// ReadySessions lists the routes with a provisioned translator, in the
	// order they became ready.
	ReadySessions []translate.Pair `json:"ready_sessions"`

	// ErrorMessage is the user-facing text of the last error, cleared by the
	// next BeginCapture.
	ErrorMessage string    `json:"error_message,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
}

// Ready reports whether a translator for pair has been provisioned.
func (s State) Ready(pair translate.Pair) bool {
	return slices.Contains(s.ReadySessions, pair)
}

// clone returns a copy that shares no memory with s.
func (s State) clone() State {
	out := s
	if s.ActiveDirection != nil {
		d := *s.ActiveDirection
		out.ActiveDirection = &d
	}
	out.ReadySessions = slices.Clone(s.ReadySessions)
	return out
}

// Field names one observable part of [State].
type Field int

const (
	FieldActiveDirection Field = iota
	FieldPhase
	FieldRecognizedText
	FieldPendingTranslationText
	FieldTranslatedText
	FieldIsTranslating
	FieldIsMuted
	FieldReadySessions
	FieldError
)

var fieldNames = [...]string{
	FieldActiveDirection:        "active_direction",
	FieldPhase:                  "phase",
	FieldRecognizedText:         "recognized_text",
	FieldPendingTranslationText: "pending_translation_text",
	FieldTranslatedText:         "translated_text",
	FieldIsTranslating:          "is_translating",
	FieldIsMuted:                "is_muted",
	FieldReadySessions:          "ready_sessions",
	FieldError:                  "error",
}

// String returns the wire name of the field.
func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// MarshalText implements [encoding.TextMarshaler].
func (f Field) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// Update is published to subscribers whenever a field changes. State is the
// full snapshot taken right after the change.
type Update struct {
	Field Field `json:"field"`
	State State `json:"state"`
}

// Package types defines the shared types used across lingobridge packages.
//
// Providers, the session controller, and the history journal all speak in
// these types. Each package keeps its own domain types; only data that crosses
// package boundaries lives here to avoid circular imports.
package types

import "time"

// Transcript is one speech-to-text result from an STT provider.
//
// Providers emit a sequence of transcripts per recognition stream. Partial
// (IsFinal == false) values are revisions of the segment currently being
// spoken and replace each other; a final value commits the segment. The next
// partial after a final begins a new segment.
type Transcript struct {
	// Text is the transcribed speech content of the current segment.
	Text string

	// IsFinal reports whether the provider has committed this segment.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). Zero if the
	// provider does not report it.
	Confidence float64

	// Words contains per-word detail when the provider supports it.
	Words []WordDetail

	// Timestamp marks when the segment started, relative to stream start.
	Timestamp time.Duration

	// Duration is the length of the segment.
	Duration time.Duration
}

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a vocabulary hint passed to the recognizer, typically for
// proper nouns the user expects to say.
type KeywordBoost struct {
	// Keyword is the text to boost.
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// VoiceProfile describes a TTS voice used to speak translations in one locale.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Language is the BCP-47 tag the voice is intended for. May be empty.
	Language string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default).
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes (gender, accent, ...).
	Metadata map[string]string
}

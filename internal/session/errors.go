package session

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by [Controller] operations. Callers match them
// with [errors.Is]; the returned error usually wraps a provider cause.
var (
	ErrPermissionDenied      = errors.New("session: microphone or speech recognition permission denied")
	ErrRecognizerUnavailable = errors.New("session: speech recognizer unavailable")
	ErrAudioEngine           = errors.New("session: audio engine failure")
	ErrNoSpeechDetected      = errors.New("session: no speech detected")
	ErrRecognition           = errors.New("session: speech recognition failed")
	ErrTranslationNotReady   = errors.New("session: translation session not ready")
	ErrTranslation           = errors.New("session: translation failed")
	ErrSynthesis             = errors.New("session: speech synthesis failed")
	ErrUnsupportedPair       = errors.New("session: unsupported language pair")
	ErrBusy                  = errors.New("session: another operation is in progress")
	ErrClosed                = errors.New("session: controller closed")
)

// ErrorKind classifies the error shown in [State].
type ErrorKind string

const (
	KindNone                  ErrorKind = ""
	KindPermissionDenied      ErrorKind = "permission_denied"
	KindRecognizerUnavailable ErrorKind = "recognizer_unavailable"
	KindAudioEngine           ErrorKind = "audio_engine"
	KindNoSpeech              ErrorKind = "no_speech"
	KindRecognition           ErrorKind = "recognition"
	KindTranslation           ErrorKind = "translation"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrPermissionDenied, KindPermissionDenied},
	{ErrRecognizerUnavailable, KindRecognizerUnavailable},
	{ErrAudioEngine, KindAudioEngine},
	{ErrNoSpeechDetected, KindNoSpeech},
	{ErrRecognition, KindRecognition},
	{ErrTranslation, KindTranslation},
}

// KindOf returns the [ErrorKind] for one of the sentinel errors, or
// [KindNone].
func KindOf(err error) ErrorKind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindNone
}

// Messages holds the user-facing texts placed in [State.ErrorMessage] and
// [State.TranslatedText]. Empty fields fall back to [DefaultMessages].
type Messages struct {
	PermissionDenied      string `yaml:"permission_denied" json:"permission_denied"`
	RecognizerUnavailable string `yaml:"recognizer_unavailable" json:"recognizer_unavailable"`
	AudioEngine           string `yaml:"audio_engine" json:"audio_engine"`
	NoSpeech              string `yaml:"no_speech" json:"no_speech"`
	Recognition           string `yaml:"recognition" json:"recognition"`

	// TranslationFailed prefixes the translator error in the translated-text
	// slot, as in "Translation failed: <cause>".
	TranslationFailed string `yaml:"translation_failed" json:"translation_failed"`
}

// DefaultMessages returns the built-in English texts.
func DefaultMessages() Messages {
	return Messages{
		PermissionDenied:      "Microphone and speech recognition access is required. Grant access and try again.",
		RecognizerUnavailable: "Speech recognition is not available for this language right now.",
		AudioEngine:           "The microphone could not be started.",
		NoSpeech:              "No speech was detected. Please try again.",
		Recognition:           "Speech recognition stopped unexpectedly. Please try again.",
		TranslationFailed:     "Translation failed",
	}
}

// withDefaults fills empty fields from [DefaultMessages].
func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	if m.PermissionDenied == "" {
		m.PermissionDenied = d.PermissionDenied
	}
	if m.RecognizerUnavailable == "" {
		m.RecognizerUnavailable = d.RecognizerUnavailable
	}
	if m.AudioEngine == "" {
		m.AudioEngine = d.AudioEngine
	}
	if m.NoSpeech == "" {
		m.NoSpeech = d.NoSpeech
	}
	if m.Recognition == "" {
		m.Recognition = d.Recognition
	}
	if m.TranslationFailed == "" {
		m.TranslationFailed = d.TranslationFailed
	}
	return m
}

// forKind returns the message shown for kind.
func (m Messages) forKind(kind ErrorKind) string {
	switch kind {
	case KindPermissionDenied:
		return m.PermissionDenied
	case KindRecognizerUnavailable:
		return m.RecognizerUnavailable
	case KindAudioEngine:
		return m.AudioEngine
	case KindNoSpeech:
		return m.NoSpeech
	case KindRecognition:
		return m.Recognition
	default:
		return ""
	}
}

// translationFailed renders the inline translation failure text.
func (m Messages) translationFailed(err error) string {
	return fmt.Sprintf("%s: %v", m.TranslationFailed, err)
}

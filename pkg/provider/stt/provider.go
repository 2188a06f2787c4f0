// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service (e.g. Deepgram) and
// exposes a uniform streaming interface. The central abstraction is
// SessionHandle: once opened, a session accepts raw PCM audio and emits an
// ordered stream of Transcript values in which partials revise the current
// segment and finals commit it.
//
// A recognition stream ends in one of three ways: the caller signals end of
// audio with CloseSend and the provider flushes its last results, the provider
// ends the stream on its own (endpointing or a service error), or the caller
// tears it down with Close. In every case the Transcripts channel is closed and
// Err reports why.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/lingobridge/pkg/types"
)

var (
	// ErrNoSpeech is reported by SessionHandle.Err when the stream ended
	// without the provider recognising any speech.
	ErrNoSpeech = errors.New("stt: no speech detected")

	// ErrLanguageUnsupported is returned by StartStream when the provider has
	// no recognition model for the requested language.
	ErrLanguageUnsupported = errors.New("stt: language not supported")

	// ErrSessionClosed is returned by SendAudio after CloseSend or Close.
	ErrSessionClosed = errors.New("stt: session closed")
)

// StreamConfig describes the audio format and recognition hints for a new STT
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz, typically 16000.
	SampleRate int

	// Channels is the number of interleaved audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g. "en-US").
	Language string

	// Keywords are vocabulary hints that increase recognition probability for
	// uncommon words.
	Keywords []types.KeywordBoost
}

// SessionHandle represents an open STT streaming session.
//
// Callers must call Close when the session is no longer needed, even after the
// Transcripts channel has closed. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw s16le PCM matching the StreamConfig.
	// It returns ErrSessionClosed after CloseSend or Close.
	SendAudio(chunk []byte) error

	// Transcripts returns the ordered stream of partial and final results.
	// The channel is closed when the recognition stream ends.
	Transcripts() <-chan types.Transcript

	// CloseSend signals that no more audio will follow. The provider keeps
	// delivering the results for audio it has already received and then closes
	// the Transcripts channel. Calling CloseSend more than once is safe.
	CloseSend() error

	// Err returns the terminal error of the stream once Transcripts has been
	// closed: nil for a normal end, ErrNoSpeech if nothing was recognised, or
	// the provider failure. Before the channel closes it returns nil.
	Err() error

	// Close terminates the session immediately and releases all resources.
	// Pending results are discarded. Calling Close more than once is safe.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// handle is ready to accept audio immediately. The caller owns the handle
	// and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}

// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig. Every successful StartStream creates a new Session that the
// test drives with Emit and Finish while inspecting the audio it received.
//
// Example:
//
//	p := &mock.Provider{}
//	handle, _ := p.StartStream(ctx, cfg)
//	p.Last().Emit(types.Transcript{Text: "hello", IsFinal: true})
//	p.Last().Finish(nil)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lingobridge/pkg/provider/stt"
	"github.com/MrWong99/lingobridge/pkg/types"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// OnStart, if set, is called with each new session before StartStream
	// returns. Use it to pre-arrange per-session behaviour.
	OnStart func(*Session)

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall

	// Sessions holds every session handed out, oldest first.
	Sessions []*Session
}

// StartStream records the call and returns a fresh Session or StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		err := p.StartStreamErr
		p.mu.Unlock()
		return nil, err
	}
	s := NewSession()
	p.Sessions = append(p.Sessions, s)
	onStart := p.OnStart
	p.mu.Unlock()

	if onStart != nil {
		onStart(s)
	}
	return s, nil
}

// Last returns the most recently started session, or nil.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Sessions) == 0 {
		return nil
	}
	return p.Sessions[len(p.Sessions)-1]
}

// Calls returns a copy of the recorded StartStream calls. Thread-safe.
func (p *Provider) Calls() []StartStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StartStreamCall, len(p.StartStreamCalls))
	copy(out, p.StartStreamCalls)
	return out
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle.
type Session struct {
	mu sync.Mutex

	ch       chan types.Transcript
	finished bool
	err      error

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// FinishOnCloseSend, if true, makes CloseSend end the stream cleanly the
	// way a real provider does after flushing its last results.
	FinishOnCloseSend bool

	// --- Call records ---

	// Audio holds a copy of every chunk passed to SendAudio, in order.
	Audio [][]byte

	// CloseSendCount is the number of times CloseSend was called.
	CloseSendCount int

	// CloseCount is the number of times Close was called.
	CloseCount int
}

// NewSession returns a session with a buffered transcript channel.
func NewSession() *Session {
	return &Session{ch: make(chan types.Transcript, 64)}
}

// Emit delivers t to the consumer. It reports false once the stream has
// finished.
func (s *Session) Emit(t types.Transcript) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	s.ch <- t
	return true
}

// Finish ends the stream with err as its terminal error.
func (s *Session) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked(err)
}

func (s *Session) finishLocked(err error) {
	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	close(s.ch)
}

// SendAudio records the chunk and returns SendAudioErr, or
// stt.ErrSessionClosed after CloseSend or Close.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CloseSendCount > 0 || s.CloseCount > 0 {
		return stt.ErrSessionClosed
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.Audio = append(s.Audio, cp)
	return s.SendAudioErr
}

// Transcripts implements stt.SessionHandle.
func (s *Session) Transcripts() <-chan types.Transcript { return s.ch }

// CloseSend records the call.
func (s *Session) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseSendCount++
	if s.FinishOnCloseSend {
		s.finishLocked(nil)
	}
	return nil
}

// Err implements stt.SessionHandle.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close records the call and ends the stream if it is still open.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	s.finishLocked(s.err)
	return nil
}

// AudioChunks returns the number of chunks received. Thread-safe.
func (s *Session) AudioChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Audio)
}

// Closed reports whether Close has been called. Thread-safe.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCount > 0
}

// CloseSends returns the number of CloseSend calls. Thread-safe.
func (s *Session) CloseSends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseSendCount
}

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)

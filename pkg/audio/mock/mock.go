// Package mock provides in-memory implementations of [audio.Source],
// [audio.Stream], and [audio.Sink] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{}
//	stream, _ := src.Start(ctx, audio.Format{SampleRate: 16000, Channels: 1})
//	src.Last().Push(audio.Frame{Data: pcm})
//	_ = stream.Stop()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lingobridge/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// StartCall records a single invocation of [Source.Start].
type StartCall struct {
	Format audio.Format
}

// Source is a mock implementation of [audio.Source]. Every successful Start
// creates a new [Stream] that the test can drive through [Source.Last].
type Source struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start and no stream is created.
	StartErr error

	// StartCalls records every call to Start in order.
	StartCalls []StartCall

	// Streams holds every stream handed out, oldest first.
	Streams []*Stream

	// Overlaps counts Start calls made while an earlier stream was still
	// running. A correct caller keeps this at zero.
	Overlaps int
}

// Start implements [audio.Source].
func (s *Source) Start(_ context.Context, format audio.Format) (audio.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls = append(s.StartCalls, StartCall{Format: format})
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	for _, st := range s.Streams {
		if st.Running() {
			s.Overlaps++
		}
	}
	st := NewStream()
	s.Streams = append(s.Streams, st)
	return st, nil
}

// Last returns the most recently started stream, or nil.
func (s *Source) Last() *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Streams) == 0 {
		return nil
	}
	return s.Streams[len(s.Streams)-1]
}

// StartCount returns the number of Start calls. Thread-safe.
func (s *Source) StartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.StartCalls)
}

// Running returns the number of streams that have not been stopped.
func (s *Source) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.Streams {
		if st.Running() {
			n++
		}
	}
	return n
}

var _ audio.Source = (*Source)(nil)

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [audio.Stream].
type Stream struct {
	mu       sync.Mutex
	frames   chan audio.Frame
	closed   bool
	err      error
	stopErr  error
	stopped  int
	pushDrop int
}

// NewStream returns a running stream with a buffered frame channel.
func NewStream() *Stream {
	return &Stream{frames: make(chan audio.Frame, 64)}
}

// Frames implements [audio.Stream].
func (s *Stream) Frames() <-chan audio.Frame { return s.frames }

// Push delivers f to the consumer. It reports false if the stream has already
// been stopped or the buffer is full.
func (s *Stream) Push(f audio.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.frames <- f:
		return true
	default:
		s.pushDrop++
		return false
	}
}

// Fail simulates the device disappearing: the frame channel is closed and
// Err reports err.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.frames)
}

// SetStopErr makes every Stop call return err.
func (s *Stream) SetStopErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopErr = err
}

// Stop implements [audio.Stream].
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return s.stopErr
}

// Err implements [audio.Stream].
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// StopCount returns the number of Stop calls.
func (s *Stream) StopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Running reports whether neither Stop nor Fail has been called.
func (s *Stream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

var _ audio.Stream = (*Stream)(nil)

// ─── Sink ─────────────────────────────────────────────────────────────────────

// PlayCall records a single invocation of [Sink.Play].
type PlayCall struct {
	Format audio.Format

	// Chunks holds every chunk read from the audio channel.
	Chunks [][]byte

	// Cancelled is true if Play returned because ctx was done.
	Cancelled bool
}

// Sink is a mock implementation of [audio.Sink].
type Sink struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by Play after the audio is consumed.
	PlayErr error

	// Hold, if true, makes Play keep the device busy after the audio channel
	// closes until ctx is cancelled. Use it to test preemption.
	Hold bool

	// PlayCalls records every call to Play in order.
	PlayCalls []PlayCall
}

// Play implements [audio.Sink].
func (s *Sink) Play(ctx context.Context, ch <-chan []byte, format audio.Format) error {
	s.mu.Lock()
	idx := len(s.PlayCalls)
	s.PlayCalls = append(s.PlayCalls, PlayCall{Format: format})
	hold := s.Hold
	playErr := s.PlayErr
	s.mu.Unlock()

	record := func(chunk []byte) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.PlayCalls[idx].Chunks = append(s.PlayCalls[idx].Chunks, chunk)
	}
	cancelled := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.PlayCalls[idx].Cancelled = true
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return cancelled()
		case chunk, ok := <-ch:
			if !ok {
				if hold {
					<-ctx.Done()
					return cancelled()
				}
				return playErr
			}
			record(chunk)
		}
	}
}

// Calls returns a copy of the recorded calls.
func (s *Sink) Calls() []PlayCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PlayCall, len(s.PlayCalls))
	copy(out, s.PlayCalls)
	return out
}

var _ audio.Sink = (*Sink)(nil)

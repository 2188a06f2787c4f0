// Package mock provides test doubles for the translate package interfaces.
//
// Provider.Prepare blocks until the test supplies a session for the requested
// pair with Provide, which mirrors a backend that finishes provisioning some
// time after it was asked.
//
// Example:
//
//	p := mock.NewProvider()
//	go p.Provide(translate.Pair{From: "en", To: "zh"}, mock.NewSession(pair, "你好"))
//	sess, _ := p.Prepare(ctx, pair)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lingobridge/pkg/provider/translate"
)

// Provider is a mock implementation of translate.Provider.
type Provider struct {
	mu      sync.Mutex
	ready   map[translate.Pair]translate.Session
	waiting map[translate.Pair][]chan translate.Session
	calls   []translate.Pair

	// PrepareErr, if non-nil, is returned by every Prepare call.
	PrepareErr error
}

// NewProvider returns a Provider with no sessions available.
func NewProvider() *Provider {
	return &Provider{
		ready:   make(map[translate.Pair]translate.Session),
		waiting: make(map[translate.Pair][]chan translate.Session),
	}
}

// Prepare records the call and waits for Provide(pair, ...) or ctx.
func (p *Provider) Prepare(ctx context.Context, pair translate.Pair) (translate.Session, error) {
	p.mu.Lock()
	p.calls = append(p.calls, pair)
	if p.PrepareErr != nil {
		err := p.PrepareErr
		p.mu.Unlock()
		return nil, err
	}
	if s, ok := p.ready[pair]; ok {
		p.mu.Unlock()
		return s, nil
	}
	ch := make(chan translate.Session, 1)
	p.waiting[pair] = append(p.waiting[pair], ch)
	p.mu.Unlock()

	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Provide makes s available for pair and releases every pending Prepare.
func (p *Provider) Provide(pair translate.Pair, s translate.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready[pair] = s
	for _, ch := range p.waiting[pair] {
		ch <- s
	}
	delete(p.waiting, pair)
}

// SetPrepareErr changes PrepareErr under the lock.
func (p *Provider) SetPrepareErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PrepareErr = err
}

// PrepareCount returns how often Prepare was called for pair.
func (p *Provider) PrepareCount(pair translate.Pair) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == pair {
			n++
		}
	}
	return n
}

// Pending returns the number of Prepare calls blocked on pair.
func (p *Provider) Pending(pair translate.Pair) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiting[pair])
}

var _ translate.Provider = (*Provider)(nil)

// Session is a mock implementation of translate.Session.
type Session struct {
	pair translate.Pair

	mu sync.Mutex

	// Result is returned by Translate when Err is nil.
	Result string

	// Err, if non-nil, is returned by Translate.
	Err error

	// Block, if non-nil, is waited on before Translate returns.
	Block chan struct{}

	// Calls records the text of every Translate call.
	Calls []string
}

// NewSession returns a session for pair that answers every request with result.
func NewSession(pair translate.Pair, result string) *Session {
	return &Session{pair: pair, Result: result}
}

// Pair implements translate.Session.
func (s *Session) Pair() translate.Pair { return s.pair }

// Translate records text and returns Result, Err.
func (s *Session) Translate(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, text)
	block := s.Block
	result, err := s.Result, s.Err
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return result, err
}

// CallCount returns the number of Translate calls. Thread-safe.
func (s *Session) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// LastCall returns the text of the most recent Translate call, or "".
func (s *Session) LastCall() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Calls) == 0 {
		return ""
	}
	return s.Calls[len(s.Calls)-1]
}

var _ translate.Session = (*Session)(nil)

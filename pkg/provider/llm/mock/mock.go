// Package mock provides a scripted llm.Provider for tests.
//
//	backend := &mock.Provider{
//		CompleteResponse: &llm.CompletionResponse{Content: "你好"},
//	}
//	tr, _ := llmtranslate.New(backend)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lingobridge/pkg/provider/llm"
)

// Call is one recorded request.
type Call struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider replays fixed results. Set the exported fields before use; the
// call records may be read once the code under test is done.
type Provider struct {
	// CompleteFunc takes precedence over CompleteResponse and CompleteErr.
	CompleteFunc     func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	// StreamChunks are sent in order unless StreamErr is set.
	StreamChunks []llm.Chunk
	StreamErr    error

	CompleteCalls []Call
	StreamCalls   []Call

	mu sync.Mutex
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, Call{Ctx: ctx, Req: req})
	fn, resp, err := p.CompleteFunc, p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return resp, err
}

func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, Call{Ctx: ctx, Req: req})
	chunks, err := append([]llm.Chunk(nil), p.StreamChunks...), p.StreamErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	ch := make(chan llm.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

// CompleteCount is safe to call while requests are in flight.
func (p *Provider) CompleteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

var _ llm.Provider = (*Provider)(nil)

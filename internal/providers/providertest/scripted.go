// Package providertest provides a scripted providers.Provider for tests.
package providertest

import (
	"context"
	"errors"
	"sync"

	"github.com/nextlevelbuilder/roomclaw/internal/providers"
)

// Turn is one scripted response. Chunks are streamed in order before the
// response returns. A non-nil Err fails the call after the chunks.
type Turn struct {
	Chunks    []string
	ToolCalls []providers.ToolCall
	Err       error
	// Gate, if set, is waited on before the call returns.
	Gate <-chan struct{}
}

// Provider replays Turns for ChatStream and Replies for Chat.
type Provider struct {
	mu       sync.Mutex
	turns    []Turn
	replies  []string
	chatErr  error
	Requests []providers.ChatRequest
}

func New(turns ...Turn) *Provider {
	return &Provider{turns: turns}
}

// WithReplies queues Chat replies (used by the router).
func (p *Provider) WithReplies(replies ...string) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, replies...)
	return p
}

// WithChatError makes every Chat call fail.
func (p *Provider) WithChatError(err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chatErr = err
	return p
}

func (p *Provider) Name() string         { return "scripted" }
func (p *Provider) DefaultModel() string { return "scripted-model" }

func (p *Provider) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.chatErr != nil {
		return nil, p.chatErr
	}
	if len(p.replies) == 0 {
		return &providers.ChatResponse{Content: `{"agentId":null}`, FinishReason: "stop"}, nil
	}
	reply := p.replies[0]
	p.replies = p.replies[1:]
	return &providers.ChatResponse{Content: reply, FinishReason: "stop"}, nil
}

func (p *Provider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	if len(p.turns) == 0 {
		p.mu.Unlock()
		return nil, errors.New("providertest: no scripted turn left")
	}
	turn := p.turns[0]
	p.turns = p.turns[1:]
	p.mu.Unlock()

	resp := &providers.ChatResponse{FinishReason: "stop"}
	for _, c := range turn.Chunks {
		resp.Content += c
		if onChunk != nil {
			onChunk(providers.StreamChunk{Content: c})
		}
	}
	if turn.Gate != nil {
		select {
		case <-turn.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if turn.Err != nil {
		return nil, turn.Err
	}
	if len(turn.ToolCalls) > 0 {
		resp.ToolCalls = turn.ToolCalls
		resp.FinishReason = "tool_calls"
	}
	if onChunk != nil {
		onChunk(providers.StreamChunk{Done: true})
	}
	return resp, nil
}

// Calls returns the number of requests seen so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

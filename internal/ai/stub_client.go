package ai

import (
	"context"
	"sync"
)

// StubClient заглушка, которая не делает реальных запросов
type StubClient struct {
	Reply string

	mu    sync.Mutex
	calls []Request
}

func NewStubClient() *StubClient { return &StubClient{Reply: "запрос получен"} }

func (c *StubClient) Complete(_ context.Context, systemPrompt string, history []Message, identity uint64, params Params) string {
	c.mu.Lock()
	c.calls = append(c.calls, Request{SystemPrompt: systemPrompt, History: history, Identity: identity, Params: params})
	c.mu.Unlock()
	return c.Reply
}

// Calls возвращает копию всех принятых запросов.
func (c *StubClient) Calls() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, len(c.calls))
	copy(out, c.calls)
	return out
}

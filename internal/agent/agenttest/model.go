// Package agenttest provides a scripted agent.Model for tests.
package agenttest

import (
	"context"
	"sync"

	"github.com/edibez/binanceagent/internal/agent"
	"github.com/edibez/binanceagent/internal/conversation"
)

// Model replays a script. Each Generate call consumes the next reply; once
// the script is exhausted the last reply repeats.
type Model struct {
	ModelName string
	Replies   []agent.Reply
	Err       error
	// Respond overrides Replies when set.
	Respond func(req *agent.Request) (*agent.Reply, error)

	mu       sync.Mutex
	requests []agent.Request
}

// Answer returns a model that always replies with text.
func Answer(text string) *Model {
	return &Model{Replies: []agent.Reply{{Text: text}}}
}

// Script returns a model replaying replies in order.
func Script(replies ...agent.Reply) *Model {
	return &Model{Replies: replies}
}

func (m *Model) Name() string {
	if m.ModelName == "" {
		return "scripted"
	}
	return m.ModelName
}

func (m *Model) Generate(_ context.Context, req *agent.Request) (*agent.Reply, error) {
	m.mu.Lock()
	cp := *req
	cp.History = append([]conversation.Turn(nil), req.History...)
	cp.Scratchpad = append([]agent.Step(nil), req.Scratchpad...)
	m.requests = append(m.requests, cp)
	n := len(m.requests)
	m.mu.Unlock()

	if m.Respond != nil {
		return m.Respond(req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Replies) == 0 {
		return &agent.Reply{}, nil
	}
	idx := n - 1
	if idx >= len(m.Replies) {
		idx = len(m.Replies) - 1
	}
	r := m.Replies[idx]
	return &r, nil
}

// Calls reports how many times Generate ran.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every request seen so far.
func (m *Model) Requests() []agent.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]agent.Request(nil), m.requests...)
}

package agent

import (
	"context"
	"encoding/json"

	"github.com/edibez/binanceagent/internal/conversation"
	"github.com/edibez/binanceagent/internal/tools"
)

// Model is one reasoning step of an LLM provider: given the prompt, prior
// turns, the current input and the scratchpad so far, it returns either a
// final answer or a set of tool calls.
type Model interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Reply, error)
}

// Request is everything a model sees for one step.
type Request struct {
	SystemPrompt string
	History      []conversation.Turn
	Input        string
	Scratchpad   []Step
	Tools        []tools.Spec
}

// Reply is a model's answer for one step. A reply with ToolCalls asks the
// loop to run them before calling the model again.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
}

// ToolCall is a model's request to invoke a named tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Observation is the result of one tool call as fed back to the model.
type Observation struct {
	Call    ToolCall `json:"call"`
	Result  string   `json:"result"`
	IsError bool     `json:"is_error,omitempty"`
}

// Step is one model turn that requested tools, with their observations in call order.
type Step struct {
	Thought      string        `json:"thought,omitempty"`
	Observations []Observation `json:"observations"`
}

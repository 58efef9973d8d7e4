// Package anthropic adapts Claude models to agent.Model.
package anthropic

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/edibez/binanceagent/internal/agent"
	"github.com/edibez/binanceagent/internal/conversation"
	"github.com/edibez/binanceagent/internal/tools"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 2048
)

type messageService interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Model calls the Anthropic messages API.
type Model struct {
	messages    messageService
	name        string
	temperature float64
	maxTokens   int64
}

// New creates a model backed by the Anthropic API.
func New(apiKey, modelName string, temperature float64, maxTokens int, opts ...option.RequestOption) (*Model, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is empty")
	}
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return newModel(&client.Messages, modelName, temperature, maxTokens), nil
}

func newModel(svc messageService, modelName string, temperature float64, maxTokens int) *Model {
	if modelName == "" {
		modelName = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Model{
		messages:    svc,
		name:        modelName,
		temperature: temperature,
		maxTokens:   int64(maxTokens),
	}
}

func (m *Model) Name() string { return m.name }

func (m *Model) Close() error { return nil }

func (m *Model) Generate(ctx context.Context, req *agent.Request) (*agent.Reply, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(m.name),
		MaxTokens:   m.maxTokens,
		Messages:    buildMessages(req),
		Tools:       toolParams(req.Tools),
		Temperature: anthropic.Float(m.temperature),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	log.Debug().Str("model", m.name).Int("messages", len(params.Messages)).Msg("anthropic: generate")
	msg, err := m.messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic generate")
	}
	return parseMessage(msg), nil
}

func buildMessages(req *agent.Request) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, len(req.History)+1+2*len(req.Scratchpad))
	for _, t := range req.History {
		if t.Text == "" {
			continue
		}
		if t.Role == conversation.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Text)))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Text)))
		}
	}
	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Input)))

	for _, step := range req.Scratchpad {
		var uses []anthropic.ContentBlockParamUnion
		if step.Thought != "" {
			uses = append(uses, anthropic.NewTextBlock(step.Thought))
		}
		results := make([]anthropic.ContentBlockParamUnion, 0, len(step.Observations))
		for _, o := range step.Observations {
			uses = append(uses, anthropic.NewToolUseBlock(o.Call.ID, inputOf(o.Call.Arguments), o.Call.Name))
			results = append(results, anthropic.NewToolResultBlock(o.Call.ID, o.Result, o.IsError))
		}
		msgs = append(msgs, anthropic.NewAssistantMessage(uses...), anthropic.NewUserMessage(results...))
	}
	return msgs
}

func inputOf(raw json.RawMessage) map[string]any {
	in := map[string]any{}
	if len(raw) == 0 {
		return in
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return map[string]any{"raw": string(raw)}
	}
	return in
}

func toolParams(specs []tools.Spec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, s := range specs {
		props, required := schemaParts(s)
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        s.Name,
				Description: anthropic.String(s.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   required,
				},
			},
		})
	}
	return out
}

func schemaParts(s tools.Spec) (map[string]any, []string) {
	raw, err := tools.MarshalSchema(s.Parameters)
	if err != nil {
		log.Warn().Err(err).Str("tool", s.Name).Msg("anthropic: cannot render tool schema")
		return map[string]any{}, nil
	}
	var parsed struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Properties == nil {
		return map[string]any{}, parsed.Required
	}
	return parsed.Properties, parsed.Required
}

func parseMessage(msg *anthropic.Message) *agent.Reply {
	reply := &agent.Reply{}
	if msg == nil {
		return reply
	}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			reply.Text += b.Text
		case anthropic.ToolUseBlock:
			args, err := json.Marshal(b.Input)
			if err != nil || len(args) == 0 || string(args) == "null" {
				args = []byte(`{}`)
			}
			reply.ToolCalls = append(reply.ToolCalls, agent.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: json.RawMessage(args),
			})
		}
	}
	return reply
}

// Package gemini adapts Google's Gemini models to agent.Model.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/edibez/binanceagent/internal/agent"
	"github.com/edibez/binanceagent/internal/conversation"
	"github.com/edibez/binanceagent/internal/tools"
	genai "github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-2.0-flash"

// Model calls the Gemini API through a chat session per step.
type Model struct {
	client      *genai.Client
	name        string
	temperature float32
	maxTokens   int32
}

// New creates a client for modelName.
func New(ctx context.Context, apiKey, modelName string, temperature float64, maxTokens int) (*Model, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	if maxTokens < 0 || maxTokens > math.MaxInt32 {
		maxTokens = 0
	}
	return &Model{
		client:      client,
		name:        modelName,
		temperature: float32(temperature),
		maxTokens:   int32(maxTokens),
	}, nil
}

func (m *Model) Name() string { return m.name }

func (m *Model) Close() error { return m.client.Close() }

func (m *Model) Generate(ctx context.Context, req *agent.Request) (*agent.Reply, error) {
	gm := m.client.GenerativeModel(m.name)
	gm.SetTemperature(m.temperature)
	if m.maxTokens > 0 {
		gm.SetMaxOutputTokens(m.maxTokens)
	}
	if req.SystemPrompt != "" {
		gm.SystemInstruction = genai.NewUserContent(genai.Text(req.SystemPrompt))
	}
	if decls := functionDeclarations(req.Tools); len(decls) > 0 {
		gm.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	contents := buildContents(req)
	last := contents[len(contents)-1]

	cs := gm.StartChat()
	cs.History = contents[:len(contents)-1]

	log.Debug().Str("model", m.name).Int("contents", len(contents)).Msg("gemini: generate")
	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, errors.Wrap(err, "gemini generate")
	}
	return parseResponse(resp)
}

// buildContents lays out history, the new input and the scratchpad as
// alternating user/model contents. The last element is always a user content.
func buildContents(req *agent.Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1+2*len(req.Scratchpad))
	for _, t := range req.History {
		if t.Text == "" {
			continue
		}
		role := "user"
		if t.Role == conversation.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.Text)}})
	}
	contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(req.Input)}})

	for _, step := range req.Scratchpad {
		var calls []genai.Part
		if step.Thought != "" {
			calls = append(calls, genai.Text(step.Thought))
		}
		responses := make([]genai.Part, 0, len(step.Observations))
		for _, o := range step.Observations {
			calls = append(calls, genai.FunctionCall{Name: o.Call.Name, Args: argsMap(o.Call.Arguments)})
			responses = append(responses, genai.FunctionResponse{
				Name:     o.Call.Name,
				Response: map[string]any{"result": o.Result},
			})
		}
		contents = append(contents,
			&genai.Content{Role: "model", Parts: calls},
			&genai.Content{Role: "user", Parts: responses},
		)
	}
	return contents
}

func argsMap(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) == 0 {
		return args
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{"raw": string(raw)}
	}
	return args
}

func parseResponse(resp *genai.GenerateContentResponse) (*agent.Reply, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil {
			return nil, errors.Errorf("gemini returned no candidates (block reason %v)", resp.PromptFeedback.BlockReason)
		}
		return nil, errors.New("gemini returned no candidates")
	}

	reply := &agent.Reply{}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return reply, nil
	}
	for _, p := range cand.Content.Parts {
		switch v := p.(type) {
		case genai.Text:
			reply.Text += string(v)
		case genai.FunctionCall:
			args := v.Args
			if args == nil {
				args = map[string]any{}
			}
			raw, err := json.Marshal(args)
			if err != nil {
				return nil, errors.Wrapf(err, "encode arguments for %s", v.Name)
			}
			reply.ToolCalls = append(reply.ToolCalls, agent.ToolCall{
				ID:        uuid.NewString(),
				Name:      v.Name,
				Arguments: raw,
			})
		}
	}
	return reply, nil
}

func functionDeclarations(specs []tools.Spec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, s := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  convertSchema(s.Parameters),
		})
	}
	return decls
}

// convertSchema maps the subset of JSON schema the tools use onto genai.Schema.
func convertSchema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	gs := &genai.Schema{Description: s.Description}
	switch s.Type {
	case "string":
		gs.Type = genai.TypeString
		for _, e := range s.Enum {
			gs.Enum = append(gs.Enum, fmt.Sprint(e))
		}
		if len(gs.Enum) > 0 {
			gs.Format = "enum"
		}
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	case "array":
		gs.Type = genai.TypeArray
		gs.Items = convertSchema(s.Items)
	default:
		gs.Type = genai.TypeObject
		if s.Properties != nil {
			gs.Properties = map[string]*genai.Schema{}
			for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
				gs.Properties[pair.Key] = convertSchema(pair.Value)
			}
		}
		gs.Required = append(gs.Required, s.Required...)
	}
	return gs
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// ErrUnknownTool is returned when a call names a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Tool is a named, schema-described callable the agent may invoke.
// Call never fails: problems are reported in the returned text.
type Tool interface {
	Name() string
	Description() string
	Schema() *jsonschema.Schema
	Call(ctx context.Context, args json.RawMessage) string
}

// Spec is the provider-neutral description of a tool handed to a model.
type Spec struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// ArgumentError reports arguments that are not valid JSON or do not match
// the tool's input schema.
type ArgumentError struct {
	Tool     string
	Problems []string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Problems, "; "))
}

type entry struct {
	tool   Tool
	schema *gojsonschema.Schema
}

// Registry holds tools by name along with their compiled argument schemas.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

// NewRegistry creates a registry holding the given tools
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]entry)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register compiles the tool's schema and adds it. Names must be unique.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return errors.New("tool name is empty")
	}

	raw, err := MarshalSchema(t.Schema())
	if err != nil {
		return errors.Wrapf(err, "marshal schema for %s", name)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.Wrapf(err, "compile schema for %s", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return errors.Errorf("tool %s already registered", name)
	}
	r.tools[name] = entry{tool: t, schema: compiled}
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.tool, ok
}

// List returns all tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Specs returns the descriptions of all tools sorted by name.
func (r *Registry) Specs() []Spec {
	list := r.List()
	specs := make([]Spec, 0, len(list))
	for _, t := range list {
		specs = append(specs, Spec{Name: t.Name(), Description: t.Description(), Parameters: t.Schema()})
	}
	return specs
}

// Validate checks args against the named tool's schema.
func (r *Registry) Validate(name string, args json.RawMessage) error {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return errors.Wrap(ErrUnknownTool, name)
	}
	return validate(name, e.schema, args)
}

// Execute validates args and invokes the tool. An invalid call never reaches the tool.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (result string, err error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", errors.Wrap(ErrUnknownTool, name)
	}
	if err := validate(name, e.schema, args); err != nil {
		return "", err
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("tool", name).Interface("panic", p).Msg("tool panicked")
			err = errors.Errorf("tool %s panicked: %v", name, p)
		}
	}()

	log.Debug().Str("tool", name).RawJSON("args", normalizeArgs(args)).Msg("executing tool")
	return e.tool.Call(ctx, normalizeArgs(args)), nil
}

// MarshalSchema renders a reflected schema without the $schema and $id
// keywords, which neither model providers nor draft-7 validators need.
func MarshalSchema(s *jsonschema.Schema) ([]byte, error) {
	if s == nil {
		return []byte(`{"type":"object"}`), nil
	}
	cp := *s
	cp.Version = ""
	cp.ID = ""
	return json.Marshal(&cp)
}

func validate(name string, schema *gojsonschema.Schema, args json.RawMessage) error {
	args = normalizeArgs(args)
	if !json.Valid(args) {
		return &ArgumentError{Tool: name, Problems: []string{"arguments are not valid JSON"}}
	}

	res, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return &ArgumentError{Tool: name, Problems: []string{err.Error()}}
	}
	if res.Valid() {
		return nil
	}

	problems := make([]string, 0, len(res.Errors()))
	for _, desc := range res.Errors() {
		problems = append(problems, desc.String())
	}
	return &ArgumentError{Tool: name, Problems: problems}
}

func normalizeArgs(args json.RawMessage) json.RawMessage {
	if len(strings.TrimSpace(string(args))) == 0 {
		return json.RawMessage(`{}`)
	}
	return args
}

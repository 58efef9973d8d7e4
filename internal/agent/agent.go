// Package agent runs the bounded reason-act loop: the model either answers or
// asks for tools, tool results are fed back, and the loop stops after a fixed
// number of model calls.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/edibez/binanceagent/internal/conversation"
	"github.com/edibez/binanceagent/internal/tools"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxIterations    = 5
	DefaultMaxParallelTools = 3

	// FallbackOutput is returned when the model finishes without any text.
	FallbackOutput = "I couldn't process your request."
)

// ErrIterationLimit is returned when the model still wants tools on its last allowed call.
var ErrIterationLimit = errors.New("agent stopped due to iteration limit")

// State of one Chat invocation.
type State int

const (
	StateAwaitingModel State = iota
	StateModelResponded
	StateExecutingTools
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateModelResponded:
		return "model_responded"
	case StateExecutingTools:
		return "executing_tools"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result of one Chat invocation. Chat reports every failure here rather than
// returning an error.
type Result struct {
	Output     string `json:"output"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Iterations int    `json:"iterations"`
	ToolCalls  int    `json:"tool_calls"`
	Steps      []Step `json:"-"`
}

// Agent binds a model, a tool registry and a system prompt.
type Agent struct {
	model         Model
	registry      *tools.Registry
	systemPrompt  string
	maxIterations int
	maxParallel   int
}

type Option func(*Agent)

func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) { a.systemPrompt = prompt }
}

func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

func WithMaxParallelTools(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxParallel = n
		}
	}
}

func New(model Model, registry *tools.Registry, opts ...Option) *Agent {
	a := &Agent{
		model:         model,
		registry:      registry,
		systemPrompt:  DefaultSystemPrompt,
		maxIterations: DefaultMaxIterations,
		maxParallel:   DefaultMaxParallelTools,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// ModelName is the name of the underlying model.
func (a *Agent) ModelName() string {
	return a.model.Name()
}

// Tools returns the descriptions of the tools available to the model.
func (a *Agent) Tools() []tools.Spec {
	return a.registry.Specs()
}

// Chat answers message given the prior turns of the conversation. It never panics.
func (a *Agent) Chat(ctx context.Context, message string, history []conversation.Turn) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("agent panicked")
			res = failed(errors.Errorf("panic: %v", p), res.Iterations, res.ToolCalls, res.Steps)
		}
	}()

	specs := a.registry.Specs()
	state := StateAwaitingModel
	var (
		reply      *Reply
		scratchpad []Step
		calls      int
		toolCalls  int
		lastErr    error
	)

	for {
		switch state {
		case StateAwaitingModel:
			if err := ctx.Err(); err != nil {
				lastErr = errors.Wrap(err, "request cancelled")
				state = StateFailed
				continue
			}
			calls++
			log.Debug().Int("iteration", calls).Int("scratchpad", len(scratchpad)).Msg("agent: model step")

			var err error
			reply, err = a.model.Generate(ctx, &Request{
				SystemPrompt: a.systemPrompt,
				History:      history,
				Input:        message,
				Scratchpad:   scratchpad,
				Tools:        specs,
			})
			if err != nil {
				lastErr = errors.Wrap(err, "model call failed")
				state = StateFailed
				continue
			}
			if reply == nil {
				reply = &Reply{}
			}
			state = StateModelResponded

		case StateModelResponded:
			switch {
			case len(reply.ToolCalls) == 0:
				state = StateDone
			case calls >= a.maxIterations:
				log.Warn().Int("max_iterations", a.maxIterations).Msg("agent: maximum iterations reached")
				lastErr = ErrIterationLimit
				state = StateFailed
			default:
				state = StateExecutingTools
			}

		case StateExecutingTools:
			step := a.executeTools(ctx, calls, reply)
			toolCalls += len(step.Observations)
			scratchpad = append(scratchpad, step)
			state = StateAwaitingModel

		case StateDone:
			output := strings.TrimSpace(reply.Text)
			if output == "" {
				output = FallbackOutput
			}
			return Result{
				Output:     output,
				Success:    true,
				Iterations: calls,
				ToolCalls:  toolCalls,
				Steps:      scratchpad,
			}

		case StateFailed:
			out := failed(lastErr, calls, toolCalls, scratchpad)
			if errors.Is(lastErr, ErrIterationLimit) && reply != nil && strings.TrimSpace(reply.Text) != "" {
				out.Output = strings.TrimSpace(reply.Text)
			}
			return out
		}
	}
}

func failed(err error, iterations, toolCalls int, steps []Step) Result {
	if err == nil {
		err = errors.New("unknown failure")
	}
	log.Error().Err(err).Int("iterations", iterations).Msg("agent: request failed")
	return Result{
		Output:     fmt.Sprintf("Error processing request: %v", err),
		Success:    false,
		Error:      err.Error(),
		Iterations: iterations,
		ToolCalls:  toolCalls,
		Steps:      steps,
	}
}

// executeTools runs every call of one reply, bounded by maxParallel, and
// returns the observations in call order. Bad calls become error observations.
func (a *Agent) executeTools(ctx context.Context, iteration int, reply *Reply) Step {
	obs := make([]Observation, len(reply.ToolCalls))

	var g errgroup.Group
	g.SetLimit(a.maxParallel)
	for i := range reply.ToolCalls {
		i := i
		call := reply.ToolCalls[i]
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d_%d", iteration, i)
		}
		g.Go(func() error {
			obs[i] = a.observe(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	return Step{Thought: strings.TrimSpace(reply.Text), Observations: obs}
}

func (a *Agent) observe(ctx context.Context, call ToolCall) Observation {
	out, err := a.registry.Execute(ctx, call.Name, call.Arguments)
	if err == nil {
		log.Debug().Str("tool", call.Name).Int("result_len", len(out)).Msg("agent: tool finished")
		return Observation{Call: call, Result: out}
	}

	log.Warn().Err(err).Str("tool", call.Name).Msg("agent: tool call rejected")
	msg := fmt.Sprintf("Error: %v", err)
	if errors.Is(err, tools.ErrUnknownTool) {
		names := make([]string, 0)
		for _, t := range a.registry.List() {
			names = append(names, t.Name())
		}
		msg = fmt.Sprintf("Error: %s is not a valid tool, try one of [%s].", call.Name, strings.Join(names, ", "))
	}
	return Observation{Call: call, Result: msg, IsError: true}
}

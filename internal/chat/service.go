// Package chat wires the agent to conversation storage. Threaded questions
// read and extend a thread's history; templated questions are stateless.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/edibez/binanceagent/internal/agent"
	"github.com/edibez/binanceagent/internal/binance"
	"github.com/edibez/binanceagent/internal/conversation"
	"github.com/edibez/binanceagent/internal/tools"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Agent is what the service needs from agent.Agent.
type Agent interface {
	Chat(ctx context.Context, message string, history []conversation.Turn) agent.Result
	ModelName() string
	Tools() []tools.Spec
}

type Service struct {
	agent         Agent
	store         conversation.Store
	locks         *conversation.ThreadLocks
	historyWindow int
	defaultSymbol string
}

type Option func(*Service)

// WithHistoryWindow limits how many recent turns are shown to the model.
// Storage itself is never truncated.
func WithHistoryWindow(n int) Option {
	return func(s *Service) { s.historyWindow = n }
}

func WithDefaultSymbol(symbol string) Option {
	return func(s *Service) {
		if symbol != "" {
			s.defaultSymbol = strings.ToUpper(symbol)
		}
	}
}

func NewService(a Agent, store conversation.Store, opts ...Option) *Service {
	s := &Service{
		agent:         a,
		store:         store,
		locks:         conversation.NewThreadLocks(),
		defaultSymbol: "BTCUSDT",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ModelName() string { return s.agent.ModelName() }

func (s *Service) Tools() []tools.Spec { return s.agent.Tools() }

func (s *Service) DefaultSymbol() string { return s.defaultSymbol }

// Invoke answers question within threadID. Requests on the same thread are
// serialized so each one sees the turns appended by the previous one. Both
// the question and the answer are appended even when the agent failed.
func (s *Service) Invoke(ctx context.Context, threadID int64, question string) (agent.Result, error) {
	unlock := s.locks.Lock(threadID)
	defer unlock()

	history, err := s.store.History(ctx, threadID)
	if err != nil {
		return agent.Result{}, errors.Wrapf(err, "load thread %d", threadID)
	}

	start := time.Now()
	res := s.agent.Chat(ctx, question, conversation.Window(history, s.historyWindow))
	log.Info().
		Int64("thread_id", threadID).
		Int("history", len(history)).
		Bool("success", res.Success).
		Int("iterations", res.Iterations).
		Int("tool_calls", res.ToolCalls).
		Dur("took", time.Since(start)).
		Msg("chat: invocation finished")

	// The request context may already be gone; the turns still belong to the thread.
	saveCtx := context.WithoutCancel(ctx)
	if err := s.store.Append(saveCtx, threadID, conversation.Human(question), conversation.Assistant(res.Output)); err != nil {
		return res, errors.Wrapf(err, "save thread %d", threadID)
	}
	return res, nil
}

// Ask answers a single message with no history, and records nothing.
func (s *Service) Ask(ctx context.Context, message string) agent.Result {
	return s.agent.Chat(ctx, message, nil)
}

func (s *Service) AnalyzeMarket(ctx context.Context, symbol string) agent.Result {
	return s.Ask(ctx, AnalyzeMarketPrompt(s.symbol(symbol)))
}

func (s *Service) Price(ctx context.Context, symbol string) agent.Result {
	return s.Ask(ctx, PricePrompt(s.symbol(symbol)))
}

func (s *Service) HistoricalData(ctx context.Context, symbol, interval string, limit int) agent.Result {
	if interval == "" {
		interval = tools.DefaultInterval
	}
	if limit <= 0 {
		limit = tools.DefaultLimit
	}
	return s.Ask(ctx, HistoricalDataPrompt(s.symbol(symbol), interval, limit))
}

func (s *Service) Explain(ctx context.Context, concept string) agent.Result {
	return s.Ask(ctx, ExplainPrompt(concept))
}

func (s *Service) symbol(in string) string {
	if strings.TrimSpace(in) == "" {
		return s.defaultSymbol
	}
	return binance.NormalizeSymbol(in)
}

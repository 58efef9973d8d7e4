package agent_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/edibez/binanceagent/internal/agent"
	"github.com/edibez/binanceagent/internal/agent/agenttest"
	"github.com/edibez/binanceagent/internal/binance"
	"github.com/edibez/binanceagent/internal/conversation"
	"github.com/edibez/binanceagent/internal/tools"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMarket struct {
	priceCalls atomic.Int64
}

func (s *stubMarket) GetPrice(_ context.Context, symbol string) (*binance.Price, error) {
	s.priceCalls.Add(1)
	return &binance.Price{Symbol: symbol, Price: 42500}, nil
}

func (s *stubMarket) Get24hTicker(_ context.Context, symbol string) (*binance.Ticker24h, error) {
	return &binance.Ticker24h{Symbol: symbol, LastPrice: 42500}, nil
}

func (s *stubMarket) GetKlines(context.Context, string, string, int) ([]binance.Kline, error) {
	return nil, errors.New("not used")
}

func newRegistry(t *testing.T, md tools.MarketData) *tools.Registry {
	t.Helper()
	reg, err := tools.NewRegistry(tools.NewMarketTools(md)...)
	require.NoError(t, err)
	return reg
}

func priceCall(args string) agent.Reply {
	return agent.Reply{ToolCalls: []agent.ToolCall{{ID: "c1", Name: "get_current_price", Arguments: json.RawMessage(args)}}}
}

func TestChatAnswersWithoutTools(t *testing.T) {
	model := agenttest.Answer("Bitcoin is a cryptocurrency.")
	a := agent.New(model, newRegistry(t, &stubMarket{}))

	res := a.Chat(context.Background(), "What is Bitcoin?", nil)
	assert.True(t, res.Success)
	assert.Equal(t, "Bitcoin is a cryptocurrency.", res.Output)
	assert.Equal(t, 1, res.Iterations)
	assert.Empty(t, res.Error)

	req := model.Requests()[0]
	assert.Equal(t, agent.DefaultSystemPrompt, req.SystemPrompt)
	assert.Equal(t, "What is Bitcoin?", req.Input)
	assert.Len(t, req.Tools, 3)
}

func TestChatRunsToolAndFeedsResultBack(t *testing.T) {
	md := &stubMarket{}
	model := agenttest.Script(
		priceCall(`{"symbol":"BTCUSDT"}`),
		agent.Reply{Text: "BTC trades at $42,500.00. Crypto is risky, DYOR."},
	)
	a := agent.New(model, newRegistry(t, md))

	res := a.Chat(context.Background(), "What's the current price of BTC?", nil)
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Output, "42,500")
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 1, res.ToolCalls)
	assert.Equal(t, int64(1), md.priceCalls.Load())

	second := model.Requests()[1]
	require.Len(t, second.Scratchpad, 1)
	obs := second.Scratchpad[0].Observations
	require.Len(t, obs, 1)
	assert.Equal(t, "Current price of BTCUSDT: $42,500.00", obs[0].Result)
	assert.False(t, obs[0].IsError)
	assert.Equal(t, "c1", obs[0].Call.ID)
}

func TestChatStopsAtIterationLimit(t *testing.T) {
	md := &stubMarket{}
	model := agenttest.Script(priceCall(`{"symbol":"BTCUSDT"}`))
	a := agent.New(model, newRegistry(t, md))

	res := a.Chat(context.Background(), "loop forever", nil)
	assert.False(t, res.Success)
	assert.Equal(t, agent.DefaultMaxIterations, model.Calls())
	assert.Equal(t, agent.DefaultMaxIterations, res.Iterations)
	// The fifth reply's tool request is never executed.
	assert.Equal(t, int64(agent.DefaultMaxIterations-1), md.priceCalls.Load())
	assert.Contains(t, res.Error, "iteration limit")
	assert.NotEmpty(t, res.Output)
}

func TestChatCustomIterationLimit(t *testing.T) {
	model := agenttest.Script(priceCall(`{"symbol":"BTCUSDT"}`))
	a := agent.New(model, newRegistry(t, &stubMarket{}), agent.WithMaxIterations(2))

	res := a.Chat(context.Background(), "loop", nil)
	assert.False(t, res.Success)
	assert.Equal(t, 2, model.Calls())
}

func TestChatMalformedArgumentsBecomeObservation(t *testing.T) {
	md := &stubMarket{}
	model := agenttest.Script(
		priceCall(`{"symbol":`),
		agent.Reply{ToolCalls: []agent.ToolCall{{Name: "place_order", Arguments: json.RawMessage(`{}`)}}},
		agent.Reply{Text: "Sorry, I could not fetch that."},
	)
	a := agent.New(model, newRegistry(t, md))

	res := a.Chat(context.Background(), "price?", nil)
	require.True(t, res.Success)
	assert.Equal(t, "Sorry, I could not fetch that.", res.Output)
	assert.Zero(t, md.priceCalls.Load())

	last := model.Requests()[2]
	require.Len(t, last.Scratchpad, 2)
	first := last.Scratchpad[0].Observations[0]
	assert.True(t, first.IsError)
	assert.True(t, strings.HasPrefix(first.Result, "Error"))

	unknown := last.Scratchpad[1].Observations[0]
	assert.True(t, unknown.IsError)
	assert.Contains(t, unknown.Result, "place_order is not a valid tool")
	assert.Equal(t, "call_2_0", unknown.Call.ID)
}

func TestChatParallelCallsKeepOrder(t *testing.T) {
	md := &stubMarket{}
	calls := make([]agent.ToolCall, 0, 6)
	for _, sym := range []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT", "ADAUSDT"} {
		calls = append(calls, agent.ToolCall{Name: "get_current_price", Arguments: json.RawMessage(`{"symbol":"` + sym + `"}`)})
	}
	model := agenttest.Script(agent.Reply{ToolCalls: calls}, agent.Reply{Text: "done"})
	a := agent.New(model, newRegistry(t, md), agent.WithMaxParallelTools(2))

	res := a.Chat(context.Background(), "prices", nil)
	require.True(t, res.Success)
	assert.Equal(t, 6, res.ToolCalls)

	obs := model.Requests()[1].Scratchpad[0].Observations
	require.Len(t, obs, 6)
	assert.Contains(t, obs[0].Result, "BTCUSDT")
	assert.Contains(t, obs[5].Result, "ADAUSDT")
}

func TestChatModelErrorIsFailure(t *testing.T) {
	model := &agenttest.Model{Err: errors.New("upstream 500")}
	a := agent.New(model, newRegistry(t, &stubMarket{}))

	res := a.Chat(context.Background(), "hi", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Output, "Error processing request")
	assert.Contains(t, res.Error, "upstream 500")
}

func TestChatRecoversModelPanic(t *testing.T) {
	model := &agenttest.Model{Respond: func(*agent.Request) (*agent.Reply, error) { panic("bad state") }}
	a := agent.New(model, newRegistry(t, &stubMarket{}))

	res := a.Chat(context.Background(), "hi", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "bad state")
}

func TestChatEmptyAnswerFallsBack(t *testing.T) {
	a := agent.New(agenttest.Answer("   "), newRegistry(t, &stubMarket{}))
	res := a.Chat(context.Background(), "hi", nil)
	assert.True(t, res.Success)
	assert.Equal(t, agent.FallbackOutput, res.Output)
}

func TestChatCancelledContext(t *testing.T) {
	model := agenttest.Answer("never")
	a := agent.New(model, newRegistry(t, &stubMarket{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := a.Chat(ctx, "hi", nil)
	assert.False(t, res.Success)
	assert.Zero(t, model.Calls())
}

func TestChatPassesHistory(t *testing.T) {
	model := agenttest.Answer("ok")
	a := agent.New(model, newRegistry(t, &stubMarket{}))
	history := []conversation.Turn{conversation.Human("What's BTC?"), conversation.Assistant("$42,500")}

	a.Chat(context.Background(), "And ETH?", history)
	assert.Equal(t, history, model.Requests()[0].History)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_model", agent.StateAwaitingModel.String())
	assert.Equal(t, "failed", agent.StateFailed.String())
}

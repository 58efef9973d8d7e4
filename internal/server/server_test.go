package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/edibez/binanceagent/internal/agent"
	"github.com/edibez/binanceagent/internal/agent/agenttest"
	"github.com/edibez/binanceagent/internal/chat"
	"github.com/edibez/binanceagent/internal/conversation"
	"github.com/edibez/binanceagent/internal/tools"
	"github.com/edibez/binanceagent/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopMarket struct{ tools.MarketData }

type fixture struct {
	srv   *Server
	model *agenttest.Model
	store *conversation.MemoryStore
}

func newFixture(t *testing.T, model *agenttest.Model, opts ...Option) *fixture {
	t.Helper()
	reg, err := tools.NewRegistry(tools.NewMarketTools(nopMarket{})...)
	require.NoError(t, err)
	store := conversation.NewMemoryStore()
	svc := chat.NewService(agent.New(model, reg), store)
	return &fixture{
		srv:   New(Config{Version: "1.0.0"}, svc, opts...),
		model: model,
		store: store,
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) types.ChatResponse {
	t.Helper()
	var resp types.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestRootAndHealth(t *testing.T) {
	f := newFixture(t, agenttest.Answer("hi"))
	f.model.ModelName = "gemini-2.0-flash"

	w := do(t, f.srv.Handler(), http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	var root types.RootResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &root))
	assert.Equal(t, "Binance AI Agent API", root.Message)
	assert.Equal(t, "1.0.0", root.Version)
	assert.Len(t, root.Tools, 3)

	w = do(t, f.srv.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","model":"gemini-2.0-flash"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestToolsSchema(t *testing.T) {
	f := newFixture(t, agenttest.Answer("hi"))
	w := do(t, f.srv.Handler(), http.MethodGet, "/tools", "")
	require.Equal(t, http.StatusOK, w.Code)

	var schema []struct {
		Name       string                 `json:"name"`
		Parameters map[string]interface{} `json:"parameters"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &schema))
	require.Len(t, schema, 3)
	assert.Equal(t, "get_current_price", schema[0].Name)
	assert.Equal(t, "object", schema[0].Parameters["type"])
}

func TestInvocationsKeepsThreadHistory(t *testing.T) {
	f := newFixture(t, agenttest.Answer("BTC is $42,500.00"))
	h := f.srv.Handler()

	w := do(t, h, http.MethodPost, "/invocations", `{"thread_id":1,"question":"What is the current price of Bitcoin?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "BTC is $42,500.00", resp.Response)
	require.NotNil(t, resp.ThreadID)
	assert.Equal(t, int64(1), *resp.ThreadID)

	w = do(t, h, http.MethodPost, "/invocations", `{"thread_id":1,"question":"And Ethereum?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	reqs := f.model.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].History, 2)

	hist, err := f.store.History(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, hist, 4)
}

func TestInvocationsThreadZeroIsValid(t *testing.T) {
	f := newFixture(t, agenttest.Answer("ok"))
	w := do(t, f.srv.Handler(), http.MethodPost, "/invocations", `{"thread_id":0,"question":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	require.NotNil(t, resp.ThreadID)
	assert.Equal(t, int64(0), *resp.ThreadID)
}

func TestInvocationsFailureStillReturns200(t *testing.T) {
	f := newFixture(t, &agenttest.Model{Err: errors.New("provider down")})
	w := do(t, f.srv.Handler(), http.MethodPost, "/invocations", `{"thread_id":5,"question":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "provider down")
}

func TestInvocationsBadRequests(t *testing.T) {
	f := newFixture(t, agenttest.Answer("ok"))
	for _, body := range []string{
		`{"question":"hi"}`,
		`{"thread_id":1}`,
		`{"thread_id":"one","question":"hi"}`,
		`not json`,
	} {
		w := do(t, f.srv.Handler(), http.MethodPost, "/invocations", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Zero(t, f.model.Calls())
}

func TestInvocationsAcceptsEmptyQuestion(t *testing.T) {
	f := newFixture(t, agenttest.Answer("Ask me about a market."))
	w := do(t, f.srv.Handler(), http.MethodPost, "/invocations", `{"thread_id":3,"question":""}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)

	reqs := f.model.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "", reqs[0].Input)
}

func TestStatelessEndpoints(t *testing.T) {
	f := newFixture(t, agenttest.Answer("analysis"))
	h := f.srv.Handler()

	tests := []struct {
		path, body, wantInput string
	}{
		{"/analyze-market", `{"symbol":"ETHUSDT"}`, chat.AnalyzeMarketPrompt("ETHUSDT")},
		{"/analyze-market", "", chat.AnalyzeMarketPrompt("BTCUSDT")},
		{"/price", `{"symbol":"btcusdt"}`, chat.PricePrompt("BTCUSDT")},
		{"/historical-data", `{"symbol":"BTCUSDT","interval":"4h","limit":50}`, chat.HistoricalDataPrompt("BTCUSDT", "4h", 50)},
		{"/historical-data", `{}`, chat.HistoricalDataPrompt("BTCUSDT", "1h", 100)},
		{"/explain?concept=market%20cap", "", chat.ExplainPrompt("market cap")},
	}
	for i, tt := range tests {
		w := do(t, h, http.MethodPost, tt.path, tt.body)
		require.Equal(t, http.StatusOK, w.Code, tt.path)
		resp := decode(t, w)
		assert.True(t, resp.Success)
		assert.Equal(t, "analysis", resp.Response)
		assert.Nil(t, resp.ThreadID)
		assert.NotContains(t, w.Body.String(), "thread_id")

		req := f.model.Requests()[i]
		assert.Equal(t, tt.wantInput, req.Input)
		assert.Empty(t, req.History)
	}
	assert.Zero(t, f.store.Threads())
}

func TestExplainRequiresConcept(t *testing.T) {
	f := newFixture(t, agenttest.Answer("ok"))
	w := do(t, f.srv.Handler(), http.MethodPost, "/explain", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoricalRejectsNegativeLimit(t *testing.T) {
	f := newFixture(t, agenttest.Answer("ok"))
	w := do(t, f.srv.Handler(), http.MethodPost, "/historical-data", `{"symbol":"BTCUSDT","limit":-5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUninitializedAgentReturns503(t *testing.T) {
	srv := New(Config{}, nil)
	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/"},
		{http.MethodGet, "/health"},
		{http.MethodGet, "/tools"},
		{http.MethodPost, "/invocations"},
		{http.MethodPost, "/analyze-market"},
		{http.MethodPost, "/price"},
		{http.MethodPost, "/historical-data"},
		{http.MethodPost, "/explain?concept=x"},
		{http.MethodGet, "/ws"},
	} {
		w := do(t, srv.Handler(), r.method, r.path, "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, r.path)
		assert.JSONEq(t, `{"error":"Agent not initialized"}`, w.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, agenttest.Answer("ok"))
	req := httptest.NewRequest(http.MethodOptions, "/invocations", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSRestrictedOrigins(t *testing.T) {
	reg, err := tools.NewRegistry(tools.NewMarketTools(nopMarket{})...)
	require.NoError(t, err)
	svc := chat.NewService(agent.New(agenttest.Answer("ok"), reg), conversation.NewMemoryStore())
	srv := New(Config{CORSOrigins: []string{"https://app.example"}}, svc)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

type stubLimiter struct{ allow bool }

func (s stubLimiter) Allow(context.Context, string) (bool, int, error) { return s.allow, 0, nil }
func (s stubLimiter) Limit() int                                       { return 2 }

func TestRateLimited(t *testing.T) {
	f := newFixture(t, agenttest.Answer("ok"), WithLimiter(stubLimiter{allow: false}))
	w := do(t, f.srv.Handler(), http.MethodPost, "/invocations", `{"thread_id":1,"question":"hi"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Zero(t, f.model.Calls())
}

type panicService struct{ Service }

func (panicService) Price(context.Context, string) agent.Result { panic("boom") }

func TestPanicBecomes500(t *testing.T) {
	srv := New(Config{}, panicService{})
	w := do(t, srv.Handler(), http.MethodPost, "/price", `{"symbol":"BTCUSDT"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "boom")
}

func TestWebSocketChat(t *testing.T) {
	f := newFixture(t, agenttest.Answer("BTC is up"))
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	question := "How is BTC?"
	require.NoError(t, conn.WriteJSON(types.WSMessage{Question: &question}))
	var reply types.WSReply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)

	id := int64(42)
	for i := 0; i < 2; i++ {
		require.NoError(t, conn.WriteJSON(types.WSMessage{ThreadID: &id, Question: &question}))
		reply = types.WSReply{}
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, "response", reply.Type)
		assert.True(t, reply.Success)
		assert.Equal(t, "BTC is up", reply.Response)
		require.NotNil(t, reply.ThreadID)
		assert.Equal(t, id, *reply.ThreadID)
	}

	hist, err := f.store.History(context.Background(), 42)
	require.NoError(t, err)
	assert.Len(t, hist, 4)
}

func TestWebSocketHonorsAllowedOrigins(t *testing.T) {
	reg, err := tools.NewRegistry(tools.NewMarketTools(nopMarket{})...)
	require.NoError(t, err)
	svc := chat.NewService(agent.New(agenttest.Answer("ok"), reg), conversation.NewMemoryStore())
	ts := httptest.NewServer(New(Config{CORSOrigins: []string{"https://app.example"}}, svc).Handler())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"allowed origin", "https://app.example", true},
		{"no origin", "", true},
		{"foreign origin", "https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if !tt.ok {
				require.ErrorIs(t, err, websocket.ErrBadHandshake)
				require.NotNil(t, resp)
				assert.Equal(t, http.StatusForbidden, resp.StatusCode)
				return
			}
			require.NoError(t, err)
			conn.Close()
		})
	}
}

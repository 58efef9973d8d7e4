package types

// ChatRequest for POST /invocations. Both fields must be present; an empty
// question is still passed to the agent.
type ChatRequest struct {
	ThreadID *int64  `json:"thread_id" binding:"required"`
	Question *string `json:"question" binding:"required"`
}

// ChatResponse is returned by every agent backed endpoint.
// ThreadID is omitted for stateless requests.
type ChatResponse struct {
	Response string `json:"response"`
	Success  bool   `json:"success"`
	ThreadID *int64 `json:"thread_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// MarketDataRequest for /analyze-market and /price
type MarketDataRequest struct {
	Symbol string `json:"symbol"`
}

// HistoricalDataRequest for /historical-data
type HistoricalDataRequest struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Limit    int    `json:"limit" binding:"omitempty,min=1"`
}

// RootResponse for GET /
type RootResponse struct {
	Message string   `json:"message"`
	Version string   `json:"version"`
	Tools   []string `json:"tools"`
}

// HealthResponse for GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// FunctionCall format for LLM tool use
type FunctionCall struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters"`
}

// WSMessage is a client frame on /ws
type WSMessage struct {
	ThreadID *int64  `json:"thread_id"`
	Question *string `json:"question"`
}

// WSReply is a server frame on /ws; Type is "response" or "error".
type WSReply struct {
	Type     string `json:"type"`
	Response string `json:"response,omitempty"`
	Success  bool   `json:"success"`
	ThreadID *int64 `json:"thread_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ErrorResponse standard error format
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

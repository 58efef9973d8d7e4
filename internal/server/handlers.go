package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/edibez/binanceagent/internal/agent"
	"github.com/edibez/binanceagent/internal/tools"
	"github.com/edibez/binanceagent/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

func (s *Server) handleRoot(c *gin.Context) {
	names := make([]string, 0)
	for _, spec := range s.service.Tools() {
		names = append(names, spec.Name)
	}
	c.JSON(http.StatusOK, types.RootResponse{
		Message: s.cfg.Title,
		Version: s.cfg.Version,
		Tools:   names,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, types.HealthResponse{Status: "healthy", Model: s.service.ModelName()})
}

func (s *Server) handleTools(c *gin.Context) {
	specs := s.service.Tools()
	schema := make([]types.FunctionCall, 0, len(specs))
	for _, spec := range specs {
		raw, err := tools.MarshalSchema(spec.Parameters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: err.Error()})
			return
		}
		schema = append(schema, types.FunctionCall{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  json.RawMessage(raw),
		})
	}
	c.JSON(http.StatusOK, schema)
}

func (s *Server) handleInvocations(c *gin.Context) {
	var req types.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "thread_id and question are required", Details: err.Error()})
		return
	}

	res, err := s.service.Invoke(c.Request.Context(), *req.ThreadID, *req.Question)
	if err != nil {
		log.Error().Err(err).Int64("thread_id", *req.ThreadID).Msg("invocation failed")
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, toResponse(res, req.ThreadID))
}

func (s *Server) handleAnalyzeMarket(c *gin.Context) {
	var req types.MarketDataRequest
	if !bindOptional(c, &req) {
		return
	}
	c.JSON(http.StatusOK, toResponse(s.service.AnalyzeMarket(c.Request.Context(), req.Symbol), nil))
}

func (s *Server) handlePrice(c *gin.Context) {
	var req types.MarketDataRequest
	if !bindOptional(c, &req) {
		return
	}
	c.JSON(http.StatusOK, toResponse(s.service.Price(c.Request.Context(), req.Symbol), nil))
}

func (s *Server) handleHistoricalData(c *gin.Context) {
	req := types.HistoricalDataRequest{Interval: tools.DefaultInterval, Limit: tools.DefaultLimit}
	if !bindOptional(c, &req) {
		return
	}
	res := s.service.HistoricalData(c.Request.Context(), req.Symbol, req.Interval, req.Limit)
	c.JSON(http.StatusOK, toResponse(res, nil))
}

func (s *Server) handleExplain(c *gin.Context) {
	concept := c.Query("concept")
	if concept == "" {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "concept is required"})
		return
	}
	c.JSON(http.StatusOK, toResponse(s.service.Explain(c.Request.Context(), concept), nil))
}

// bindOptional binds a JSON body when one is sent. It writes a 400 and
// returns false on malformed input.
func bindOptional(c *gin.Context, dst interface{}) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid request body", Details: err.Error()})
	return false
}

func toResponse(res agent.Result, threadID *int64) types.ChatResponse {
	return types.ChatResponse{
		Response: res.Output,
		Success:  res.Success,
		ThreadID: threadID,
		Error:    res.Error,
	}
}

// Package server exposes the chat service over HTTP and websocket.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/edibez/binanceagent/internal/agent"
	"github.com/edibez/binanceagent/internal/tools"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Service is the agent-backed chat surface the handlers call.
type Service interface {
	Invoke(ctx context.Context, threadID int64, question string) (agent.Result, error)
	AnalyzeMarket(ctx context.Context, symbol string) agent.Result
	Price(ctx context.Context, symbol string) agent.Result
	HistoricalData(ctx context.Context, symbol, interval string, limit int) agent.Result
	Explain(ctx context.Context, concept string) agent.Result
	ModelName() string
	Tools() []tools.Spec
}

// Limiter decides whether a client may make another request.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, int, error)
	Limit() int
}

// Config for the HTTP surface
type Config struct {
	Title       string
	Version     string
	CORSOrigins []string
}

type Server struct {
	cfg      Config
	service  Service
	limiter  Limiter
	upgrader websocket.Upgrader
	engine   *gin.Engine
}

type Option func(*Server)

// WithLimiter enables per client IP rate limiting.
func WithLimiter(l Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// New builds the router. A nil service puts every endpoint in 503 mode.
func New(cfg Config, service Service, opts ...Option) *Server {
	if cfg.Title == "" {
		cfg.Title = "Binance AI Agent API"
	}
	s := &Server{
		cfg:     cfg,
		service: service,
	}
	// A handshake without Origin comes from a non-browser client.
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(cfg.CORSOrigins, origin)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger())
	r.Use(gin.CustomRecovery(recoverJSON))
	r.Use(cors(s.cfg.CORSOrigins))
	if s.limiter != nil {
		r.Use(rateLimit(s.limiter))
	}
	r.Use(s.requireService())

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)
	r.GET("/tools", s.handleTools)
	r.POST("/invocations", s.handleInvocations)
	r.POST("/analyze-market", s.handleAnalyzeMarket)
	r.POST("/price", s.handlePrice)
	r.POST("/historical-data", s.handleHistoricalData)
	r.POST("/explain", s.handleExplain)
	r.GET("/ws", s.handleWebSocket)
	return r
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Bool("agent_ready", s.service != nil).Msg("starting " + s.cfg.Title)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info().Msg("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

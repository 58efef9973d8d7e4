package main

import (
	"context"

	"github.com/edibez/binanceagent/internal/agent"
	"github.com/edibez/binanceagent/internal/binance"
	"github.com/edibez/binanceagent/internal/chat"
	"github.com/edibez/binanceagent/internal/config"
	"github.com/edibez/binanceagent/internal/conversation"
	"github.com/edibez/binanceagent/internal/llm"
	"github.com/edibez/binanceagent/internal/tools"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// newRegistry binds the market tools to a Binance client.
func newRegistry(cfg *config.Config) (*tools.Registry, error) {
	client := binance.NewClient(cfg.BinanceURL, binance.WithTimeout(cfg.BinanceTimeout))
	return tools.NewRegistry(tools.NewMarketTools(client)...)
}

// newService wires model, tools and store into a chat service.
func newService(ctx context.Context, cfg *config.Config, store conversation.Store) (*chat.Service, llm.Model, error) {
	registry, err := newRegistry(cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "register tools")
	}

	model, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "init %s model", cfg.LLM.Provider)
	}

	a := agent.New(model, registry,
		agent.WithMaxIterations(cfg.MaxIterations),
		agent.WithMaxParallelTools(cfg.MaxParallelTools),
	)
	svc := chat.NewService(a, store,
		chat.WithHistoryWindow(cfg.HistoryWindow),
		chat.WithDefaultSymbol(cfg.DefaultSymbol),
	)
	names := make([]string, 0)
	for _, t := range registry.List() {
		names = append(names, t.Name())
	}
	log.Info().
		Str("provider", cfg.LLM.Provider).
		Str("model", model.Name()).
		Strs("tools", names).
		Msg("agent initialized")
	return svc, model, nil
}

// Package llm builds the configured model provider.
package llm

import (
	"context"

	"github.com/edibez/binanceagent/internal/agent"
	"github.com/edibez/binanceagent/internal/config"
	"github.com/edibez/binanceagent/internal/llm/anthropic"
	"github.com/edibez/binanceagent/internal/llm/gemini"
	"github.com/pkg/errors"
)

// Model is an agent.Model holding provider resources.
type Model interface {
	agent.Model
	Close() error
}

// New returns the provider selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLM) (Model, error) {
	switch cfg.Provider {
	case config.ProviderGemini, "":
		m, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.Temperature, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.ProviderAnthropic:
		m, err := anthropic.New(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.Temperature, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, errors.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

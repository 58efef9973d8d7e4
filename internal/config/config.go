// Package config loads service settings from the environment, an optional
// .env file and command line flags bound through viper.
package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// ErrMissingAPIKey is returned when the selected LLM provider has no key.
var ErrMissingAPIKey = errors.New("missing LLM API key")

const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// LLM settings
type LLM struct {
	Provider        string
	GeminiAPIKey    string
	GeminiModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	Temperature     float64
	MaxTokens       int
}

// APIKey returns the key of the selected provider.
func (l LLM) APIKey() string {
	if l.Provider == ProviderAnthropic {
		return l.AnthropicAPIKey
	}
	return l.GeminiAPIKey
}

// Model returns the model name of the selected provider.
func (l LLM) Model() string {
	if l.Provider == ProviderAnthropic {
		return l.AnthropicModel
	}
	return l.GeminiModel
}

// Store settings
type Store struct {
	Driver     string
	SQLitePath string
	RedisAddr  string
}

// Config is the full service configuration
type Config struct {
	Title   string
	Version string
	Host    string
	Port    int

	LLM LLM

	BinanceURL     string
	BinanceTimeout time.Duration
	DefaultSymbol  string

	MaxIterations    int
	MaxParallelTools int
	HistoryWindow    int

	Store Store

	RateLimitRPS int
	CORSOrigins  []string

	LogLevel  string
	LogFormat string
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("llm_provider", ProviderGemini)
	v.SetDefault("gemini_model", "gemini-2.0-flash")
	v.SetDefault("anthropic_model", "claude-sonnet-4-20250514")
	v.SetDefault("llm_temperature", 0.7)
	v.SetDefault("llm_max_tokens", 2048)
	v.SetDefault("binance_api_url", "https://api.binance.com")
	v.SetDefault("binance_timeout", "10s")
	v.SetDefault("api_title", "Binance AI Agent API")
	v.SetDefault("api_version", "1.0.0")
	v.SetDefault("api_host", "0.0.0.0")
	v.SetDefault("api_port", 8000)
	v.SetDefault("default_symbol", "BTCUSDT")
	v.SetDefault("agent_max_iterations", 5)
	v.SetDefault("agent_max_parallel_tools", 3)
	v.SetDefault("history_window", 0)
	v.SetDefault("conversation_store", "memory")
	v.SetDefault("sqlite_path", "binanceagent.db")
	v.SetDefault("redis_addr", "")
	v.SetDefault("rate_limit_rps", 0)
	v.SetDefault("cors_origins", "*")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("anthropic_api_key", "")
}

// New returns a viper instance wired to the environment with defaults set.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// LoadDotEnv loads .env files if present. Existing environment variables win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err == nil {
			log.Debug().Str("file", f).Msg("loaded env file")
		}
	}
}

// FromViper reads a Config out of v and validates it.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Title:   v.GetString("api_title"),
		Version: v.GetString("api_version"),
		Host:    v.GetString("api_host"),
		Port:    v.GetInt("api_port"),
		LLM: LLM{
			Provider:        strings.ToLower(strings.TrimSpace(v.GetString("llm_provider"))),
			GeminiAPIKey:    strings.TrimSpace(v.GetString("gemini_api_key")),
			GeminiModel:     v.GetString("gemini_model"),
			AnthropicAPIKey: strings.TrimSpace(v.GetString("anthropic_api_key")),
			AnthropicModel:  v.GetString("anthropic_model"),
			Temperature:     v.GetFloat64("llm_temperature"),
			MaxTokens:       v.GetInt("llm_max_tokens"),
		},
		BinanceURL:       v.GetString("binance_api_url"),
		BinanceTimeout:   v.GetDuration("binance_timeout"),
		DefaultSymbol:    strings.ToUpper(v.GetString("default_symbol")),
		MaxIterations:    v.GetInt("agent_max_iterations"),
		MaxParallelTools: v.GetInt("agent_max_parallel_tools"),
		HistoryWindow:    v.GetInt("history_window"),
		Store: Store{
			Driver:     strings.ToLower(v.GetString("conversation_store")),
			SQLitePath: v.GetString("sqlite_path"),
			RedisAddr:  v.GetString("redis_addr"),
		},
		RateLimitRPS: v.GetInt("rate_limit_rps"),
		CORSOrigins:  splitList(v.GetString("cors_origins")),
		LogLevel:     v.GetString("log_level"),
		LogFormat:    v.GetString("log_format"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads .env and the process environment.
func Load() (*Config, error) {
	LoadDotEnv()
	return FromViper(New())
}

// Validate reports configuration errors that must stop the process.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderGemini, ProviderAnthropic:
	default:
		return errors.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.APIKey() == "" {
		return errors.Wrapf(ErrMissingAPIKey, "%s_API_KEY is required", strings.ToUpper(c.LLM.Provider))
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("invalid port %d", c.Port)
	}
	if c.MaxIterations <= 0 {
		return errors.Errorf("agent_max_iterations must be positive, got %d", c.MaxIterations)
	}
	switch c.Store.Driver {
	case "memory", "sqlite", "redis":
	default:
		return errors.Errorf("unknown conversation store %q", c.Store.Driver)
	}
	if c.Store.Driver == "redis" && c.Store.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required for the redis conversation store")
	}
	if c.RateLimitRPS > 0 && c.Store.RedisAddr == "" {
		log.Warn().Msg("RATE_LIMIT_RPS set without REDIS_ADDR; rate limiting disabled")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

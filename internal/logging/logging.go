package logging

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config for the global logger
type Config struct {
	Level      string
	Format     string
	WithCaller bool
}

// Init configures the global zerolog logger. Format is "json" (default) or "text".
func Init(cfg Config) error {
	return InitWriter(cfg, os.Stderr)
}

// InitWriter is Init with an explicit destination.
func InitWriter(cfg Config, out io.Writer) error {
	var w io.Writer = out
	switch strings.ToLower(cfg.Format) {
	case "", "json":
	case "text":
		w = zerolog.ConsoleWriter{Out: out}
	default:
		return errors.Errorf("unknown log format %q", cfg.Format)
	}

	logger := zerolog.New(w).With().Timestamp()
	if cfg.WithCaller {
		logger = logger.Caller()
	}
	log.Logger = logger.Logger()

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return errors.Wrapf(err, "parse log level %q", cfg.Level)
		}
		level = l
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

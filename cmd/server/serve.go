package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/edibez/binanceagent/internal/config"
	"github.com/edibez/binanceagent/internal/conversation"
	"github.com/edibez/binanceagent/internal/ratelimit"
	"github.com/edibez/binanceagent/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().String("host", "", "listen host")
	cmd.Flags().Int("port", 0, "listen port")
	cmd.Flags().String("store", "", "conversation store (memory, sqlite, redis)")
	bindFlag(v, "api_host", cmd.Flags().Lookup("host"))
	bindFlag(v, "api_port", cmd.Flags().Lookup("port"))
	bindFlag(v, "conversation_store", cmd.Flags().Lookup("store"))
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	gin.SetMode(gin.ReleaseMode)

	store, err := conversation.Open(ctx, conversation.Options{
		Driver:     cfg.Store.Driver,
		SQLitePath: cfg.Store.SQLitePath,
		RedisAddr:  cfg.Store.RedisAddr,
	})
	if err != nil {
		return errors.Wrap(err, "open conversation store")
	}
	defer store.Close()

	// A model that fails to start leaves the API up in 503 mode.
	var svc server.Service
	chatSvc, model, err := newService(ctx, cfg, store)
	if err != nil {
		log.Error().Err(err).Msg("agent unavailable, serving 503")
	} else {
		defer model.Close()
		svc = chatSvc
	}

	var opts []server.Option
	if cfg.RateLimitRPS > 0 && cfg.Store.RedisAddr != "" {
		limiter, err := ratelimit.NewLimiter(ctx, cfg.Store.RedisAddr, cfg.RateLimitRPS)
		if err != nil {
			return errors.Wrap(err, "init rate limiter")
		}
		defer limiter.Close()
		opts = append(opts, server.WithLimiter(limiter))
	}

	srv := server.New(server.Config{
		Title:       cfg.Title,
		Version:     cfg.Version,
		CORSOrigins: cfg.CORSOrigins,
	}, svc, opts...)
	return srv.Run(ctx, cfg.Addr())
}

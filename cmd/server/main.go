// Command binance-agent serves the Binance market agent over HTTP.
package main

import (
	"os"

	"github.com/edibez/binanceagent/internal/config"
	"github.com/edibez/binanceagent/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	v := config.New()
	root := newRootCmd(v)
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	serve := newServeCmd(v)
	root := &cobra.Command{
		Use:           "binance-agent",
		Short:         "Conversational crypto market agent backed by Binance",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (json, text)")
	root.PersistentFlags().String("provider", "", "LLM provider (gemini, anthropic)")
	root.PersistentFlags().String("env-file", ".env", "dotenv file to load")
	bindFlag(v, "log_level", root.PersistentFlags().Lookup("log-level"))
	bindFlag(v, "log_format", root.PersistentFlags().Lookup("log-format"))
	bindFlag(v, "llm_provider", root.PersistentFlags().Lookup("provider"))

	root.AddCommand(serve, newAskCmd(v))
	return root
}

// loadConfig reads the env file, then the merged environment and flags.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	config.LoadDotEnv(envFile)

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindFlag lets an explicitly set flag override the environment.
func bindFlag(v *viper.Viper, key string, f *pflag.Flag) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}

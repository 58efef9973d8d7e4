package main

import (
	"fmt"
	"strings"

	"github.com/edibez/binanceagent/internal/conversation"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newAskCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:     "ask [question]",
		Short:   "Ask the agent a single question and print the answer",
		Example: `  binance-agent ask "What is the current price of Bitcoin?"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			svc, model, err := newService(ctx, cfg, conversation.NewMemoryStore())
			if err != nil {
				return err
			}
			defer model.Close()

			res := svc.Ask(ctx, strings.Join(args, " "))
			fmt.Fprintln(cmd.OutOrStdout(), res.Output)
			if !res.Success {
				return errors.Errorf("agent failed: %s", res.Error)
			}
			return nil
		},
	}
}

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HananiahKao/daily-manna-email/internal/app"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduling daemon",
		Long: "Runs the long-lived daemon: polls the dispatch clock, executes due\n" +
			"rules, optionally processes operator replies, and hot-reloads the\n" +
			"config file on change.",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := load(configPath)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return app.NewService(b.manager, b.logSvc, b.log).Run(ctx)
		},
	}
	addConfigFlag(cmd, &configPath)
	return cmd
}

package main

import (
	"github.com/spf13/cobra"
)

func newEnsureWeekCmd() *cobra.Command {
	var (
		configPath string
		seed       string
		email      bool
	)

	cmd := &cobra.Command{
		Use:   "ensure-week",
		Short: "Extend the schedule across next week and rotate reply tokens",
		Long: "Guarantees next week (Monday through Sunday) has an entry per day,\n" +
			"purges expired reply tokens, issues fresh ones, and archives the\n" +
			"weekly digest. With --email the digest is also sent.",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := load(configPath)
			if err != nil {
				return err
			}
			defer b.Close()
			engine, _, err := b.engine(false)
			if err != nil {
				return err
			}

			result, err := engine.EnsureWeek(cmd.Context(), seed, email)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&seed, "seed", "", "selector to seed an empty schedule from (e.g. 2-1-1)")
	cmd.Flags().BoolVar(&email, "email", false, "email the weekly digest after generating it")
	return cmd
}

package main

import (
	"github.com/spf13/cobra"
)

func newSendDailyCmd() *cobra.Command {
	var (
		configPath string
		date       string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "send-daily",
		Short: "Resolve and email the day's lesson",
		Long: "Resolves the entry's selector (or its override) to lesson content,\n" +
			"delivers it to the configured recipients, and marks the entry sent.\n" +
			"Already-sent or skipped entries are left alone unless --force.",
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

			view, err := engine.SendDaily(cmd.Context(), date, force)
			if err != nil {
				return err
			}
			return printJSON(cmd, view)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&date, "date", "", "date descriptor (default today)")
	cmd.Flags().BoolVar(&force, "force", false, "send even if already sent or skipped")
	return cmd
}

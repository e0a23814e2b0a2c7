package main

import (
	"github.com/spf13/cobra"
)

func newNextEntryCmd() *cobra.Command {
	var (
		configPath string
		skipSent   bool
	)

	cmd := &cobra.Command{
		Use:   "next-entry [date]",
		Short: "Print the schedule entry for a date",
		Long: "Resolves a date descriptor (ISO date, \"today\", \"tomorrow\", or a\n" +
			"weekday like \"fri\" or \"週五\"; default today) and prints its entry\n" +
			"as JSON. With --skip-sent, an already-sent entry yields the next\n" +
			"pending one instead.",
		Args: cobra.MaximumNArgs(1),
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

			descriptor := ""
			if len(args) == 1 {
				descriptor = args[0]
			}
			view, err := engine.NextEntry(descriptor, skipSent)
			if err != nil {
				return err
			}
			return printJSON(cmd, view)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&skipSent, "skip-sent", false, "advance past an already-sent entry")
	return cmd
}

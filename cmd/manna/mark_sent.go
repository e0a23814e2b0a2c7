package main

import (
	"github.com/spf13/cobra"
)

func newMarkSentCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mark-sent [date]",
		Short: "Mark a date's entry as sent",
		Args:  cobra.MaximumNArgs(1),
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
			view, err := engine.MarkSent(descriptor)
			if err != nil {
				return err
			}
			return printJSON(cmd, view)
		},
	}
	addConfigFlag(cmd, &configPath)
	return cmd
}

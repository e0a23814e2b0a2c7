package main

import (
	"github.com/spf13/cobra"
)

type ruleView struct {
	Name        string     `json:"name"`
	Time        string     `json:"time"`
	Weekdays    string     `json:"weekdays"`
	Commands    [][]string `json:"commands"`
	MaxAttempts int        `json:"max_attempts"`
}

func newShowRulesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show-rules",
		Short: "Print the configured dispatch rules",
		Args:  cobra.NoArgs,
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

			rules := engine.Rules()
			views := make([]ruleView, 0, len(rules))
			for _, r := range rules {
				views = append(views, ruleView{
					Name:        r.Name,
					Time:        r.TimeLabel(),
					Weekdays:    r.WeekdaysLabel(),
					Commands:    r.Commands,
					MaxAttempts: r.MaxAttempts,
				})
			}
			return printJSON(cmd, views)
		},
	}
	addConfigFlag(cmd, &configPath)
	return cmd
}

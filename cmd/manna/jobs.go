package main

import (
	"github.com/spf13/cobra"

	"github.com/HananiahKao/daily-manna-email/internal/tracker"
)

func newHistoryCmd() *cobra.Command {
	var (
		configPath string
		jobName    string
		page       int
		pageSize   int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded job executions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := load(configPath)
			if err != nil {
				return err
			}
			defer b.Close()
			engine, tr, err := b.engine(true)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			result, err := engine.JobHistory(cmd.Context(), tracker.HistoryQuery{
				JobName:  jobName,
				Page:     page,
				PageSize: pageSize,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&jobName, "job", "", "filter by job name")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "executions per page")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		jobName    string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show job execution statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := load(configPath)
			if err != nil {
				return err
			}
			defer b.Close()
			engine, tr, err := b.engine(true)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			stats, err := engine.JobStats(cmd.Context(), jobName)
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&jobName, "job", "", "restrict stats to one job")
	return cmd
}

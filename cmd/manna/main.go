package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manna",
		Short: "Daily Manna scheduled lesson email delivery",
		Long: "Daily Manna keeps a rolling lesson schedule, emails each day's portion,\n" +
			"sends a weekly digest with reply tokens, and applies operator reply\n" +
			"commands back onto the schedule.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newNextEntryCmd())
	cmd.AddCommand(newMarkSentCmd())
	cmd.AddCommand(newEnsureWeekCmd())
	cmd.AddCommand(newApplyReplyCmd())
	cmd.AddCommand(newProcessRepliesCmd())
	cmd.AddCommand(newSendDailyCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newShowRulesCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "manna %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newApplyReplyCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "apply-reply [file]",
		Short: "Apply reply commands from a file or stdin",
		Long: "Parses a reply body ([TOKEN] verb [arg] lines) and applies each\n" +
			"instruction to the schedule. Malformed lines and rejected commands\n" +
			"are reported in the JSON output, never fatal.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body []byte
			var err error
			if len(args) == 1 {
				body, err = os.ReadFile(args[0])
			} else {
				body, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("read reply body: %w", err)
			}

			b, err := load(configPath)
			if err != nil {
				return err
			}
			defer b.Close()
			engine, _, err := b.engine(false)
			if err != nil {
				return err
			}

			report, err := engine.ApplyReply(string(body))
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	addConfigFlag(cmd, &configPath)
	return cmd
}

func newProcessRepliesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "process-replies",
		Short: "Fetch unread operator replies over IMAP and apply them",
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

			n, err := engine.ProcessReplies(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"processed": n})
		},
	}
	addConfigFlag(cmd, &configPath)
	return cmd
}

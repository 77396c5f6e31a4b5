package cmd

import (
	"fmt"
	"io"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/audit"
)

func newLogsCmd() *cobra.Command {
	var (
		follow   bool
		opType   string
		filePath string
		limit    int
		search   string
		stats    bool
		export   string
		clear    bool
	)

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect the append-only audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			auditLog, err := openAuditLog()
			if err != nil {
				return err
			}
			defer auditLog.Close()

			switch {
			case clear:
				if err := auditLog.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Audit log cleared")
				return nil
			case stats:
				statistics, err := auditLog.GetStatistics()
				if err != nil {
					return err
				}
				return printJSON(cmd, statistics)
			case export != "":
				return auditLog.Export(cmd.OutOrStdout(), export)
			case follow:
				return followAuditLog(cmd, auditLog.Path())
			case search != "":
				events, err := auditLog.SearchLogs(search)
				if err != nil {
					return err
				}
				printEvents(cmd, events)
				return nil
			default:
				events, err := auditLog.GetLogs(audit.Filter{
					OperationType: schemas.OperationType(opType),
					FilePath:      filePath,
					Limit:         limit,
				})
				if err != nil {
					return err
				}
				printEvents(cmd, events)
				return nil
			}
		},
	}

	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream new audit events as they are written")
	logsCmd.Flags().StringVar(&opType, "type", "", "filter by operation type")
	logsCmd.Flags().StringVar(&filePath, "file", "", "filter by file path")
	logsCmd.Flags().IntVar(&limit, "limit", 50, "maximum events to show (0 for all)")
	logsCmd.Flags().StringVar(&search, "search", "", "substring search over messages and payloads")
	logsCmd.Flags().BoolVar(&stats, "stats", false, "print aggregate statistics instead of events")
	logsCmd.Flags().StringVar(&export, "export", "", "export the full log in the given format: json or jsonl")
	logsCmd.Flags().BoolVar(&clear, "clear", false, "truncate the audit log")
	return logsCmd
}

// followAuditLog tails the audit file from its end until the command context
// is cancelled.
func followAuditLog(cmd *cobra.Command, path string) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail audit log: %w", err)
	}
	defer t.Cleanup()

	out := cmd.OutOrStdout()
	for {
		select {
		case <-cmd.Context().Done():
			return t.Stop()
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				return line.Err
			}
			fmt.Fprintln(out, line.Text)
		}
	}
}

func printEvents(cmd *cobra.Command, events []schemas.LogEvent) {
	out := cmd.OutOrStdout()
	for _, event := range events {
		status := "ok"
		if !event.Success {
			status = "FAIL"
		}
		fmt.Fprintf(out, "%s  %-16s %-4s %-24s %s\n",
			event.Timestamp.Format("2006-01-02 15:04:05.000"),
			event.OperationType, status, event.FilePath, event.Message)
	}
}

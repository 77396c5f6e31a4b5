package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCommitsCmd() *cobra.Command {
	var max int

	commitsCmd := &cobra.Command{
		Use:   "commits",
		Short: "List recent commits on the repository HEAD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			coordinator, auditLog, err := openCoordinator()
			if err != nil {
				return err
			}
			defer auditLog.Close()

			commits, err := coordinator.GetCommits(max)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, record := range commits {
				fmt.Fprintf(out, "%s  %s  %s\n",
					shortID(record.CommitID),
					record.Timestamp.Format("2006-01-02 15:04"),
					firstLine(record.Message))
			}
			return nil
		},
	}

	commitsCmd.Flags().IntVar(&max, "max", 20, "maximum commits to list (0 for all)")
	return commitsCmd
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReportCmd() *cobra.Command {
	var asJSON bool

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print the aggregate code-quality report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer orch.Close()

			report, err := orch.Report(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Quality report for %s\n", report.RepoPath)
			fmt.Fprintf(out, "  %d issues across %d files\n", report.TotalIssues, len(report.Files))
			for category, count := range report.ByCategory {
				fmt.Fprintf(out, "    %s: %d\n", category, count)
			}
			fmt.Fprintln(out, "  Per file (max complexity / MI / issues):")
			for _, file := range report.Files {
				fmt.Fprintf(out, "    %-40s %3d  %6.1f  %d\n",
					file.FilePath, file.MaxComplexity, file.MaintainabilityIndex, file.IssueCount)
			}
			fmt.Fprintf(out, "  Audit: %d operations, %d failed, %d files modified\n",
				report.Statistics.TotalOperations,
				report.Statistics.FailedOperations,
				report.Statistics.FilesModifiedCount)
			return nil
		},
	}

	reportCmd.Flags().BoolVar(&asJSON, "json", false, "emit the full report as JSON")
	return reportCmd
}

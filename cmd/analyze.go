package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd() *cobra.Command {
	var asJSON bool

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Scan the repository and report code-quality issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer orch.Close()

			report, err := orch.Analyze(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Analyzed %d files, %d issues in %d files\n",
				report.FilesAnalyzed, report.TotalIssues, report.FilesWithIssues)
			for _, issue := range report.Issues {
				fmt.Fprintf(out, "  [%s/%s] %s:%d-%d  %s (%s)\n",
					issue.Category, issue.Severity,
					issue.FilePath, issue.LineRange.Start, issue.LineRange.End,
					issue.Message, issue.DetectorSource)
			}
			return nil
		},
	}

	analyzeCmd.Flags().BoolVar(&asJSON, "json", false, "emit the full report as JSON")
	return analyzeCmd
}

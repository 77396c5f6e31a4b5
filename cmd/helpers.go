package cmd

import (
	"context"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/suture-cli/internal/audit"
	"github.com/xkilldash9x/suture-cli/internal/observability"
	"github.com/xkilldash9x/suture-cli/internal/orchestrator"
	"github.com/xkilldash9x/suture-cli/internal/vcs"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// buildOrchestrator assembles the pipeline for the configured repo. Commands
// that never call the model (analyze, report, serve) pass needLLM=false and
// run with the provider disabled when no API key is available, instead of
// failing.
func buildOrchestrator(ctx context.Context, needLLM bool) (*orchestrator.Orchestrator, error) {
	runCfg := *cfg
	if !needLLM && runCfg.LLM.Provider == "gemini" && runCfg.LLM.APIKey == "" {
		observability.GetLogger().Warn("No API key configured, running with the LLM provider disabled")
		runCfg.LLM.Provider = "none"
	}
	return orchestrator.New(ctx, &runCfg, repoPath, observability.GetLogger())
}

// openAuditLog opens the audit surface directly, without the rest of the
// pipeline, for the log-inspection commands.
func openAuditLog() (*audit.Log, error) {
	return audit.New(repoRelative(cfg.Paths.AuditLog), observability.GetLogger())
}

// openCoordinator opens the commit surface directly for the commits and
// status commands.
func openCoordinator() (*vcs.Coordinator, *audit.Log, error) {
	auditLog, err := openAuditLog()
	if err != nil {
		return nil, nil, err
	}
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		_ = auditLog.Close()
		return nil, nil, err
	}
	return vcs.New(abs, cfg.Fixer, auditLog, observability.GetLogger()), auditLog, nil
}

func repoRelative(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(repoPath, path)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

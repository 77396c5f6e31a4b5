// Package orchestrator drives the full pipeline: scan, detect, retrieve
// context, propose fixes, apply patches, and commit settled batches. It owns
// the lifecycle of every component and is the only package the CLI and the
// HTTP surface talk to.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/audit"
	"github.com/xkilldash9x/suture-cli/internal/autofix"
	"github.com/xkilldash9x/suture-cli/internal/config"
	"github.com/xkilldash9x/suture-cli/internal/detector"
	"github.com/xkilldash9x/suture-cli/internal/editor"
	"github.com/xkilldash9x/suture-cli/internal/index"
	"github.com/xkilldash9x/suture-cli/internal/llmclient"
	"github.com/xkilldash9x/suture-cli/internal/repo"
	"github.com/xkilldash9x/suture-cli/internal/testgen"
	"github.com/xkilldash9x/suture-cli/internal/vcs"
)

// contextChunksPerFix is how many retrieved chunks ground each fix prompt.
const contextChunksPerFix = 3

// Orchestrator wires every pipeline component over one repository root.
type Orchestrator struct {
	cfg      *config.Config
	repoPath string
	log      *zap.Logger

	source      *repo.Source
	runner      *detector.Runner
	complexity  *detector.ComplexityDetector
	auditLog    *audit.Log
	contextIdx  *index.Index
	store       *index.Store
	editor      *editor.Editor
	agent       *autofix.Agent
	coordinator *vcs.Coordinator
	generator   *testgen.Generator
	llm         schemas.LLMClient
}

// New assembles the pipeline for one repository. The repo path must exist;
// everything else (audit log, index, backup dir) is created on demand under
// the configured paths, resolved relative to the repo when not absolute.
func New(ctx context.Context, cfg *config.Config, repoPath string, logger *zap.Logger) (*Orchestrator, error) {
	absRepo, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repo path: %w", err)
	}
	info, err := os.Stat(absRepo)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("repo path %s is not a directory", repoPath)
	}

	auditLog, err := audit.New(resolvePath(absRepo, cfg.Paths.AuditLog), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	llm, err := llmclient.NewClient(ctx, cfg.LLM, logger)
	if err != nil {
		_ = auditLog.Close()
		return nil, err
	}
	embedder, err := llmclient.NewEmbedder(ctx, cfg.LLM, logger)
	if err != nil {
		_ = auditLog.Close()
		_ = llm.Close()
		return nil, err
	}
	var idxEmbedder schemas.Embedder = embedder
	if idxEmbedder == nil {
		// Offline runs still get retrieval through the deterministic
		// local embedder.
		idxEmbedder = index.NewLocalEmbedder()
	}

	store, err := index.OpenStore(resolvePath(absRepo, cfg.Paths.IndexDB))
	if err != nil {
		_ = auditLog.Close()
		_ = llm.Close()
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}

	ed := editor.New(absRepo, resolvePath(absRepo, cfg.Paths.BackupDir), logger)

	detectors := []schemas.Detector{
		detector.NewComplexityDetector(cfg.Analysis, logger),
		detector.NewDocstringDetector(logger),
	}
	if lint := detector.NewLintDetector(cfg.Analysis.LintCommand, logger); lint != nil {
		detectors = append(detectors, lint)
	}

	return &Orchestrator{
		cfg:         cfg,
		repoPath:    absRepo,
		log:         logger.Named("orchestrator"),
		source:      repo.NewSource(cfg.Analysis, logger),
		runner:      detector.NewRunner(detectors, auditLog, logger),
		complexity:  detector.NewComplexityDetector(cfg.Analysis, logger),
		auditLog:    auditLog,
		contextIdx:  index.New(store, idxEmbedder, logger),
		store:       store,
		editor:      ed,
		agent:       autofix.New(llm, ed, auditLog, cfg.Fixer, cfg.LLM, logger),
		coordinator: vcs.New(absRepo, cfg.Fixer, auditLog, logger),
		generator:   testgen.New(llm, auditLog, logger),
		llm:         llm,
	}, nil
}

// Close releases the audit log, the index store, and the inference client.
func (o *Orchestrator) Close() error {
	var firstErr error
	for _, closeFn := range []func() error{o.auditLog.Close, o.store.Close, o.llm.Close} {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AuditLog exposes the audit surface for the CLI and HTTP server.
func (o *Orchestrator) AuditLog() *audit.Log { return o.auditLog }

// Coordinator exposes the commit surface for the CLI and HTTP server.
func (o *Orchestrator) Coordinator() *vcs.Coordinator { return o.coordinator }

// RepoPath returns the absolute repository root.
func (o *Orchestrator) RepoPath() string { return o.repoPath }

// Analyze scans the repository and runs every detector over every selected
// file in parallel. The returned issues are sorted by remediation priority.
func (o *Orchestrator) Analyze(ctx context.Context) (*schemas.AnalyzeReport, error) {
	files, err := o.source.ListFiles(o.repoPath)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var issues []schemas.Issue

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.cfg.Fixer.Concurrency)
	for _, file := range files {
		file := file
		group.Go(func() error {
			found, err := o.runner.DetectFile(groupCtx, file, uuid.NewString())
			if err != nil {
				return err
			}
			mu.Lock()
			issues = append(issues, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	detector.SortByPriority(issues)

	filesWithIssues := make(map[string]bool)
	for _, issue := range issues {
		filesWithIssues[issue.FilePath] = true
	}
	o.log.Info("Analysis complete",
		zap.Int("files", len(files)),
		zap.Int("issues", len(issues)))
	return &schemas.AnalyzeReport{
		RepoPath:        o.repoPath,
		FilesAnalyzed:   len(files),
		TotalIssues:     len(issues),
		FilesWithIssues: len(filesWithIssues),
		Issues:          issues,
	}, nil
}

// Fix runs the full remediation pipeline. Issues are grouped per file; files
// are processed in parallel under the configured concurrency while issues
// within one file run sequentially, bottom-up, so an applied patch never
// shifts the line range of the next issue in that file. After every issue
// reaches a terminal state the applied set is committed in batches. A
// non-empty taskOverride forces that remediation strategy for every issue.
func (o *Orchestrator) Fix(ctx context.Context, taskOverride schemas.TaskType, dryRun bool) (*schemas.FixReport, error) {
	files, err := o.source.ListFiles(o.repoPath)
	if err != nil {
		return nil, err
	}
	analysis, err := o.Analyze(ctx)
	if err != nil {
		return nil, err
	}
	report := &schemas.FixReport{RepoPath: o.repoPath, DryRun: dryRun}
	if analysis.TotalIssues == 0 {
		return report, nil
	}

	if err := o.contextIdx.Ingest(ctx, files); err != nil {
		// Retrieval is best-effort; fixes proceed without grounding.
		o.log.Warn("Context ingestion failed", zap.Error(err))
	}

	var mu sync.Mutex
	var applied []vcs.AppliedFix
	var attempts []schemas.FixAttempt

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.cfg.Fixer.Concurrency)
	for _, fileIssues := range groupByFile(analysis.Issues) {
		fileIssues := fileIssues
		group.Go(func() error {
			for _, issue := range fileIssues {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				issueAttempts, fix := o.fixOne(groupCtx, issue, taskOverride, dryRun)
				mu.Lock()
				attempts = append(attempts, issueAttempts...)
				if fix != nil {
					applied = append(applied, *fix)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	waitErr := group.Wait()

	report.Attempts = attempts
	// Each issue is settled by its last attempt; attempts for one issue are
	// appended as a block, so the map ends up holding the terminal one.
	finalOutcomes := make(map[string]schemas.AttemptOutcome, len(attempts))
	for _, attempt := range attempts {
		finalOutcomes[attempt.IssueID] = attempt.Outcome
	}
	for _, outcome := range finalOutcomes {
		if outcome == schemas.OutcomeApplied {
			report.FixesApplied++
		} else {
			report.FixesFailed++
		}
	}

	cancelled := waitErr != nil && errors.Is(waitErr, context.Canceled)
	if waitErr != nil && !cancelled {
		return report, waitErr
	}
	if cancelled && !o.cfg.Fixer.CommitPartialOnCancel {
		o.recordFixSummary(report, "run cancelled, applied edits left uncommitted")
		return report, waitErr
	}

	// The commit batch runs after the barrier, detached from the (possibly
	// cancelled) run context.
	records, commitErr := o.coordinator.CommitBatch(context.WithoutCancel(ctx), applied, dryRun)
	for _, record := range records {
		report.Commits = append(report.Commits, record)
		report.CommitIDs = append(report.CommitIDs, record.CommitID)
	}
	switch {
	case commitErr == nil:
	case errors.Is(commitErr, vcs.ErrNotARepository):
		o.log.Warn("Not a git repository, applied edits left uncommitted")
	default:
		o.recordFixSummary(report, "commit failed, applied edits kept on disk")
		return report, commitErr
	}

	o.recordFixSummary(report, "fix run complete")
	if cancelled {
		return report, waitErr
	}
	return report, nil
}

// fixOne takes a single issue through proposal and application. The returned
// AppliedFix is non-nil only when a patch landed on disk (or, under dry-run,
// passed validation).
func (o *Orchestrator) fixOne(ctx context.Context, issue schemas.Issue, taskOverride schemas.TaskType, dryRun bool) ([]schemas.FixAttempt, *vcs.AppliedFix) {
	correlationID := uuid.NewString()
	task := taskOverride
	if task == "" {
		task = schemas.TaskTypeForCategory(issue.Category)
	}

	targetPath := filepath.Join(o.repoPath, issue.FilePath)
	chunks := o.contextIdx.Query(ctx, o.issueSnippet(targetPath, issue), contextChunksPerFix, issue.FilePath)

	attempts := o.agent.ProposeFix(ctx, issue, task, chunks, targetPath, correlationID)
	final := attempts[len(attempts)-1]
	if final.Outcome != schemas.OutcomeApplied || final.ParsedPatch == nil {
		return attempts, nil
	}

	fix := &vcs.AppliedFix{IssueID: issue.ID, FilePath: issue.FilePath, Category: issue.Category}
	if dryRun {
		return attempts, fix
	}

	lang := schemas.LanguageFromExtension(filepath.Ext(issue.FilePath))
	result, err := o.editor.Apply(ctx, *final.ParsedPatch, lang)
	success := err == nil && result.Outcome == schemas.OutcomeApplied
	o.auditLog.Record(schemas.LogEvent{
		CorrelationID: correlationID,
		OperationType: schemas.OpCodeEdit,
		FilePath:      issue.FilePath,
		Message:       editMessage(result, err),
		Payload: map[string]any{
			"backup": result.BackupPath,
			"issue":  issue.ID,
		},
		Success: success,
	})
	if !success {
		// The validated attempt stays as recorded; the apply-time rejection
		// (hash drift, backup or write failure) is a new terminal attempt.
		rejection := final
		rejection.AttemptNumber = final.AttemptNumber + 1
		rejection.ParsedPatch = nil
		rejection.Outcome = result.Outcome
		rejection.ValidationResult = editMessage(result, err)
		if err != nil {
			rejection.Outcome = schemas.OutcomeRejectedSemantics
		}
		return append(attempts, rejection), nil
	}
	return attempts, fix
}

// GenerateTests writes unit-test files for sources that lack them. A
// non-empty filePath restricts the run to that one file (relative to the
// repo root).
func (o *Orchestrator) GenerateTests(ctx context.Context, filePath string, force bool) (*schemas.TestGenReport, error) {
	files, err := o.source.ListFiles(o.repoPath)
	if err != nil {
		return nil, err
	}

	o.generator.Force = force
	report := &schemas.TestGenReport{RepoPath: o.repoPath}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if testgen.IsTestFile(file.RelPath) {
			continue
		}
		if filePath != "" && file.RelPath != filepath.Clean(filePath) {
			continue
		}
		report.TotalFiles++
		written, err := o.generator.Generate(ctx, o.repoPath, file)
		if err != nil {
			o.log.Warn("Test generation failed for file",
				zap.String("file", file.RelPath), zap.Error(err))
			continue
		}
		if written != "" {
			report.SuccessCount++
			report.Generated = append(report.Generated, written)
		}
	}
	if filePath != "" && report.TotalFiles == 0 {
		return nil, fmt.Errorf("file %s was not selected for analysis", filePath)
	}
	return report, nil
}

// Report computes the aggregate quality document: per-file metrics, issue
// counts by category, and fix statistics from the audit log.
func (o *Orchestrator) Report(ctx context.Context) (*schemas.QualityReport, error) {
	analysis, err := o.Analyze(ctx)
	if err != nil {
		return nil, err
	}

	issuesPerFile := make(map[string]int)
	byCategory := make(map[string]int)
	for _, issue := range analysis.Issues {
		issuesPerFile[issue.FilePath]++
		byCategory[string(issue.Category)]++
	}

	files, err := o.source.ListFiles(o.repoPath)
	if err != nil {
		return nil, err
	}
	report := &schemas.QualityReport{
		RepoPath:    o.repoPath,
		GeneratedAt: time.Now().UTC(),
		TotalIssues: analysis.TotalIssues,
		ByCategory:  byCategory,
	}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := os.ReadFile(file.Path)
		if err != nil {
			continue
		}
		metrics, err := o.complexity.Metrics(ctx, file, content)
		if err != nil {
			// Unsupported languages still count their issues.
			metrics = schemas.FileMetrics{FilePath: file.RelPath}
		}
		metrics.IssueCount = issuesPerFile[file.RelPath]
		report.Files = append(report.Files, metrics)
	}
	sort.Slice(report.Files, func(i, j int) bool {
		return report.Files[i].FilePath < report.Files[j].FilePath
	})

	stats, err := o.auditLog.GetStatistics()
	if err != nil {
		return nil, err
	}
	report.Statistics = stats
	return report, nil
}

func (o *Orchestrator) recordFixSummary(report *schemas.FixReport, message string) {
	o.auditLog.Record(schemas.LogEvent{
		OperationType: schemas.OpFixSummary,
		Message:       message,
		Payload: map[string]any{
			"applied": report.FixesApplied,
			"failed":  report.FixesFailed,
			"dry_run": report.DryRun,
			"commits": len(report.Commits),
		},
		Success: report.FixesFailed == 0,
	})
}

// issueSnippet extracts the issue's source region as the retrieval query.
func (o *Orchestrator) issueSnippet(targetPath string, issue schemas.Issue) string {
	content, err := os.ReadFile(targetPath)
	if err != nil {
		return issue.Message
	}
	lines := strings.Split(string(content), "\n")
	if issue.LineRange.Start < 1 || issue.LineRange.Start > len(lines) {
		return issue.Message
	}
	end := issue.LineRange.End
	if end > len(lines) {
		end = len(lines)
	}
	snippet := strings.TrimSpace(strings.Join(lines[issue.LineRange.Start-1:end], "\n"))
	if snippet == "" {
		return issue.Message
	}
	return snippet
}

// groupByFile buckets issues per file, keeping files ordered by their most
// urgent issue and issues within a file ordered bottom-up.
func groupByFile(issues []schemas.Issue) [][]schemas.Issue {
	byFile := make(map[string][]schemas.Issue)
	var order []string
	for _, issue := range issues {
		if _, seen := byFile[issue.FilePath]; !seen {
			order = append(order, issue.FilePath)
		}
		byFile[issue.FilePath] = append(byFile[issue.FilePath], issue)
	}

	groups := make([][]schemas.Issue, 0, len(order))
	for _, file := range order {
		group := byFile[file]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].LineRange.Start > group[j].LineRange.Start
		})
		groups = append(groups, group)
	}
	return groups
}

func editMessage(result schemas.EditResult, err error) string {
	if err != nil {
		return fmt.Sprintf("edit failed: %v", err)
	}
	if result.Outcome == schemas.OutcomeApplied {
		return "patch applied"
	}
	return fmt.Sprintf("patch rejected: %s", result.Reason)
}

func resolvePath(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

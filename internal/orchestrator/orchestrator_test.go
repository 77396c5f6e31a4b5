package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/autofix"
	"github.com/xkilldash9x/suture-cli/internal/config"
	"github.com/xkilldash9x/suture-cli/internal/testgen"
)

// undocumentedSource has exactly one finding: an exported function with no
// doc comment.
const undocumentedSource = `package widget

func Exported() int {
	return 1
}
`

const documentedReplacement = `// Exported returns the widget count.
func Exported() int {
	return 1
}`

const cleanSource = `package widget

// Tidy is documented and trivially simple.
func Tidy() int {
	return 1
}
`

// replyLLM answers every generation request with the same canned fix.
type replyLLM struct {
	code  string
	calls int
}

func (m *replyLLM) Generate(context.Context, schemas.GenerationRequest) (string, error) {
	m.calls++
	return fmt.Sprintf(`{"explanation":"added docs","root_cause":"missing doc comment","confidence":0.9,"replacement_code":%q}`, m.code), nil
}

func (m *replyLLM) Close() error { return nil }

func testCfg() *config.Config {
	return &config.Config{
		Analysis: config.AnalysisConfig{
			MaxComplexity:           50,
			MinMaintainabilityIndex: 0,
			MaxFileSize:             512 * 1024,
			Extensions:              []string{".go", ".py"},
			ExcludedDirs:            []string{".git", ".suture", "vendor"},
		},
		LLM: config.LLMConfig{
			Provider:       "none",
			Temperature:    0.2,
			RequestTimeout: 30 * time.Second,
			RequestsPerSec: 10,
		},
		Fixer: config.FixerConfig{
			MaxRetries:          1,
			Concurrency:         2,
			MinConfidence:       0.5,
			MaxChangesPerCommit: 10,
		},
		Paths: config.PathsConfig{
			BackupDir: ".suture/backups",
			AuditLog:  ".suture/audit.jsonl",
			IndexDB:   ".suture/index.db",
		},
	}
}

type orchHarness struct {
	orch *Orchestrator
	root string
}

func newOrchHarness(t *testing.T, cfg *config.Config) *orchHarness {
	t.Helper()
	root := t.TempDir()
	orch, err := New(context.Background(), cfg, root, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = orch.Close() })
	return &orchHarness{orch: orch, root: root}
}

func (h *orchHarness) writeFile(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(h.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (h *orchHarness) initGit(t *testing.T, files ...string) {
	t.Helper()
	repo, err := git.PlainInit(h.root, false)
	require.NoError(t, err)
	worktree, err := repo.Worktree()
	require.NoError(t, err)
	for _, file := range files {
		_, err = worktree.Add(file)
		require.NoError(t, err)
	}
	_, err = worktree.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@localhost", When: time.Now()},
	})
	require.NoError(t, err)
}

// useLLM swaps the disabled offline client for a scripted one.
func (h *orchHarness) useLLM(t *testing.T, llm schemas.LLMClient) {
	t.Helper()
	h.orch.agent = autofix.New(llm, h.orch.editor, h.orch.auditLog,
		h.orch.cfg.Fixer, h.orch.cfg.LLM, zaptest.NewLogger(t))
	h.orch.agent.SetSleep(func(context.Context, time.Duration) error { return nil })
	h.orch.generator = testgen.New(llm, h.orch.auditLog, zaptest.NewLogger(t))
}

func TestAnalyzeFindsAndSortsIssues(t *testing.T) {
	h := newOrchHarness(t, testCfg())
	h.writeFile(t, "widget.go", undocumentedSource)
	h.writeFile(t, "clean.go", cleanSource)

	report, err := h.orch.Analyze(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.FilesAnalyzed)
	assert.Equal(t, 1, report.TotalIssues)
	assert.Equal(t, 1, report.FilesWithIssues)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, schemas.CategoryDocstring, report.Issues[0].Category)
	assert.Equal(t, "widget.go", report.Issues[0].FilePath)
}

func TestAnalyzeEmptyRepo(t *testing.T) {
	h := newOrchHarness(t, testCfg())
	report, err := h.orch.Analyze(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.FilesAnalyzed)
	assert.Zero(t, report.TotalIssues)
}

func TestFixAppliesAndCommits(t *testing.T) {
	h := newOrchHarness(t, testCfg())
	h.writeFile(t, "widget.go", undocumentedSource)
	h.initGit(t, "widget.go")
	h.useLLM(t, &replyLLM{code: documentedReplacement})

	report, err := h.orch.Fix(context.Background(), "", false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.FixesApplied)
	assert.Zero(t, report.FixesFailed)
	require.Len(t, report.Commits, 1)
	assert.False(t, report.Commits[0].Projected)
	assert.Equal(t, "Add docstrings in widget.go", report.Commits[0].Message)

	content, err := os.ReadFile(filepath.Join(h.root, "widget.go"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "// Exported returns the widget count.")

	// A backup of the original was taken before the write.
	commits, err := h.orch.Coordinator().GetCommits(0)
	require.NoError(t, err)
	assert.Len(t, commits, 2)
}

func TestFixDryRunIsPure(t *testing.T) {
	h := newOrchHarness(t, testCfg())
	h.writeFile(t, "widget.go", undocumentedSource)
	h.initGit(t, "widget.go")
	h.useLLM(t, &replyLLM{code: documentedReplacement})

	report, err := h.orch.Fix(context.Background(), "", true)
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.FixesApplied)
	require.Len(t, report.Commits, 1)
	assert.True(t, report.Commits[0].Projected)

	// No file writes, no real commits.
	content, err := os.ReadFile(filepath.Join(h.root, "widget.go"))
	require.NoError(t, err)
	assert.Equal(t, undocumentedSource, string(content))
	commits, err := h.orch.Coordinator().GetCommits(0)
	require.NoError(t, err)
	assert.Len(t, commits, 1)
}

func TestFixWithoutGitKeepsEdits(t *testing.T) {
	h := newOrchHarness(t, testCfg())
	h.writeFile(t, "widget.go", undocumentedSource)
	h.useLLM(t, &replyLLM{code: documentedReplacement})

	report, err := h.orch.Fix(context.Background(), "", false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.FixesApplied)
	assert.Empty(t, report.Commits)

	content, err := os.ReadFile(filepath.Join(h.root, "widget.go"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "// Exported returns the widget count.")
}

func TestFixApplyFailureCountsAsFailed(t *testing.T) {
	h := newOrchHarness(t, testCfg())
	h.writeFile(t, "widget.go", undocumentedSource)
	h.useLLM(t, &replyLLM{code: documentedReplacement})

	// A regular file where the backup tree belongs makes every apply fail
	// after the proposal already validated.
	h.writeFile(t, ".suture/backups", "not a directory")

	report, err := h.orch.Fix(context.Background(), "", false)
	require.NoError(t, err)

	assert.Zero(t, report.FixesApplied)
	assert.Equal(t, 1, report.FixesFailed)
	assert.Empty(t, report.Commits)

	// The validated attempt keeps its outcome; the apply failure lands as a
	// separate terminal attempt.
	require.Len(t, report.Attempts, 2)
	assert.Equal(t, schemas.OutcomeApplied, report.Attempts[0].Outcome)
	rejection := report.Attempts[1]
	assert.Equal(t, 2, rejection.AttemptNumber)
	assert.Equal(t, schemas.OutcomeRejectedSemantics, rejection.Outcome)
	assert.Contains(t, rejection.ValidationResult, "failed to back up")
	assert.Nil(t, rejection.ParsedPatch)

	content, err := os.ReadFile(filepath.Join(h.root, "widget.go"))
	require.NoError(t, err)
	assert.Equal(t, undocumentedSource, string(content))
}

func TestFixOfflineProviderExhaustsRetries(t *testing.T) {
	h := newOrchHarness(t, testCfg())
	h.writeFile(t, "widget.go", undocumentedSource)
	h.orch.agent.SetSleep(func(context.Context, time.Duration) error { return nil })

	report, err := h.orch.Fix(context.Background(), "", false)
	require.NoError(t, err)

	assert.Zero(t, report.FixesApplied)
	assert.Equal(t, 1, report.FixesFailed)
	// max_retries(1) + 1 attempts, all against the disabled provider.
	assert.Len(t, report.Attempts, 2)
	assert.Equal(t, schemas.OutcomeExhaustedRetries, report.Attempts[1].Outcome)
}

func TestFixNoIssuesIsNoOp(t *testing.T) {
	h := newOrchHarness(t, testCfg())
	h.writeFile(t, "clean.go", cleanSource)
	llm := &replyLLM{code: documentedReplacement}
	h.useLLM(t, llm)

	report, err := h.orch.Fix(context.Background(), "", false)
	require.NoError(t, err)
	assert.Zero(t, report.FixesApplied)
	assert.Zero(t, llm.calls)
}

func TestGenerateTestsSingleFile(t *testing.T) {
	h := newOrchHarness(t, testCfg())
	h.writeFile(t, "widget.go", undocumentedSource)
	h.writeFile(t, "clean.go", cleanSource)
	h.useLLM(t, &replyLLM{code: ""})

	// The canned JSON reply is not a valid Go test file, so generation is
	// attempted but rejected by syntax validation.
	report, err := h.orch.GenerateTests(context.Background(), "widget.go", false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalFiles)
	assert.Zero(t, report.SuccessCount)

	_, err = h.orch.GenerateTests(context.Background(), "missing.go", false)
	require.Error(t, err)
}

func TestReportAggregatesMetrics(t *testing.T) {
	h := newOrchHarness(t, testCfg())
	h.writeFile(t, "widget.go", undocumentedSource)
	h.writeFile(t, "clean.go", cleanSource)

	report, err := h.orch.Report(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.TotalIssues)
	assert.Equal(t, 1, report.ByCategory[string(schemas.CategoryDocstring)])
	require.Len(t, report.Files, 2)
	assert.Equal(t, "clean.go", report.Files[0].FilePath)
	assert.Equal(t, "widget.go", report.Files[1].FilePath)
	assert.Equal(t, 1, report.Files[1].IssueCount)
	assert.Equal(t, 1, report.Files[1].FunctionCount)
	assert.Greater(t, report.Files[0].MaintainabilityIndex, 0.0)
}

func TestNewRejectsMissingRepo(t *testing.T) {
	_, err := New(context.Background(), testCfg(), filepath.Join(t.TempDir(), "nope"), zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestGroupByFileBottomUp(t *testing.T) {
	t.Parallel()
	issues := []schemas.Issue{
		{ID: "a1", FilePath: "a.go", LineRange: schemas.LineRange{Start: 3, End: 5}},
		{ID: "b1", FilePath: "b.go", LineRange: schemas.LineRange{Start: 10, End: 12}},
		{ID: "a2", FilePath: "a.go", LineRange: schemas.LineRange{Start: 20, End: 25}},
	}
	groups := groupByFile(issues)
	require.Len(t, groups, 2)
	require.Len(t, groups[0], 2)
	// Within a file, higher line ranges come first.
	assert.Equal(t, "a2", groups[0][0].ID)
	assert.Equal(t, "a1", groups[0][1].ID)
	assert.Equal(t, "b1", groups[1][0].ID)
}

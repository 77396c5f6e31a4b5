package vcs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/audit"
	"github.com/xkilldash9x/suture-cli/internal/config"
)

type vcsHarness struct {
	root        string
	repo        *git.Repository
	coordinator *Coordinator
	auditLog    *audit.Log
}

func newVCSHarness(t *testing.T, maxChanges int) *vcsHarness {
	t.Helper()
	root := t.TempDir()

	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)

	// The audit log lives outside the repo so it never shows up as untracked.
	auditLog, err := audit.New(filepath.Join(t.TempDir(), "audit.jsonl"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditLog.Close() })

	h := &vcsHarness{
		root:     root,
		repo:     repo,
		auditLog: auditLog,
		coordinator: New(root, config.FixerConfig{
			MaxRetries:          2,
			Concurrency:         1,
			MinConfidence:       0.5,
			MaxChangesPerCommit: maxChanges,
		}, auditLog, zaptest.NewLogger(t)),
	}

	h.writeFile(t, "a.go", "package main\n")
	h.writeFile(t, "b.go", "package main\n")
	h.initialCommit(t)
	return h
}

func (h *vcsHarness) writeFile(t *testing.T, rel, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.root, rel), []byte(content), 0o644))
}

func (h *vcsHarness) initialCommit(t *testing.T) {
	t.Helper()
	worktree, err := h.repo.Worktree()
	require.NoError(t, err)
	_, err = worktree.Add("a.go")
	require.NoError(t, err)
	_, err = worktree.Add("b.go")
	require.NoError(t, err)
	_, err = worktree.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@localhost", When: time.Now()},
	})
	require.NoError(t, err)
}

func (h *vcsHarness) headCount(t *testing.T) int {
	t.Helper()
	head, err := h.repo.Head()
	require.NoError(t, err)
	iter, err := h.repo.Log(&git.LogOptions{From: head.Hash()})
	require.NoError(t, err)
	defer iter.Close()
	count := 0
	require.NoError(t, iter.ForEach(func(*object.Commit) error {
		count++
		return nil
	}))
	return count
}

func TestCommitBatchSingleCategory(t *testing.T) {
	h := newVCSHarness(t, 10)
	h.writeFile(t, "a.go", "package main\n\nfunc Fixed() {}\n")

	records, err := h.coordinator.CommitBatch(context.Background(), []AppliedFix{
		{IssueID: "i1", FilePath: "a.go", Category: schemas.CategoryBug},
	}, false)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "Fix bug in a.go", records[0].Message)
	assert.Equal(t, []string{"a.go"}, records[0].FileSet)
	assert.Equal(t, []string{"i1"}, records[0].IssueIDsResolved)
	assert.False(t, records[0].Projected)
	assert.Equal(t, 2, h.headCount(t))

	events, err := h.auditLog.GetLogs(audit.Filter{OperationType: schemas.OpGitCommit})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Success)
}

func TestCommitBatchStagesOnlyAppliedFiles(t *testing.T) {
	h := newVCSHarness(t, 10)
	h.writeFile(t, "a.go", "package main\n\nfunc Fixed() {}\n")
	h.writeFile(t, "b.go", "package main\n\n// unrelated local edit\n")

	_, err := h.coordinator.CommitBatch(context.Background(), []AppliedFix{
		{IssueID: "i1", FilePath: "a.go", Category: schemas.CategoryStyle},
	}, false)
	require.NoError(t, err)

	status, err := h.coordinator.GetRepoStatus()
	require.NoError(t, err)
	assert.False(t, status.Clean, "the unrelated edit to b.go survives the commit")
	assert.Equal(t, 1, status.ModifiedCount)
}

func TestCommitBatchSplitsByMaxChanges(t *testing.T) {
	h := newVCSHarness(t, 1)
	h.writeFile(t, "a.go", "package main\n\nfunc A() {}\n")
	h.writeFile(t, "b.go", "package main\n\nfunc B() {}\n")

	records, err := h.coordinator.CommitBatch(context.Background(), []AppliedFix{
		{IssueID: "i1", FilePath: "a.go", Category: schemas.CategoryStyle},
		{IssueID: "i2", FilePath: "b.go", Category: schemas.CategoryStyle},
	}, false)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 3, h.headCount(t))
	assert.Equal(t, []string{"a.go"}, records[0].FileSet)
	assert.Equal(t, []string{"b.go"}, records[1].FileSet)
}

func TestCommitBatchCountsFilesNotIssues(t *testing.T) {
	h := newVCSHarness(t, 1)
	h.writeFile(t, "a.go", "package main\n\nfunc A() {}\n")

	// Two issues in the same file fit a single one-file batch.
	records, err := h.coordinator.CommitBatch(context.Background(), []AppliedFix{
		{IssueID: "i1", FilePath: "a.go", Category: schemas.CategoryStyle},
		{IssueID: "i2", FilePath: "a.go", Category: schemas.CategoryDocstring},
	}, false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.ElementsMatch(t, []string{"i1", "i2"}, records[0].IssueIDsResolved)
}

func TestCommitMessageMixedCategories(t *testing.T) {
	h := newVCSHarness(t, 10)
	h.writeFile(t, "a.go", "package main\n\nfunc A() {}\n")
	h.writeFile(t, "b.go", "package main\n\nfunc B() {}\n")

	records, err := h.coordinator.CommitBatch(context.Background(), []AppliedFix{
		{IssueID: "i1", FilePath: "a.go", Category: schemas.CategoryDocstring},
		{IssueID: "i2", FilePath: "b.go", Category: schemas.CategoryBug},
	}, false)
	require.NoError(t, err)
	require.Len(t, records, 1)

	msg := records[0].Message
	assert.Contains(t, msg, "Apply 2 automated code quality fixes")
	assert.Contains(t, msg, "- Fix bug (1)")
	assert.Contains(t, msg, "- Add docstrings (1)")
	// Higher-priority categories come first.
	assert.Less(t, strings.Index(msg, "Fix bug"), strings.Index(msg, "Add docstrings"))
}

func TestDryRunProjectsWithoutCommitting(t *testing.T) {
	h := newVCSHarness(t, 10)
	h.writeFile(t, "a.go", "package main\n\nfunc A() {}\n")

	records, err := h.coordinator.CommitBatch(context.Background(), []AppliedFix{
		{IssueID: "i1", FilePath: "a.go", Category: schemas.CategoryBug},
	}, true)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.True(t, records[0].Projected)
	assert.Contains(t, records[0].CommitID, "projected-")
	assert.Equal(t, "Fix bug in a.go", records[0].Message)
	assert.Equal(t, 1, h.headCount(t), "no commit was created")

	status, err := h.coordinator.GetRepoStatus()
	require.NoError(t, err)
	assert.False(t, status.Clean)
}

func TestCommitBatchEmptyInput(t *testing.T) {
	h := newVCSHarness(t, 10)
	records, err := h.coordinator.CommitBatch(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNotARepository(t *testing.T) {
	root := t.TempDir()
	auditLog, err := audit.New(filepath.Join(root, "audit.jsonl"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditLog.Close() })

	coordinator := New(root, config.FixerConfig{MaxChangesPerCommit: 10}, auditLog, zaptest.NewLogger(t))

	_, err = coordinator.CommitBatch(context.Background(), []AppliedFix{
		{IssueID: "i1", FilePath: "a.go", Category: schemas.CategoryBug},
	}, false)
	require.ErrorIs(t, err, ErrNotARepository)

	_, err = coordinator.GetRepoStatus()
	require.ErrorIs(t, err, ErrNotARepository)

	_, err = coordinator.GetCommits(10)
	require.ErrorIs(t, err, ErrNotARepository)
}

func TestGetCommitsNewestFirstWithLimit(t *testing.T) {
	h := newVCSHarness(t, 10)

	for i, name := range []string{"a.go", "b.go"} {
		h.writeFile(t, name, "package main\n\nfunc Edit"+name[:1]+"() {}\n")
		_, err := h.coordinator.CommitBatch(context.Background(), []AppliedFix{
			{IssueID: "i" + string(rune('1'+i)), FilePath: name, Category: schemas.CategoryStyle},
		}, false)
		require.NoError(t, err)
	}

	all, err := h.coordinator.GetCommits(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Improve code style in b.go", all[0].Message)
	assert.Equal(t, []string{"b.go"}, all[0].FileSet)

	limited, err := h.coordinator.GetCommits(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestGetRepoStatusCounts(t *testing.T) {
	h := newVCSHarness(t, 10)

	status, err := h.coordinator.GetRepoStatus()
	require.NoError(t, err)
	assert.True(t, status.Clean)
	assert.Equal(t, "master", status.Branch)

	h.writeFile(t, "a.go", "package main\n\nfunc Changed() {}\n")
	h.writeFile(t, "new.go", "package main\n")

	status, err = h.coordinator.GetRepoStatus()
	require.NoError(t, err)
	assert.False(t, status.Clean)
	assert.Equal(t, 1, status.ModifiedCount)
	assert.Equal(t, 1, status.UntrackedCount)
}

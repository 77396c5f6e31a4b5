// Package vcs turns settled batches of applied fixes into git commits. Only
// the files the pipeline actually modified are staged; anything else dirty in
// the working tree is left alone.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/audit"
	"github.com/xkilldash9x/suture-cli/internal/config"
)

// ErrNotARepository is returned when the analyzed directory is not under git
// control. Analysis and fixing still work; committing does not.
var ErrNotARepository = errors.New("target directory is not a git repository")

const (
	commitAuthorName  = "suture"
	commitAuthorEmail = "suture@localhost"
)

// commitActions maps an issue category to the verb phrase used in commit
// messages.
var commitActions = map[schemas.IssueCategory]string{
	schemas.CategoryBug:             "Fix bug",
	schemas.CategoryComplexity:      "Reduce complexity",
	schemas.CategoryStyle:           "Improve code style",
	schemas.CategoryDocstring:       "Add docstrings",
	schemas.CategoryMaintainability: "Improve maintainability",
}

// AppliedFix identifies one successfully applied patch awaiting commit.
type AppliedFix struct {
	IssueID  string
	FilePath string // Relative to the repository root.
	Category schemas.IssueCategory
}

// Coordinator batches applied fixes into commits.
type Coordinator struct {
	repoRoot string
	cfg      config.FixerConfig
	auditLog *audit.Log
	log      *zap.Logger
}

// New creates a Coordinator rooted at repoRoot. The root does not have to be
// a git repository until a commit is actually requested.
func New(repoRoot string, cfg config.FixerConfig, auditLog *audit.Log, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		repoRoot: repoRoot,
		cfg:      cfg,
		auditLog: auditLog,
		log:      logger.Named("vcs"),
	}
}

// CommitBatch splits fixes into batches of at most MaxChangesPerCommit files
// and creates one commit per batch. On a commit failure the already-created
// commits are returned alongside the error; applied edits stay on disk either
// way. Under dry-run no repository state changes and the returned records are
// projections.
func (c *Coordinator) CommitBatch(ctx context.Context, fixes []AppliedFix, dryRun bool) ([]schemas.CommitRecord, error) {
	if len(fixes) == 0 {
		return nil, nil
	}

	batches := splitBatches(fixes, c.cfg.MaxChangesPerCommit)

	if dryRun {
		records := make([]schemas.CommitRecord, 0, len(batches))
		for _, batch := range batches {
			records = append(records, schemas.CommitRecord{
				CommitID:         "projected-" + uuid.NewString()[:8],
				FileSet:          batchFiles(batch),
				Message:          commitMessage(batch),
				Timestamp:        time.Now().UTC(),
				IssueIDsResolved: batchIssues(batch),
				Projected:        true,
			})
		}
		c.log.Info("Dry run: projected commits without touching the repository",
			zap.Int("commits", len(records)))
		return records, nil
	}

	repo, err := git.PlainOpen(c.repoRoot)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, ErrNotARepository
		}
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}

	var records []schemas.CommitRecord
	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		record, err := c.commitOne(worktree, batch)
		if err != nil {
			c.auditLog.Record(schemas.LogEvent{
				OperationType: schemas.OpGitCommit,
				Message:       fmt.Sprintf("commit failed: %v", err),
				Payload:       map[string]any{"files": batchFiles(batch)},
				Success:       false,
			})
			// Edits stay on disk; the operator can commit by hand.
			return records, fmt.Errorf("failed to commit batch: %w", err)
		}
		c.auditLog.Record(schemas.LogEvent{
			OperationType: schemas.OpGitCommit,
			Message:       record.Message,
			Payload: map[string]any{
				"commit_id": record.CommitID,
				"files":     record.FileSet,
				"issues":    record.IssueIDsResolved,
			},
			Success: true,
		})
		records = append(records, record)
	}
	return records, nil
}

func (c *Coordinator) commitOne(worktree *git.Worktree, batch []AppliedFix) (schemas.CommitRecord, error) {
	files := batchFiles(batch)
	for _, rel := range files {
		if _, err := worktree.Add(rel); err != nil {
			return schemas.CommitRecord{}, fmt.Errorf("failed to stage %s: %w", rel, err)
		}
	}

	message := commitMessage(batch)
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  commitAuthorName,
			Email: commitAuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return schemas.CommitRecord{}, err
	}

	c.log.Info("Committed fix batch",
		zap.String("commit", hash.String()),
		zap.Int("files", len(files)))
	return schemas.CommitRecord{
		CommitID:         hash.String(),
		FileSet:          files,
		Message:          message,
		Timestamp:        time.Now().UTC(),
		IssueIDsResolved: batchIssues(batch),
	}, nil
}

// GetCommits returns the most recent commits on HEAD, newest first.
func (c *Coordinator) GetCommits(max int) ([]schemas.CommitRecord, error) {
	repo, err := git.PlainOpen(c.repoRoot)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, ErrNotARepository
		}
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		// An initialized repository with no commits yet.
		return nil, nil
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("failed to read commit log: %w", err)
	}
	defer iter.Close()

	var records []schemas.CommitRecord
	err = iter.ForEach(func(commit *object.Commit) error {
		if max > 0 && len(records) >= max {
			return storer.ErrStop
		}
		record := schemas.CommitRecord{
			CommitID:  commit.Hash.String(),
			Message:   commit.Message,
			Timestamp: commit.Author.When,
		}
		if stats, err := commit.Stats(); err == nil {
			for _, stat := range stats {
				record.FileSet = append(record.FileSet, stat.Name)
			}
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate commits: %w", err)
	}
	return records, nil
}

// GetRepoStatus snapshots the working tree.
func (c *Coordinator) GetRepoStatus() (schemas.RepoStatus, error) {
	repo, err := git.PlainOpen(c.repoRoot)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return schemas.RepoStatus{}, ErrNotARepository
		}
		return schemas.RepoStatus{}, fmt.Errorf("failed to open repository: %w", err)
	}

	status := schemas.RepoStatus{Branch: "HEAD"}
	if head, err := repo.Head(); err == nil && head.Name().IsBranch() {
		status.Branch = head.Name().Short()
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return schemas.RepoStatus{}, fmt.Errorf("failed to open worktree: %w", err)
	}
	wtStatus, err := worktree.Status()
	if err != nil {
		return schemas.RepoStatus{}, fmt.Errorf("failed to read worktree status: %w", err)
	}

	for _, fileStatus := range wtStatus {
		if fileStatus.Worktree == git.Untracked {
			status.UntrackedCount++
			continue
		}
		if fileStatus.Worktree != git.Unmodified || fileStatus.Staging != git.Unmodified {
			status.ModifiedCount++
		}
	}
	status.Clean = wtStatus.IsClean()
	return status, nil
}

// splitBatches chunks fixes into groups of at most size files, counting each
// distinct file once no matter how many issues it resolved.
func splitBatches(fixes []AppliedFix, size int) [][]AppliedFix {
	if size < 1 {
		size = 1
	}
	var batches [][]AppliedFix
	var current []AppliedFix
	currentFiles := make(map[string]bool)

	for _, fix := range fixes {
		if !currentFiles[fix.FilePath] && len(currentFiles) >= size {
			batches = append(batches, current)
			current = nil
			currentFiles = make(map[string]bool)
		}
		current = append(current, fix)
		currentFiles[fix.FilePath] = true
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// commitMessage builds a deterministic message for one batch: a single-line
// action for a uniform batch, or a summary with per-category counts.
func commitMessage(batch []AppliedFix) string {
	counts := make(map[schemas.IssueCategory]int)
	for _, fix := range batch {
		counts[fix.Category]++
	}

	files := batchFiles(batch)
	if len(counts) == 1 {
		for category := range counts {
			action := commitActions[category]
			if action == "" {
				action = "Refactor code"
			}
			if len(files) == 1 {
				return fmt.Sprintf("%s in %s", action, files[0])
			}
			return fmt.Sprintf("%s across %d files", action, len(files))
		}
	}

	categories := make([]schemas.IssueCategory, 0, len(counts))
	for category := range counts {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool {
		return schemas.CategoryPriority(categories[i]) < schemas.CategoryPriority(categories[j])
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Apply %d automated code quality fixes\n", len(batch))
	for _, category := range categories {
		action := commitActions[category]
		if action == "" {
			action = "Refactor code"
		}
		fmt.Fprintf(&b, "\n- %s (%d)", action, counts[category])
	}
	return b.String()
}

func batchFiles(batch []AppliedFix) []string {
	seen := make(map[string]bool)
	var files []string
	for _, fix := range batch {
		if !seen[fix.FilePath] {
			seen[fix.FilePath] = true
			files = append(files, fix.FilePath)
		}
	}
	sort.Strings(files)
	return files
}

func batchIssues(batch []AppliedFix) []string {
	ids := make([]string, 0, len(batch))
	for _, fix := range batch {
		ids = append(ids, fix.IssueID)
	}
	return ids
}

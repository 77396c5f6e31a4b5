// Package editor applies validated patches to source files. Every apply is
// hash-checked against concurrent drift, structurally validated before any
// byte reaches disk, and preceded by a session backup so a run can always be
// rolled back file by file.
package editor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/syntax"
)

var (
	// ErrHashMismatch marks a patch built against stale file content.
	ErrHashMismatch = errors.New("file content changed since patch was created")
	// ErrRegionNotFound marks a patch whose span matches no structural node
	// and no valid line range.
	ErrRegionNotFound = errors.New("patch region not found in file")
)

// Editor serializes edits per file within one session and owns the session's
// backups.
type Editor struct {
	repoRoot string
	backups  *BackupSet
	parser   *syntax.Parser
	log      *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Editor for one fix session. Backups land under backupDir,
// mirrored by path relative to repoRoot.
func New(repoRoot, backupDir string, logger *zap.Logger) *Editor {
	return &Editor{
		repoRoot: repoRoot,
		backups:  NewBackupSet(repoRoot, backupDir),
		parser:   syntax.NewParser(),
		log:      logger.Named("editor"),
		locks:    make(map[string]*sync.Mutex),
	}
}

// ContentHash returns the hex sha256 of content, the hash form carried by
// every Patch.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Validate is the dry syntax check shared with the fix agent: it parses
// content and fails on any structural error, writing nothing.
func (e *Editor) Validate(ctx context.Context, content []byte, lang schemas.Language) error {
	return e.parser.Validate(ctx, content, lang)
}

// Preview computes the post-patch content without touching disk. The
// returned result carries the outcome the real apply would have had; the
// new content is only non-nil when that outcome is applied.
func (e *Editor) Preview(ctx context.Context, patch schemas.Patch, lang schemas.Language) ([]byte, schemas.EditResult, error) {
	current, err := os.ReadFile(patch.TargetFile)
	if err != nil {
		return nil, schemas.EditResult{}, fmt.Errorf("failed to read target file: %w", err)
	}
	return e.preview(ctx, current, patch, lang)
}

func (e *Editor) preview(ctx context.Context, current []byte, patch schemas.Patch, lang schemas.Language) ([]byte, schemas.EditResult, error) {
	result := schemas.EditResult{FilePath: patch.TargetFile}

	if ContentHash(current) != patch.OriginalContentHash {
		result.Outcome = schemas.OutcomeRejectedSemantics
		result.Reason = ErrHashMismatch.Error()
		return nil, result, nil
	}

	updated, err := e.splice(ctx, current, patch, lang)
	if err != nil {
		if errors.Is(err, ErrRegionNotFound) {
			result.Outcome = schemas.OutcomeRejectedSemantics
			result.Reason = err.Error()
			return nil, result, nil
		}
		return nil, result, err
	}

	if err := e.parser.Validate(ctx, updated, lang); err != nil {
		result.Outcome = schemas.OutcomeRejectedSyntax
		result.Reason = err.Error()
		return nil, result, nil
	}

	result.Outcome = schemas.OutcomeApplied
	return updated, result, nil
}

// Apply applies one patch: hash check, session backup, structural splice,
// re-validation, atomic write. On any rejection the on-disk file is left
// exactly as it was.
func (e *Editor) Apply(ctx context.Context, patch schemas.Patch, lang schemas.Language) (schemas.EditResult, error) {
	lock := e.fileLock(patch.TargetFile)
	lock.Lock()
	defer lock.Unlock()

	current, err := os.ReadFile(patch.TargetFile)
	if err != nil {
		return schemas.EditResult{}, fmt.Errorf("failed to read target file: %w", err)
	}

	updated, result, err := e.preview(ctx, current, patch, lang)
	if err != nil || result.Outcome != schemas.OutcomeApplied {
		return result, err
	}

	backupPath, err := e.backups.Ensure(patch.TargetFile, current)
	if err != nil {
		return schemas.EditResult{}, fmt.Errorf("failed to back up %s: %w", patch.TargetFile, err)
	}
	result.BackupPath = backupPath

	if err := writeAtomic(patch.TargetFile, updated); err != nil {
		return schemas.EditResult{}, err
	}
	e.log.Info("Patch applied",
		zap.String("file", patch.TargetFile),
		zap.Int("span_start", patch.RegionSpan.Start),
		zap.Int("span_end", patch.RegionSpan.End))
	return result, nil
}

// Rollback restores the session backup of file verbatim.
func (e *Editor) Rollback(file string) error {
	lock := e.fileLock(file)
	lock.Lock()
	defer lock.Unlock()
	return e.backups.Restore(file)
}

// Backups exposes the session's backup set for listing and cleanup.
func (e *Editor) Backups() *BackupSet {
	return e.backups
}

// splice replaces the patch region in current. It prefers an exact
// structural match: the named node whose line span equals the region. When
// no node lines up it falls back to replacing the raw line range, which the
// subsequent re-parse still guards.
func (e *Editor) splice(ctx context.Context, current []byte, patch schemas.Patch, lang schemas.Language) ([]byte, error) {
	span := patch.RegionSpan
	lines := strings.Split(string(current), "\n")
	if span.Start < 1 || span.End < span.Start || span.Start > len(lines) {
		return nil, fmt.Errorf("%w: lines %d-%d of %d", ErrRegionNotFound, span.Start, span.End, len(lines))
	}
	if span.End > len(lines) {
		return nil, fmt.Errorf("%w: lines %d-%d of %d", ErrRegionNotFound, span.Start, span.End, len(lines))
	}

	replacement := strings.TrimRight(patch.NewContent, "\n")

	if node := e.matchNode(ctx, current, span, lang); node != nil {
		start := int(node.StartByte())
		end := int(node.EndByte())
		var b []byte
		b = append(b, current[:start]...)
		b = append(b, []byte(replacement)...)
		b = append(b, current[end:]...)
		return b, nil
	}

	spliced := make([]string, 0, len(lines))
	spliced = append(spliced, lines[:span.Start-1]...)
	spliced = append(spliced, strings.Split(replacement, "\n")...)
	spliced = append(spliced, lines[span.End:]...)
	return []byte(strings.Join(spliced, "\n")), nil
}

// matchNode finds the named node whose 1-based line span equals the region,
// preferring the shallowest match.
func (e *Editor) matchNode(ctx context.Context, content []byte, span schemas.LineRange, lang schemas.Language) *sitter.Node {
	tree, err := e.parser.Parse(ctx, content, lang)
	if err != nil {
		return nil
	}

	var found *sitter.Node
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if found != nil {
			return
		}
		nodeSpan := syntax.NodeSpan(n)
		if n.IsNamed() && nodeSpan == span {
			found = n
			return
		}
		// Only descend into subtrees that can still contain the region.
		if nodeSpan.Start > span.Start || nodeSpan.End < span.End {
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if c := n.Child(i); c != nil {
				walk(c)
			}
		}
	}
	walk(tree.RootNode())
	return found
}

func (e *Editor) fileLock(file string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[file]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[file] = lock
	}
	return lock
}

// writeAtomic writes content via a temp file and rename so a crash mid-write
// never leaves a half-written source file.
func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".suture-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

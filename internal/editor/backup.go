package editor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Backup describes one pristine pre-edit copy of a file.
type Backup struct {
	OriginalPath string
	BackupPath   string
	CreatedAt    time.Time
}

// BackupSet tracks the first-mutation backups of one session. A file is
// backed up exactly once per session, before its first edit, and the copy is
// preserved until commit or explicit cleanup.
type BackupSet struct {
	repoRoot  string
	backupDir string

	mu      sync.Mutex
	entries map[string]Backup
}

// NewBackupSet creates an empty set rooted at backupDir.
func NewBackupSet(repoRoot, backupDir string) *BackupSet {
	return &BackupSet{
		repoRoot:  repoRoot,
		backupDir: backupDir,
		entries:   make(map[string]Backup),
	}
}

// Ensure writes a backup of content for file unless this session already has
// one, and returns the backup path either way.
func (b *BackupSet) Ensure(file string, content []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.entries[file]; ok {
		return existing.BackupPath, nil
	}

	rel, err := filepath.Rel(b.repoRoot, file)
	if err != nil || filepath.IsAbs(rel) {
		rel = filepath.Base(file)
	}
	now := time.Now()
	name := fmt.Sprintf("%s.%s.bak", filepath.Base(file), now.Format("20060102_150405"))
	backupPath := filepath.Join(b.backupDir, filepath.Dir(rel), name)

	if err := os.MkdirAll(filepath.Dir(backupPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	if err := os.WriteFile(backupPath, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	b.entries[file] = Backup{OriginalPath: file, BackupPath: backupPath, CreatedAt: now}
	return backupPath, nil
}

// Restore copies the session backup of file back over the working copy.
func (b *BackupSet) Restore(file string) error {
	b.mu.Lock()
	entry, ok := b.entries[file]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("no backup recorded for %s in this session", file)
	}

	content, err := os.ReadFile(entry.BackupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}
	return writeAtomic(file, content)
}

// List returns the session's backups ordered by original path.
func (b *BackupSet) List() []Backup {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Backup, 0, len(b.entries))
	for _, entry := range b.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OriginalPath < out[j].OriginalPath })
	return out
}

// Has reports whether file was backed up this session.
func (b *BackupSet) Has(file string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[file]
	return ok
}

// Cleanup deletes the session's backup files, typically after a successful
// commit finalizes the session.
func (b *BackupSet) Cleanup() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for file, entry := range b.entries {
		if err := os.Remove(entry.BackupPath); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delete(b.entries, file)
	}
	return firstErr
}

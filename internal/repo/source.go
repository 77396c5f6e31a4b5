package repo

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/config"
)

// Source enumerates the analyzable files of a repository, honoring the
// configured extension allowlist, directory exclusions, and size limit.
type Source struct {
	cfg config.AnalysisConfig
	log *zap.Logger

	extensions map[string]struct{}
	excluded   map[string]struct{}
}

// NewSource builds a Source from the analysis configuration.
func NewSource(cfg config.AnalysisConfig, logger *zap.Logger) *Source {
	extensions := make(map[string]struct{}, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		extensions[strings.ToLower(ext)] = struct{}{}
	}
	excluded := make(map[string]struct{}, len(cfg.ExcludedDirs))
	for _, dir := range cfg.ExcludedDirs {
		excluded[dir] = struct{}{}
	}
	return &Source{
		cfg:        cfg,
		log:        logger.Named("repo"),
		extensions: extensions,
		excluded:   excluded,
	}
}

// ListFiles walks repoPath and returns the selected files ordered
// lexicographically by relative path, so repeated runs over an unchanged
// tree see an identical sequence. Unreadable entries are logged and skipped;
// only a completely unreadable root is fatal.
func (s *Source) ListFiles(repoPath string) ([]schemas.SourceFile, error) {
	root, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository path %q: %w", repoPath, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("repository path is not readable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository path %q is not a directory", repoPath)
	}

	var files []schemas.SourceFile
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.log.Warn("Skipping unreadable entry", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if _, skip := s.excluded[d.Name()]; skip && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if _, ok := s.extensions[ext]; !ok {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			s.log.Warn("Skipping file with unreadable metadata", zap.String("path", path), zap.Error(err))
			return nil
		}
		if fi.Size() > s.cfg.MaxFileSize {
			s.log.Debug("Skipping oversized file",
				zap.String("path", path),
				zap.Int64("size", fi.Size()),
				zap.Int64("limit", s.cfg.MaxFileSize))
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		files = append(files, schemas.SourceFile{
			Path:     path,
			RelPath:  filepath.ToSlash(rel),
			Size:     fi.Size(),
			Language: schemas.LanguageFromExtension(ext),
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to walk repository: %w", walkErr)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	s.log.Info("Repository scan complete",
		zap.String("root", root),
		zap.Int("files", len(files)))
	return files, nil
}

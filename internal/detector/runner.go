// Package detector normalizes heterogeneous analyzer output into Issues.
// Each external or built-in analyzer lives behind one adapter; tool-specific
// codes and severities never leak past the adapter boundary.
package detector

import (
	"context"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/audit"
)

// Runner fans a file through every registered detector. A failing detector
// is skipped for that file with a failed audit event; it never aborts the
// run.
type Runner struct {
	detectors []schemas.Detector
	auditLog  *audit.Log
	log       *zap.Logger
}

// NewRunner builds a Runner over the given adapters.
func NewRunner(detectors []schemas.Detector, auditLog *audit.Log, logger *zap.Logger) *Runner {
	return &Runner{
		detectors: detectors,
		auditLog:  auditLog,
		log:       logger.Named("detector"),
	}
}

// DetectFile reads one file and collects issues from every adapter, sorted
// by remediation priority.
func (r *Runner) DetectFile(ctx context.Context, file schemas.SourceFile, correlationID string) ([]schemas.Issue, error) {
	content, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, err
	}

	var issues []schemas.Issue
	for _, d := range r.detectors {
		if err := ctx.Err(); err != nil {
			return issues, err
		}
		found, err := d.Detect(ctx, file, content)
		if err != nil {
			r.log.Warn("Detector failed, skipping for this file",
				zap.String("detector", d.Name()),
				zap.String("file", file.RelPath),
				zap.Error(err))
			r.auditLog.Record(schemas.LogEvent{
				CorrelationID: correlationID,
				OperationType: schemas.OpIssueDetection,
				FilePath:      file.RelPath,
				Message:       "detector " + d.Name() + " failed: " + err.Error(),
				Success:       false,
			})
			continue
		}
		issues = append(issues, found...)
	}

	if len(issues) > 0 {
		r.auditLog.Record(schemas.LogEvent{
			CorrelationID: correlationID,
			OperationType: schemas.OpIssueDetection,
			FilePath:      file.RelPath,
			Message:       "detection complete",
			Payload:       map[string]any{"issue_count": len(issues)},
			Success:       true,
		})
	}

	SortByPriority(issues)
	return issues, nil
}

// SortByPriority orders issues so the most urgent fixes come first:
// category weight, then severity, then position in the file.
func SortByPriority(issues []schemas.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if pa, pb := schemas.CategoryPriority(a.Category), schemas.CategoryPriority(b.Category); pa != pb {
			return pa < pb
		}
		if a.Severity != b.Severity {
			return a.Severity == schemas.SeverityError
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.LineRange.Start < b.LineRange.Start
	})
}

package detector

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/api/schemas"
)

// lintTimeout bounds one external linter invocation.
const lintTimeout = 30 * time.Second

// lintFinding is the JSON record shape external linters emit (pylint's
// --output-format=json and compatible tools).
type lintFinding struct {
	Type    string `json:"type"`
	Line    int    `json:"line"`
	EndLine int    `json:"endLine"`
	Message string `json:"message"`
	Symbol  string `json:"symbol"`
}

// LintDetector shells out to a configured external linter and normalizes
// its JSON findings. The command receives the file path as its final
// argument.
type LintDetector struct {
	command string
	args    []string
	log     *zap.Logger
}

// NewLintDetector parses the configured command line. An empty command
// returns nil; the caller simply does not register the adapter.
func NewLintDetector(command string, logger *zap.Logger) *LintDetector {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil
	}
	return &LintDetector{
		command: fields[0],
		args:    fields[1:],
		log:     logger.Named("lint"),
	}
}

// Name implements schemas.Detector.
func (d *LintDetector) Name() string { return "lint" }

// Detect implements schemas.Detector. A crash, timeout, or missing binary is
// reported as an error so the runner can skip this adapter for the file.
func (d *LintDetector) Detect(ctx context.Context, file schemas.SourceFile, content []byte) ([]schemas.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, lintTimeout)
	defer cancel()

	args := append(append([]string{}, d.args...), file.Path)
	cmd := exec.CommandContext(ctx, d.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Most linters exit non-zero when they find anything, so the exit code
	// alone is not a failure. No parseable output is.
	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("linter timed out after %s", lintTimeout)
	}

	var findings []lintFinding
	if err := jsoniter.Unmarshal(stdout.Bytes(), &findings); err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("linter failed: %w (stderr: %s)", runErr, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("linter output is not valid JSON: %w", err)
	}

	issues := make([]schemas.Issue, 0, len(findings))
	for _, f := range findings {
		category, severity := normalizeLintType(f.Type)
		end := f.EndLine
		if end < f.Line {
			end = f.Line
		}
		msg := f.Message
		if f.Symbol != "" {
			msg = fmt.Sprintf("%s (%s)", f.Message, f.Symbol)
		}
		issues = append(issues, schemas.Issue{
			ID:             uuid.New().String(),
			FilePath:       file.RelPath,
			LineRange:      schemas.LineRange{Start: f.Line, End: end},
			Category:       category,
			Severity:       severity,
			DetectorSource: d.Name(),
			Message:        msg,
		})
	}
	return issues, nil
}

// normalizeLintType maps a linter's native finding class onto the common
// category and severity scale.
func normalizeLintType(t string) (schemas.IssueCategory, schemas.Severity) {
	switch strings.ToLower(t) {
	case "error", "fatal":
		return schemas.CategoryBug, schemas.SeverityError
	case "warning":
		return schemas.CategoryMaintainability, schemas.SeverityWarning
	case "convention", "refactor":
		return schemas.CategoryStyle, schemas.SeverityWarning
	default:
		return schemas.CategoryStyle, schemas.SeverityWarning
	}
}

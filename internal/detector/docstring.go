package detector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/syntax"
)

// DocstringDetector flags public functions that carry no documentation.
type DocstringDetector struct {
	parser *syntax.Parser
	log    *zap.Logger
}

// NewDocstringDetector builds the documentation-coverage adapter.
func NewDocstringDetector(logger *zap.Logger) *DocstringDetector {
	return &DocstringDetector{
		parser: syntax.NewParser(),
		log:    logger.Named("docstring"),
	}
}

// Name implements schemas.Detector.
func (d *DocstringDetector) Name() string { return "docstring" }

// Detect implements schemas.Detector.
func (d *DocstringDetector) Detect(ctx context.Context, file schemas.SourceFile, content []byte) ([]schemas.Issue, error) {
	if !syntax.Supported(file.Language) {
		return nil, fmt.Errorf("no documentation analysis for language %s", file.Language)
	}

	funcs, err := d.parser.Functions(ctx, content, file.Language)
	if err != nil {
		return nil, err
	}

	var issues []schemas.Issue
	for _, fn := range funcs {
		if !fn.Exported || fn.HasDoc {
			continue
		}
		issues = append(issues, schemas.Issue{
			ID:             uuid.New().String(),
			FilePath:       file.RelPath,
			LineRange:      fn.Span,
			Category:       schemas.CategoryDocstring,
			Severity:       schemas.SeverityWarning,
			DetectorSource: d.Name(),
			Message:        fmt.Sprintf("public function %s has no documentation", fn.Name),
		})
	}
	return issues, nil
}

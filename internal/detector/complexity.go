package detector

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/config"
	"github.com/xkilldash9x/suture-cli/internal/syntax"
)

// ComplexityDetector computes per-function cyclomatic complexity and a
// file-level maintainability index from the syntax tree.
type ComplexityDetector struct {
	cfg    config.AnalysisConfig
	parser *syntax.Parser
	log    *zap.Logger
}

// NewComplexityDetector builds the structural-metrics adapter.
func NewComplexityDetector(cfg config.AnalysisConfig, logger *zap.Logger) *ComplexityDetector {
	return &ComplexityDetector{
		cfg:    cfg,
		parser: syntax.NewParser(),
		log:    logger.Named("complexity"),
	}
}

// Name implements schemas.Detector.
func (d *ComplexityDetector) Name() string { return "complexity" }

// Detect implements schemas.Detector. Functions above the complexity
// threshold yield complexity issues; a file below the maintainability floor
// yields one maintainability issue.
func (d *ComplexityDetector) Detect(ctx context.Context, file schemas.SourceFile, content []byte) ([]schemas.Issue, error) {
	if !syntax.Supported(file.Language) {
		return nil, fmt.Errorf("no structural metrics for language %s", file.Language)
	}

	funcs, err := d.parser.Functions(ctx, content, file.Language)
	if err != nil {
		return nil, err
	}

	var issues []schemas.Issue
	var totalCC int
	maxCC := 0
	for _, fn := range funcs {
		cc := cyclomatic(fn.Node, content, file.Language)
		totalCC += cc
		if cc > maxCC {
			maxCC = cc
		}
		if cc <= d.cfg.MaxComplexity {
			continue
		}
		severity := schemas.SeverityWarning
		if cc > d.cfg.MaxComplexity+5 {
			severity = schemas.SeverityError
		}
		issues = append(issues, schemas.Issue{
			ID:             uuid.New().String(),
			FilePath:       file.RelPath,
			LineRange:      fn.Span,
			Category:       schemas.CategoryComplexity,
			Severity:       severity,
			DetectorSource: d.Name(),
			Message:        fmt.Sprintf("function %s has cyclomatic complexity %d (max %d)", fn.Name, cc, d.cfg.MaxComplexity),
			MetricsSnapshot: map[string]float64{
				"cyclomatic_complexity": float64(cc),
				"function_length":       float64(fn.Span.End - fn.Span.Start + 1),
			},
		})
	}

	mi := maintainabilityIndex(content, avg(totalCC, len(funcs)))
	if len(funcs) > 0 && mi < d.cfg.MinMaintainabilityIndex {
		issues = append(issues, schemas.Issue{
			ID:             uuid.New().String(),
			FilePath:       file.RelPath,
			LineRange:      schemas.LineRange{Start: 1, End: lineCount(content)},
			Category:       schemas.CategoryMaintainability,
			Severity:       schemas.SeverityWarning,
			DetectorSource: d.Name(),
			Message:        fmt.Sprintf("maintainability index %.1f is below the minimum %.1f", mi, d.cfg.MinMaintainabilityIndex),
			MetricsSnapshot: map[string]float64{
				"maintainability_index": mi,
				"max_complexity":        float64(maxCC),
			},
		})
	}
	return issues, nil
}

// Metrics computes the aggregate numbers for one file, used by the report
// operation.
func (d *ComplexityDetector) Metrics(ctx context.Context, file schemas.SourceFile, content []byte) (schemas.FileMetrics, error) {
	funcs, err := d.parser.Functions(ctx, content, file.Language)
	if err != nil {
		return schemas.FileMetrics{}, err
	}

	metrics := schemas.FileMetrics{
		FilePath:      file.RelPath,
		FunctionCount: len(funcs),
	}
	var total int
	for _, fn := range funcs {
		cc := cyclomatic(fn.Node, content, file.Language)
		total += cc
		if cc > metrics.MaxComplexity {
			metrics.MaxComplexity = cc
		}
	}
	metrics.AvgComplexity = avg(total, len(funcs))
	metrics.MaintainabilityIndex = maintainabilityIndex(content, metrics.AvgComplexity)
	return metrics, nil
}

// cyclomatic is 1 plus the number of decision points in the function body.
// Binary expressions count only when they are short-circuit operators.
func cyclomatic(node *sitter.Node, content []byte, lang schemas.Language) int {
	complexity := 1
	for _, decision := range syntax.FindNodes(node, syntax.DecisionNodeTypes(lang)) {
		switch decision.Type() {
		case "binary_expression", "boolean_operator":
			if syntax.IsBooleanOperator(decision, content, lang) {
				complexity++
			}
		default:
			complexity++
		}
	}
	return complexity
}

func avg(total, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}

// maintainabilityIndex is the classic 0-100 rescaled formula with Halstead
// volume approximated from line and distinct-token counts. It tracks the
// real index closely enough to rank files, which is all the threshold needs.
func maintainabilityIndex(content []byte, avgComplexity float64) float64 {
	loc := float64(lineCount(content))
	if loc < 1 {
		return 100
	}
	volume := loc * math.Log2(distinctTokens(content)+2)
	mi := (171 - 5.2*math.Log(volume+1) - 0.23*avgComplexity - 16.2*math.Log(loc)) * 100 / 171
	return math.Max(0, math.Min(100, mi))
}

func lineCount(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := strings.Count(string(content), "\n")
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

func distinctTokens(content []byte) float64 {
	seen := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(string(content), func(r rune) bool {
		return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	}) {
		seen[tok] = struct{}{}
	}
	return float64(len(seen))
}

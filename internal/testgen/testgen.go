// Package testgen produces unit-test files for sources that lack them. The
// generator lists each file's functions, asks the inference service for a
// complete test file, syntax-checks the answer, and writes it next to the
// source following the language's test-layout convention.
package testgen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/audit"
	"github.com/xkilldash9x/suture-cli/internal/syntax"
)

// fenceRegex unwraps a markdown code fence around the generated file.
var fenceRegex = regexp.MustCompile("(?s)^\\s*```(?:[a-zA-Z]+)?\\s*\\n?(.*?)\\n?```\\s*$")

const generatorSystemPrompt = `You are an expert software engineer writing unit tests.
Given a source file and its list of functions, write a complete, runnable test
file in the idiomatic test framework of the file's language (testing package
for Go, pytest for Python, jest for JavaScript). Cover the happy path and at
least one edge case per exported function. Respond with ONLY the test file
content, no commentary and no markdown fence.`

// Generator creates test files for sources that have none.
type Generator struct {
	llm      schemas.LLMClient
	parser   *syntax.Parser
	auditLog *audit.Log
	log      *zap.Logger

	// Force overwrites test files that already exist.
	Force bool
}

// New creates a Generator.
func New(llm schemas.LLMClient, auditLog *audit.Log, logger *zap.Logger) *Generator {
	return &Generator{
		llm:      llm,
		parser:   syntax.NewParser(),
		auditLog: auditLog,
		log:      logger.Named("testgen"),
	}
}

// Generate produces a test file for one source file and returns the path it
// wrote. A file whose test already exists is skipped (empty path, nil error)
// unless Force is set.
func (g *Generator) Generate(ctx context.Context, repoRoot string, file schemas.SourceFile) (string, error) {
	testPath, err := TestFilePath(repoRoot, file)
	if err != nil {
		return "", err
	}
	if !g.Force {
		if _, err := os.Stat(testPath); err == nil {
			g.log.Debug("Test file already exists, skipping", zap.String("file", file.RelPath))
			return "", nil
		}
	}

	content, err := os.ReadFile(file.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read source file: %w", err)
	}

	functions, err := g.parser.Functions(ctx, content, file.Language)
	if err != nil {
		return "", fmt.Errorf("failed to list functions: %w", err)
	}
	if len(functions) == 0 {
		g.log.Debug("No functions to test, skipping", zap.String("file", file.RelPath))
		return "", nil
	}

	raw, err := g.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: generatorSystemPrompt,
		UserPrompt:   buildGeneratorPrompt(file, content, functions),
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{Temperature: 0.3},
	})
	if err != nil {
		g.record(file.RelPath, testPath, false, fmt.Sprintf("generation failed: %v", err))
		return "", fmt.Errorf("test generation failed: %w", err)
	}

	generated := raw
	if m := fenceRegex.FindStringSubmatch(generated); m != nil {
		generated = m[1]
	}
	generated = strings.TrimSpace(generated) + "\n"

	if err := g.parser.Validate(ctx, []byte(generated), file.Language); err != nil {
		g.record(file.RelPath, testPath, false, fmt.Sprintf("generated tests failed syntax validation: %v", err))
		return "", fmt.Errorf("generated test file is not syntactically valid: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(testPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create test directory: %w", err)
	}
	if err := os.WriteFile(testPath, []byte(generated), 0o644); err != nil {
		return "", fmt.Errorf("failed to write test file: %w", err)
	}

	g.record(file.RelPath, testPath, true, "generated test file")
	g.log.Info("Generated test file",
		zap.String("source", file.RelPath),
		zap.String("tests", testPath))
	return testPath, nil
}

func (g *Generator) record(sourceRel, testPath string, success bool, message string) {
	g.auditLog.Record(schemas.LogEvent{
		OperationType: schemas.OpTestGeneration,
		FilePath:      sourceRel,
		Message:       message,
		Payload:       map[string]any{"test_file": testPath},
		Success:       success,
	})
}

// TestFilePath returns where the test file for a source belongs: Go tests
// sit alongside the source as <name>_test.go, Python tests under tests/ as
// test_<name>.py, JavaScript alongside as <name>.test.js.
func TestFilePath(repoRoot string, file schemas.SourceFile) (string, error) {
	dir := filepath.Dir(file.RelPath)
	base := filepath.Base(file.RelPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	switch file.Language {
	case schemas.LangGo:
		if strings.HasSuffix(name, "_test") {
			return "", fmt.Errorf("%s is already a test file", file.RelPath)
		}
		return filepath.Join(repoRoot, dir, name+"_test"+ext), nil
	case schemas.LangPython:
		if strings.HasPrefix(name, "test_") {
			return "", fmt.Errorf("%s is already a test file", file.RelPath)
		}
		return filepath.Join(repoRoot, "tests", "test_"+name+ext), nil
	case schemas.LangJavaScript:
		if strings.HasSuffix(name, ".test") {
			return "", fmt.Errorf("%s is already a test file", file.RelPath)
		}
		return filepath.Join(repoRoot, dir, name+".test"+ext), nil
	default:
		return "", fmt.Errorf("no test convention for language %q", file.Language)
	}
}

// IsTestFile reports whether a path already follows one of the test-file
// naming conventions and should be skipped as a generation target.
func IsTestFile(relPath string) bool {
	base := filepath.Base(relPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	switch schemas.LanguageFromExtension(ext) {
	case schemas.LangGo:
		return strings.HasSuffix(name, "_test")
	case schemas.LangPython:
		return strings.HasPrefix(name, "test_") || strings.HasSuffix(name, "_test")
	case schemas.LangJavaScript:
		return strings.HasSuffix(name, ".test") || strings.HasSuffix(name, ".spec")
	default:
		return false
	}
}

// buildGeneratorPrompt lists the file's functions ahead of the full source so
// the model knows exactly which surface to cover.
func buildGeneratorPrompt(file schemas.SourceFile, content []byte, functions []syntax.Function) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source file: %s (language: %s)\n\nFunctions to cover:\n", file.RelPath, file.Language)
	for _, fn := range functions {
		visibility := "internal"
		if fn.Exported {
			visibility = "exported"
		}
		fmt.Fprintf(&b, "- %s (lines %d-%d, %s)\n", fn.Name, fn.Span.Start, fn.Span.End, visibility)
	}
	b.WriteString("\nFull source:\n")
	b.Write(content)
	return b.String()
}

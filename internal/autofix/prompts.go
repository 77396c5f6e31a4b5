package autofix

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/suture-cli/api/schemas"
)

// responseContract is appended to every system prompt so the model always
// answers in the shape parseAgentResponse expects.
const responseContract = `You MUST respond with a single JSON object and nothing else:
{
  "explanation": "one or two sentences describing the change",
  "root_cause": "why the issue exists",
  "confidence": 0.0-1.0,
  "replacement_code": "the complete replacement for the target region"
}
The replacement_code must contain the ENTIRE region being replaced, not a diff.
Preserve the surrounding indentation style exactly.`

// systemPrompt returns the persona and task framing for one remediation
// strategy.
func systemPrompt(task schemas.TaskType) string {
	var persona string
	switch task {
	case schemas.TaskBugFix:
		persona = `You are an expert software engineer fixing a bug surfaced by static analysis.
Fix the defect with the smallest change that makes the code correct. Do not refactor
unrelated code and do not change public signatures.`
	case schemas.TaskComplexity:
		persona = `You are an expert software engineer reducing the complexity of a function.
Break deep nesting apart with early returns and extracted helpers where the language
allows it, while preserving the exact observable behavior.`
	case schemas.TaskDocstring:
		persona = `You are an expert software engineer adding documentation.
Write a concise doc comment in the conventional style of the file's language.
Change nothing about the code itself.`
	case schemas.TaskStyle:
		persona = `You are an expert software engineer cleaning up style findings.
Resolve the reported finding without altering behavior.`
	default:
		persona = `You are an expert software engineer refactoring for maintainability.
Improve the structure of the target region while preserving the exact observable behavior.`
	}
	return persona + "\n\n" + responseContract
}

// buildUserPrompt assembles the offending region, the retrieved context,
// and any feedback from a previously rejected attempt.
func buildUserPrompt(issue schemas.Issue, region string, chunks []schemas.ContextChunk, feedback string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Issue\nFile: %s\nLines %d-%d\nCategory: %s\nSeverity: %s\nDetector: %s\nMessage: %s\n",
		issue.FilePath, issue.LineRange.Start, issue.LineRange.End,
		issue.Category, issue.Severity, issue.DetectorSource, issue.Message)

	if len(issue.MetricsSnapshot) > 0 {
		b.WriteString("Metrics:\n")
		for k, v := range issue.MetricsSnapshot {
			fmt.Fprintf(&b, "  %s: %.2f\n", k, v)
		}
	}

	b.WriteString("\n## Target region (lines marked with -> are the ones to fix)\n")
	b.WriteString(region)
	b.WriteString("\n")

	if len(chunks) > 0 {
		b.WriteString("\n## Related code from elsewhere in the repository\n")
		for _, c := range chunks {
			fmt.Fprintf(&b, "--- %s (lines %d-%d) ---\n%s\n", c.FilePath, c.Span.Start, c.Span.End, c.Text)
		}
	}

	if feedback != "" {
		fmt.Fprintf(&b, "\n## Previous attempt was rejected\n%s\nProduce a corrected response that avoids this failure.\n", feedback)
	}

	return b.String()
}

// extractRegion renders the patch target with a window of surrounding
// lines, prefixing the lines inside the issue's range with "-> ".
func extractRegion(content []byte, span schemas.LineRange, contextSize int) string {
	lines := strings.Split(string(content), "\n")

	start := span.Start - contextSize
	if start < 1 {
		start = 1
	}
	end := span.End + contextSize
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	for i := start; i <= end; i++ {
		marker := "   "
		if i >= span.Start && i <= span.End {
			marker = "-> "
		}
		fmt.Fprintf(&b, "%s%d: %s\n", marker, i, lines[i-1])
	}
	return b.String()
}

package schemas

import (
	"time"
)

// -- Issue Schemas --

// IssueCategory classifies a static-analysis finding by the kind of
// remediation it calls for.
type IssueCategory string

const (
	CategoryBug             IssueCategory = "bug"
	CategoryComplexity      IssueCategory = "complexity"
	CategoryStyle           IssueCategory = "style"
	CategoryMaintainability IssueCategory = "maintainability"
	CategoryDocstring       IssueCategory = "docstring"
)

// CategoryPriority orders categories by how urgently they should be fixed.
// Lower values are fixed first.
func CategoryPriority(c IssueCategory) int {
	switch c {
	case CategoryBug:
		return 0
	case CategoryComplexity:
		return 1
	case CategoryMaintainability:
		return 2
	case CategoryStyle:
		return 3
	case CategoryDocstring:
		return 4
	default:
		return 5
	}
}

// Severity is the normalized ordinal scale every detector maps its native
// levels onto.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// LineRange identifies an inclusive range of 1-based source lines.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Issue is a single normalized static-analysis finding. Issues are immutable
// once created and live only for the duration of the run that produced them;
// anything durable about them goes through the audit log.
type Issue struct {
	ID              string             `json:"id"`
	FilePath        string             `json:"file_path"`
	LineRange       LineRange          `json:"line_range"`
	Category        IssueCategory      `json:"category"`
	Severity        Severity           `json:"severity"`
	DetectorSource  string             `json:"detector_source"`
	Message         string             `json:"message"`
	MetricsSnapshot map[string]float64 `json:"metrics_snapshot,omitempty"`
}

// -- Repository Schemas --

// Language identifies the source language of a file, inferred from its
// extension.
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangUnknown    Language = "unknown"
)

// LanguageFromExtension maps a file extension (with leading dot) to a
// Language.
func LanguageFromExtension(ext string) Language {
	switch ext {
	case ".go":
		return LangGo
	case ".py":
		return LangPython
	case ".js", ".mjs", ".cjs":
		return LangJavaScript
	default:
		return LangUnknown
	}
}

// SourceFile is one repository file selected for analysis.
type SourceFile struct {
	Path     string   `json:"path"`     // Absolute path on disk.
	RelPath  string   `json:"rel_path"` // Path relative to the repository root.
	Size     int64    `json:"size"`
	Language Language `json:"language"`
}

// -- Context Schemas --

// ContextChunk is an embedded fragment of source code used to ground a fix
// prompt. Chunks are owned by the context index and recomputed whenever the
// backing file's content hash changes.
type ContextChunk struct {
	ChunkID   string    `json:"chunk_id"`
	FilePath  string    `json:"file_path"`
	Span      LineRange `json:"span"`
	Embedding []float32 `json:"-"`
	Text      string    `json:"text"`
	Score     float64   `json:"score,omitempty"` // Similarity to the query snippet, set on query results.
}

// -- Fix Schemas --

// TaskType selects the remediation strategy the fix prompt asks for.
type TaskType string

const (
	TaskBugFix     TaskType = "bug-fix"
	TaskRefactor   TaskType = "refactor"
	TaskComplexity TaskType = "complexity-reduction"
	TaskDocstring  TaskType = "docstring-addition"
	TaskStyle      TaskType = "style"
)

// TaskTypeForCategory maps an issue category to the remediation task used
// when the caller does not force one.
func TaskTypeForCategory(c IssueCategory) TaskType {
	switch c {
	case CategoryBug:
		return TaskBugFix
	case CategoryComplexity:
		return TaskComplexity
	case CategoryDocstring:
		return TaskDocstring
	case CategoryStyle:
		return TaskStyle
	default:
		return TaskRefactor
	}
}

// AttemptOutcome is the terminal disposition of a single fix attempt.
type AttemptOutcome string

const (
	OutcomeApplied           AttemptOutcome = "applied"
	OutcomeRejectedSyntax    AttemptOutcome = "rejected_syntax"
	OutcomeRejectedSemantics AttemptOutcome = "rejected_semantics"
	OutcomeExhaustedRetries  AttemptOutcome = "exhausted_retries"
)

// Patch is a validated replacement for a code region. It is produced by the
// fix agent, consumed exactly once by the editor, and never mutated.
type Patch struct {
	TargetFile          string    `json:"target_file"`
	OriginalContentHash string    `json:"original_content_hash"`
	NewContent          string    `json:"new_content"`
	RegionSpan          LineRange `json:"region_span"`
}

// FixAttempt records one try at resolving an Issue. Attempt numbers start at
// one and increase strictly; once Outcome is set the attempt is immutable.
type FixAttempt struct {
	IssueID          string         `json:"issue_id"`
	AttemptNumber    int            `json:"attempt_number"`
	PromptHash       string         `json:"prompt_hash"`
	ModelResponse    string         `json:"model_response"`
	ParsedPatch      *Patch         `json:"parsed_patch,omitempty"`
	ValidationResult string         `json:"validation_result"`
	Outcome          AttemptOutcome `json:"outcome"`
	Confidence       float64        `json:"confidence"`
	Explanation      string         `json:"explanation"`
}

// EditResult is the editor's verdict on a patch application.
type EditResult struct {
	Outcome    AttemptOutcome `json:"outcome"`
	FilePath   string         `json:"file_path"`
	BackupPath string         `json:"backup_path,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// -- Commit Schemas --

// CommitRecord describes one commit (real or projected under dry-run)
// produced from a settled batch of applied fixes.
type CommitRecord struct {
	CommitID         string    `json:"commit_id"`
	FileSet          []string  `json:"file_set"`
	Message          string    `json:"message"`
	Timestamp        time.Time `json:"timestamp"`
	IssueIDsResolved []string  `json:"issue_ids_resolved"`
	Projected        bool      `json:"projected,omitempty"` // True for dry-run records that were never persisted.
}

// RepoStatus is a snapshot of the working tree state.
type RepoStatus struct {
	Branch         string `json:"branch"`
	Clean          bool   `json:"clean"`
	ModifiedCount  int    `json:"modified_count"`
	UntrackedCount int    `json:"untracked_count"`
}

// -- Audit Schemas --

// OperationType tags an audit event with the pipeline stage that emitted it.
type OperationType string

const (
	OpIssueDetection OperationType = "issue_detection"
	OpLLMInteraction OperationType = "llm_interaction"
	OpCodeEdit       OperationType = "code_edit"
	OpGitCommit      OperationType = "git_commit"
	OpFixSummary     OperationType = "fix_summary"
	OpTestGeneration OperationType = "test_generation"
)

// LogEvent is one append-only audit record. CorrelationID links every event
// in one issue's lifecycle across components.
type LogEvent struct {
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
	OperationType OperationType  `json:"operation_type"`
	FilePath      string         `json:"file_path,omitempty"`
	Message       string         `json:"message,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	Success       bool           `json:"success"`
}

// AuditStatistics aggregates the audit log for reporting.
type AuditStatistics struct {
	TotalOperations      int `json:"total_operations"`
	SuccessfulOperations int `json:"successful_operations"`
	FailedOperations     int `json:"failed_operations"`
	FilesModifiedCount   int `json:"files_modified_count"`
}

// -- Report Schemas --

// AnalyzeReport summarizes one analysis pass over a repository.
type AnalyzeReport struct {
	RepoPath        string  `json:"repo_path"`
	FilesAnalyzed   int     `json:"files_analyzed"`
	TotalIssues     int     `json:"total_issues"`
	FilesWithIssues int     `json:"files_with_issues"`
	Issues          []Issue `json:"issues"`
}

// FixReport summarizes one fix pass, including the attempts made for every
// issue whether or not they succeeded.
type FixReport struct {
	RepoPath     string         `json:"repo_path"`
	DryRun       bool           `json:"dry_run"`
	FixesApplied int            `json:"fixes_applied"`
	FixesFailed  int            `json:"fixes_failed"`
	CommitIDs    []string       `json:"commit_ids,omitempty"`
	Commits      []CommitRecord `json:"commits,omitempty"`
	Attempts     []FixAttempt   `json:"attempts"`
}

// TestGenReport summarizes a test-generation pass.
type TestGenReport struct {
	RepoPath     string   `json:"repo_path"`
	SuccessCount int      `json:"success_count"`
	TotalFiles   int      `json:"total_files"`
	Generated    []string `json:"generated,omitempty"`
}

// FileMetrics carries per-file aggregate quality metrics for reports.
type FileMetrics struct {
	FilePath             string  `json:"file_path"`
	FunctionCount        int     `json:"function_count"`
	MaxComplexity        int     `json:"max_complexity"`
	AvgComplexity        float64 `json:"avg_complexity"`
	MaintainabilityIndex float64 `json:"maintainability_index"`
	IssueCount           int     `json:"issue_count"`
}

// QualityReport is the aggregate metrics document returned by the report
// operation.
type QualityReport struct {
	RepoPath    string          `json:"repo_path"`
	GeneratedAt time.Time       `json:"generated_at"`
	Files       []FileMetrics   `json:"files"`
	TotalIssues int             `json:"total_issues"`
	ByCategory  map[string]int  `json:"by_category"`
	Statistics  AuditStatistics `json:"statistics"`
}

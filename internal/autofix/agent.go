// Package autofix turns detected issues into validated patches. The agent
// builds a grounded prompt, calls the inference service, parses the
// structured response, and validates the proposed replacement through the
// editor's dry path, retrying with feedback until the budget runs out.
package autofix

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/audit"
	"github.com/xkilldash9x/suture-cli/internal/config"
	"github.com/xkilldash9x/suture-cli/internal/editor"
)

// ErrMalformedResponse marks a model response that failed to parse into the
// expected structure.
var ErrMalformedResponse = errors.New("malformed model response")

// codeFenceRegex strips a surrounding markdown code fence from the
// replacement snippet when the model adds one despite instructions.
var codeFenceRegex = regexp.MustCompile("(?s)^\\s*```(?:[a-zA-Z]+)?\\s*\\n?(.*?)\\n?```\\s*$")

// promptContextLines is the window of lines shown around the issue region.
const promptContextLines = 10

// retryBackoffBase is the first inter-attempt delay; it doubles per retry.
const retryBackoffBase = 500 * time.Millisecond

// agentResponse is the JSON contract the model answers with.
type agentResponse struct {
	Explanation     string  `json:"explanation"`
	RootCause       string  `json:"root_cause"`
	Confidence      float64 `json:"confidence"`
	ReplacementCode string  `json:"replacement_code"`
}

// Agent proposes and validates fixes for one issue at a time.
type Agent struct {
	llm      schemas.LLMClient
	editor   *editor.Editor
	auditLog *audit.Log
	cfg      config.FixerConfig
	llmCfg   config.LLMConfig
	log      *zap.Logger

	// sleep is swapped out in tests to avoid real backoff delays.
	sleep func(context.Context, time.Duration) error
}

// New creates an Agent.
func New(llm schemas.LLMClient, ed *editor.Editor, auditLog *audit.Log, cfg config.FixerConfig, llmCfg config.LLMConfig, logger *zap.Logger) *Agent {
	return &Agent{
		llm:      llm,
		editor:   ed,
		auditLog: auditLog,
		cfg:      cfg,
		llmCfg:   llmCfg,
		log:      logger.Named("autofix"),
		sleep:    sleepCtx,
	}
}

// SetSleep replaces the inter-attempt backoff. Tests use it to run the
// retry loop without real delays.
func (a *Agent) SetSleep(fn func(context.Context, time.Duration) error) {
	a.sleep = fn
}

// ProposeFix runs the bounded attempt loop for one issue and returns every
// attempt made, newest last. The final attempt is terminal: either applied
// (carrying a validated patch) or exhausted_retries. Every attempt is
// audit-logged with its prompt hash and raw response.
func (a *Agent) ProposeFix(ctx context.Context, issue schemas.Issue, task schemas.TaskType, chunks []schemas.ContextChunk, targetPath string, correlationID string) []schemas.FixAttempt {
	maxAttempts := a.cfg.MaxRetries + 1
	attempts := make([]schemas.FixAttempt, 0, maxAttempts)
	feedback := ""

	for n := 1; n <= maxAttempts; n++ {
		if n > 1 {
			delay := retryBackoffBase << (n - 2)
			if err := a.sleep(ctx, delay); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		attempt, rejection := a.attempt(ctx, issue, task, chunks, targetPath, feedback, n)
		a.auditLog.Record(schemas.LogEvent{
			CorrelationID: correlationID,
			OperationType: schemas.OpLLMInteraction,
			FilePath:      issue.FilePath,
			Message:       fmt.Sprintf("fix attempt %d/%d: %s", n, maxAttempts, attempt.ValidationResult),
			Payload: map[string]any{
				"prompt_hash":    attempt.PromptHash,
				"model_response": attempt.ModelResponse,
				"outcome":        string(attempt.Outcome),
			},
			Success: attempt.Outcome == schemas.OutcomeApplied,
		})
		attempts = append(attempts, attempt)

		if attempt.Outcome == schemas.OutcomeApplied {
			return attempts
		}
		feedback = rejection
	}

	// Budget exhausted (or cancelled): the last attempt becomes terminal.
	if len(attempts) > 0 {
		attempts[len(attempts)-1].Outcome = schemas.OutcomeExhaustedRetries
	} else {
		attempts = append(attempts, schemas.FixAttempt{
			IssueID:          issue.ID,
			AttemptNumber:    1,
			ValidationResult: "cancelled before first attempt",
			Outcome:          schemas.OutcomeExhaustedRetries,
		})
	}
	a.log.Warn("Fix attempts exhausted",
		zap.String("issue", issue.ID),
		zap.String("file", issue.FilePath),
		zap.Int("attempts", len(attempts)))
	return attempts
}

// attempt performs one prompt/parse/validate cycle. The returned rejection
// string feeds the next attempt's prompt; it is empty on success.
func (a *Agent) attempt(ctx context.Context, issue schemas.Issue, task schemas.TaskType, chunks []schemas.ContextChunk, targetPath, feedback string, number int) (schemas.FixAttempt, string) {
	attempt := schemas.FixAttempt{
		IssueID:       issue.ID,
		AttemptNumber: number,
		Outcome:       schemas.OutcomeRejectedSemantics,
	}

	content, err := os.ReadFile(targetPath)
	if err != nil {
		attempt.ValidationResult = fmt.Sprintf("failed to read target file: %v", err)
		return attempt, attempt.ValidationResult
	}

	region := extractRegion(content, issue.LineRange, promptContextLines)
	req := schemas.GenerationRequest{
		SystemPrompt: systemPrompt(task),
		UserPrompt:   buildUserPrompt(issue, region, chunks, feedback),
		Tier:         tierFor(issue),
		Options: schemas.GenerationOptions{
			Temperature:     a.llmCfg.Temperature,
			ForceJSONFormat: true,
		},
	}
	attempt.PromptHash = hashPrompt(req.SystemPrompt, req.UserPrompt)

	raw, err := a.llm.Generate(ctx, req)
	if err != nil {
		attempt.ValidationResult = fmt.Sprintf("inference failed: %v", err)
		return attempt, attempt.ValidationResult
	}
	attempt.ModelResponse = raw

	parsed, err := parseAgentResponse(raw)
	if err != nil {
		attempt.ValidationResult = err.Error()
		return attempt, attempt.ValidationResult
	}
	attempt.Confidence = parsed.Confidence
	attempt.Explanation = parsed.Explanation

	if parsed.Confidence < a.cfg.MinConfidence {
		attempt.ValidationResult = fmt.Sprintf("confidence %.2f is below the minimum %.2f", parsed.Confidence, a.cfg.MinConfidence)
		return attempt, attempt.ValidationResult
	}

	original := regionText(content, issue.LineRange)
	if strings.TrimSpace(parsed.ReplacementCode) == strings.TrimSpace(original) {
		attempt.ValidationResult = "replacement is identical to the original region (no-op)"
		return attempt, attempt.ValidationResult
	}

	patch := schemas.Patch{
		TargetFile:          targetPath,
		OriginalContentHash: editor.ContentHash(content),
		NewContent:          parsed.ReplacementCode,
		RegionSpan:          issue.LineRange,
	}

	_, result, err := a.editor.Preview(ctx, patch, languageOf(issue.FilePath))
	if err != nil {
		attempt.ValidationResult = fmt.Sprintf("validation failed: %v", err)
		return attempt, attempt.ValidationResult
	}
	if result.Outcome != schemas.OutcomeApplied {
		attempt.Outcome = result.Outcome
		attempt.ValidationResult = result.Reason
		return attempt, fmt.Sprintf("the proposed replacement was rejected (%s): %s", result.Outcome, result.Reason)
	}

	attempt.ParsedPatch = &patch
	attempt.Outcome = schemas.OutcomeApplied
	attempt.ValidationResult = "validated"
	return attempt, ""
}

// parseAgentResponse decodes the model's JSON answer, tolerating a
// markdown-fenced wrapper, and normalizes the embedded code snippet.
func parseAgentResponse(raw string) (*agentResponse, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var resp agentResponse
	if err := jsoniter.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.ReplacementCode == "" {
		return nil, fmt.Errorf("%w: replacement_code is missing", ErrMalformedResponse)
	}
	if resp.Explanation == "" {
		return nil, fmt.Errorf("%w: explanation is missing", ErrMalformedResponse)
	}

	// Clamp rather than reject: models drift slightly out of range.
	if resp.Confidence < 0 {
		resp.Confidence = 0
	}
	if resp.Confidence > 1 {
		resp.Confidence = 1
	}

	if m := codeFenceRegex.FindStringSubmatch(resp.ReplacementCode); m != nil {
		resp.ReplacementCode = m[1]
	}
	return &resp, nil
}

// tierFor routes cheap mechanical fixes to the fast tier and everything
// else to the powerful one.
func tierFor(issue schemas.Issue) schemas.ModelTier {
	switch issue.Category {
	case schemas.CategoryDocstring, schemas.CategoryStyle:
		return schemas.TierFast
	default:
		return schemas.TierPowerful
	}
}

func hashPrompt(system, user string) string {
	sum := sha256.Sum256([]byte(system + "\x00" + user))
	return hex.EncodeToString(sum[:])
}

func regionText(content []byte, span schemas.LineRange) string {
	lines := strings.Split(string(content), "\n")
	if span.Start < 1 || span.Start > len(lines) {
		return ""
	}
	end := span.End
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[span.Start-1:end], "\n")
}

func languageOf(path string) schemas.Language {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return schemas.LangUnknown
	}
	return schemas.LanguageFromExtension(path[idx:])
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

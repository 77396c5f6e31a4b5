package schemas

import (
	"context"
)

// -- Detector Interface --

// Detector is the capability interface every analyzer adapter implements.
// Normalization of tool-specific codes and severities happens inside the
// adapter; the pipeline core only ever sees Issues.
type Detector interface {
	// Name identifies the adapter in audit events and issue records.
	Name() string
	// Detect analyzes one file and returns zero or more normalized issues.
	// An error means the adapter itself failed (crash, timeout, unsupported
	// input); the caller skips this adapter for the file and continues.
	Detect(ctx context.Context, file SourceFile, content []byte) ([]Issue, error)
}

// -- Embedding Interface --

// Embedder converts text snippets into fixed-dimension vectors. The context
// index degrades to empty results when the embedder is unavailable, so
// implementations should return an error rather than blocking indefinitely.
type Embedder interface {
	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Identity names the backing model so cached vectors from a different
	// backend are never compared against fresh ones.
	Identity() string
}

// -- LLM Client Schemas & Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions provides detailed parameters to control the text
// generation process of the LLM, such as creativity (temperature) and output
// format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, forces the model to output valid JSON.
	MaxOutputTokens int     `json:"max_output_tokens"` // Upper bound on the completion length. Zero means provider default.
}

// GenerationRequest encapsulates a complete request to the LLM, including the
// system and user prompts, the desired model tier, and generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"` // Instructions for the model's persona and task.
	UserPrompt   string            `json:"user_prompt"`   // The specific query or input from the user.
	Tier         ModelTier         `json:"tier"`          // The desired model tier (fast or powerful).
	Options      GenerationOptions `json:"options"`       // Advanced generation parameters.
}

// LLMClient defines a standard interface for interacting with a Large
// Language Model, abstracting the specifics of the underlying provider
// (e.g., Gemini).
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client (e.g., network
	// connections, SDK resources).
	Close() error
}

package llmclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/config"
)

// GeminiClient implements schemas.LLMClient against the Gemini API. All
// requests pass through a shared rate limiter so concurrent fix workers
// respect the service's limits.
type GeminiClient struct {
	client  *genai.Client
	model   string
	cfg     config.LLMConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGeminiClient initializes the SDK client for one model.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, model string, limiter *rate.Limiter, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set GEMINI_API_KEY)")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		cfg:     cfg,
		limiter: limiter,
		logger:  logger.Named("llm_client.gemini"),
	}, nil
}

// Generate sends one prompt and returns the raw completion text.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter interrupted: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Options.Temperature)),
	}
	if req.Options.MaxOutputTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.Options.MaxOutputTokens)
	} else if c.cfg.MaxOutputTokens > 0 {
		genCfg.MaxOutputTokens = int32(c.cfg.MaxOutputTokens)
	}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	if req.Options.ForceJSONFormat {
		genCfg.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.UserPrompt), genCfg)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned empty content (finish reason: %s)", candidate.FinishReason)
	}

	var text string
	for _, part := range candidate.Content.Parts {
		text += part.Text
	}

	fields := []zap.Field{
		zap.String("model", c.model),
		zap.Duration("duration", time.Since(start)),
	}
	if resp.UsageMetadata != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
			zap.Int32("completion_tokens", resp.UsageMetadata.CandidatesTokenCount))
	}
	c.logger.Debug("LLM generation complete", fields...)
	return text, nil
}

// Close implements schemas.LLMClient. The SDK holds no long-lived
// connections that need explicit teardown.
func (c *GeminiClient) Close() error {
	return nil
}

// GeminiEmbedder implements schemas.Embedder on the same SDK.
type GeminiEmbedder struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGeminiEmbedder builds an embedding client for the configured model.
func NewGeminiEmbedder(ctx context.Context, cfg config.LLMConfig, limiter *rate.Limiter, logger *zap.Logger) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set GEMINI_API_KEY)")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini embedding client: %w", err)
	}
	return &GeminiEmbedder{
		client:  client,
		model:   cfg.EmbeddingModel,
		limiter: limiter,
		logger:  logger.Named("llm_client.embedder"),
	}, nil
}

// Embed returns one vector per input text.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter interrupted: %w", err)
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: t}}}
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: asked %d, got %d", len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// Identity implements schemas.Embedder.
func (e *GeminiEmbedder) Identity() string {
	return "gemini:" + e.model
}

package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/config"
)

// NewClient builds the tiered LLM client for the configured provider. The
// returned client routes fast-tier requests to the fast model and everything
// else to the primary model, sharing one rate limiter.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case "gemini":
		limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
		powerful, err := NewGeminiClient(ctx, cfg, cfg.Model, limiter, logger)
		if err != nil {
			return nil, err
		}
		fastModel := cfg.FastModel
		if fastModel == "" {
			fastModel = cfg.Model
		}
		fast, err := NewGeminiClient(ctx, cfg, fastModel, limiter, logger)
		if err != nil {
			return nil, err
		}
		return NewRouter(logger, fast, powerful)
	case "none":
		return &disabledClient{}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (supported: gemini, none)", cfg.Provider)
	}
}

// NewEmbedder builds the embedding backend, or nil when the provider has
// none; the context index treats a nil embedder as a local-only setup.
func NewEmbedder(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.Embedder, error) {
	switch cfg.Provider {
	case "gemini":
		limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
		return NewGeminiEmbedder(ctx, cfg, limiter, logger)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (supported: gemini, none)", cfg.Provider)
	}
}

// disabledClient is the provider "none" stand-in: analysis and reporting
// work normally while every generation request fails cleanly.
type disabledClient struct{}

func (disabledClient) Generate(context.Context, schemas.GenerationRequest) (string, error) {
	return "", fmt.Errorf("LLM provider is disabled (provider: none)")
}

func (disabledClient) Close() error { return nil }

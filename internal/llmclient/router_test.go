package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/suture-cli/api/schemas"
	"github.com/xkilldash9x/suture-cli/internal/config"
)

// recordingClient captures which tier's client served a request.
type recordingClient struct {
	name   string
	served *string
	closed bool
}

func (c *recordingClient) Generate(_ context.Context, _ schemas.GenerationRequest) (string, error) {
	*c.served = c.name
	return "response from " + c.name, nil
}

func (c *recordingClient) Close() error {
	c.closed = true
	return nil
}

func TestRouterDispatchesByTier(t *testing.T) {
	t.Parallel()
	var served string
	fast := &recordingClient{name: "fast", served: &served}
	powerful := &recordingClient{name: "powerful", served: &served}

	router, err := NewRouter(zaptest.NewLogger(t), fast, powerful)
	require.NoError(t, err)

	_, err = router.Generate(context.Background(), schemas.GenerationRequest{Tier: schemas.TierFast})
	require.NoError(t, err)
	assert.Equal(t, "fast", served)

	_, err = router.Generate(context.Background(), schemas.GenerationRequest{Tier: schemas.TierPowerful})
	require.NoError(t, err)
	assert.Equal(t, "powerful", served)

	// Unspecified tier defaults to powerful.
	_, err = router.Generate(context.Background(), schemas.GenerationRequest{})
	require.NoError(t, err)
	assert.Equal(t, "powerful", served)
}

func TestRouterRequiresBothTiers(t *testing.T) {
	t.Parallel()
	var served string
	fast := &recordingClient{name: "fast", served: &served}

	_, err := NewRouter(zaptest.NewLogger(t), fast, nil)
	require.Error(t, err)
	_, err = NewRouter(zaptest.NewLogger(t), nil, fast)
	require.Error(t, err)
}

func TestRouterCloseClosesEachClientOnce(t *testing.T) {
	t.Parallel()
	var served string
	shared := &recordingClient{name: "shared", served: &served}

	router, err := NewRouter(zaptest.NewLogger(t), shared, shared)
	require.NoError(t, err)
	require.NoError(t, router.Close())
	assert.True(t, shared.closed)
}

func TestFactoryDisabledProvider(t *testing.T) {
	t.Parallel()
	cfg := config.LLMConfig{Provider: "none"}

	client, err := NewClient(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")

	embedder, err := NewEmbedder(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Nil(t, embedder)
}

func TestFactoryUnknownProvider(t *testing.T) {
	t.Parallel()
	cfg := config.LLMConfig{Provider: "mystery"}

	_, err := NewClient(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	_, err = NewEmbedder(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestFactoryGeminiRequiresAPIKey(t *testing.T) {
	t.Parallel()
	cfg := config.LLMConfig{Provider: "gemini", Model: "gemini-2.5-pro", RequestsPerSec: 1}

	_, err := NewClient(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

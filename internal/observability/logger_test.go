package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/suture-cli/internal/config"
)

// syncBuffer adapts bytes.Buffer to zapcore.WriteSyncer.
type syncBuffer struct {
	bytes.Buffer
}

func (s *syncBuffer) Sync() error { return nil }

func testLoggerConfig() config.LoggerConfig {
	return config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "suture-test",
	}
}

func TestInitializeWritesToConsoleWriter(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf syncBuffer
	Initialize(testLoggerConfig(), &buf)

	logger := GetLogger()
	require.NotNil(t, logger)
	logger.Info("hello from test")
	require.NoError(t, logger.Sync())

	assert.Contains(t, buf.String(), "hello from test")
	assert.Contains(t, buf.String(), "suture-test")
}

func TestInitializeRunsOnlyOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var first, second syncBuffer
	Initialize(testLoggerConfig(), &first)
	Initialize(testLoggerConfig(), &second)

	GetLogger().Info("only once")
	_ = GetLogger().Sync()

	assert.Contains(t, first.String(), "only once")
	assert.Empty(t, second.String())
}

func TestGetLoggerFallbackBeforeInit(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	// Must not panic even though Initialize was never called.
	logger.Debug("fallback path")
}

func TestInvalidLevelDefaultsToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	cfg := testLoggerConfig()
	cfg.Level = "not-a-level"

	var buf syncBuffer
	Initialize(cfg, &buf)

	GetLogger().Debug("below info, suppressed")
	GetLogger().Info("at info, visible")
	_ = GetLogger().Sync()

	assert.NotContains(t, buf.String(), "below info, suppressed")
	assert.Contains(t, buf.String(), "at info, visible")
}

var _ zapcore.WriteSyncer = (*syncBuffer)(nil)

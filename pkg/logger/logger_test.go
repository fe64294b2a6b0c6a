package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func resetGlobal() {
	mu.Lock()
	globalLogger = nil
	mu.Unlock()
}

func TestInitSetsLevel(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	require.NoError(t, Init(Config{Level: "debug", Encoding: "json"}))
	assert.True(t, Get().Core().Enabled(zapcore.DebugLevel))
}

func TestInitReconfiguresAfterGet(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	// Packages may call Get during init, before flags are parsed
	assert.False(t, Get().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, Init(Config{Level: "debug", Encoding: "json"}))
	assert.True(t, Get().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, Init(Config{Level: "error", Encoding: "console"}))
	assert.False(t, Get().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, Get().Core().Enabled(zapcore.ErrorLevel))
}

func TestInitInvalidLevel(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	require.Error(t, Init(Config{Level: "loud", Encoding: "json"}))

	// A failed Init must not clobber the fallback path
	assert.NotNil(t, Get())
}

func TestGetDefaults(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	logger := Get()
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

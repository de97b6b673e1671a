package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewFallsBackToInfoOnUnknownLevel(t *testing.T) {
	log, err := New("nonsense")
	require.NoError(t, err)
	defer log.Sync()

	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestNewHonorsRequestedLevel(t *testing.T) {
	log, err := New("debug")
	require.NoError(t, err)
	defer log.Sync()

	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestWithConversationAddsScopeFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := (&Logger{Logger: zap.New(core)}).WithConversation(7, "user-123")

	log.Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, int64(7), fields["conversation_id"])
	assert.Equal(t, "user-123", fields["user_id"])
}

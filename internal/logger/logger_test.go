package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		log, err := NewLogger("warn", "json")
		require.NoError(t, err)
		assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
	})

	t.Run("Console", func(t *testing.T) {
		log, err := NewLogger("debug", "console")
		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		log, err := NewLogger("loud", "json")
		assert.Error(t, err)
		assert.Nil(t, log)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

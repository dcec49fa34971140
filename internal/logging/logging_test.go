package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLevels(t *testing.T) {
	cases := map[string]zap.AtomicLevel{
		"debug":   zap.NewAtomicLevelAt(zap.DebugLevel),
		"INFO":    zap.NewAtomicLevelAt(zap.InfoLevel),
		"warn":    zap.NewAtomicLevelAt(zap.WarnLevel),
		"error":   zap.NewAtomicLevelAt(zap.ErrorLevel),
		"verbose": zap.NewAtomicLevelAt(zap.InfoLevel),
	}
	for level, want := range cases {
		logger, err := New(level, "json")
		require.NoError(t, err, level)
		assert.True(t, logger.Core().Enabled(want.Level()), level)
		if want.Level() > zap.DebugLevel {
			assert.False(t, logger.Core().Enabled(want.Level()-1), level)
		}
	}
}

func TestNewConsoleEncoding(t *testing.T) {
	logger, err := New("info", "console")
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

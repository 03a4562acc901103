package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhollis/fabula/internal/config"
)

func TestSetup_LevelParsing(t *testing.T) {
	tests := []struct {
		level        string
		debugEnabled bool
		errorOnly    bool
	}{
		{level: "debug", debugEnabled: true},
		{level: "DEBUG", debugEnabled: true},
		{level: "info", debugEnabled: false},
		{level: "warn", debugEnabled: false},
		{level: "error", debugEnabled: false, errorOnly: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := Setup(config.ServerConfig{LogLevel: tt.level})
			require.NoError(t, err)
			require.NotNil(t, logger)

			ctx := context.Background()
			assert.Equal(t, tt.debugEnabled,
				logger.Handler().Enabled(ctx, slog.LevelDebug))
			if tt.errorOnly {
				assert.False(t, logger.Handler().Enabled(ctx, slog.LevelInfo))
			}
			assert.True(t, logger.Handler().Enabled(ctx, slog.LevelError))
		})
	}
}

func TestSetup_InvalidLevelDefaultsToInfo(t *testing.T) {
	logger, err := Setup(config.ServerConfig{LogLevel: "verbose"})
	require.NoError(t, err)
	require.NotNil(t, logger)

	ctx := context.Background()
	assert.False(t, logger.Handler().Enabled(ctx, slog.LevelDebug))
	assert.True(t, logger.Handler().Enabled(ctx, slog.LevelInfo))
}

package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvLogFormat, "")
	t.Setenv(EnvRunMode, "")

	cfg := NewConfigFromEnv()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestNewConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvRunMode, "")

	cfg := NewConfigFromEnv()
	assert.Equal(t, "error", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
}

func TestNewConfigFromEnv_DevelopmentMode(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvRunMode, "development")

	cfg := NewConfigFromEnv()
	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.AddSource)
}

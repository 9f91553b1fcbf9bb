package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "test-session-secret")
	t.Setenv("CSRF_SECRET", "test-csrf-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRateLimitOverride(t *testing.T) {
	t.Setenv("SESSION_SECRET", "test-session-secret")
	t.Setenv("CSRF_SECRET", "test-csrf-secret")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "30")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 30, cfg.RateLimitPerMinute)
}

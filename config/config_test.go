package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, 8, cfg.Session.MaxSessions)
	assert.Equal(t, 3, cfg.Orchestrator.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.Orchestrator.JobRetention)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, []string{"Image", "Stylesheet", "Font", "Media"}, cfg.Browser.BlockedResourceTypes)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SLEUTH_PORT", "9090")
	t.Setenv("SLEUTH_MAX_SESSIONS", "4")
	t.Setenv("SLEUTH_FETCH_TIMEOUT", "45s")
	t.Setenv("SLEUTH_HOST_RPS", "2.5")
	t.Setenv("SLEUTH_AUTH_ENABLED", "false")
	t.Setenv("SLEUTH_API_KEYS", "key-a, key-b,, key-c")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Session.MaxSessions)
	assert.Equal(t, 45*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 2.5, cfg.Orchestrator.HostRPS)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, []string{"key-a", "key-b", "key-c"}, cfg.Auth.APIKeys)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SLEUTH_PORT", "not-a-number")
	t.Setenv("SLEUTH_CACHE_TTL", "soon")

	cfg := Load()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
}

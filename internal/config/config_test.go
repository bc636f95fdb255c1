package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "http://localhost:8080/api/v1", cfg.APIBaseURL)
	assert.Equal(t, "premium", cfg.AdaptyAccessLevel)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "canned", cfg.AssistantProvider)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiration)
	assert.Equal(t, 60, cfg.RateLimitRequests)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.com/v1")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("JWT_EXPIRATION", "15m")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")

	cfg := Load()

	assert.Equal(t, "https://api.example.com/v1", cfg.APIBaseURL)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 15*time.Minute, cfg.JWTExpiration)
	assert.Equal(t, 5, cfg.RateLimitRequests)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("DEV_MODE", "definitely")
	t.Setenv("JWT_EXPIRATION", "soon")
	t.Setenv("RATE_LIMIT_REQUESTS", "many")

	cfg := Load()

	assert.False(t, cfg.DevMode)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiration)
	assert.Equal(t, 60, cfg.RateLimitRequests)
}

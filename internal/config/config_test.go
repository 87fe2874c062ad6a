package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("API_BASE_URL", "")
	t.Setenv("SESSION_BACKEND", "")
	t.Setenv("API_TIMEOUT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "http://localhost:8080", cfg.API.BaseURL)
	assert.Zero(t, cfg.API.Timeout)
	assert.Equal(t, SessionBackendCookie, cfg.Session.Backend)
	assert.Equal(t, 365*24*time.Hour, cfg.Session.CookieMaxAge)
	assert.Equal(t, 5, cfg.RateLimit.LoginPer15Minutes)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.com")
	t.Setenv("API_TIMEOUT", "5s")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("SESSION_BACKEND", "Redis")
	t.Setenv("TRUSTED_PROXY_CIDRS", "10.0.0.0/8, 192.168.0.0/16,")
	t.Setenv("TRACING_SAMPLE_RATE", "0.25")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr())
	assert.Equal(t, SessionBackendRedis, cfg.Session.Backend)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16"}, cfg.RateLimit.TrustedProxyCIDRs)
	assert.InDelta(t, 0.25, cfg.Tracing.SampleRate, 0.0001)
	assert.True(t, cfg.Tracing.Enabled)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	t.Setenv("API_TIMEOUT", "soon")
	t.Setenv("SESSION_COOKIE_SECURE", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Zero(t, cfg.API.Timeout)
	assert.False(t, cfg.Session.Secure)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("SESSION_BACKEND", "memcached")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_BACKEND")
}

func TestLoad_RejectsBadAPIBaseURL(t *testing.T) {
	for _, raw := range []string{"localhost:8080", "ftp://api.example.com", "https://api.example.com?x=1"} {
		t.Setenv("API_BASE_URL", raw)

		_, err := Load()
		require.Error(t, err, raw)
		assert.Contains(t, err.Error(), "API_BASE_URL", raw)
	}
}

func TestLoad_RejectsBadBlockKey(t *testing.T) {
	t.Setenv("SESSION_BLOCK_KEY", "short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_BLOCK_KEY")
}

func TestLoad_ProductionRequiresKeys(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SESSION_HASH_KEY", "")
	t.Setenv("CSRF_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_HASH_KEY")

	t.Setenv("SESSION_HASH_KEY", strings.Repeat("h", 32))
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CSRF_KEY")

	t.Setenv("CSRF_KEY", strings.Repeat("c", 32))
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.Session.Secure, "production forces secure cookies")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("EVENTSWEB_DOTENV_PROBE=from-file\n"), 0o600))

	t.Setenv("EVENTSWEB_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("EVENTSWEB_DOTENV_PROBE"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("EVENTSWEB_DOTENV_PROBE"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestNewLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "warn", Format: "json"})

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestNewLoggerTo_UnknownLevelDefaultsToInfo(t *testing.T) {
	logger := NewLoggerTo(&bytes.Buffer{}, LoggingConfig{Level: "loud"})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

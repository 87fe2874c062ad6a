package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/supersquad/eventsweb/internal/validation"
)

type Config struct {
	Server      ServerConfig
	API         APIConfig
	Session     SessionConfig
	CSRF        CSRFConfig
	RateLimit   RateLimitConfig
	Logging     LoggingConfig
	Tracing     TracingConfig
	Environment string
}

type ServerConfig struct {
	Host string
	Port int
}

// Addr is the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Session storage backends.
const (
	SessionBackendCookie = "cookie"
	SessionBackendRedis  = "redis"
)

type SessionConfig struct {
	Backend      string
	HashKey      string
	BlockKey     string
	FilePath     string
	RedisURL     string
	CookieMaxAge time.Duration
	Secure       bool
}

type CSRFConfig struct {
	Key string
}

type RateLimitConfig struct {
	LoginPer15Minutes int
	TrustedProxyCIDRs []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

// IsProduction reports whether the service runs with production safeguards.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// LoadDotEnv loads variables from the given .env files (".env" when none are
// given) without overriding the process environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 3000),
		},
		API: APIConfig{
			BaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
			Timeout: getEnvDuration("API_TIMEOUT", 0),
		},
		Session: SessionConfig{
			Backend:      strings.ToLower(getEnv("SESSION_BACKEND", SessionBackendCookie)),
			HashKey:      getEnv("SESSION_HASH_KEY", ""),
			BlockKey:     getEnv("SESSION_BLOCK_KEY", ""),
			FilePath:     getEnv("SESSION_FILE", DefaultSessionFile()),
			RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),
			CookieMaxAge: getEnvDuration("SESSION_COOKIE_MAX_AGE", 365*24*time.Hour),
			Secure:       getEnvBool("SESSION_COOKIE_SECURE", false),
		},
		CSRF: CSRFConfig{
			Key: getEnv("CSRF_KEY", ""),
		},
		RateLimit: RateLimitConfig{
			LoginPer15Minutes: getEnvInt("RATE_LIMIT_LOGIN", 5),
			TrustedProxyCIDRs: getEnvList("TRUSTED_PROXY_CIDRS"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "stdout"),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "eventsweb"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	switch cfg.Session.Backend {
	case SessionBackendCookie, SessionBackendRedis:
	default:
		return Config{}, fmt.Errorf("SESSION_BACKEND must be %q or %q, got %q", SessionBackendCookie, SessionBackendRedis, cfg.Session.Backend)
	}

	if err := validation.APIBaseURL(cfg.API.BaseURL, "API_BASE_URL", false); err != nil {
		return Config{}, err
	}

	if cfg.IsProduction() {
		if len(cfg.Session.HashKey) < 32 {
			return Config{}, fmt.Errorf("SESSION_HASH_KEY must be at least 32 bytes in production")
		}
		if len(cfg.CSRF.Key) != 32 {
			return Config{}, fmt.Errorf("CSRF_KEY must be exactly 32 bytes in production")
		}
		cfg.Session.Secure = true
	}
	if n := len(cfg.Session.BlockKey); n != 0 && n != 16 && n != 24 && n != 32 {
		return Config{}, fmt.Errorf("SESSION_BLOCK_KEY must be 16, 24 or 32 bytes, got %d", n)
	}
	return cfg, nil
}

// DefaultSessionFile is where the CLI keeps its session between invocations.
func DefaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".eventsweb-session.json"
	}
	return dir + string(os.PathSeparator) + "eventsweb" + string(os.PathSeparator) + "session.json"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

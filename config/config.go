package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Browser      BrowserConfig
	Session      SessionConfig
	Fetch        FetchConfig
	LLM          LLMConfig
	Orchestrator OrchestratorConfig
	Cache        CacheConfig
	Auth         AuthConfig
	RateLimit    RateLimitConfig
	Log          LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the headless browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string

	// BlockedResourceTypes lists resource types to block during rendering.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string
}

// SessionConfig controls the render session pool.
type SessionConfig struct {
	// MaxSessions is the pool capacity (max concurrently open sessions).
	MaxSessions int // default: 8

	// MaxUses retires a session after this many fetches.
	MaxUses int // default: 50

	// MaxAge retires a session after this lifetime.
	MaxAge time.Duration // default: 50m
}

// FetchConfig controls page fetching.
type FetchConfig struct {
	// Timeout is the deadline for one fetch attempt (navigation + readiness).
	Timeout time.Duration // default: 30s

	// MaxTimeout caps the client-supplied timeout.
	MaxTimeout time.Duration // default: 120s

	// SettleWindow is the DOM-stable window used as the readiness signal.
	SettleWindow time.Duration // default: 300ms

	// ProbeTimeout is the deadline for the plain-HTTP probe fast path.
	ProbeTimeout time.Duration // default: 5s

	// HostMemoryTTL is how long a host's preferred fetch path is remembered.
	HostMemoryTTL time.Duration // default: 24h
}

// LLMConfig controls the extraction model backend.
type LLMConfig struct {
	// BaseURL is the OpenAI-compatible API root.
	BaseURL string // default: "https://api.openai.com/v1"

	// APIKey authenticates against the model provider.
	APIKey string

	// Model is the extraction model name.
	Model string // default: "gpt-4o-mini"

	// Timeout is the deadline for one model call.
	Timeout time.Duration // default: 60s

	// MaxTokens bounds the completion size.
	MaxTokens int // default: 1024

	// MaxContentTokens truncates page content handed to the model.
	MaxContentTokens int // default: 8000
}

// OrchestratorConfig controls job scheduling and retries.
type OrchestratorConfig struct {
	// MaxConcurrentJobs caps jobs running at once, independently of the
	// session pool capacity.
	MaxConcurrentJobs int // default: 16

	// MaxAttempts is the per-job attempt budget.
	MaxAttempts int // default: 3

	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration // default: 500ms

	// BackoffCap bounds the retry delay.
	BackoffCap time.Duration // default: 30s

	// BlockedBackoff is the minimum delay after a BLOCKED response.
	BlockedBackoff time.Duration // default: 15s

	// HostRPS is the sustained per-host request rate.
	HostRPS float64 // default: 1

	// HostBurst is the per-host burst size.
	HostBurst int // default: 2

	// JobRetention is how long finished async jobs remain queryable before
	// they are dropped from the job table.
	JobRetention time.Duration // default: 1h

	// WebhookSecret signs webhook deliveries when set.
	WebhookSecret string
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	// TTL is the entry freshness window.
	TTL time.Duration // default: 15m

	// MaxEntries is the maximum number of cached entities.
	MaxEntries int // default: 10000

	// StripParams lists query parameters removed during URL
	// canonicalization, in addition to the built-in tracking set.
	StripParams []string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key API rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("SLEUTH_HOST", "0.0.0.0"),
			Port: envIntOr("SLEUTH_PORT", 8080),
			Mode: envOr("SLEUTH_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("SLEUTH_HEADLESS", true),
			NoSandbox:    envBoolOr("SLEUTH_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("SLEUTH_BROWSER_BIN"),
			DefaultProxy: os.Getenv("SLEUTH_PROXY"),
			BlockedResourceTypes: envSliceOr("SLEUTH_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
		},
		Session: SessionConfig{
			MaxSessions: envIntOr("SLEUTH_MAX_SESSIONS", 8),
			MaxUses:     envIntOr("SLEUTH_SESSION_MAX_USES", 50),
			MaxAge:      envDurationOr("SLEUTH_SESSION_MAX_AGE", 50*time.Minute),
		},
		Fetch: FetchConfig{
			Timeout:       envDurationOr("SLEUTH_FETCH_TIMEOUT", 30*time.Second),
			MaxTimeout:    envDurationOr("SLEUTH_MAX_TIMEOUT", 120*time.Second),
			SettleWindow:  envDurationOr("SLEUTH_SETTLE_WINDOW", 300*time.Millisecond),
			ProbeTimeout:  envDurationOr("SLEUTH_PROBE_TIMEOUT", 5*time.Second),
			HostMemoryTTL: envDurationOr("SLEUTH_HOST_MEMORY_TTL", 24*time.Hour),
		},
		LLM: LLMConfig{
			BaseURL:          envOr("SLEUTH_LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:           os.Getenv("SLEUTH_LLM_API_KEY"),
			Model:            envOr("SLEUTH_LLM_MODEL", "gpt-4o-mini"),
			Timeout:          envDurationOr("SLEUTH_EXTRACT_TIMEOUT", 60*time.Second),
			MaxTokens:        envIntOr("SLEUTH_LLM_MAX_TOKENS", 1024),
			MaxContentTokens: envIntOr("SLEUTH_LLM_MAX_CONTENT_TOKENS", 8000),
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrentJobs: envIntOr("SLEUTH_MAX_CONCURRENT_JOBS", 16),
			MaxAttempts:       envIntOr("SLEUTH_MAX_ATTEMPTS", 3),
			BackoffBase:       envDurationOr("SLEUTH_BACKOFF_BASE", 500*time.Millisecond),
			BackoffCap:        envDurationOr("SLEUTH_BACKOFF_CAP", 30*time.Second),
			BlockedBackoff:    envDurationOr("SLEUTH_BLOCKED_BACKOFF", 15*time.Second),
			HostRPS:           envFloatOr("SLEUTH_HOST_RPS", 1.0),
			HostBurst:         envIntOr("SLEUTH_HOST_BURST", 2),
			JobRetention:      envDurationOr("SLEUTH_JOB_RETENTION", time.Hour),
			WebhookSecret:     os.Getenv("SLEUTH_WEBHOOK_SECRET"),
		},
		Cache: CacheConfig{
			TTL:         envDurationOr("SLEUTH_CACHE_TTL", 15*time.Minute),
			MaxEntries:  envIntOr("SLEUTH_CACHE_MAX_ENTRIES", 10000),
			StripParams: envSliceOr("SLEUTH_CACHE_STRIP_PARAMS", nil),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("SLEUTH_AUTH_ENABLED", true),
			APIKeys: envSliceOr("SLEUTH_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SLEUTH_RATE_RPS", 5.0),
			Burst:             envIntOr("SLEUTH_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:  envOr("SLEUTH_LOG_LEVEL", "info"),
			Format: envOr("SLEUTH_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

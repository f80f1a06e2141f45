package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Auth         AuthConfig
	RateLimit    RateLimitConfig
	Cache        CacheConfig
	Log          LogConfig
	LLM          LLMConfig
	Distillation DistillationConfig
	Translation  TranslationConfig
	Tokens       TokensConfig
	Pipeline     PipelineConfig
	Store        StoreConfig
	Webhook      WebhookConfig
	Metrics      MetricsConfig
	Usage        UsageConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration // default: 15s
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-identity rate limiting.
type RateLimitConfig struct {
	// PerMinute applies to single-prompt endpoints.
	PerMinute int // default: 60

	// BatchPerMinute applies to the batch endpoint.
	BatchPerMinute int // default: 10
}

// CacheConfig controls the optimize response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 1000

	// TTL is how long a response stays valid. Zero disables the cache.
	TTL time.Duration // default: 1h
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"

	// File, when set, receives a copy of the log rotated by size.
	File       string
	MaxSizeMB  int // default: 100
	MaxBackups int // default: 5
	MaxAgeDays int // default: 28
}

// LLMConfig holds provider credentials.
type LLMConfig struct {
	AnthropicAPIKey  string
	AnthropicBaseURL string // default: https://api.anthropic.com/v1
	OpenAIAPIKey     string
	OpenAIBaseURL    string

	// Timeout bounds one provider call.
	Timeout time.Duration // default: 60s

	// MaxRetries is passed to the OpenAI client.
	MaxRetries int // default: 2
}

// DistillationConfig controls the distillation stage.
type DistillationConfig struct {
	Model       string  // default: "claude-3-haiku-20240307"
	Temperature float64 // default: 0.3
	MaxTokens   int     // default: 1000

	// NormalizeHTML converts HTML prompts to Markdown before distillation.
	NormalizeHTML bool // default: true
}

// TranslationConfig controls the translation stage.
type TranslationConfig struct {
	// Enabled toggles translation when a request names no target language.
	Enabled bool // default: true

	// TargetLanguage is the pipeline default target.
	TargetLanguage string // default: "zh"

	// Backends is the ordered list of backends to try.
	Backends []string // default: google-cloud, mymemory, libretranslate, google-free

	GoogleAPIKey      string
	GoogleCloudURL    string
	MyMemoryURL       string
	MyMemoryEmail     string
	LibreTranslateURL string
	LibreAPIKey       string
	GoogleFreeURL     string

	// EnableMock appends the deterministic mock backend.
	EnableMock bool // default: false

	Timeout time.Duration // default: 10s
}

// TokensConfig controls token counting.
type TokensConfig struct {
	// Method is "api", "tiktoken" or "estimation".
	Method string // default: "api"

	// TokenizerModel selects the local tiktoken encoding.
	TokenizerModel string // default: "gpt-4o"
}

// PipelineConfig controls run scheduling.
type PipelineConfig struct {
	// Concurrency is the default batch chunk size.
	Concurrency int // default: 3

	// Timeout bounds a single run.
	Timeout time.Duration // default: 30s
}

// StoreConfig controls persistence.
type StoreConfig struct {
	// DSN is a SQLite path or a postgres:// URL. Empty disables persistence.
	DSN string // default: "promptopt.db"
}

// WebhookConfig controls webhook delivery.
type WebhookConfig struct {
	// Secret signs payloads with HMAC-SHA256 when set.
	Secret string

	Attempts int           // default: 4
	Delay    time.Duration // default: 1s
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool // default: true
}

// UsageConfig controls per-key monthly quotas on the enterprise endpoint.
type UsageConfig struct {
	MonthlyLimit int // default: 10000
}

// LoadDotEnv loads variables from the given files (default ".env") without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            envOr("PROMPTOPT_HOST", "0.0.0.0"),
			Port:            envIntOr("PROMPTOPT_PORT", 8080),
			Mode:            envOr("PROMPTOPT_MODE", "release"),
			ShutdownTimeout: envDurationOr("PROMPTOPT_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PROMPTOPT_AUTH_ENABLED", false),
			APIKeys: envSliceOr("PROMPTOPT_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			PerMinute:      envIntOr("PROMPTOPT_RATE_PER_MINUTE", 60),
			BatchPerMinute: envIntOr("PROMPTOPT_BATCH_RATE_PER_MINUTE", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("PROMPTOPT_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("PROMPTOPT_CACHE_TTL", time.Hour),
		},
		Log: LogConfig{
			Level:      envOr("PROMPTOPT_LOG_LEVEL", "info"),
			Format:     envOr("PROMPTOPT_LOG_FORMAT", "json"),
			File:       os.Getenv("PROMPTOPT_LOG_FILE"),
			MaxSizeMB:  envIntOr("PROMPTOPT_LOG_MAX_SIZE_MB", 100),
			MaxBackups: envIntOr("PROMPTOPT_LOG_MAX_BACKUPS", 5),
			MaxAgeDays: envIntOr("PROMPTOPT_LOG_MAX_AGE_DAYS", 28),
		},
		LLM: LLMConfig{
			AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			AnthropicBaseURL: envOr("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
			OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
			Timeout:          envDurationOr("PROMPTOPT_LLM_TIMEOUT", 60*time.Second),
			MaxRetries:       envIntOr("PROMPTOPT_LLM_MAX_RETRIES", 2),
		},
		Distillation: DistillationConfig{
			Model:         envOr("PROMPTOPT_DISTILL_MODEL", "claude-3-haiku-20240307"),
			Temperature:   envFloatOr("PROMPTOPT_DISTILL_TEMPERATURE", 0.3),
			MaxTokens:     envIntOr("PROMPTOPT_DISTILL_MAX_TOKENS", 1000),
			NormalizeHTML: envBoolOr("PROMPTOPT_NORMALIZE_HTML", true),
		},
		Translation: TranslationConfig{
			Enabled:        envBoolOr("PROMPTOPT_TRANSLATION_ENABLED", true),
			TargetLanguage: envOr("PROMPTOPT_TARGET_LANGUAGE", "zh"),
			Backends: envSliceOr("PROMPTOPT_TRANSLATION_BACKENDS", []string{
				"google-cloud", "mymemory", "libretranslate", "google-free",
			}),
			GoogleAPIKey:      os.Getenv("GOOGLE_TRANSLATE_API_KEY"),
			GoogleCloudURL:    os.Getenv("PROMPTOPT_GOOGLE_CLOUD_URL"),
			MyMemoryURL:       os.Getenv("PROMPTOPT_MYMEMORY_URL"),
			MyMemoryEmail:     os.Getenv("PROMPTOPT_MYMEMORY_EMAIL"),
			LibreTranslateURL: os.Getenv("PROMPTOPT_LIBRETRANSLATE_URL"),
			LibreAPIKey:       os.Getenv("PROMPTOPT_LIBRETRANSLATE_API_KEY"),
			GoogleFreeURL:     os.Getenv("PROMPTOPT_GOOGLE_FREE_URL"),
			EnableMock:        envBoolOr("PROMPTOPT_TRANSLATION_MOCK", false),
			Timeout:           envDurationOr("PROMPTOPT_TRANSLATION_TIMEOUT", 10*time.Second),
		},
		Tokens: TokensConfig{
			Method:         envOr("PROMPTOPT_TOKEN_METHOD", "api"),
			TokenizerModel: envOr("PROMPTOPT_TOKENIZER_MODEL", "gpt-4o"),
		},
		Pipeline: PipelineConfig{
			Concurrency: envIntOr("PROMPTOPT_CONCURRENCY", 3),
			Timeout:     envDurationOr("PROMPTOPT_RUN_TIMEOUT", 30*time.Second),
		},
		Store: StoreConfig{
			DSN: envOr("PROMPTOPT_DATABASE_URL", "promptopt.db"),
		},
		Webhook: WebhookConfig{
			Secret:   os.Getenv("PROMPTOPT_WEBHOOK_SECRET"),
			Attempts: envIntOr("PROMPTOPT_WEBHOOK_ATTEMPTS", 4),
			Delay:    envDurationOr("PROMPTOPT_WEBHOOK_DELAY", time.Second),
		},
		Metrics: MetricsConfig{
			Enabled: envBoolOr("PROMPTOPT_METRICS_ENABLED", true),
		},
		Usage: UsageConfig{
			MonthlyLimit: envIntOr("PROMPTOPT_MONTHLY_LIMIT", 10000),
		},
	}
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	PhonePeMerchantID string
	PhonePeSecret     string
	PhonePeBaseURL    string

	StorefrontBaseURL      string
	PaymentCallbackBaseURL string

	PaymentHTTPTimeout      time.Duration
	PaymentRetryMaxAttempts int
	PaymentRetryBase        time.Duration
	PaymentRetryJitter      float64

	PaymentBreakerMinRequests  int
	PaymentBreakerFailureRatio float64
	PaymentBreakerOpenFor      time.Duration

	WebhookReplayTTL time.Duration
	WebhookLockTTL   time.Duration
	IdempotencyTTL   time.Duration

	RateLimitBackend      string
	RateLimitCreateMax    int
	RateLimitCreateWindow time.Duration
	RequestBodyLimitBytes int64

	NotifyEmailFrom   string
	WorkerConcurrency int
}

// Load reads configuration from environment variables and optional .env files.
// Provider and datastore credentials are optional here: handlers fail closed per request
// when they are missing.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	storefront := strings.TrimRight(valueOrDefault(k.String("STOREFRONT_BASE_URL"), "http://localhost:5173"), "/")
	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		PhonePeMerchantID: strings.TrimSpace(k.String("PHONEPE_MID")),
		PhonePeSecret:     strings.TrimSpace(k.String("PHONEPE_SECRET")),
		PhonePeBaseURL:    strings.TrimRight(strings.TrimSpace(k.String("PHONEPE_BASE_URL")), "/"),

		StorefrontBaseURL:      storefront,
		PaymentCallbackBaseURL: strings.TrimRight(valueOrDefault(k.String("PAYMENT_CALLBACK_BASE_URL"), storefront), "/"),

		PaymentHTTPTimeout:      parseDuration(k.String("PAYMENT_HTTP_TIMEOUT"), "10s"),
		PaymentRetryMaxAttempts: parseInt(k.String("PAYMENT_RETRY_MAX_ATTEMPTS"), 1),
		PaymentRetryBase:        parseDuration(k.String("PAYMENT_RETRY_BASE"), "200ms"),
		PaymentRetryJitter:      parseFloat(k.String("PAYMENT_RETRY_JITTER"), 0.2),

		PaymentBreakerMinRequests:  parseInt(k.String("PAYMENT_BREAKER_MIN_REQUESTS"), 10),
		PaymentBreakerFailureRatio: parseFloat(k.String("PAYMENT_BREAKER_FAILURE_RATIO"), 0.5),
		PaymentBreakerOpenFor:      parseDuration(k.String("PAYMENT_BREAKER_OPEN_FOR"), "30s"),

		WebhookReplayTTL: parseDuration(k.String("PAYMENT_WEBHOOK_REPLAY_TTL"), "24h"),
		WebhookLockTTL:   parseDuration(k.String("PAYMENT_WEBHOOK_LOCK_TTL"), "10s"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),

		RateLimitBackend:      strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_BACKEND"), "sliding")),
		RateLimitCreateMax:    parseInt(k.String("RATE_LIMIT_CREATE_MAX"), 20),
		RateLimitCreateWindow: parseDuration(k.String("RATE_LIMIT_CREATE_WINDOW"), "1m"),
		RequestBodyLimitBytes: int64(parseInt(k.String("REQUEST_BODY_LIMIT_BYTES"), 64<<10)),

		NotifyEmailFrom:   valueOrDefault(k.String("NOTIFY_EMAIL_FROM"), "orders@desawali.com"),
		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 5),
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// Production reports whether the deployment targets the live payment environment.
func (c *Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}

// PaymentConfigured reports whether merchant credentials are present.
func (c *Config) PaymentConfigured() bool {
	return c.PhonePeMerchantID != "" && c.PhonePeSecret != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Inventory sources understood by the API.
const (
	InventorySourcePostgres = "postgres"
	InventorySourceRemote   = "remote"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	CORSAllowedOrigins []string

	CurrencyCode       string
	FeePercent         decimal.Decimal
	FeeFlat            decimal.Decimal
	FeeMin             decimal.Decimal
	FeeMax             decimal.Decimal
	PricingMaxLines    int
	PricingMaxQuantity int
	PricingRequireAuth bool

	InventorySource        string
	InventoryRemoteURL     string
	InventoryLookupTimeout time.Duration
	InventoryCacheTTL      time.Duration

	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
	BreakerWindow       time.Duration
	RetryBase           time.Duration
	RetryMaxAttempts    int

	RateLimitWindow time.Duration
	RateLimitMax    int
	BodyLimitBytes  int64
	RequestTimeout  time.Duration

	WarmInterval      string
	WarmLockTTL       time.Duration
	WorkerConcurrency int

	LogFormat            string
	LogLevel             string
	MetricsEnabled       bool
	MetricsNamespace     string
	MetricsBucketsMS     []float64
	TracingEnabled       bool
	TracingExporter      string
	OTLPEndpoint         string
	TracingSamplingRatio float64
	PprofEnabled         bool
	PprofUser            string
	PprofPass            string
	HealthDBTimeout      time.Duration
	HealthRedisTimeout   time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		JWTSecret:          strings.TrimSpace(k.String("JWT_SECRET")),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "backend-florist"),
		JWTAudience:        valueOrDefault(k.String("JWT_AUDIENCE"), "florist-storefront"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CurrencyCode:       strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "VND")),
		PricingMaxLines:    parseInt(k.String("PRICING_MAX_LINES"), 100),
		PricingMaxQuantity: parseInt(k.String("PRICING_MAX_QUANTITY"), 10000),
		PricingRequireAuth: parseBool(k.String("PRICING_REQUIRE_AUTH")),

		InventorySource:        strings.ToLower(valueOrDefault(k.String("INVENTORY_SOURCE"), InventorySourcePostgres)),
		InventoryRemoteURL:     strings.TrimSpace(k.String("INVENTORY_REMOTE_URL")),
		InventoryLookupTimeout: parseDuration(k.String("INVENTORY_LOOKUP_TIMEOUT"), "800ms"),
		InventoryCacheTTL:      parseDuration(k.String("INVENTORY_CACHE_TTL"), "30s"),

		BreakerMinRequests:  parseInt(k.String("BREAKER_MIN_REQUESTS"), 5),
		BreakerFailureRatio: parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),
		BreakerWindow:       parseDuration(k.String("BREAKER_WINDOW"), "1m"),
		RetryBase:           parseDuration(k.String("RETRY_BASE"), "100ms"),
		RetryMaxAttempts:    parseInt(k.String("RETRY_MAX_ATTEMPTS"), 2),

		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:    parseInt(k.String("RATE_LIMIT_MAX"), 120),
		BodyLimitBytes:  int64(parseInt(k.String("BODY_LIMIT_BYTES"), 64*1024)),
		RequestTimeout:  parseDuration(k.String("REQUEST_TIMEOUT"), "5s"),

		WarmInterval:      valueOrDefault(k.String("WARM_INTERVAL"), "@every 1m"),
		WarmLockTTL:       parseDuration(k.String("WARM_LOCK_TTL"), "2m"),
		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 2),

		LogFormat:            strings.ToLower(valueOrDefault(k.String("OBS_LOG_FORMAT"), "json")),
		LogLevel:             strings.ToLower(valueOrDefault(k.String("OBS_LOG_LEVEL"), "info")),
		MetricsEnabled:       parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsNamespace:     valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "florist"),
		MetricsBucketsMS:     parseBuckets(k.String("OBS_METRICS_BUCKETS_MS")),
		TracingEnabled:       parseBoolDefault(k.String("OBS_ENABLE_TRACING"), true),
		TracingExporter:      strings.ToLower(valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp")),
		OTLPEndpoint:         strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSamplingRatio: parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		PprofEnabled:         parseBool(k.String("OBS_ENABLE_PPROF")),
		PprofUser:            strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPass:            strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
		HealthDBTimeout:      parseDuration(k.String("HEALTH_READY_DB_TIMEOUT"), "500ms"),
		HealthRedisTimeout:   parseDuration(k.String("HEALTH_READY_REDIS_TIMEOUT"), "300ms"),
	}

	var err error
	if cfg.FeePercent, err = parseDecimal("PRICING_FEE_PERCENT", k.String("PRICING_FEE_PERCENT")); err != nil {
		return nil, err
	}
	if cfg.FeeFlat, err = parseDecimal("PRICING_FEE_FLAT", k.String("PRICING_FEE_FLAT")); err != nil {
		return nil, err
	}
	if cfg.FeeMin, err = parseDecimal("PRICING_FEE_MIN", k.String("PRICING_FEE_MIN")); err != nil {
		return nil, err
	}
	if cfg.FeeMax, err = parseDecimal("PRICING_FEE_MAX", k.String("PRICING_FEE_MAX")); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" && cfg.InventorySource == InventorySourcePostgres {
		return nil, errors.New("DATABASE_URL is required")
	}
	switch cfg.InventorySource {
	case InventorySourcePostgres:
	case InventorySourceRemote:
		if cfg.InventoryRemoteURL == "" {
			return nil, errors.New("INVENTORY_REMOTE_URL is required when INVENTORY_SOURCE=remote")
		}
	default:
		return nil, fmt.Errorf("unsupported INVENTORY_SOURCE %q", cfg.InventorySource)
	}
	if cfg.PricingRequireAuth && cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required when PRICING_REQUIRE_AUTH is enabled")
	}
	if len(cfg.CurrencyCode) != 3 {
		return nil, fmt.Errorf("CURRENCY_CODE must be a 3 letter code, got %q", cfg.CurrencyCode)
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

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// parseBuckets reads a comma separated list of histogram bounds in
// milliseconds. Invalid entries are skipped; nil selects the defaults.
func parseBuckets(value string) []float64 {
	var out []float64
	for _, part := range splitAndTrim(value) {
		f, err := strconv.ParseFloat(part, 64)
		if err != nil || f <= 0 {
			continue
		}
		out = append(out, f)
	}
	return out
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDecimal(key, value string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
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

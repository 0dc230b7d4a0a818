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

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	BodyLimitBytes     int64

	QuoteStore     string
	DynamoTable    string
	DynamoEndpoint string
	AWSRegion      string

	CatalogDir      string
	CampaignsSource string
	CampaignsFile   string

	TaxEnabled        bool
	TaxRate           decimal.Decimal
	CurrencyCode      string
	QuoteValidityDays int
	StonePackageKg    decimal.Decimal
	StonePackagePrice decimal.Decimal
	HeaterStepID      string
	LightingStepID    string

	PricebookBaseURL     string
	PricebookAPIKey      string
	PricebookCacheTTL    time.Duration
	ReconcileTimeout     time.Duration
	ReconcileConcurrency int

	OutboundTimeout             time.Duration
	RetryMaxAttempts            int
	RetryBase                   time.Duration
	RetryJitterPercent          float64
	CircuitPricebookMinReq      int
	CircuitPricebookFailureRate float64
	CircuitPricebookOpenFor     time.Duration

	LinkEnabled      bool
	LinkBaseURL      string
	LinkAPIKey       string
	LinkQueue        string
	LinkConcurrency  int
	LockTTL          time.Duration
	LockRetryBackoff time.Duration

	RateLimitQuotesPerMin int
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
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BodyLimitBytes:     int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),

		QuoteStore:     strings.ToLower(valueOrDefault(k.String("QUOTE_STORE"), "postgres")),
		DynamoTable:    valueOrDefault(k.String("DYNAMODB_TABLE"), "quotes"),
		DynamoEndpoint: strings.TrimSpace(k.String("DYNAMODB_ENDPOINT")),
		AWSRegion:      valueOrDefault(k.String("AWS_REGION"), "eu-north-1"),

		CatalogDir:      valueOrDefault(k.String("CATALOG_DIR"), "./catalog"),
		CampaignsSource: strings.ToLower(valueOrDefault(k.String("CAMPAIGNS_SOURCE"), "postgres")),
		CampaignsFile:   strings.TrimSpace(k.String("CAMPAIGNS_FILE")),

		TaxEnabled:        parseBool(valueOrDefault(k.String("TAX_ENABLED"), "true")),
		TaxRate:           parseDecimal(k.String("TAX_RATE"), "0.255"),
		CurrencyCode:      valueOrDefault(k.String("CURRENCY_CODE"), "EUR"),
		QuoteValidityDays: parseInt(k.String("QUOTE_VALIDITY_DAYS"), 30),
		StonePackageKg:    parseDecimal(k.String("STONE_PACKAGE_KG"), "20"),
		StonePackagePrice: parseDecimal(k.String("STONE_PACKAGE_PRICE"), "29.50"),
		HeaterStepID:      valueOrDefault(k.String("HEATER_STEP_ID"), "heater"),
		LightingStepID:    valueOrDefault(k.String("LIGHTING_STEP_ID"), "lighting"),

		PricebookBaseURL:     strings.TrimRight(strings.TrimSpace(k.String("PRICEBOOK_BASE_URL")), "/"),
		PricebookAPIKey:      k.String("PRICEBOOK_API_KEY"),
		PricebookCacheTTL:    parseDuration(k.String("PRICEBOOK_CACHE_TTL"), "10m"),
		ReconcileTimeout:     parseDuration(k.String("RECONCILE_TIMEOUT"), "5s"),
		ReconcileConcurrency: parseInt(k.String("RECONCILE_CONCURRENCY"), 8),

		OutboundTimeout:             parseDuration(k.String("OUTBOUND_TIMEOUT"), "2s"),
		RetryMaxAttempts:            parseInt(k.String("RETRY_MAX_ATTEMPTS"), 2),
		RetryBase:                   parseDuration(k.String("RETRY_BASE"), "100ms"),
		RetryJitterPercent:          parseFloat(k.String("RETRY_JITTER_PERCENT"), 0.2),
		CircuitPricebookMinReq:      parseInt(k.String("CIRCUIT_PRICEBOOK_MIN_REQ"), 10),
		CircuitPricebookFailureRate: parseFloat(k.String("CIRCUIT_PRICEBOOK_FAILURE_RATE"), 0.5),
		CircuitPricebookOpenFor:     parseDuration(k.String("CIRCUIT_PRICEBOOK_OPEN_FOR"), "30s"),

		LinkEnabled:      parseBool(k.String("LINK_ENABLED")),
		LinkBaseURL:      strings.TrimRight(strings.TrimSpace(k.String("LINK_BASE_URL")), "/"),
		LinkAPIKey:       k.String("LINK_API_KEY"),
		LinkQueue:        valueOrDefault(k.String("LINK_QUEUE"), "quotes"),
		LinkConcurrency:  parseInt(k.String("LINK_CONCURRENCY"), 4),
		LockTTL:          parseDuration(k.String("LOCK_TTL"), "30s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),

		RateLimitQuotesPerMin: parseInt(k.String("RATE_LIMIT_QUOTES_PER_MIN"), 30),
	}

	if cfg.TaxRate.IsNegative() {
		return nil, errors.New("TAX_RATE must not be negative")
	}
	if !cfg.StonePackageKg.IsPositive() {
		return nil, errors.New("STONE_PACKAGE_KG must be positive")
	}
	switch cfg.QuoteStore {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required")
		}
	case "dynamodb", "memory":
	default:
		return nil, fmt.Errorf("unsupported QUOTE_STORE %q", cfg.QuoteStore)
	}
	switch cfg.CampaignsSource {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for postgres campaigns")
		}
	case "file":
	default:
		return nil, fmt.Errorf("unsupported CAMPAIGNS_SOURCE %q", cfg.CampaignsSource)
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
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

// EffectiveTaxRate is the global VAT rate applied to lines without their own rate.
func (c *Config) EffectiveTaxRate() decimal.Decimal {
	if !c.TaxEnabled {
		return decimal.Zero
	}
	return c.TaxRate
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

func parseDecimal(value, fallback string) decimal.Decimal {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := decimal.NewFromString(base)
	if err != nil {
		d, _ = decimal.NewFromString(fallback)
	}
	return d
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

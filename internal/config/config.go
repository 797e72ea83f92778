// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Tracing
	OTLPEndpoint string // OTLP gRPC endpoint (optional, tracing disabled if not set)

	// Organization
	OrgDomain string // Domain the engine protects (e.g. "acme.com")

	// Profile minimums
	TemporalMinSamples int // Emails required before a temporal profile finalizes
	StyleMinSamples    int // Writing samples required before a style profile finalizes
	StyleMinTokens     int // Tokens below which a text is low-confidence

	// Trust propagation
	PropagationIterations int
	PropagationDamping    float64
	PropagationEpsilon    float64

	// Temporal tolerances
	TimezoneToleranceMinutes int

	// Component weights (must sum to 1.0)
	WeightTrust      float64
	WeightTemporal   float64
	WeightStylometry float64
	WeightPayment    float64

	// Risk tier thresholds (ascending: medium < high < critical)
	ThresholdMedium   float64
	ThresholdHigh     float64
	ThresholdCritical float64

	// Security
	RateLimitRPS int
}

// Defaults
const (
	DefaultPort     = "8080"
	DefaultEnv      = "development"
	DefaultLogLevel = "info"

	DefaultTemporalMinSamples = 50
	DefaultStyleMinSamples    = 10
	DefaultStyleMinTokens     = 20

	DefaultPropagationIterations = 20
	DefaultPropagationDamping    = 0.85
	DefaultPropagationEpsilon    = 1e-6

	DefaultTimezoneTolerance = 60

	DefaultWeightTrust      = 0.35
	DefaultWeightTemporal   = 0.30
	DefaultWeightStylometry = 0.25
	DefaultWeightPayment    = 0.10

	DefaultThresholdMedium   = 0.30
	DefaultThresholdHigh     = 0.55
	DefaultThresholdCritical = 0.80

	DefaultRateLimit = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", DefaultPort),
		Env:          getEnv("ENV", DefaultEnv),
		LogLevel:     getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:  os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OrgDomain:    os.Getenv("ORG_DOMAIN"), // Required, no default

		TemporalMinSamples: getEnvInt("TEMPORAL_MIN_SAMPLES", DefaultTemporalMinSamples),
		StyleMinSamples:    getEnvInt("STYLE_MIN_SAMPLES", DefaultStyleMinSamples),
		StyleMinTokens:     getEnvInt("STYLE_MIN_TOKENS", DefaultStyleMinTokens),

		PropagationIterations: getEnvInt("PROPAGATION_ITERATIONS", DefaultPropagationIterations),
		PropagationDamping:    getEnvFloat("PROPAGATION_DAMPING", DefaultPropagationDamping),
		PropagationEpsilon:    getEnvFloat("PROPAGATION_EPSILON", DefaultPropagationEpsilon),

		TimezoneToleranceMinutes: getEnvInt("TIMEZONE_TOLERANCE_MINUTES", DefaultTimezoneTolerance),

		WeightTrust:      getEnvFloat("WEIGHT_TRUST", DefaultWeightTrust),
		WeightTemporal:   getEnvFloat("WEIGHT_TEMPORAL", DefaultWeightTemporal),
		WeightStylometry: getEnvFloat("WEIGHT_STYLOMETRY", DefaultWeightStylometry),
		WeightPayment:    getEnvFloat("WEIGHT_PAYMENT", DefaultWeightPayment),

		ThresholdMedium:   getEnvFloat("THRESHOLD_MEDIUM", DefaultThresholdMedium),
		ThresholdHigh:     getEnvFloat("THRESHOLD_HIGH", DefaultThresholdHigh),
		ThresholdCritical: getEnvFloat("THRESHOLD_CRITICAL", DefaultThresholdCritical),

		RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", DefaultRateLimit),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and coherent
func (c *Config) Validate() error {
	if c.OrgDomain == "" {
		return fmt.Errorf("ORG_DOMAIN is required")
	}
	if strings.Contains(c.OrgDomain, "@") {
		return fmt.Errorf("ORG_DOMAIN must be a bare domain (e.g. \"acme.com\"), not an address")
	}

	if c.TemporalMinSamples < 1 || c.StyleMinSamples < 1 {
		return fmt.Errorf("profile sample minimums must be at least 1")
	}

	if c.PropagationIterations < 1 {
		return fmt.Errorf("PROPAGATION_ITERATIONS must be at least 1")
	}
	if c.PropagationDamping <= 0 || c.PropagationDamping >= 1 {
		return fmt.Errorf("PROPAGATION_DAMPING must be in (0, 1)")
	}
	if c.PropagationEpsilon <= 0 {
		return fmt.Errorf("PROPAGATION_EPSILON must be positive")
	}

	sum := c.WeightTrust + c.WeightTemporal + c.WeightStylometry + c.WeightPayment
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("component weights must sum to 1.0, got %.4f", sum)
	}

	if !(0 < c.ThresholdMedium && c.ThresholdMedium < c.ThresholdHigh &&
		c.ThresholdHigh < c.ThresholdCritical && c.ThresholdCritical <= 1) {
		return fmt.Errorf("risk thresholds must be ascending within (0, 1]")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database access, auth, business policy
// knobs, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-resto-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AuthConfig defines token issuance settings.
type AuthConfig struct {
	JWTSecret string        // JWT_SECRET (HMAC signing key)
	JWTIssuer string        // JWT_ISSUER
	TokenTTL  time.Duration // JWT_TTL
}

// LoginGuardConfig defines the throttle, lockout, and IP-block policy applied
// before and after credential checks.
type LoginGuardConfig struct {
	ThrottleWindow time.Duration // LOGIN_THROTTLE_WINDOW: sliding window for the per-IP attempt cap
	ThrottleMax    int64         // LOGIN_THROTTLE_MAX: attempts allowed inside the window
	FailWindow     time.Duration // LOGIN_FAIL_WINDOW: sliding window for the per-IP failure cap
	FailMax        int64         // LOGIN_FAIL_MAX: failures that trigger an IP block
	BlockDuration  time.Duration // LOGIN_BLOCK_DURATION: how long an IP block lasts
}

// PromoConfig defines promotion evaluation knobs.
type PromoConfig struct {
	MaxPercent int64 // PROMO_MAX_PERCENT: margin-protection cap for percent discounts
}

// LoyaltyConfig defines loyalty redemption policy knobs.
type LoyaltyConfig struct {
	MinRedeem        int64         // LOYALTY_MIN_REDEEM: smallest points amount per transaction
	MaxRedeem        int64         // LOYALTY_MAX_REDEEM: largest points amount per transaction
	CentsPerPoint    int64         // LOYALTY_CENTS_PER_POINT: conversion rate
	CreditExpiry     time.Duration // LOYALTY_CREDIT_EXPIRY: online credit lifetime
	NotifyWebhookURL string        // LOYALTY_WEBHOOK_URL: optional redemption notification sink
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// Database
	DBDriver string // sqlite|postgres
	DBDSN    string // driver-specific DSN; for sqlite this is the file path

	// Auth
	Auth AuthConfig

	// Business policy
	LoginGuard LoginGuardConfig
	Promo      PromoConfig
	Loyalty    LoyaltyConfig

	// FraudWebhookURL is an optional sink for IP-block alerts.
	FraudWebhookURL string

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Database
		DBDriver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBDSN:    getenv("DB_DSN", "app.db"),

		// Auth
		Auth: AuthConfig{
			JWTSecret: getenv("JWT_SECRET", ""),
			JWTIssuer: getenv("JWT_ISSUER", "go-resto-backend"),
			TokenTTL:  getdur("JWT_TTL", 24*time.Hour),
		},

		// Business policy
		LoginGuard: LoginGuardConfig{
			ThrottleWindow: getdur("LOGIN_THROTTLE_WINDOW", time.Minute),
			ThrottleMax:    int64(getint("LOGIN_THROTTLE_MAX", 20)),
			FailWindow:     getdur("LOGIN_FAIL_WINDOW", 15*time.Minute),
			FailMax:        int64(getint("LOGIN_FAIL_MAX", 10)),
			BlockDuration:  getdur("LOGIN_BLOCK_DURATION", time.Hour),
		},
		Promo: PromoConfig{
			MaxPercent: int64(getint("PROMO_MAX_PERCENT", 70)),
		},
		Loyalty: LoyaltyConfig{
			MinRedeem:        int64(getint("LOYALTY_MIN_REDEEM", 100)),
			MaxRedeem:        int64(getint("LOYALTY_MAX_REDEEM", 50000)),
			CentsPerPoint:    int64(getint("LOYALTY_CENTS_PER_POINT", 1)),
			CreditExpiry:     getdur("LOYALTY_CREDIT_EXPIRY", 90*24*time.Hour),
			NotifyWebhookURL: getenv("LOYALTY_WEBHOOK_URL", ""),
		},

		FraudWebhookURL: getenv("FRAUD_WEBHOOK_URL", ""),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-resto-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return cfg, errors.New("DB_DRIVER must be sqlite or postgres")
	}
	if strings.TrimSpace(cfg.DBDSN) == "" {
		return cfg, errors.New("DB_DSN must not be empty")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return cfg, errors.New("JWT_SECRET must not be empty")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return cfg, errors.New("JWT_TTL must be > 0")
	}
	if cfg.LoginGuard.ThrottleWindow <= 0 || cfg.LoginGuard.FailWindow <= 0 || cfg.LoginGuard.BlockDuration <= 0 {
		return cfg, errors.New("login guard windows must be positive durations")
	}
	if cfg.LoginGuard.ThrottleMax < 1 || cfg.LoginGuard.FailMax < 1 {
		return cfg, errors.New("login guard limits must be >= 1")
	}
	if cfg.Promo.MaxPercent < 1 || cfg.Promo.MaxPercent > 100 {
		return cfg, errors.New("PROMO_MAX_PERCENT must be in [1,100]")
	}
	if cfg.Loyalty.MinRedeem < 1 || cfg.Loyalty.MaxRedeem < cfg.Loyalty.MinRedeem {
		return cfg, errors.New("loyalty redemption range is invalid")
	}
	if cfg.Loyalty.CentsPerPoint < 1 {
		return cfg, errors.New("LOYALTY_CENTS_PER_POINT must be >= 1")
	}
	if cfg.Loyalty.CreditExpiry <= 0 {
		return cfg, errors.New("LOYALTY_CREDIT_EXPIRY must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}

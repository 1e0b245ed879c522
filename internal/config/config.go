package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DexAppConfig is the process-wide identity-provider client configuration.
// It is loaded once at startup and never mutated afterwards.
type DexAppConfig struct {
	ClientID     string
	ClientSecret string
	IssuerURL    string
	AuthorizeURL string
	TokenURL     string
	JWKSURL      string
	RedirectURL  string
	Scopes       []string

	// SkipIDTokenVerification disables JWKS signature checks on ID tokens.
	// Verification is mandatory by default; this exists only for local
	// development against providers without a reachable JWKS endpoint.
	SkipIDTokenVerification bool
}

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	ServiceName string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Dex DexAppConfig

	// StateTTL bounds the lifetime of cached auth state (5-10 minutes).
	StateTTL time.Duration
	// StateMaxAge is the freshness window for signed state tokens,
	// enforced independently of the cache TTL.
	StateMaxAge time.Duration

	// ContextMismatchAllow downgrades a client IP / user agent mismatch
	// during the callback from a rejection to a logged warning.
	ContextMismatchAllow bool

	RateLimitRPM      int
	TelemetryEndpoint string
	TelemetryInsecure bool

	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:   getEnv("APP_ENV", "development"),
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		ServiceName:   getEnv("SERVICE_NAME", "dexgate"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		Dex: DexAppConfig{
			ClientID:                strings.TrimSpace(os.Getenv("DEX_CLIENT_ID")),
			ClientSecret:            os.Getenv("DEX_CLIENT_SECRET"),
			IssuerURL:               strings.TrimRight(strings.TrimSpace(os.Getenv("DEX_ISSUER_URL")), "/"),
			RedirectURL:             strings.TrimSpace(os.Getenv("DEX_REDIRECT_URL")),
			Scopes:                  getList("DEX_SCOPES", []string{"openid", "profile", "email"}),
			SkipIDTokenVerification: getBool("DEX_SKIP_ID_TOKEN_VERIFY", false),
		},
		StateTTL:             getDuration("AUTH_STATE_TTL", 5*time.Minute),
		StateMaxAge:          getDuration("AUTH_STATE_MAX_AGE", 10*time.Minute),
		ContextMismatchAllow: getBool("AUTH_CONTEXT_MISMATCH_ALLOW", false),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Dex.ClientID == "" {
		return Config{}, fmt.Errorf("DEX_CLIENT_ID is required")
	}
	if cfg.Dex.IssuerURL == "" {
		return Config{}, fmt.Errorf("DEX_ISSUER_URL is required")
	}
	if cfg.Dex.RedirectURL == "" {
		return Config{}, fmt.Errorf("DEX_REDIRECT_URL is required")
	}

	// Endpoint URLs default to the Dex issuer layout.
	cfg.Dex.AuthorizeURL = getEnv("DEX_AUTHORIZE_URL", cfg.Dex.IssuerURL+"/auth")
	cfg.Dex.TokenURL = getEnv("DEX_TOKEN_URL", cfg.Dex.IssuerURL+"/token")
	cfg.Dex.JWKSURL = getEnv("DEX_JWKS_URL", cfg.Dex.IssuerURL+"/keys")

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}

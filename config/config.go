package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Database
	PostgresDSN string

	// Cache
	RedisAddr string

	// Providers
	OpenRouterAPIKey string
	HuggingFaceToken string
	MoonshotAPIKey   string
	ReplicateAPIKey  string
	AntigravityCreds string // path to the antigravity accounts file
	AgentCLIBinary   string // default: "openclaw"

	// Observability
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Rate Limiting
	DefaultRateLimitRPM int64 // requests per minute, default: 100

	// Billing
	StripeAPIKey string

	// Usage accounting
	AccountantInterval time.Duration // default: 5s

	// Storage
	DataDir string // generated media artifacts, default: ./data
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		OpenRouterAPIKey:     os.Getenv("OPENROUTER_API_KEY"),
		HuggingFaceToken:     os.Getenv("HF_API_TOKEN"),
		MoonshotAPIKey:       os.Getenv("MOONSHOT_API_KEY"),
		ReplicateAPIKey:      os.Getenv("REPLICATE_API_KEY"),
		AntigravityCreds:     getEnv("ANTIGRAVITY_CREDS_PATH", "/root/.config/opencode/antigravity-accounts.json"),
		AgentCLIBinary:       getEnv("AGENT_CLI_BINARY", "openclaw"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		StripeAPIKey:         os.Getenv("STRIPE_API_KEY"),
		DataDir:              getEnv("DATA_DIR", "./data"),
	}

	// Rate Limiting Default
	rpmStr := getEnv("DEFAULT_RATE_LIMIT_RPM", "100")
	rpm, err := strconv.ParseInt(rpmStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_RATE_LIMIT_RPM: %w", err)
	}
	cfg.DefaultRateLimitRPM = rpm

	intervalStr := getEnv("ACCOUNTANT_INTERVAL", "5s")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid ACCOUNTANT_INTERVAL: %w", err)
	}
	cfg.AccountantInterval = interval

	// Validation
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// Package config handles application configuration from environment variables
package config

import (
	"fmt"
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

	// Card rail (Wompi widget + webhook)
	WompiPublicKey       string // pub_test_xxx or pub_prod_xxx
	WompiIntegritySecret string
	WompiWebhookSecret   string
	FrontendURL          string

	// Crypto rail (Celo / cCOP)
	CeloRPCURL      string
	CCOPContract    string // ERC20 token contract address
	ReceivingAddr   string // service-owned destination wallet
	TokenDecimals   int
	CryptoTTLMin    int // minutes before an unpaid crypto recharge expires
	ChainTimeoutSec int // per-request RPC timeout

	// Recharge bounds (COP)
	CardMinAmount   string
	CardMaxAmount   string
	CryptoMinAmount string
	CryptoMaxAmount string

	// Security
	JWTSecret    string
	RateLimitRPM int

	// Observability
	OTLPEndpoint string
}

const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultCeloRPC       = "https://forno.celo.org"
	DefaultCCOPContract  = "0x00Be915B9dCf56a3CBE739D9B9c202ca692409EC" // cCOP on Celo mainnet
	DefaultTokenDecimals = 18
	DefaultCryptoTTLMin  = 30
	DefaultChainTimeout  = 15
	DefaultRateLimit     = 120
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:          os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		WompiPublicKey:       os.Getenv("WOMPI_PUBLIC_KEY"),
		WompiIntegritySecret: os.Getenv("WOMPI_INTEGRITY_SECRET"),
		WompiWebhookSecret:   os.Getenv("WOMPI_WEBHOOK_SECRET"),
		FrontendURL:          getEnv("FRONTEND_URL", "http://localhost:3000"),
		CeloRPCURL:           getEnv("CELO_RPC_URL", DefaultCeloRPC),
		CCOPContract:         getEnv("CCOP_CONTRACT", DefaultCCOPContract),
		ReceivingAddr:        os.Getenv("FOODCASH_CELO_ADDRESS"),
		TokenDecimals:        getEnvInt("CCOP_DECIMALS", DefaultTokenDecimals),
		CryptoTTLMin:         getEnvInt("CRYPTO_TTL_MINUTES", DefaultCryptoTTLMin),
		ChainTimeoutSec:      getEnvInt("CHAIN_TIMEOUT_SECONDS", DefaultChainTimeout),
		CardMinAmount:        getEnv("CARD_MIN_AMOUNT", "10000"),
		CardMaxAmount:        getEnv("CARD_MAX_AMOUNT", "1000000"),
		CryptoMinAmount:      getEnv("CRYPTO_MIN_AMOUNT", "1000"),
		CryptoMaxAmount:      getEnv("CRYPTO_MAX_AMOUNT", "5000000"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		RateLimitRPM:         getEnvInt("RATE_LIMIT_RPM", DefaultRateLimit),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.WompiPublicKey != "" &&
		!strings.HasPrefix(c.WompiPublicKey, "pub_test_") &&
		!strings.HasPrefix(c.WompiPublicKey, "pub_prod_") {
		return fmt.Errorf("WOMPI_PUBLIC_KEY must start with pub_test_ or pub_prod_")
	}

	if c.ReceivingAddr != "" {
		addr := strings.TrimPrefix(strings.ToLower(c.ReceivingAddr), "0x")
		if len(addr) != 40 {
			return fmt.Errorf("FOODCASH_CELO_ADDRESS must be 40 hex characters (with or without 0x prefix)")
		}
	}

	if c.CryptoTTLMin <= 0 {
		return fmt.Errorf("CRYPTO_TTL_MINUTES must be positive")
	}

	return nil
}

// CardRailEnabled reports whether the Wompi widget can be offered.
func (c *Config) CardRailEnabled() bool {
	return c.WompiPublicKey != "" && c.WompiIntegritySecret != ""
}

// CryptoRailEnabled reports whether crypto recharges can be offered.
func (c *Config) CryptoRailEnabled() bool {
	return c.ReceivingAddr != ""
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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the DeFlow automation service.
type Config struct {
	// Chain RPC Configuration
	BitcoinRPCURL   string
	BitcoinNetwork  string // mainnet, testnet, regtest
	EthereumRPCURL  string
	EthChainID      int64
	ArbitrumRPCURL  string
	OptimismRPCURL  string
	PolygonRPCURL   string
	AvalancheRPCURL string
	BaseRPCURL      string
	SolanaRPCURL    string

	// Server Configuration
	ListenAddr  string
	MetricsAddr string
	HealthAddr  string

	// Database Configuration (URL-based; read by database.NewClient)
	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMinConns    int
	DatabaseMaxIdleTime int  // seconds
	DatabaseMaxLifetime int  // seconds
	DatabaseRequired    bool // If true, startup fails if database connection fails

	// Database Configuration (individual fields; not read by database.NewClient)
	DBHost            string
	DBPort            int
	DBUser            string
	DBPassword        string
	DBName            string
	DBSSLMode         string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Durable KV (WorkflowStore) configuration, backed by cometbft-db
	KVDataDir string
	KVBackend string // "goleveldb", "memdb"

	// Signing oracle: the threshold-signing key identity used to derive
	// per-user, per-chain addresses (§4.8).
	SigningKeyName string
	DataDir        string // Base directory for data files

	// Service Configuration
	ValidatorID string
	LogLevel    string

	// Security Configuration
	JWTSecret   string
	CORSOrigins []string
	TLSEnabled  bool

	// Rate Limiting
	RateLimitRequests int
	RateLimitWindow   int

	// Price oracle refresh cadence; not read at startup (the fee estimator
	// cache uses feeestimator.DefaultTTL)
	PriceRefreshInterval time.Duration

	// Firestore Configuration (for real-time UI sync / outbound notifications)
	FirestoreEnabled        bool
	FirebaseProjectID       string
	FirebaseCredentialsFile string

	// Treasury / team hierarchy defaults (§4.13)
	TreasuryOwnerPrincipal       string
	TreasuryDistributionFreqSec  int64
	TreasuryMinDistributionUSD   float64
	TreasuryOperatingCostUSD     float64

	// Liquidity pool activation gate (§4.12)
	PoolActivationThresholdUSD float64

	// Directory of starter workflow template YAML files served by the
	// templates API, e.g. for cloning into a new user's workflow list.
	TemplateDir string
}

// Load reads configuration from environment variables.
//
// SECURITY: Required variables have no defaults and must be explicitly set.
// Call Validate() after Load() to ensure all required configuration is present.
func Load() (*Config, error) {
	cfg := &Config{
		// Chain RPC Configuration - REQUIRED, no defaults for production security
		BitcoinRPCURL:   getEnv("BITCOIN_RPC_URL", ""),
		BitcoinNetwork:  getEnv("BITCOIN_NETWORK", "mainnet"),
		EthereumRPCURL:  getEnv("ETHEREUM_RPC_URL", ""),
		EthChainID:      getEnvInt64("ETH_CHAIN_ID", 1),
		ArbitrumRPCURL:  getEnv("ARBITRUM_RPC_URL", ""),
		OptimismRPCURL:  getEnv("OPTIMISM_RPC_URL", ""),
		PolygonRPCURL:   getEnv("POLYGON_RPC_URL", ""),
		AvalancheRPCURL: getEnv("AVALANCHE_RPC_URL", ""),
		BaseRPCURL:      getEnv("BASE_RPC_URL", ""),
		SolanaRPCURL:    getEnv("SOLANA_RPC_URL", ""),

		// Server Configuration - safe defaults
		ListenAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("API_PORT", "8080"),
		MetricsAddr: getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("METRICS_PORT", "9090"),
		HealthAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("HEALTH_CHECK_PORT", "8081"),

		// Database Configuration - REQUIRED, no default for security
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMinConns:    getEnvInt("DATABASE_MIN_CONNS", 5),
		DatabaseMaxIdleTime: getEnvInt("DATABASE_MAX_IDLE_TIME", 300),
		DatabaseMaxLifetime: getEnvInt("DATABASE_MAX_LIFETIME", 3600),
		DatabaseRequired:    getEnvBool("DATABASE_REQUIRED", false),

		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnvInt("DB_PORT", 5432),
		DBUser:            getEnv("DB_USER", "deflow"),
		DBPassword:        getEnv("DB_PASSWORD", ""),
		DBName:            getEnv("DB_NAME", "deflow"),
		DBSSLMode:         getEnv("DB_SSL_MODE", "require"),
		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),

		KVDataDir: getEnv("KV_DATA_DIR", "./data/kv"),
		KVBackend: getEnv("KV_BACKEND", "goleveldb"),

		SigningKeyName: getEnv("SIGNING_KEY_NAME", "deflow_threshold_key"),
		DataDir:        getEnv("DATA_DIR", "./data"),

		ValidatorID: getEnv("NODE_ID", "deflow-node-default"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Security Configuration - REQUIRED, no weak defaults
		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001"), ","),
		TLSEnabled:  getEnvBool("TLS_ENABLED", true),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getEnvInt("RATE_LIMIT_WINDOW", 60),

		PriceRefreshInterval: getEnvDuration("PRICE_REFRESH_INTERVAL", 30*time.Second),

		FirestoreEnabled:        getEnvBool("FIRESTORE_ENABLED", false),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		TreasuryOwnerPrincipal:      getEnv("TREASURY_OWNER_PRINCIPAL", ""),
		TreasuryDistributionFreqSec: getEnvInt64("TREASURY_DISTRIBUTION_FREQUENCY_SECONDS", 30*24*3600),
		TreasuryMinDistributionUSD:  getEnvFloat("TREASURY_MIN_DISTRIBUTION_USD", 5000.0),
		TreasuryOperatingCostUSD:    getEnvFloat("TREASURY_OPERATING_COST_USD", 15000.0),

		PoolActivationThresholdUSD: getEnvFloat("POOL_ACTIVATION_THRESHOLD_USD", 400000.0),

		TemplateDir: getEnv("TEMPLATE_DIR", "./templates"),
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and secure.
// This must be called after Load() before starting the service.
func (c *Config) Validate() error {
	var errors []string

	// Required chain configuration - at least one chain RPC must be set
	if c.EthereumRPCURL == "" && c.BitcoinRPCURL == "" && c.SolanaRPCURL == "" {
		errors = append(errors, "at least one of ETHEREUM_RPC_URL, BITCOIN_RPC_URL, SOLANA_RPC_URL is required")
	}

	if c.SigningKeyName == "" {
		errors = append(errors, "SIGNING_KEY_NAME is required but not set")
	}

	// Database configuration validation
	if c.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required but not set")
	} else {
		if strings.Contains(c.DatabaseURL, "sslmode=disable") {
			errors = append(errors, "DATABASE_URL must use sslmode=require for production security")
		}
		if strings.Contains(c.DatabaseURL, "development") || strings.Contains(c.DatabaseURL, "password") {
			errors = append(errors, "DATABASE_URL appears to contain default/weak credentials - use secure credentials")
		}
	}

	// JWT secret validation
	if c.JWTSecret == "" {
		errors = append(errors, "JWT_SECRET is required but not set")
	} else {
		weakSecrets := []string{"development", "secret", "password", "change-me", "changeme", "default", "test"}
		lowerSecret := strings.ToLower(c.JWTSecret)
		for _, weak := range weakSecrets {
			if strings.Contains(lowerSecret, weak) {
				errors = append(errors, "JWT_SECRET contains weak/default value - generate a secure random secret")
				break
			}
		}
		if len(c.JWTSecret) < 32 {
			errors = append(errors, "JWT_SECRET must be at least 32 characters for security")
		}
	}

	if !c.TLSEnabled {
		fmt.Println("WARNING: TLS_ENABLED is false - enable TLS for production security")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// ValidateForDevelopment performs relaxed validation suitable for local development.
// WARNING: Do not use this in production - use Validate() instead.
func (c *Config) ValidateForDevelopment() error {
	var errors []string

	if c.KVDataDir == "" {
		errors = append(errors, "KV_DATA_DIR is required")
	}

	if len(errors) > 0 {
		return fmt.Errorf("development configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

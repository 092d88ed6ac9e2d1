// Package config provides configuration management for the token portal services.
// It loads configuration from environment variables and .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Solana       SolanaConfig
	Sale         SaleConfig
	Verification VerificationConfig
	Airdrop      AirdropConfig
	Worker       WorkerConfig
	RateLimit    RateLimitConfig
	Events       EventsConfig
	Admin        AdminConfig
	Logging      LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the postgres:// form used by golang-migrate.
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds ClickHouse configuration. The transfer archive is
// optional; when Enabled is false nothing is written.
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// SolanaConfig holds chain RPC configuration
type SolanaConfig struct {
	RPCEndpoints []string
	Commitment   string
	CooldownTime time.Duration
	// Breaker settings for the chain observer
	BreakerMaxFailures int
	BreakerTimeout     time.Duration
}

// SaleConfig describes where payments must land
type SaleConfig struct {
	USDCMint      string
	TreasuryOwner string
	// TreasuryTokenAccount overrides the derived associated token account.
	TreasuryTokenAccount string
	USDCDecimals         int32
	// TrancheCacheTTL bounds how stale the public tranche list may be. Zero disables caching.
	TrancheCacheTTL time.Duration
}

// VerificationConfig holds intent verification settings
type VerificationConfig struct {
	Lookback   int
	SweepLimit int
}

// AirdropConfig holds submission ingestion settings
type AirdropConfig struct {
	SubmissionsPerWindow int
	SubmissionWindow     time.Duration
	TokenDecimals        int32
}

// WorkerConfig holds scheduled job settings (robfig/cron specs)
type WorkerConfig struct {
	SweepSchedule        string
	AuditSchedule        string
	CommissionRetryLimit int
	RunTimeout           time.Duration
}

// RateLimitConfig holds HTTP rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// EventsConfig holds RabbitMQ settings. An empty URL disables publishing.
type EventsConfig struct {
	AMQPURL  string
	Exchange string
}

// AdminConfig holds the shared secret for privileged routes
type AdminConfig struct {
	Secret string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "token_portal"),
				User:           getEnv("POSTGRES_USER", "portal"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "token_portal"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Solana: SolanaConfig{
			RPCEndpoints:       getEnvAsSlice("SOLANA_RPC_URLS", []string{"https://api.mainnet-beta.solana.com"}),
			Commitment:         getEnv("SOLANA_COMMITMENT", "confirmed"),
			CooldownTime:       getEnvAsDuration("SOLANA_RPC_COOLDOWN", 60*time.Second),
			BreakerMaxFailures: getEnvAsInt("SOLANA_BREAKER_MAX_FAILURES", 5),
			BreakerTimeout:     getEnvAsDuration("SOLANA_BREAKER_TIMEOUT", 30*time.Second),
		},
		Sale: SaleConfig{
			USDCMint:             getEnv("USDC_MINT", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
			TreasuryOwner:        getEnv("TREASURY_OWNER", ""),
			TreasuryTokenAccount: getEnv("TREASURY_TOKEN_ACCOUNT", ""),
			USDCDecimals:         int32(getEnvAsInt("USDC_DECIMALS", 6)), // #nosec G115 - small constant
			TrancheCacheTTL:      getEnvAsDuration("TRANCHE_CACHE_TTL", 5*time.Second),
		},
		Verification: VerificationConfig{
			Lookback:   getEnvAsInt("VERIFY_LOOKBACK", 50),
			SweepLimit: getEnvAsInt("VERIFY_SWEEP_LIMIT", 100),
		},
		Airdrop: AirdropConfig{
			SubmissionsPerWindow: getEnvAsInt("AIRDROP_SUBMISSIONS_PER_WINDOW", 20),
			SubmissionWindow:     getEnvAsDuration("AIRDROP_SUBMISSION_WINDOW", time.Hour),
			TokenDecimals:        int32(getEnvAsInt("AIRDROP_TOKEN_DECIMALS", 9)), // #nosec G115 - small constant
		},
		Worker: WorkerConfig{
			SweepSchedule:        getEnv("WORKER_SWEEP_SCHEDULE", "@every 30s"),
			AuditSchedule:        getEnv("WORKER_AUDIT_SCHEDULE", "@every 10m"),
			CommissionRetryLimit: getEnvAsInt("WORKER_COMMISSION_RETRY_LIMIT", 50),
			RunTimeout:           getEnvAsDuration("WORKER_RUN_TIMEOUT", 2*time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsInt("RATE_LIMIT_RPS", 10),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		Events: EventsConfig{
			AMQPURL:  getEnv("AMQP_URL", ""),
			Exchange: getEnv("EVENTS_EXCHANGE", "portal_events"),
		},
		Admin: AdminConfig{
			Secret: getEnv("ADMIN_SECRET", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// Validate reports configuration that makes the portal unusable.
// These are never retried.
func (c *Config) Validate() error {
	var errs []error
	if c.Sale.USDCMint == "" {
		errs = append(errs, errors.New("USDC_MINT is required"))
	}
	if c.Sale.TreasuryOwner == "" && c.Sale.TreasuryTokenAccount == "" {
		errs = append(errs, errors.New("TREASURY_OWNER or TREASURY_TOKEN_ACCOUNT is required"))
	}
	if len(c.Solana.RPCEndpoints) == 0 {
		errs = append(errs, errors.New("SOLANA_RPC_URLS must list at least one endpoint"))
	}
	if c.Verification.Lookback <= 0 {
		errs = append(errs, fmt.Errorf("VERIFY_LOOKBACK must be positive, got %d", c.Verification.Lookback))
	}
	if c.Airdrop.SubmissionsPerWindow < 0 {
		errs = append(errs, fmt.Errorf("AIRDROP_SUBMISSIONS_PER_WINDOW cannot be negative, got %d", c.Airdrop.SubmissionsPerWindow))
	}
	return errors.Join(errs...)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice splits a comma-separated variable, dropping blanks
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

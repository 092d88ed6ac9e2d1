package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	// Set some test environment variables
	if err := os.Setenv("SERVER_PORT", "9090"); err != nil {
		t.Fatalf("Failed to set SERVER_PORT: %v", err)
	}
	if err := os.Setenv("POSTGRES_HOST", "testhost"); err != nil {
		t.Fatalf("Failed to set POSTGRES_HOST: %v", err)
	}
	if err := os.Setenv("AIRDROP_SUBMISSION_WINDOW", "30m"); err != nil {
		t.Fatalf("Failed to set AIRDROP_SUBMISSION_WINDOW: %v", err)
	}
	if err := os.Setenv("SOLANA_RPC_URLS", "https://rpc-a.example, ,https://rpc-b.example"); err != nil {
		t.Fatalf("Failed to set SOLANA_RPC_URLS: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("SERVER_PORT")
		_ = os.Unsetenv("POSTGRES_HOST")
		_ = os.Unsetenv("AIRDROP_SUBMISSION_WINDOW")
		_ = os.Unsetenv("SOLANA_RPC_URLS")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}

	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}

	if cfg.Airdrop.SubmissionWindow != 30*time.Minute {
		t.Errorf("Airdrop.SubmissionWindow = %v, want %v", cfg.Airdrop.SubmissionWindow, 30*time.Minute)
	}

	if len(cfg.Solana.RPCEndpoints) != 2 || cfg.Solana.RPCEndpoints[1] != "https://rpc-b.example" {
		t.Errorf("Solana.RPCEndpoints = %v, want two trimmed endpoints", cfg.Solana.RPCEndpoints)
	}

	if cfg.Verification.Lookback != 50 {
		t.Errorf("Verification.Lookback = %v, want %v", cfg.Verification.Lookback, 50)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Solana:       SolanaConfig{RPCEndpoints: []string{"https://rpc.example"}},
			Sale:         SaleConfig{USDCMint: "mint", TreasuryOwner: "owner"},
			Verification: VerificationConfig{Lookback: 50},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "token account instead of owner", mutate: func(c *Config) {
			c.Sale.TreasuryOwner = ""
			c.Sale.TreasuryTokenAccount = "ata"
		}},
		{name: "missing treasury", mutate: func(c *Config) { c.Sale.TreasuryOwner = "" }, wantErr: "TREASURY_OWNER"},
		{name: "missing mint", mutate: func(c *Config) { c.Sale.USDCMint = "" }, wantErr: "USDC_MINT"},
		{name: "no rpc endpoints", mutate: func(c *Config) { c.Solana.RPCEndpoints = nil }, wantErr: "SOLANA_RPC_URLS"},
		{name: "zero lookback", mutate: func(c *Config) { c.Verification.Lookback = 0 }, wantErr: "VERIFY_LOOKBACK"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestPostgresConfigURL(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", Database: "portal", User: "u", Password: "p"}
	want := "postgres://u:p@db:5432/portal?sslmode=disable"
	if got := cfg.URL(); got != want {
		t.Errorf("URL() = %v, want %v", got, want)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "NONEXISTENT_KEY",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "returns integer when valid",
			key:          "TEST_INT",
			defaultValue: 100,
			envValue:     "200",
			want:         200,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_INT_INVALID",
			defaultValue: 100,
			envValue:     "invalid",
			want:         100,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOTSET",
			defaultValue: 100,
			envValue:     "",
			want:         100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnvAsInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns duration when valid",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_DURATION_INVALID",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DURATION_NOTSET",
			defaultValue: 10 * time.Second,
			envValue:     "",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnvAsDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsSlice(t *testing.T) {
	t.Setenv("TEST_SLICE", " a, b ,,c ")
	got := getEnvAsSlice("TEST_SLICE", nil)
	if strings.Join(got, "|") != "a|b|c" {
		t.Errorf("getEnvAsSlice() = %v, want [a b c]", got)
	}

	t.Setenv("TEST_SLICE_BLANK", " , ")
	def := []string{"x"}
	if got := getEnvAsSlice("TEST_SLICE_BLANK", def); len(got) != 1 || got[0] != "x" {
		t.Errorf("getEnvAsSlice() = %v, want default", got)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	if !getEnvAsBool("TEST_BOOL", false) {
		t.Error("getEnvAsBool() = false, want true")
	}
	t.Setenv("TEST_BOOL_INVALID", "maybe")
	if getEnvAsBool("TEST_BOOL_INVALID", false) {
		t.Error("getEnvAsBool() = true, want default false")
	}
}

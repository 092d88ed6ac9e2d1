package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/skopiLandToken/skopi-sub000/internal/config"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testPostgresConfig() *config.PostgresConfig {
	env := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}
	return &config.PostgresConfig{
		Host:           env("TEST_POSTGRES_HOST", "localhost"),
		Port:           env("TEST_POSTGRES_PORT", "5432"),
		Database:       env("TEST_POSTGRES_DB", "token_portal_test"),
		User:           env("TEST_POSTGRES_USER", "portal"),
		Password:       env("TEST_POSTGRES_PASSWORD", "portal_dev_password"),
		MaxConnections: 20,
	}
}

// openTestDB connects to the test database, applies migrations and empties
// every table. The test is skipped when Postgres is unavailable.
func openTestDB(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	if err := RunMigrations(cfg.URL(), "../../migrations/postgres"); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	_, err = db.Pool().Exec(testContext(t), `
		TRUNCATE audit_log, airdrop_allocations, airdrop_submissions, airdrop_tasks,
		         airdrop_campaigns, affiliate_commissions, purchase_intents, tranches
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("truncate error = %v", err)
	}
	return db
}

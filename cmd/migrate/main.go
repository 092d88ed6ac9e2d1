// Package main applies the portal's Postgres ledger and ClickHouse archive schemas.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/skopiLandToken/skopi-sub000/internal/bootstrap"
	"github.com/skopiLandToken/skopi-sub000/internal/config"
	"github.com/skopiLandToken/skopi-sub000/internal/logging"
	"github.com/skopiLandToken/skopi-sub000/internal/storage"
)

const postgresMigrationsPath = "migrations/postgres"

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		dbType = flag.String("db", "postgres", "Database: postgres, clickhouse, all")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger().WithFields(map[string]interface{}{"action": *action, "db": *dbType})

	ctx, cancel := context.WithTimeout(logging.WithLogger(context.Background(), logger), 5*time.Minute)
	defer cancel()

	var runErr error
	switch *dbType {
	case "postgres":
		runErr = migratePostgres(ctx, cfg, *action)
	case "clickhouse":
		runErr = migrateClickHouse(ctx, cfg, *action)
	case "all":
		if runErr = migratePostgres(ctx, cfg, *action); runErr == nil && *action == "up" {
			runErr = migrateClickHouse(ctx, cfg, *action)
		}
	default:
		runErr = fmt.Errorf("unknown database type: %s", *dbType)
	}
	if runErr != nil {
		logger.WithError(runErr).Error("Migration failed")
		_ = logger.Sync()
		os.Exit(1)
	}
}

func migratePostgres(ctx context.Context, cfg *config.Config, action string) error {
	logger := logging.FromContext(ctx)
	url := cfg.Database.Postgres.URL()

	switch action {
	case "up":
		if err := storage.RunMigrations(url, postgresMigrationsPath); err != nil {
			return err
		}
	case "down":
		if err := storage.RollbackMigrations(url, postgresMigrationsPath); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown action: %s", action)
	}

	version, dirty, err := storage.MigrationVersion(url, postgresMigrationsPath)
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{"version": version, "dirty": dirty}).Info("Postgres schema version")
	return nil
}

func migrateClickHouse(ctx context.Context, cfg *config.Config, action string) error {
	logger := logging.FromContext(ctx)
	if action != "up" {
		return fmt.Errorf("ClickHouse migrations only support 'up' action")
	}
	if !cfg.Database.ClickHouse.Enabled {
		logger.Info("Transfer archive disabled (CLICKHOUSE_ENABLED=false), skipping")
		return nil
	}
	if _, err := os.Stat(bootstrap.ClickHouseMigrationsPath); err != nil {
		return fmt.Errorf("migrations directory not found: %w", err)
	}

	db, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("Error closing ClickHouse connection")
		}
	}()

	if err := storage.RunClickHouseMigrations(ctx, db, bootstrap.ClickHouseMigrationsPath); err != nil {
		return err
	}
	logger.Info("ClickHouse migrations completed")
	return nil
}

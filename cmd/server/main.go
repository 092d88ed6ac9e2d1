// Package main provides the API server entry point for the token portal.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skopiLandToken/skopi-sub000/internal/api"
	"github.com/skopiLandToken/skopi-sub000/internal/bootstrap"
	"github.com/skopiLandToken/skopi-sub000/internal/config"
	"github.com/skopiLandToken/skopi-sub000/internal/logging"
)

func main() {
	fmt.Println("Token Portal API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	ctx := logging.WithLogger(context.Background(), logger)
	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{MigrateArchive: true})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize portal")
	}
	defer app.Close()

	health := map[string]api.Pinger{
		"postgres": app.Postgres,
		"redis":    app.Redis,
	}
	if app.ClickHouse != nil {
		health["clickhouse"] = app.ClickHouse
	}

	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		AdminSecret:       cfg.Admin.Secret,
		SweepLimit:        cfg.Verification.SweepLimit,
	}
	if serverConfig.AdminSecret == "" {
		logger.Warn("ADMIN_SECRET is not set, admin routes will refuse every request")
	}

	server := api.NewServer(serverConfig, api.Services{
		Verification:   app.Verification,
		Commissions:    app.Commissions,
		Allocation:     app.Allocation,
		Submissions:    app.Submissions,
		Review:         app.Review,
		Reconciliation: app.Reconciliation,
		Sweep:          app.Sweep,
		Health:         health,
	}, logger)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

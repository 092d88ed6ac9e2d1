// Package main runs the scheduled verification sweep and reconciliation audit.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skopiLandToken/skopi-sub000/internal/bootstrap"
	"github.com/skopiLandToken/skopi-sub000/internal/config"
	"github.com/skopiLandToken/skopi-sub000/internal/logging"
	"github.com/skopiLandToken/skopi-sub000/internal/worker"
)

func main() {
	log.Println("Starting portal worker...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger().WithField("component", "worker")
	defer func() { _ = logger.Sync() }()

	ctx := logging.WithLogger(context.Background(), logger)
	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize portal")
	}
	defer app.Close()

	scheduler, err := worker.NewScheduler(&worker.SchedulerConfig{
		Sweeper:       app.Sweep,
		Auditor:       app.Reconciliation,
		SweepSchedule: cfg.Worker.SweepSchedule,
		AuditSchedule: cfg.Worker.AuditSchedule,
		SweepLimit:    cfg.Verification.SweepLimit,
		RunTimeout:    cfg.Worker.RunTimeout,
		Logger:        logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create scheduler")
	}

	if err := scheduler.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start scheduler")
	}
	for _, job := range scheduler.GetStatus().Jobs {
		logger.WithFields(map[string]interface{}{
			"job":      job.Name,
			"schedule": job.Schedule,
			"nextRun":  job.NextRun,
		}).Info("Job scheduled")
	}

	// Set up graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("Shutdown signal received, waiting for running jobs...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Scheduler did not stop cleanly")
	}

	for _, job := range scheduler.GetStatus().Jobs {
		logger.WithFields(map[string]interface{}{
			"job":       job.Name,
			"runs":      job.Runs,
			"lastError": job.LastError,
		}).Info("Job summary")
	}
	logger.Info("Worker stopped. Goodbye!")
}

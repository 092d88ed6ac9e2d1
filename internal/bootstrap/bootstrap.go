// Package bootstrap connects the portal's backing stores and builds the
// service graph shared by the API server, the worker and portalctl.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/skopiLandToken/skopi-sub000/internal/adapter"
	"github.com/skopiLandToken/skopi-sub000/internal/circuitbreaker"
	"github.com/skopiLandToken/skopi-sub000/internal/config"
	"github.com/skopiLandToken/skopi-sub000/internal/events"
	"github.com/skopiLandToken/skopi-sub000/internal/logging"
	"github.com/skopiLandToken/skopi-sub000/internal/ratelimit"
	"github.com/skopiLandToken/skopi-sub000/internal/retry"
	"github.com/skopiLandToken/skopi-sub000/internal/service"
	"github.com/skopiLandToken/skopi-sub000/internal/storage"
)

// ClickHouseMigrationsPath is where the transfer archive schema lives.
const ClickHouseMigrationsPath = "migrations/clickhouse"

// Options tweak what Build connects to.
type Options struct {
	// Retry governs startup connection attempts. Nil uses the default.
	Retry *retry.RetryConfig
	// MigrateArchive applies the ClickHouse schema when the archive is enabled.
	MigrateArchive bool
}

// App holds every connection and service of a running portal process.
type App struct {
	Config *config.Config

	Postgres   *storage.PostgresDB
	Redis      *storage.RedisCache
	ClickHouse *storage.ClickHouseDB // nil when the archive is disabled

	RPCPool   *adapter.RPCPool
	Breaker   *circuitbreaker.CircuitBreaker
	Publisher events.Publisher

	Verification   *service.VerificationService
	Commissions    *service.CommissionService
	Allocation     *service.AllocationService
	Submissions    *service.SubmissionService
	Review         *service.ReviewService
	Reconciliation *service.ReconciliationService
	Sweep          *service.SweepService
}

// Build connects to Postgres, Redis, the Solana RPC endpoints, the optional
// ClickHouse archive and RabbitMQ, then wires the services. On error every
// connection opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, opts Options) (app *App, err error) {
	logger := logging.FromContext(ctx)
	retryCfg := opts.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultRetryConfig()
	}

	settings, err := service.ResolveSaleSettings(cfg.Sale, cfg.Verification)
	if err != nil {
		return nil, err
	}

	app = &App{Config: cfg}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	logger.Info("Connecting to databases...")
	app.Postgres, err = retry.Connect(ctx, retryCfg, "postgres", func(context.Context) (*storage.PostgresDB, error) {
		return storage.NewPostgresDB(&cfg.Database.Postgres)
	})
	if err != nil {
		return app, err
	}

	app.Redis, err = retry.Connect(ctx, retryCfg, "redis", func(context.Context) (*storage.RedisCache, error) {
		return storage.NewRedisCache(&cfg.Database.Redis)
	})
	if err != nil {
		return app, err
	}

	var archive service.TransferRecorder
	if cfg.Database.ClickHouse.Enabled {
		app.ClickHouse, err = retry.Connect(ctx, retryCfg, "clickhouse", func(context.Context) (*storage.ClickHouseDB, error) {
			return storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		})
		if err != nil {
			return app, err
		}
		if opts.MigrateArchive {
			if err = storage.RunClickHouseMigrations(ctx, app.ClickHouse, ClickHouseMigrationsPath); err != nil {
				return app, fmt.Errorf("clickhouse migrations: %w", err)
			}
		}
		archive = storage.NewTransferArchive(app.ClickHouse)
	} else {
		logger.Info("Transfer archive disabled")
	}
	logger.Info("Database connections established")

	app.RPCPool, err = adapter.NewRPCPool(&adapter.RPCPoolConfig{
		Endpoints:    cfg.Solana.RPCEndpoints,
		CooldownTime: cfg.Solana.CooldownTime,
	})
	if err != nil {
		return app, fmt.Errorf("solana rpc pool: %w", err)
	}
	app.Breaker = circuitbreaker.NewCircuitBreaker(
		circuitbreaker.NewChainConfig(cfg.Solana.BreakerMaxFailures, cfg.Solana.BreakerTimeout),
	)
	observer := adapter.NewBreakerObserver(adapter.NewSolanaObserver(app.RPCPool, cfg.Solana.Commitment), app.Breaker)

	app.Publisher = events.NewPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)

	limiter, err := ratelimit.NewSlidingWindowLimiter(&ratelimit.SlidingWindowConfig{
		Redis:  app.Redis.Client(),
		Limit:  cfg.Airdrop.SubmissionsPerWindow,
		Window: cfg.Airdrop.SubmissionWindow,
		Prefix: ratelimit.DefaultKeyPrefix,
	})
	if err != nil {
		return app, fmt.Errorf("submission limiter: %w", err)
	}

	intents := storage.NewIntentRepository(app.Postgres)
	audit := storage.NewAuditLogRepository(app.Postgres)
	campaigns := storage.NewCampaignRepository(app.Postgres)
	submissions := storage.NewSubmissionRepository(app.Postgres)

	var tranches service.TrancheStore = storage.NewTrancheRepository(app.Postgres)
	if ttl := cfg.Sale.TrancheCacheTTL; ttl > 0 {
		tranches = storage.NewCachedTrancheStore(tranches, storage.NewCacheService(app.Redis, ttl))
	}

	app.Commissions = service.NewCommissionService(storage.NewCommissionRepository(app.Postgres), audit, app.Publisher)
	app.Verification = service.NewVerificationService(service.VerificationDeps{
		Intents:     intents,
		Tranches:    tranches,
		Commissions: app.Commissions,
		Observer:    observer,
		Archive:     archive,
		Audit:       audit,
		Publisher:   app.Publisher,
		Settings:    *settings,
	})
	app.Allocation = service.NewAllocationService(campaigns, audit, app.Publisher, cfg.Airdrop.TokenDecimals)
	app.Submissions = service.NewSubmissionService(campaigns, submissions, limiter, app.Publisher)
	app.Review = service.NewReviewService(submissions, app.Publisher)
	app.Reconciliation = service.NewReconciliationService(campaigns, audit, app.Publisher, cfg.Airdrop.TokenDecimals)
	app.Sweep = service.NewSweepService(intents, app.Verification, app.Commissions, cfg.Worker.CommissionRetryLimit)

	logger.WithFields(map[string]interface{}{
		"rpcEndpoints": len(cfg.Solana.RPCEndpoints),
		"treasury":     settings.Treasury,
		"archive":      app.ClickHouse != nil,
	}).Info("Portal services initialized")
	return app, nil
}

// Close releases every connection. It is safe on a partially built App.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Publisher != nil {
		a.Publisher.Close()
	}
	if a.RPCPool != nil {
		a.RPCPool.Close()
	}
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			logging.WithError(err).Warn("Error closing ClickHouse connection")
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logging.WithError(err).Warn("Error closing Redis connection")
		}
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
}

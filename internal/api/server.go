// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/skopiLandToken/skopi-sub000/internal/logging"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
	"github.com/skopiLandToken/skopi-sub000/internal/service"
	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

// Service interfaces for dependency injection and testing

// VerificationServiceInterface covers intents, tranches and payment verification
type VerificationServiceInterface interface {
	CreateIntent(ctx context.Context, in service.CreateIntentInput) (*models.Intent, error)
	GetIntent(ctx context.Context, id string) (*models.Intent, error)
	MarkAwaitingPayment(ctx context.Context, id string) (*models.Intent, error)
	Verify(ctx context.Context, id string) (*service.VerifyResult, error)
	ForceConfirm(ctx context.Context, id, actor string) (*service.VerifyResult, error)
	FailIntent(ctx context.Context, id, reason, actor string) (*models.Intent, error)
	ListTranches(ctx context.Context) ([]*models.Tranche, error)
	CreateTranche(ctx context.Context, t *models.Tranche) error
}

// CommissionServiceInterface covers commission rows and payouts
type CommissionServiceInterface interface {
	Commit(ctx context.Context, intentID string) ([]*models.Commission, error)
	List(ctx context.Context, intentID string) ([]*models.Commission, error)
	MarkPayable(ctx context.Context, confirmedBefore time.Time, actor string) (int64, error)
	MarkPaid(ctx context.Context, id, txSignature, actor string) (*models.Commission, error)
}

// AllocationServiceInterface covers campaigns, tasks and direct allocations
type AllocationServiceInterface interface {
	Allocate(ctx context.Context, in service.AllocateInput) (*models.AllocationResult, error)
	CreateCampaign(ctx context.Context, in service.CreateCampaignInput) (*models.Campaign, error)
	GetCampaign(ctx context.Context, id string) (*service.CampaignView, error)
	ListAllocations(ctx context.Context, campaignID, wallet string) ([]*models.Allocation, error)
	SetCampaignStatus(ctx context.Context, id string, status types.CampaignStatus, actor string) (*models.Campaign, error)
	CreateTask(ctx context.Context, campaignID string, in service.CreateTaskInput) (*models.Task, error)
}

// SubmissionServiceInterface ingests task evidence
type SubmissionServiceInterface interface {
	Submit(ctx context.Context, in service.SubmitInput) (*service.SubmitResult, error)
}

// ReviewServiceInterface lists the review queue and applies batch decisions
type ReviewServiceInterface interface {
	ListPending(ctx context.Context, campaignID string, limit int) ([]*models.Submission, error)
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	Approve(ctx context.Context, ids []string, reviewer string) (*service.ReviewBatchResult, error)
	Reject(ctx context.Context, ids []string, reviewer, reason string) (*service.ReviewBatchResult, error)
}

// ReconciliationServiceInterface audits campaign counters
type ReconciliationServiceInterface interface {
	Audit(ctx context.Context, campaignID *string) (*service.AuditReport, error)
}

// SweepServiceInterface runs the batch verification sweep
type SweepServiceInterface interface {
	Run(ctx context.Context, limit int) (*service.SweepReport, error)
}

// Pinger is a dependency checked by /health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the handlers' collaborators
type Services struct {
	Verification   VerificationServiceInterface
	Commissions    CommissionServiceInterface
	Allocation     AllocationServiceInterface
	Submissions    SubmissionServiceInterface
	Review         ReviewServiceInterface
	Reconciliation ReconciliationServiceInterface
	Sweep          SweepServiceInterface
	// Health maps a dependency name to its pinger
	Health map[string]Pinger
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	services   Services
	logger     *logging.Logger
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// Per-client token bucket for all routes
	RequestsPerSecond int
	Burst             int
	AdminSecret       string
	SweepLimit        int
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, services Services, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Server{
		router:   mux.NewRouter(),
		services: services,
		logger:   logger,
		config:   config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// order matters: recovery needs the request logger
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "route not found", nil)
	})

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:           s.router,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Sale
	api.HandleFunc("/tranches", s.handleListTranches).Methods("GET")
	api.HandleFunc("/intents", s.handleCreateIntent).Methods("POST")
	api.HandleFunc("/intents/{id}", s.handleGetIntent).Methods("GET")
	api.HandleFunc("/intents/{id}/paid", s.handleMarkPaid).Methods("POST")
	api.HandleFunc("/intents/{id}/verify", s.handleVerifyIntent).Methods("POST")

	// Airdrop
	api.HandleFunc("/airdrop/campaigns/{id}", s.handleGetCampaign).Methods("GET")
	api.HandleFunc("/airdrop/submissions", s.handleSubmit).Methods("POST")

	admin := s.router.PathPrefix("/admin").Subrouter()
	admin.Use(AdminAuthMiddleware(s.config.AdminSecret))

	admin.HandleFunc("/intents/{id}/force-confirm", s.handleForceConfirm).Methods("POST")
	admin.HandleFunc("/intents/{id}/fail", s.handleFailIntent).Methods("POST")
	admin.HandleFunc("/intents/{id}/commissions", s.handleListCommissions).Methods("GET")
	admin.HandleFunc("/intents/{id}/commissions", s.handleCommitCommissions).Methods("POST")
	admin.HandleFunc("/verify/sweep", s.handleSweep).Methods("POST")
	admin.HandleFunc("/commissions/payable", s.handleMarkPayable).Methods("POST")
	admin.HandleFunc("/commissions/{id}/paid", s.handleMarkCommissionPaid).Methods("POST")
	admin.HandleFunc("/tranches", s.handleCreateTranche).Methods("POST")

	admin.HandleFunc("/airdrop/campaigns", s.handleCreateCampaign).Methods("POST")
	admin.HandleFunc("/airdrop/campaigns/{id}/status", s.handleSetCampaignStatus).Methods("POST")
	admin.HandleFunc("/airdrop/campaigns/{id}/tasks", s.handleCreateTask).Methods("POST")
	admin.HandleFunc("/airdrop/campaigns/{id}/allocate", s.handleAllocate).Methods("POST")
	admin.HandleFunc("/airdrop/campaigns/{id}/submissions", s.handleListPendingSubmissions).Methods("GET")
	admin.HandleFunc("/airdrop/submissions/{id}", s.handleGetSubmission).Methods("GET")
	admin.HandleFunc("/airdrop/submissions/approve", s.handleApprove).Methods("POST")
	admin.HandleFunc("/airdrop/submissions/reject", s.handleReject).Methods("POST")
	admin.HandleFunc("/airdrop/audit", s.handleAudit).Methods("GET")
}

// handleHealth pings every configured dependency
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.services.Health))
	healthy := true
	for name, p := range s.services.Health {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"status":  status,
		"service": "token-portal",
		"checks":  checks,
	})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

package service

import (
	"context"
	"time"

	"github.com/skopiLandToken/skopi-sub000/internal/models"
	"github.com/skopiLandToken/skopi-sub000/internal/ratelimit"
	"github.com/skopiLandToken/skopi-sub000/internal/storage"
	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

// IntentStore defines the ledger operations on purchase intents
type IntentStore interface {
	Create(ctx context.Context, intent *models.Intent) error
	GetByID(ctx context.Context, id string) (*models.Intent, error)
	Confirm(ctx context.Context, id, txSignature string) (*models.Intent, bool, error)
	RecordVerificationMiss(ctx context.Context, id, reason string) error
	ListPending(ctx context.Context, limit int) ([]*models.Intent, error)
	ListConfirmedMissingCommissions(ctx context.Context, limit int) ([]*models.Intent, error)
	MarkAwaitingPayment(ctx context.Context, id string) (*models.Intent, error)
	Fail(ctx context.Context, id, reason string) (*models.Intent, error)
}

// TrancheStore defines the ledger operations on sale tranches
type TrancheStore interface {
	Create(ctx context.Context, t *models.Tranche) error
	GetByID(ctx context.Context, id string) (*models.Tranche, error)
	ListActive(ctx context.Context) ([]*models.Tranche, error)
}

// CommissionStore defines the ledger operations on affiliate commissions
type CommissionStore interface {
	CommitForIntent(ctx context.Context, intentID string) ([]*models.Commission, error)
	ListByIntent(ctx context.Context, intentID string) ([]*models.Commission, error)
	MarkPayable(ctx context.Context, confirmedBefore time.Time) (int64, error)
	MarkPaid(ctx context.Context, id, txSignature string) (*models.Commission, error)
}

// CampaignStore defines the ledger operations on airdrop campaigns
type CampaignStore interface {
	Create(ctx context.Context, c *models.Campaign) error
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	SetStatus(ctx context.Context, id string, to types.CampaignStatus) (*models.Campaign, error)
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, campaignID, taskID string) (*models.Task, error)
	AllocateFCFS(ctx context.Context, req models.AllocationRequest) (*models.AllocationResult, error)
	AuditTotals(ctx context.Context, campaignID *string) ([]models.CampaignTotals, error)
	ListAllocations(ctx context.Context, campaignID, wallet string) ([]*models.Allocation, error)
}

// SubmissionStore defines the ledger operations on airdrop submissions
type SubmissionStore interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	ListPending(ctx context.Context, campaignID string, limit int) ([]*models.Submission, error)
	FindByClientID(ctx context.Context, campaignID, taskID, wallet, clientID string) (*models.Submission, error)
	Create(ctx context.Context, sub *models.Submission, task *models.Task) (*storage.SubmissionOutcome, error)
	Approve(ctx context.Context, id, reviewer string) (*storage.ReviewOutcome, error)
	Reject(ctx context.Context, id, reviewer, reason string) (*storage.ReviewOutcome, error)
}

// AuditAppender records privileged actions
type AuditAppender interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
}

// TransferRecorder archives chain transfers seen during verification
type TransferRecorder interface {
	Record(ctx context.Context, transfers []models.ObservedTransfer) error
}

// SubmissionLimiter admits or denies a submission for a wallet
type SubmissionLimiter interface {
	Allow(ctx context.Context, scope, subject string) (ratelimit.Decision, error)
}

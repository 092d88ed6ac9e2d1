package service

import (
	"context"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
	"github.com/skopiLandToken/skopi-sub000/internal/events"
	"github.com/skopiLandToken/skopi-sub000/internal/logging"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

// AllocationService administers airdrop campaigns and grants pool tokens FCFS
type AllocationService struct {
	campaigns     CampaignStore
	audit         AuditAppender
	publisher     events.Publisher
	tokenDecimals int32
}

// NewAllocationService creates a new allocation service
func NewAllocationService(campaigns CampaignStore, audit AuditAppender, publisher events.Publisher, tokenDecimals int32) *AllocationService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &AllocationService{
		campaigns:     campaigns,
		audit:         audit,
		publisher:     publisher,
		tokenDecimals: tokenDecimals,
	}
}

// AllocateInput represents a direct claim against a campaign pool
type AllocateInput struct {
	CampaignID string  `json:"campaignId"`
	Wallet     string  `json:"wallet"`
	Amount     int64   `json:"amount"`
	UserID     *string `json:"userId,omitempty"`
}

// AirdropAllocatedEvent is published for every granted allocation
type AirdropAllocatedEvent struct {
	CampaignID      string  `json:"campaignId"`
	AllocationID    string  `json:"allocationId"`
	Wallet          string  `json:"wallet"`
	Amount          int64   `json:"amount"`
	RemainingTokens int64   `json:"remainingTokens"`
	SubmissionID    *string `json:"submissionId,omitempty"`
}

// Allocate grants tokens from the campaign pool. Refusals come back as a
// result with OK=false and a reason code, not as an error.
func (s *AllocationService) Allocate(ctx context.Context, in AllocateInput) (*models.AllocationResult, error) {
	if in.Amount <= 0 {
		return models.Rejected(types.ReasonInvalidAmount), nil
	}
	if !ValidWallet(in.Wallet) {
		return nil, apperrors.NewInvalidParameterError("wallet", "wallet is not a valid public key")
	}

	result, err := s.campaigns.AllocateFCFS(ctx, models.AllocationRequest{
		CampaignID: in.CampaignID,
		Wallet:     in.Wallet,
		Amount:     in.Amount,
		UserID:     in.UserID,
	})
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"campaignId": in.CampaignID,
		"wallet":     in.Wallet,
		"amount":     in.Amount,
	})
	if !result.OK {
		log.WithField("reason", result.Error).Info("allocation refused")
		return result, nil
	}
	log.WithField("remaining", result.RemainingTokens).Info("allocation granted")
	publishAllocated(ctx, s.publisher, in.CampaignID, in.Wallet, in.Amount, result, nil)
	return result, nil
}

// CreateCampaignInput represents input for a new campaign
type CreateCampaignInput struct {
	Name        string     `json:"name"`
	PoolTokens  *int64     `json:"poolTokens,omitempty"`
	PerUserCap  *int64     `json:"perUserCap,omitempty"`
	LockSeconds int64      `json:"lockSeconds"`
	StartsAt    *time.Time `json:"startsAt,omitempty"`
	EndsAt      *time.Time `json:"endsAt,omitempty"`
}

// CreateCampaign adds a campaign in the draft state
func (s *AllocationService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*models.Campaign, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.NewInvalidParameterError("name", "campaign name is required")
	}
	if in.PoolTokens != nil && *in.PoolTokens < 0 {
		return nil, apperrors.NewInvalidParameterError("poolTokens", "pool must not be negative")
	}
	if in.PerUserCap != nil && *in.PerUserCap <= 0 {
		return nil, apperrors.NewInvalidParameterError("perUserCap", "per-user cap must be positive")
	}
	if in.LockSeconds < 0 {
		return nil, apperrors.NewInvalidParameterError("lockSeconds", "lock duration must not be negative")
	}
	startsAt, endsAt := in.StartsAt, in.EndsAt
	if startsAt != nil && endsAt != nil && !endsAt.After(*startsAt) {
		return nil, apperrors.NewInvalidParameterError("endsAt", "campaign must end after it starts")
	}

	c := &models.Campaign{
		Name:        name,
		PoolTokens:  in.PoolTokens,
		PerUserCap:  in.PerUserCap,
		LockSeconds: in.LockSeconds,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CampaignView is a campaign together with its display amounts
type CampaignView struct {
	*models.Campaign
	RemainingTokens    *int64 `json:"remainingTokens,omitempty"`
	DistributedDisplay string `json:"distributedDisplay"`
	RemainingDisplay   string `json:"remainingDisplay,omitempty"`
	// Allocations is set when the caller asked for one wallet's grants
	Allocations []*models.Allocation `json:"allocations,omitempty"`
}

// GetCampaign returns a campaign with its remaining pool
func (s *AllocationService) GetCampaign(ctx context.Context, id string) (*CampaignView, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &CampaignView{
		Campaign:           c,
		RemainingTokens:    c.Remaining(),
		DistributedDisplay: models.ToDisplay(c.DistributedTokens, s.tokenDecimals).String(),
	}
	if view.RemainingTokens != nil {
		view.RemainingDisplay = models.ToDisplay(*view.RemainingTokens, s.tokenDecimals).String()
	}
	return view, nil
}

// ListAllocations returns the grants a wallet holds in a campaign, oldest first
func (s *AllocationService) ListAllocations(ctx context.Context, campaignID, wallet string) ([]*models.Allocation, error) {
	if !ValidWallet(wallet) {
		return nil, apperrors.NewInvalidParameterError("wallet", "wallet is not a valid public key")
	}
	allocations, err := s.campaigns.ListAllocations(ctx, campaignID, wallet)
	if err != nil {
		return nil, err
	}
	if allocations == nil {
		allocations = []*models.Allocation{}
	}
	return allocations, nil
}

// SetCampaignStatus moves a campaign along its lifecycle
func (s *AllocationService) SetCampaignStatus(ctx context.Context, id string, status types.CampaignStatus, actor string) (*models.Campaign, error) {
	if !status.Valid() {
		return nil, apperrors.NewInvalidParameterError("status", "unknown campaign status")
	}
	c, err := s.campaigns.SetStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		if err := s.audit.Append(ctx, &models.AuditEntry{
			Actor:     actor,
			Action:    models.AuditCampaignStatus,
			SubjectID: id,
			Details:   map[string]interface{}{"status": string(status)},
		}); err != nil {
			logging.FromContext(ctx).WithError(err).Error("audit append failed")
		}
	}
	return c, nil
}

// CreateTaskInput represents input for a new campaign task
type CreateTaskInput struct {
	Name                    string   `json:"name"`
	BountyTokens            int64    `json:"bountyTokens"`
	RequiresReview          bool     `json:"requiresReview"`
	AllowedDomains          []string `json:"allowedDomains,omitempty"`
	RequireHTTPS            bool     `json:"requireHttps"`
	MinURLLength            int      `json:"minUrlLength"`
	MaxSubmissionsPerWallet *int     `json:"maxSubmissionsPerWallet,omitempty"`
}

// CreateTask adds an active task to a campaign
func (s *AllocationService) CreateTask(ctx context.Context, campaignID string, in CreateTaskInput) (*models.Task, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.NewInvalidParameterError("name", "task name is required")
	}
	if in.BountyTokens <= 0 {
		return nil, apperrors.NewInvalidParameterError("bountyTokens", "bounty must be positive")
	}
	if in.MinURLLength < 0 {
		return nil, apperrors.NewInvalidParameterError("minUrlLength", "minimum length must not be negative")
	}
	if in.MaxSubmissionsPerWallet != nil && *in.MaxSubmissionsPerWallet <= 0 {
		return nil, apperrors.NewInvalidParameterError("maxSubmissionsPerWallet", "submission cap must be positive")
	}

	domains := make([]string, 0, len(in.AllowedDomains))
	for _, d := range in.AllowedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}

	t := &models.Task{
		CampaignID:              campaignID,
		Name:                    name,
		BountyTokens:            in.BountyTokens,
		RequiresReview:          in.RequiresReview,
		AllowedDomains:          domains,
		RequireHTTPS:            in.RequireHTTPS,
		MinURLLength:            in.MinURLLength,
		MaxSubmissionsPerWallet: in.MaxSubmissionsPerWallet,
		Active:                  true,
	}
	if err := s.campaigns.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ValidWallet reports whether s is a base58 Solana public key
func ValidWallet(s string) bool {
	if s == "" {
		return false
	}
	_, err := solana.PublicKeyFromBase58(s)
	return err == nil
}

func publishAllocated(ctx context.Context, p events.Publisher, campaignID, wallet string, amount int64, result *models.AllocationResult, submissionID *string) {
	events.PublishBestEffort(ctx, p, events.AirdropAllocated, AirdropAllocatedEvent{
		CampaignID:      campaignID,
		AllocationID:    result.AllocationID,
		Wallet:          wallet,
		Amount:          amount,
		RemainingTokens: result.RemainingTokens,
		SubmissionID:    submissionID,
	})
}

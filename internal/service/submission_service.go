package service

import (
	"context"
	"strings"

	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
	"github.com/skopiLandToken/skopi-sub000/internal/events"
	"github.com/skopiLandToken/skopi-sub000/internal/logging"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

// submissionScope namespaces the per-wallet limiter keys
const submissionScope = "airdrop_submission"

// SubmissionService ingests airdrop task evidence
type SubmissionService struct {
	campaigns   CampaignStore
	submissions SubmissionStore
	limiter     SubmissionLimiter
	publisher   events.Publisher
}

// NewSubmissionService creates a new submission service. A nil limiter
// admits every submission.
func NewSubmissionService(campaigns CampaignStore, submissions SubmissionStore, limiter SubmissionLimiter, publisher events.Publisher) *SubmissionService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &SubmissionService{
		campaigns:   campaigns,
		submissions: submissions,
		limiter:     limiter,
		publisher:   publisher,
	}
}

// SubmitInput represents one piece of task evidence from a wallet
type SubmitInput struct {
	CampaignID         string  `json:"campaignId"`
	TaskID             string  `json:"taskId"`
	Wallet             string  `json:"wallet"`
	UserID             *string `json:"userId,omitempty"`
	SocialHandle       *string `json:"socialHandle,omitempty"`
	EvidenceURL        string  `json:"evidenceUrl"`
	ClientSubmissionID *string `json:"clientSubmissionId,omitempty"`
}

// SubmitResult is the outcome of an ingestion attempt. Refusals carry a
// reason code with OK=false.
type SubmitResult struct {
	OK                bool                     `json:"ok"`
	Submission        *models.Submission       `json:"submission,omitempty"`
	Allocation        *models.AllocationResult `json:"allocation,omitempty"`
	Idempotent        bool                     `json:"idempotent"`
	Error             types.ReasonCode         `json:"error,omitempty"`
	RetryAfterSeconds int                      `json:"retryAfterSeconds,omitempty"`
}

func refused(code types.ReasonCode) *SubmitResult {
	return &SubmitResult{OK: false, Error: code}
}

// Submit validates evidence against the task rules, applies the per-wallet
// rate limit and stores the submission. Auto-verified tasks are allocated in
// the same ledger transaction.
func (s *SubmissionService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	wallet := strings.TrimSpace(in.Wallet)
	if !ValidWallet(wallet) {
		return refused(types.ReasonInvalidWallet), nil
	}

	task, err := s.campaigns.GetTask(ctx, in.CampaignID, in.TaskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return refused(types.ReasonTaskNotFound), nil
	}
	if !task.Active {
		return refused(types.ReasonTaskInactive), nil
	}

	evidence, reason := CheckEvidence(in.EvidenceURL, task)
	if reason != "" {
		return refused(reason), nil
	}

	clientID := trimmedOrNil(in.ClientSubmissionID)
	if clientID != nil {
		existing, err := s.submissions.FindByClientID(ctx, task.CampaignID, task.ID, wallet, *clientID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &SubmitResult{OK: true, Submission: existing, Idempotent: true}, nil
		}
	}

	if s.limiter != nil {
		decision, err := s.limiter.Allow(ctx, submissionScope, wallet)
		if err != nil {
			return nil, apperrors.NewCacheError("submission rate limit", err)
		}
		if !decision.Allowed {
			return &SubmitResult{
				OK:                false,
				Error:             types.ReasonRateLimited,
				RetryAfterSeconds: decision.RetryAfterSeconds(),
			}, nil
		}
	}

	sub := &models.Submission{
		CampaignID:         task.CampaignID,
		TaskID:             task.ID,
		Wallet:             wallet,
		UserID:             in.UserID,
		SocialHandle:       in.SocialHandle,
		EvidenceURL:        evidence,
		ClientSubmissionID: clientID,
	}
	outcome, err := s.submissions.Create(ctx, sub, task)
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"campaignId": task.CampaignID,
		"taskId":     task.ID,
		"wallet":     wallet,
	})
	if outcome.Rejection != "" {
		log.WithField("reason", outcome.Rejection).Info("submission refused")
		return refused(outcome.Rejection), nil
	}
	if outcome.Idempotent {
		return &SubmitResult{OK: true, Submission: outcome.Submission, Idempotent: true}, nil
	}

	log.WithFields(map[string]interface{}{
		"submissionId": outcome.Submission.ID,
		"state":        outcome.Submission.State,
	}).Info("submission stored")
	if outcome.Allocation != nil && outcome.Allocation.OK {
		publishAllocated(ctx, s.publisher, task.CampaignID, wallet, task.BountyTokens, outcome.Allocation, &outcome.Submission.ID)
	}
	return &SubmitResult{OK: true, Submission: outcome.Submission, Allocation: outcome.Allocation}, nil
}

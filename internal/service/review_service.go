package service

import (
	"context"
	"strings"

	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
	"github.com/skopiLandToken/skopi-sub000/internal/events"
	"github.com/skopiLandToken/skopi-sub000/internal/logging"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
	"github.com/skopiLandToken/skopi-sub000/internal/storage"
	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

const (
	// MaxReviewBatch bounds the number of submissions in one review call
	MaxReviewBatch = 200

	defaultQueueLimit = 50
	maxQueueLimit     = 500
)

// ReviewService applies manual review decisions to pending submissions
type ReviewService struct {
	submissions SubmissionStore
	publisher   events.Publisher
}

// NewReviewService creates a new review service
func NewReviewService(submissions SubmissionStore, publisher events.Publisher) *ReviewService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &ReviewService{submissions: submissions, publisher: publisher}
}

// ReviewItemResult is the outcome for one submission of a batch
type ReviewItemResult struct {
	SubmissionID string                   `json:"submissionId"`
	OK           bool                     `json:"ok"`
	State        types.SubmissionState    `json:"state,omitempty"`
	Allocation   *models.AllocationResult `json:"allocation,omitempty"`
	Error        string                   `json:"error,omitempty"`
	Message      string                   `json:"message,omitempty"`
}

// ReviewBatchResult collects per-item outcomes
type ReviewBatchResult struct {
	Results   []ReviewItemResult `json:"results"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}

func (b *ReviewBatchResult) add(item ReviewItemResult) {
	if item.OK {
		b.Succeeded++
	} else {
		b.Failed++
	}
	b.Results = append(b.Results, item)
}

// ListPending returns a campaign's review queue, oldest first. A limit
// outside (0, 500] falls back to the default or the cap.
func (s *ReviewService) ListPending(ctx context.Context, campaignID string, limit int) ([]*models.Submission, error) {
	switch {
	case limit <= 0:
		limit = defaultQueueLimit
	case limit > maxQueueLimit:
		limit = maxQueueLimit
	}
	subs, err := s.submissions.ListPending(ctx, campaignID, limit)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []*models.Submission{}
	}
	return subs, nil
}

// GetSubmission returns one submission with its review state
func (s *ReviewService) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	return s.submissions.GetByID(ctx, strings.TrimSpace(id))
}

// Approve verifies each pending submission and allocates its task bounty.
// Every submission is handled in its own transaction; a failure does not
// stop the rest of the batch.
func (s *ReviewService) Approve(ctx context.Context, ids []string, reviewer string) (*ReviewBatchResult, error) {
	ids, err := prepareBatch(ids, reviewer)
	if err != nil {
		return nil, err
	}

	batch := &ReviewBatchResult{Results: make([]ReviewItemResult, 0, len(ids))}
	for _, id := range ids {
		outcome, err := s.submissions.Approve(ctx, id, reviewer)
		item := reviewItem(ctx, id, outcome, err)
		if item.OK && outcome.Granted != nil {
			sub := outcome.Submission
			publishAllocated(ctx, s.publisher, sub.CampaignID, sub.Wallet, outcome.Granted.TotalTokens, outcome.Allocation, &sub.ID)
		}
		batch.add(item)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"reviewer":  reviewer,
		"succeeded": batch.Succeeded,
		"failed":    batch.Failed,
	}).Info("approve batch processed")
	return batch, nil
}

// Reject revokes each pending submission with the given reason
func (s *ReviewService) Reject(ctx context.Context, ids []string, reviewer, reason string) (*ReviewBatchResult, error) {
	ids, err := prepareBatch(ids, reviewer)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)

	batch := &ReviewBatchResult{Results: make([]ReviewItemResult, 0, len(ids))}
	for _, id := range ids {
		outcome, err := s.submissions.Reject(ctx, id, reviewer, reason)
		batch.add(reviewItem(ctx, id, outcome, err))
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"reviewer":  reviewer,
		"succeeded": batch.Succeeded,
		"failed":    batch.Failed,
	}).Info("reject batch processed")
	return batch, nil
}

// prepareBatch trims and de-duplicates ids, keeping first-seen order
func prepareBatch(ids []string, reviewer string) ([]string, error) {
	if strings.TrimSpace(reviewer) == "" {
		return nil, apperrors.NewInvalidParameterError("reviewer", "reviewer is required")
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, apperrors.NewInvalidParameterError("ids", "at least one submission id is required")
	}
	if len(out) > MaxReviewBatch {
		return nil, apperrors.NewInvalidParameterError("ids", "too many submissions in one batch")
	}
	return out, nil
}

func reviewItem(ctx context.Context, id string, outcome *storage.ReviewOutcome, err error) ReviewItemResult {
	item := ReviewItemResult{SubmissionID: id}
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("submissionId", id).Error("review item failed")
		c := apperrors.Categorize(err)
		item.Error = c.Code
		item.Message = c.Message
		return item
	}
	if outcome.Submission != nil {
		item.State = outcome.Submission.State
	}
	item.Allocation = outcome.Allocation
	if outcome.Rejection != "" {
		item.Error = string(outcome.Rejection)
		return item
	}
	item.OK = true
	return item
}

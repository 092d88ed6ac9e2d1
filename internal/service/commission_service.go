package service

import (
	"context"
	"time"

	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
	"github.com/skopiLandToken/skopi-sub000/internal/events"
	"github.com/skopiLandToken/skopi-sub000/internal/logging"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
)

// CommissionService computes and advances affiliate commissions
type CommissionService struct {
	store     CommissionStore
	audit     AuditAppender
	publisher events.Publisher
}

// NewCommissionService creates a new commission service
func NewCommissionService(store CommissionStore, audit AuditAppender, publisher events.Publisher) *CommissionService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &CommissionService{store: store, audit: audit, publisher: publisher}
}

// CommissionCommittedEvent is published for each newly inserted commission row
type CommissionCommittedEvent struct {
	IntentID         string `json:"intentId"`
	CommissionID     string `json:"commissionId"`
	Tier             int    `json:"tier"`
	ReferralCode     string `json:"referralCode"`
	AmountUSDCAtomic int64  `json:"amountUsdcAtomic"`
}

// Commit records the commission rows of a confirmed intent. Repeated calls
// return the same rows without inserting duplicates.
func (s *CommissionService) Commit(ctx context.Context, intentID string) ([]*models.Commission, error) {
	commissions, err := s.store.CommitForIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	for _, c := range commissions {
		if !c.Inserted {
			continue
		}
		events.PublishBestEffort(ctx, s.publisher, events.CommissionCommitted, CommissionCommittedEvent{
			IntentID:         c.IntentID,
			CommissionID:     c.ID,
			Tier:             c.Tier,
			ReferralCode:     c.ReferralCode,
			AmountUSDCAtomic: c.AmountUSDCAtomic,
		})
	}
	return commissions, nil
}

// List returns the commission rows of an intent
func (s *CommissionService) List(ctx context.Context, intentID string) ([]*models.Commission, error) {
	return s.store.ListByIntent(ctx, intentID)
}

// MarkPayable moves pending rows of intents confirmed before the cutoff to payable
func (s *CommissionService) MarkPayable(ctx context.Context, confirmedBefore time.Time, actor string) (int64, error) {
	if confirmedBefore.IsZero() {
		return 0, apperrors.NewInvalidParameterError("confirmedBefore", "cutoff is required")
	}
	n, err := s.store.MarkPayable(ctx, confirmedBefore)
	if err != nil {
		return 0, err
	}
	s.appendAudit(ctx, &models.AuditEntry{
		Actor:     actor,
		Action:    models.AuditMarkPayable,
		SubjectID: "commissions",
		Details:   map[string]interface{}{"confirmedBefore": confirmedBefore, "rows": n},
	})
	return n, nil
}

// MarkPaid records the payout transaction of a payable commission
func (s *CommissionService) MarkPaid(ctx context.Context, id, txSignature, actor string) (*models.Commission, error) {
	if txSignature == "" {
		return nil, apperrors.NewInvalidParameterError("txSignature", "payout signature is required")
	}
	c, err := s.store.MarkPaid(ctx, id, txSignature)
	if err != nil {
		return nil, err
	}
	s.appendAudit(ctx, &models.AuditEntry{
		Actor:     actor,
		Action:    models.AuditMarkPaid,
		SubjectID: id,
		Details:   map[string]interface{}{"txSignature": txSignature},
	})
	return c, nil
}

func (s *CommissionService) appendAudit(ctx context.Context, entry *models.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("action", entry.Action).Error("audit append failed")
	}
}

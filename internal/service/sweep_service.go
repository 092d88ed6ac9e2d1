package service

import (
	"context"
	"time"

	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
	"github.com/skopiLandToken/skopi-sub000/internal/logging"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

const (
	defaultSweepLimit = 100
	maxSweepLimit     = 1000
)

// IntentVerifier verifies one intent
type IntentVerifier interface {
	Verify(ctx context.Context, id string) (*VerifyResult, error)
}

// CommissionCommitter commits the commission rows of a confirmed intent
type CommissionCommitter interface {
	Commit(ctx context.Context, intentID string) ([]*models.Commission, error)
}

// SweepService runs verification over the oldest unconfirmed intents and
// retries missing commissions
type SweepService struct {
	intents     IntentStore
	verifier    IntentVerifier
	commissions CommissionCommitter
	retryLimit  int
}

// NewSweepService creates a new sweep service
func NewSweepService(intents IntentStore, verifier IntentVerifier, commissions CommissionCommitter, retryLimit int) *SweepService {
	return &SweepService{
		intents:     intents,
		verifier:    verifier,
		commissions: commissions,
		retryLimit:  retryLimit,
	}
}

// SweepError records a per-intent failure
type SweepError struct {
	IntentID string `json:"intentId"`
	Code     string `json:"code"`
	Error    string `json:"error"`
}

// SweepReport summarizes one sweep
type SweepReport struct {
	Scanned            int          `json:"scanned"`
	Confirmed          int          `json:"confirmed"`
	Errors             []SweepError `json:"errors"`
	CommissionsRetried int          `json:"commissionsRetried"`
	StartedAt          time.Time    `json:"startedAt"`
	Duration           string       `json:"duration"`
}

func (r *SweepReport) fail(intentID string, err error) {
	c := apperrors.Categorize(err)
	r.Errors = append(r.Errors, SweepError{IntentID: intentID, Code: c.Code, Error: err.Error()})
}

// Run verifies up to limit pending intents, oldest first. A failure on one
// intent is recorded and the sweep moves on. Only a failure to list the
// pending intents aborts the run.
func (s *SweepService) Run(ctx context.Context, limit int) (*SweepReport, error) {
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	if limit > maxSweepLimit {
		limit = maxSweepLimit
	}

	log := logging.FromContext(ctx)
	report := &SweepReport{StartedAt: time.Now().UTC(), Errors: []SweepError{}}

	pending, err := s.intents.ListPending(ctx, limit)
	if err != nil {
		return nil, err
	}

	for _, intent := range pending {
		if err := ctx.Err(); err != nil {
			report.fail(intent.ID, err)
			break
		}
		report.Scanned++

		result, err := s.verifier.Verify(ctx, intent.ID)
		if err != nil {
			log.WithError(err).WithField("intentId", intent.ID).Warn("sweep verification failed")
			report.fail(intent.ID, err)
			continue
		}
		if result.Matched && intent.Status != types.IntentConfirmed {
			report.Confirmed++
		}
		if result.CommissionError != nil {
			report.Errors = append(report.Errors, SweepError{
				IntentID: intent.ID,
				Code:     result.CommissionError.Code,
				Error:    result.CommissionError.Message,
			})
		}
	}

	s.retryCommissions(ctx, report)

	report.Duration = time.Since(report.StartedAt).String()
	log.WithFields(map[string]interface{}{
		"scanned":            report.Scanned,
		"confirmed":          report.Confirmed,
		"errors":             len(report.Errors),
		"commissionsRetried": report.CommissionsRetried,
	}).Info("verification sweep finished")
	return report, nil
}

// retryCommissions re-commits confirmed intents whose referral tiers are
// missing commission rows
func (s *SweepService) retryCommissions(ctx context.Context, report *SweepReport) {
	if s.commissions == nil || s.retryLimit <= 0 || ctx.Err() != nil {
		return
	}
	missing, err := s.intents.ListConfirmedMissingCommissions(ctx, s.retryLimit)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Error("failed to list intents missing commissions")
		report.fail("", err)
		return
	}
	for _, intent := range missing {
		if _, err := s.commissions.Commit(ctx, intent.ID); err != nil {
			report.fail(intent.ID, err)
			continue
		}
		report.CommissionsRetried++
	}
}

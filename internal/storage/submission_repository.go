package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

const submissionColumns = `
	id, campaign_id, task_id, wallet, user_id, social_handle, evidence_url, state,
	client_submission_id, reviewer, review_notes, reviewed_at, created_at, updated_at`

// SubmissionOutcome is the result of an ingestion attempt. Exactly one of
// Submission (with Allocation for auto tasks) or Rejection is meaningful.
type SubmissionOutcome struct {
	Submission *models.Submission
	Allocation *models.AllocationResult
	Granted    *models.Allocation
	Rejection  types.ReasonCode
	Idempotent bool
}

// ReviewOutcome is the per-item result of a review action
type ReviewOutcome struct {
	Submission *models.Submission
	Allocation *models.AllocationResult
	Granted    *models.Allocation
	Rejection  types.ReasonCode
}

// SubmissionRepository handles airdrop submission persistence
type SubmissionRepository struct {
	db  *PostgresDB
	now func() time.Time
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db *PostgresDB) *SubmissionRepository {
	return &SubmissionRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func scanSubmission(row pgx.Row) (*models.Submission, error) {
	var s models.Submission
	if err := row.Scan(&s.ID, &s.CampaignID, &s.TaskID, &s.Wallet, &s.UserID, &s.SocialHandle, &s.EvidenceURL,
		&s.State, &s.ClientSubmissionID, &s.Reviewer, &s.ReviewNotes, &s.ReviewedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func submissionNotFound(id string) error {
	return apperrors.NewNotFoundError(apperrors.CodeSubmissionNotFound, "submission", id)
}

// GetByID retrieves a submission by ID
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	if !validID(id) {
		return nil, submissionNotFound(id)
	}
	s, err := scanSubmission(r.db.Pool().QueryRow(ctx, `SELECT `+submissionColumns+` FROM airdrop_submissions WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, submissionNotFound(id)
		}
		return nil, apperrors.NewDatabaseError("get submission", err)
	}
	return s, nil
}

// FindByClientID returns the submission previously stored under a client
// idempotency key, or nil.
func (r *SubmissionRepository) FindByClientID(ctx context.Context, campaignID, taskID, wallet, clientID string) (*models.Submission, error) {
	return findByClientID(ctx, r.db.Pool(), campaignID, taskID, wallet, clientID)
}

func findByClientID(ctx context.Context, q querier, campaignID, taskID, wallet, clientID string) (*models.Submission, error) {
	s, err := scanSubmission(q.QueryRow(ctx, `
		SELECT `+submissionColumns+`
		FROM airdrop_submissions
		WHERE campaign_id = $1 AND task_id = $2 AND wallet = $3 AND client_submission_id = $4
	`, campaignID, taskID, wallet, clientID))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("find submission by client id", err)
	}
	return s, nil
}

// Create stores a validated submission for task. The per-wallet task cap is
// enforced under an advisory lock keyed by task and wallet. For tasks that
// do not require review the bounty is allocated in the same transaction and
// a negative allocation discards the submission.
func (r *SubmissionRepository) Create(ctx context.Context, sub *models.Submission, task *models.Task) (*SubmissionOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("begin submission", err)
	}
	defer rollback(ctx, tx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`, task.ID, sub.Wallet); err != nil {
		return nil, apperrors.NewDatabaseError("lock task wallet", err)
	}

	if sub.ClientSubmissionID != nil {
		existing, err := findByClientID(ctx, tx, sub.CampaignID, sub.TaskID, sub.Wallet, *sub.ClientSubmissionID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &SubmissionOutcome{Submission: existing, Idempotent: true}, nil
		}
	}

	if task.MaxSubmissionsPerWallet != nil {
		var count int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM airdrop_submissions
			WHERE task_id = $1 AND wallet = $2 AND state <> $3
		`, task.ID, sub.Wallet, types.SubmissionRevoked).Scan(&count); err != nil {
			return nil, apperrors.NewDatabaseError("count submissions", err)
		}
		if count >= *task.MaxSubmissionsPerWallet {
			return &SubmissionOutcome{Rejection: types.ReasonTaskSubmissionCapReached}, nil
		}
	}

	now := r.now()
	sub.ID = uuid.New().String()
	sub.State = types.InitialSubmissionState(task.RequiresReview)
	sub.CreatedAt = now
	sub.UpdatedAt = now

	// A concurrent insert under the same client key loses on the unique
	// constraint; the savepoint keeps tx usable to re-read the winner.
	if _, err := tx.Exec(ctx, `SAVEPOINT submission_insert`); err != nil {
		return nil, apperrors.NewDatabaseError("savepoint", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO airdrop_submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, NULL, NULL, $10, $11)
	`, sub.ID, sub.CampaignID, sub.TaskID, sub.Wallet, sub.UserID, sub.SocialHandle, sub.EvidenceURL,
		sub.State, sub.ClientSubmissionID, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, constraintEvidenceURL) {
			return &SubmissionOutcome{Rejection: types.ReasonDuplicateEvidence}, nil
		}
		if isUniqueViolation(err, constraintClientSubmission) && sub.ClientSubmissionID != nil {
			if _, rbErr := tx.Exec(ctx, `ROLLBACK TO SAVEPOINT submission_insert`); rbErr != nil {
				return nil, apperrors.NewDatabaseError("rollback savepoint", rbErr)
			}
			existing, err := findByClientID(ctx, tx, sub.CampaignID, sub.TaskID, sub.Wallet, *sub.ClientSubmissionID)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				return &SubmissionOutcome{Submission: existing, Idempotent: true}, nil
			}
		}
		return nil, apperrors.NewDatabaseError("insert submission", err)
	}

	outcome := &SubmissionOutcome{Submission: sub}
	if sub.State.Allocates() {
		req := models.AllocationRequest{
			CampaignID:   sub.CampaignID,
			Wallet:       sub.Wallet,
			Amount:       task.BountyTokens,
			UserID:       sub.UserID,
			SubmissionID: &sub.ID,
		}
		result, granted, err := allocateTx(ctx, tx, req, now)
		if err != nil {
			return nil, err
		}
		if !result.OK {
			return &SubmissionOutcome{Rejection: result.Error}, nil
		}
		outcome.Allocation = result
		outcome.Granted = granted
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err, constraintEvidenceURL) {
			return &SubmissionOutcome{Rejection: types.ReasonDuplicateEvidence}, nil
		}
		return nil, apperrors.NewDatabaseError("commit submission", err)
	}
	return outcome, nil
}

// Approve verifies a pending submission and allocates its task bounty in one
// transaction. The submission stays pending when the allocation is refused.
func (r *SubmissionRepository) Approve(ctx context.Context, id, reviewer string) (*ReviewOutcome, error) {
	if !validID(id) {
		return &ReviewOutcome{Rejection: types.ReasonSubmissionNotFound}, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("begin approve", err)
	}
	defer rollback(ctx, tx)

	sub, rejection, err := lockPendingSubmission(ctx, tx, id, types.SubmissionVerifiedManual)
	if err != nil {
		return nil, err
	}
	if rejection != "" {
		return &ReviewOutcome{Submission: sub, Rejection: rejection}, nil
	}

	var bounty int64
	if err := tx.QueryRow(ctx, `SELECT bounty_tokens FROM airdrop_tasks WHERE id = $1`, sub.TaskID).Scan(&bounty); err != nil {
		if isNoRows(err) {
			return &ReviewOutcome{Submission: sub, Rejection: types.ReasonTaskNotFound}, nil
		}
		return nil, apperrors.NewDatabaseError("get task bounty", err)
	}

	now := r.now()
	result, granted, err := allocateTx(ctx, tx, models.AllocationRequest{
		CampaignID:   sub.CampaignID,
		Wallet:       sub.Wallet,
		Amount:       bounty,
		UserID:       sub.UserID,
		SubmissionID: &sub.ID,
	}, now)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return &ReviewOutcome{Submission: sub, Allocation: result, Rejection: result.Error}, nil
	}

	updated, err := setReviewState(ctx, tx, id, types.SubmissionVerifiedManual, reviewer, nil)
	if err != nil {
		return nil, err
	}
	if err := appendAudit(ctx, tx, &models.AuditEntry{
		Actor:     reviewer,
		Action:    models.AuditApproveSubmission,
		SubjectID: id,
		Details:   map[string]interface{}{"allocationId": result.AllocationID, "amount": bounty},
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.NewDatabaseError("commit approve", err)
	}
	return &ReviewOutcome{Submission: updated, Allocation: result, Granted: granted}, nil
}

// Reject revokes a pending submission. The campaign pool is not touched.
func (r *SubmissionRepository) Reject(ctx context.Context, id, reviewer, reason string) (*ReviewOutcome, error) {
	if reason == "" {
		return &ReviewOutcome{Rejection: types.ReasonRejectReasonRequired}, nil
	}
	if !validID(id) {
		return &ReviewOutcome{Rejection: types.ReasonSubmissionNotFound}, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("begin reject", err)
	}
	defer rollback(ctx, tx)

	sub, rejection, err := lockPendingSubmission(ctx, tx, id, types.SubmissionRevoked)
	if err != nil {
		return nil, err
	}
	if rejection != "" {
		return &ReviewOutcome{Submission: sub, Rejection: rejection}, nil
	}

	updated, err := setReviewState(ctx, tx, id, types.SubmissionRevoked, reviewer, &reason)
	if err != nil {
		return nil, err
	}
	if err := appendAudit(ctx, tx, &models.AuditEntry{
		Actor:     reviewer,
		Action:    models.AuditRejectSubmission,
		SubjectID: id,
		Details:   map[string]interface{}{"reason": reason},
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.NewDatabaseError("commit reject", err)
	}
	return &ReviewOutcome{Submission: updated}, nil
}

func lockPendingSubmission(ctx context.Context, tx pgx.Tx, id string, to types.SubmissionState) (*models.Submission, types.ReasonCode, error) {
	sub, err := scanSubmission(tx.QueryRow(ctx, `SELECT `+submissionColumns+` FROM airdrop_submissions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, types.ReasonSubmissionNotFound, nil
		}
		return nil, "", apperrors.NewDatabaseError("lock submission", err)
	}
	if !sub.State.CanTransitionTo(to) {
		return sub, types.ReasonSubmissionNotPending, nil
	}
	return sub, "", nil
}

func setReviewState(ctx context.Context, tx pgx.Tx, id string, state types.SubmissionState, reviewer string, notes *string) (*models.Submission, error) {
	s, err := scanSubmission(tx.QueryRow(ctx, `
		UPDATE airdrop_submissions
		SET state = $2, reviewer = $3, review_notes = $4, reviewed_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING `+submissionColumns, id, state, reviewer, notes))
	if err != nil {
		return nil, apperrors.NewDatabaseError("update submission state", err)
	}
	return s, nil
}

// ListPending returns submissions awaiting review, oldest first
func (r *SubmissionRepository) ListPending(ctx context.Context, campaignID string, limit int) ([]*models.Submission, error) {
	if !validID(campaignID) {
		return nil, campaignNotFound(campaignID)
	}
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+submissionColumns+`
		FROM airdrop_submissions
		WHERE campaign_id = $1 AND state = $2
		ORDER BY created_at ASC
		LIMIT $3
	`, campaignID, types.SubmissionPendingReview, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list pending submissions", err)
	}
	defer rows.Close()

	var subs []*models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan submission", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate submissions", err)
	}
	return subs, nil
}

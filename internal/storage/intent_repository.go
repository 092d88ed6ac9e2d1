package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

const intentColumns = `
	id, user_id, status, amount_usdc_atomic, reference_key, treasury_address, mint_address,
	tranche_id, token_amount, price_usdc_atomic, ref_code_tier1, ref_code_tier2, ref_code_tier3,
	tx_signature, failure_reason, created_at, updated_at, confirmed_at`

// IntentRepository handles purchase intent persistence
type IntentRepository struct {
	db *PostgresDB
}

// NewIntentRepository creates a new intent repository
func NewIntentRepository(db *PostgresDB) *IntentRepository {
	return &IntentRepository{db: db}
}

func scanIntent(row pgx.Row) (*models.Intent, error) {
	var i models.Intent
	err := row.Scan(
		&i.ID, &i.UserID, &i.Status, &i.AmountUSDCAtomic, &i.ReferenceKey, &i.TreasuryAddress,
		&i.MintAddress, &i.TrancheID, &i.TokenAmount, &i.PriceUSDCAtomic,
		&i.RefCodeTier1, &i.RefCodeTier2, &i.RefCodeTier3,
		&i.TxSignature, &i.FailureReason, &i.CreatedAt, &i.UpdatedAt, &i.ConfirmedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// Create inserts a new intent in the created state
func (r *IntentRepository) Create(ctx context.Context, intent *models.Intent) error {
	if intent.ID == "" {
		intent.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	intent.Status = types.IntentCreated
	intent.CreatedAt = now
	intent.UpdatedAt = now

	query := `
		INSERT INTO purchase_intents (
			id, user_id, status, amount_usdc_atomic, reference_key, treasury_address, mint_address,
			tranche_id, token_amount, price_usdc_atomic, ref_code_tier1, ref_code_tier2, ref_code_tier3,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		intent.ID, intent.UserID, intent.Status, intent.AmountUSDCAtomic, intent.ReferenceKey,
		intent.TreasuryAddress, intent.MintAddress, intent.TrancheID, intent.TokenAmount,
		intent.PriceUSDCAtomic, intent.RefCodeTier1, intent.RefCodeTier2, intent.RefCodeTier3,
		intent.CreatedAt, intent.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseError("create intent", err)
	}
	return nil
}

// GetByID retrieves an intent by ID
func (r *IntentRepository) GetByID(ctx context.Context, id string) (*models.Intent, error) {
	if !validID(id) {
		return nil, apperrors.NewIntentNotFoundError(id)
	}
	return r.getByID(ctx, r.db.Pool(), id, false)
}

func (r *IntentRepository) getByID(ctx context.Context, q querier, id string, forUpdate bool) (*models.Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM purchase_intents WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	intent, err := scanIntent(q.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.NewIntentNotFoundError(id)
		}
		return nil, apperrors.NewDatabaseError("get intent", err)
	}
	return intent, nil
}

// Confirm atomically marks an intent confirmed with txSignature and takes
// its tokens from the tranche. The boolean is true when this call performed
// the transition; an intent that was already confirmed is returned unchanged.
func (r *IntentRepository) Confirm(ctx context.Context, id, txSignature string) (*models.Intent, bool, error) {
	if !validID(id) {
		return nil, false, apperrors.NewIntentNotFoundError(id)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, apperrors.NewDatabaseError("begin confirm", err)
	}
	defer rollback(ctx, tx)

	intent, err := r.getByID(ctx, tx, id, true)
	if err != nil {
		return nil, false, err
	}

	switch intent.Status {
	case types.IntentConfirmed:
		return intent, false, nil
	case types.IntentFailed:
		return nil, false, apperrors.NewIntentNotVerifiableError(id, intent.Status)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE tranches SET remaining_tokens = remaining_tokens - $2
		WHERE id = $1 AND remaining_tokens >= $2
	`, intent.TrancheID, intent.TokenAmount)
	if err != nil {
		return nil, false, apperrors.NewDatabaseError("decrement tranche", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE purchase_intents SET failure_reason = $2, updated_at = NOW() WHERE id = $1
		`, id, models.FailureTrancheSoldOut); err != nil {
			return nil, false, apperrors.NewDatabaseError("record sold out", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, apperrors.NewDatabaseError("commit sold out", err)
		}
		return nil, false, apperrors.NewTrancheSoldOutError(intent.TrancheID, intent.TokenAmount)
	}

	confirmed, err := scanIntent(tx.QueryRow(ctx, `
		UPDATE purchase_intents
		SET status = $2, tx_signature = $3, confirmed_at = NOW(), failure_reason = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING `+intentColumns,
		id, types.IntentConfirmed, txSignature,
	))
	if err != nil {
		if isUniqueViolation(err, constraintIntentSignature) {
			return nil, false, apperrors.NewSignatureConflictError(id, txSignature)
		}
		return nil, false, apperrors.NewDatabaseError("confirm intent", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err, constraintIntentSignature) {
			return nil, false, apperrors.NewSignatureConflictError(id, txSignature)
		}
		return nil, false, apperrors.NewDatabaseError("commit confirm", err)
	}
	return confirmed, true, nil
}

// RecordVerificationMiss stores why the last verification attempt did not match.
// Confirmed and failed intents, and intents parked as sold out, are left untouched.
func (r *IntentRepository) RecordVerificationMiss(ctx context.Context, id, reason string) error {
	_, err := r.db.Pool().Exec(ctx, `
		UPDATE purchase_intents SET failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('created', 'awaiting_payment')
		  AND failure_reason IS DISTINCT FROM $3
	`, id, reason, models.FailureTrancheSoldOut)
	if err != nil {
		return apperrors.NewDatabaseError("record verification miss", err)
	}
	return nil
}

// ListPending returns unconfirmed intents oldest first. Intents parked as
// sold out are skipped.
func (r *IntentRepository) ListPending(ctx context.Context, limit int) ([]*models.Intent, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+intentColumns+`
		FROM purchase_intents
		WHERE status IN ('created', 'awaiting_payment')
		  AND failure_reason IS DISTINCT FROM $2
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`, limit, models.FailureTrancheSoldOut)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list pending intents", err)
	}
	return collectIntents(rows)
}

// ListConfirmedMissingCommissions returns confirmed intents that carry more
// referral codes than commission rows.
func (r *IntentRepository) ListConfirmedMissingCommissions(ctx context.Context, limit int) ([]*models.Intent, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+intentColumns+`
		FROM purchase_intents i
		WHERE i.status = 'confirmed'
		  AND (
			(CASE WHEN COALESCE(i.ref_code_tier1, '') <> '' THEN 1 ELSE 0 END) +
			(CASE WHEN COALESCE(i.ref_code_tier2, '') <> '' THEN 1 ELSE 0 END) +
			(CASE WHEN COALESCE(i.ref_code_tier3, '') <> '' THEN 1 ELSE 0 END)
		  ) > (SELECT COUNT(*) FROM affiliate_commissions c WHERE c.intent_id = i.id)
		ORDER BY i.confirmed_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list intents missing commissions", err)
	}
	return collectIntents(rows)
}

func collectIntents(rows pgx.Rows) ([]*models.Intent, error) {
	defer rows.Close()
	var intents []*models.Intent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intent: %w", err)
		}
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate intents", err)
	}
	return intents, nil
}

// MarkAwaitingPayment moves a created intent to awaiting_payment. Calling it
// again on an awaiting intent is a no-op.
func (r *IntentRepository) MarkAwaitingPayment(ctx context.Context, id string) (*models.Intent, error) {
	return r.transition(ctx, id, types.IntentAwaitingPayment, nil)
}

// Fail moves an unconfirmed intent to failed with a reason
func (r *IntentRepository) Fail(ctx context.Context, id, reason string) (*models.Intent, error) {
	return r.transition(ctx, id, types.IntentFailed, &reason)
}

func (r *IntentRepository) transition(ctx context.Context, id string, to types.IntentStatus, reason *string) (*models.Intent, error) {
	if !validID(id) {
		return nil, apperrors.NewIntentNotFoundError(id)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("begin intent transition", err)
	}
	defer rollback(ctx, tx)

	intent, err := r.getByID(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if intent.Status == to {
		return intent, nil
	}
	if !intent.Status.CanTransitionTo(to) {
		return nil, apperrors.NewInvalidTransitionError("intent", id, string(intent.Status), string(to))
	}

	updated, err := scanIntent(tx.QueryRow(ctx, `
		UPDATE purchase_intents
		SET status = $2, failure_reason = COALESCE($3, failure_reason), updated_at = NOW()
		WHERE id = $1
		RETURNING `+intentColumns,
		id, to, reason,
	))
	if err != nil {
		return nil, apperrors.NewDatabaseError("update intent status", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.NewDatabaseError("commit intent transition", err)
	}
	return updated, nil
}

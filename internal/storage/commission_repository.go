package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

const commissionColumns = `
	id, intent_id, tier, referral_code, rate_bps, amount_usdc_atomic, status,
	created_at, payable_at, paid_at, paid_tx_signature`

// CommissionRepository handles affiliate commission persistence
type CommissionRepository struct {
	db      *PostgresDB
	intents *IntentRepository
}

// NewCommissionRepository creates a new commission repository
func NewCommissionRepository(db *PostgresDB) *CommissionRepository {
	return &CommissionRepository{db: db, intents: NewIntentRepository(db)}
}

func scanCommission(row pgx.Row) (*models.Commission, error) {
	var c models.Commission
	var tier int16
	var rate int32
	if err := row.Scan(&c.ID, &c.IntentID, &tier, &c.ReferralCode, &rate, &c.AmountUSDCAtomic,
		&c.Status, &c.CreatedAt, &c.PayableAt, &c.PaidAt, &c.PaidTxSignature); err != nil {
		return nil, err
	}
	c.Tier = int(tier)
	c.RateBps = int64(rate)
	return &c, nil
}

// CommitForIntent records the commission rows for a confirmed intent and
// returns every row the intent has. Rows that already exist are left as they
// are, so repeated calls return the same set.
func (r *CommissionRepository) CommitForIntent(ctx context.Context, intentID string) ([]*models.Commission, error) {
	if !validID(intentID) {
		return nil, apperrors.NewIntentNotFoundError(intentID)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("begin commit commissions", err)
	}
	defer rollback(ctx, tx)

	intent, err := r.intents.getByID(ctx, tx, intentID, true)
	if err != nil {
		return nil, err
	}
	if intent.Status != types.IntentConfirmed {
		return nil, apperrors.NewIntentNotConfirmedError(intentID, intent.Status)
	}

	inserted := make(map[int]bool)
	for _, p := range models.PlanCommissions(intent) {
		var id string
		err := tx.QueryRow(ctx, `
			INSERT INTO affiliate_commissions (intent_id, tier, referral_code, rate_bps, amount_usdc_atomic, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (intent_id, tier) DO NOTHING
			RETURNING id
		`, intentID, p.Tier, p.ReferralCode, p.RateBps, p.AmountUSDCAtomic, types.CommissionPending).Scan(&id)
		switch {
		case err == nil:
			inserted[p.Tier] = true
		case isNoRows(err):
		default:
			return nil, apperrors.NewDatabaseError("insert commission", err)
		}
	}

	commissions, err := listByIntent(ctx, tx, intentID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.NewDatabaseError("commit commissions", err)
	}
	for _, c := range commissions {
		c.Inserted = inserted[c.Tier]
	}
	return commissions, nil
}

// ListByIntent returns the commission rows of an intent in tier order
func (r *CommissionRepository) ListByIntent(ctx context.Context, intentID string) ([]*models.Commission, error) {
	if !validID(intentID) {
		return nil, apperrors.NewIntentNotFoundError(intentID)
	}
	return listByIntent(ctx, r.db.Pool(), intentID)
}

func listByIntent(ctx context.Context, q querier, intentID string) ([]*models.Commission, error) {
	rows, err := q.Query(ctx, `
		SELECT `+commissionColumns+`
		FROM affiliate_commissions
		WHERE intent_id = $1
		ORDER BY tier ASC
	`, intentID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list commissions", err)
	}
	defer rows.Close()

	var commissions []*models.Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan commission: %w", err)
		}
		commissions = append(commissions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate commissions", err)
	}
	return commissions, nil
}

// MarkPayable moves pending commissions of intents confirmed before the
// cutoff to payable and returns how many rows changed.
func (r *CommissionRepository) MarkPayable(ctx context.Context, confirmedBefore time.Time) (int64, error) {
	tag, err := r.db.Pool().Exec(ctx, `
		UPDATE affiliate_commissions c
		SET status = $1, payable_at = NOW()
		FROM purchase_intents i
		WHERE c.intent_id = i.id
		  AND c.status = $2
		  AND i.status = 'confirmed'
		  AND i.confirmed_at < $3
	`, types.CommissionPayable, types.CommissionPending, confirmedBefore)
	if err != nil {
		return 0, apperrors.NewDatabaseError("mark commissions payable", err)
	}
	return tag.RowsAffected(), nil
}

// MarkPaid moves a payable commission to paid. A commission already paid is
// returned unchanged.
func (r *CommissionRepository) MarkPaid(ctx context.Context, id, txSignature string) (*models.Commission, error) {
	if !validID(id) {
		return nil, apperrors.NewNotFoundError(apperrors.CodeCommissionNotFound, "commission", id)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("begin mark paid", err)
	}
	defer rollback(ctx, tx)

	c, err := scanCommission(tx.QueryRow(ctx,
		`SELECT `+commissionColumns+` FROM affiliate_commissions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.NewNotFoundError(apperrors.CodeCommissionNotFound, "commission", id)
		}
		return nil, apperrors.NewDatabaseError("get commission", err)
	}
	if c.Status == types.CommissionPaid {
		return c, nil
	}
	if c.Status != types.CommissionPayable {
		return nil, apperrors.NewInvalidTransitionError("commission", id, c.Status, types.CommissionPaid)
	}

	c, err = scanCommission(tx.QueryRow(ctx, `
		UPDATE affiliate_commissions
		SET status = $2, paid_at = NOW(), paid_tx_signature = $3
		WHERE id = $1
		RETURNING `+commissionColumns,
		id, types.CommissionPaid, txSignature))
	if err != nil {
		return nil, apperrors.NewDatabaseError("mark commission paid", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.NewDatabaseError("commit mark paid", err)
	}
	return c, nil
}

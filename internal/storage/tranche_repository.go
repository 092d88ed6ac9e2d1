package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
)

const trancheColumns = `id, name, price_usdc_atomic, total_tokens, remaining_tokens, active, sort_order, created_at`

// TrancheRepository handles sale tranche persistence
type TrancheRepository struct {
	db *PostgresDB
}

// NewTrancheRepository creates a new tranche repository
func NewTrancheRepository(db *PostgresDB) *TrancheRepository {
	return &TrancheRepository{db: db}
}

func scanTranche(row pgx.Row) (*models.Tranche, error) {
	var t models.Tranche
	if err := row.Scan(&t.ID, &t.Name, &t.PriceUSDCAtomic, &t.TotalTokens, &t.RemainingTokens,
		&t.Active, &t.SortOrder, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a tranche with its full supply remaining
func (r *TrancheRepository) Create(ctx context.Context, t *models.Tranche) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.RemainingTokens = t.TotalTokens
	t.CreatedAt = time.Now().UTC()

	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO tranches (`+trancheColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.Name, t.PriceUSDCAtomic, t.TotalTokens, t.RemainingTokens, t.Active, t.SortOrder, t.CreatedAt)
	if err != nil {
		return apperrors.NewDatabaseError("create tranche", err)
	}
	return nil
}

// GetByID retrieves a tranche by ID
func (r *TrancheRepository) GetByID(ctx context.Context, id string) (*models.Tranche, error) {
	if !validID(id) {
		return nil, apperrors.NewNotFoundError(apperrors.CodeTrancheNotFound, "tranche", id)
	}
	t, err := scanTranche(r.db.Pool().QueryRow(ctx, `SELECT `+trancheColumns+` FROM tranches WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.NewNotFoundError(apperrors.CodeTrancheNotFound, "tranche", id)
		}
		return nil, apperrors.NewDatabaseError("get tranche", err)
	}
	return t, nil
}

// ListActive returns active tranches in sale order
func (r *TrancheRepository) ListActive(ctx context.Context) ([]*models.Tranche, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+trancheColumns+`
		FROM tranches
		WHERE active
		ORDER BY sort_order ASC, created_at ASC
	`)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list tranches", err)
	}
	defer rows.Close()

	var tranches []*models.Tranche
	for rows.Next() {
		t, err := scanTranche(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tranche: %w", err)
		}
		tranches = append(tranches, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate tranches", err)
	}
	return tranches, nil
}

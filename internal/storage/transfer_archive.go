package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/skopiLandToken/skopi-sub000/internal/models"
)

// TransferArchive stores the chain transfers seen during verification in ClickHouse
type TransferArchive struct {
	db *ClickHouseDB
}

// NewTransferArchive creates a new ClickHouse-backed archive
func NewTransferArchive(db *ClickHouseDB) *TransferArchive {
	return &TransferArchive{db: db}
}

// Record appends observed transfers in one batch
func (a *TransferArchive) Record(ctx context.Context, transfers []models.ObservedTransfer) error {
	if len(transfers) == 0 {
		return nil
	}

	batch, err := a.db.Conn().PrepareBatch(ctx, `INSERT INTO observed_transfers`)
	if err != nil {
		return fmt.Errorf("failed to prepare transfer batch: %w", err)
	}
	defer func() {
		_ = batch.Abort()
	}()

	now := time.Now().UTC()
	for i := range transfers {
		t := transfers[i]
		if t.ObservedAt.IsZero() {
			t.ObservedAt = now
		}
		if err := batch.AppendStruct(&t); err != nil {
			return fmt.Errorf("failed to append transfer %s: %w", t.Signature, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send transfer batch: %w", err)
	}
	return nil
}

// CountForIntent returns how many archived transfers reference an intent
func (a *TransferArchive) CountForIntent(ctx context.Context, intentID string) (uint64, error) {
	var count uint64
	row := a.db.Conn().QueryRow(ctx, `SELECT count() FROM observed_transfers FINAL WHERE intent_id = ?`, intentID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count archived transfers: %w", err)
	}
	return count, nil
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
)

// AuditLogRepository appends privileged-action records
type AuditLogRepository struct {
	db *PostgresDB
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *PostgresDB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Append writes one audit entry
func (r *AuditLogRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	return appendAudit(ctx, r.db.Pool(), entry)
}

func appendAudit(ctx context.Context, q querier, entry *models.AuditEntry) error {
	var detailsJSON []byte
	if entry.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
	}

	err := q.QueryRow(ctx, `
		INSERT INTO audit_log (actor, action, subject_id, details)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, entry.Actor, entry.Action, entry.SubjectID, detailsJSON).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return apperrors.NewDatabaseError("append audit", err)
	}
	return nil
}

// ListBySubject returns the audit trail of one subject, newest first
func (r *AuditLogRepository) ListBySubject(ctx context.Context, subjectID string, limit int) ([]*models.AuditEntry, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, actor, action, subject_id, details, created_at
		FROM audit_log
		WHERE subject_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, subjectID, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list audit", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var detailsJSON []byte
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.SubjectID, &detailsJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate audit", err)
	}
	return entries, nil
}

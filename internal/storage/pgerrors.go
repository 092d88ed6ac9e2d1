package storage

import (
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// Named constraints whose violation carries domain meaning
const (
	constraintIntentSignature  = "purchase_intents_tx_signature_key"
	constraintEvidenceURL      = "airdrop_submissions_evidence_key"
	constraintClientSubmission = "airdrop_submissions_client_key"
)

// isUniqueViolation reports whether err is a unique violation, optionally of a specific constraint
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// validID reports whether id can be a primary key; malformed ids are
// treated as unknown rather than as database errors.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

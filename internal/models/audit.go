package models

import "time"

// AuditEntry is an append-only record of a privileged action
type AuditEntry struct {
	ID        int64                  `json:"id" db:"id"`
	Actor     string                 `json:"actor" db:"actor"`
	Action    string                 `json:"action" db:"action"`
	SubjectID string                 `json:"subjectId" db:"subject_id"`
	Details   map[string]interface{} `json:"details,omitempty" db:"details"`
	CreatedAt time.Time              `json:"createdAt" db:"created_at"`
}

// Audit actions
const (
	AuditForceConfirm        = "intent.force_confirm"
	AuditFailIntent          = "intent.fail"
	AuditApproveSubmission   = "submission.approve"
	AuditRejectSubmission    = "submission.reject"
	AuditMarkPayable         = "commission.mark_payable"
	AuditMarkPaid            = "commission.mark_paid"
	AuditReconciliationDrift = "campaign.reconciliation_drift"
	AuditCampaignStatus      = "campaign.status"
)

// ObservedTransfer is a chain transfer seen while verifying an intent,
// archived in ClickHouse
type ObservedTransfer struct {
	IntentID    string    `json:"intentId" ch:"intent_id"`
	Signature   string    `json:"signature" ch:"signature"`
	Source      string    `json:"source" ch:"source"`
	Destination string    `json:"destination" ch:"destination"`
	Mint        string    `json:"mint" ch:"mint"`
	Amount      uint64    `json:"amount" ch:"amount"`
	Slot        uint64    `json:"slot" ch:"slot"`
	BlockTime   time.Time `json:"blockTime" ch:"block_time"`
	Matched     bool      `json:"matched" ch:"matched"`
	ObservedAt  time.Time `json:"observedAt" ch:"observed_at"`
}

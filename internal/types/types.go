// Package types provides the closed enumerations and result codes shared by
// the portal's ledger, engines and HTTP surface.
package types

import "fmt"

// IntentStatus represents the lifecycle of a purchase intent
type IntentStatus string

const (
	// IntentCreated is the initial state after the intent is recorded
	IntentCreated IntentStatus = "created"
	// IntentAwaitingPayment means the buyer reported sending the payment
	IntentAwaitingPayment IntentStatus = "awaiting_payment"
	// IntentConfirmed means a matching on-chain payment was recorded
	IntentConfirmed IntentStatus = "confirmed"
	// IntentFailed is terminal; the intent will never be confirmed
	IntentFailed IntentStatus = "failed"
)

// intentRank orders statuses so transitions only move forward.
var intentRank = map[IntentStatus]int{
	IntentCreated:         0,
	IntentAwaitingPayment: 1,
	IntentConfirmed:       2,
	IntentFailed:          2,
}

// Valid reports whether s is a known status
func (s IntentStatus) Valid() bool {
	_, ok := intentRank[s]
	return ok
}

// IsTerminal reports whether no further transition is possible
func (s IntentStatus) IsTerminal() bool {
	return s == IntentConfirmed || s == IntentFailed
}

// CanTransitionTo reports whether moving from s to next is a forward step
func (s IntentStatus) CanTransitionTo(next IntentStatus) bool {
	if !s.Valid() || !next.Valid() || s.IsTerminal() {
		return false
	}
	return intentRank[next] > intentRank[s]
}

// CommissionStatus represents the payout lifecycle of a commission row
type CommissionStatus string

const (
	CommissionPending CommissionStatus = "pending"
	CommissionPayable CommissionStatus = "payable"
	CommissionPaid    CommissionStatus = "paid"
)

// CanTransitionTo allows only pending -> payable -> paid
func (s CommissionStatus) CanTransitionTo(next CommissionStatus) bool {
	switch s {
	case CommissionPending:
		return next == CommissionPayable
	case CommissionPayable:
		return next == CommissionPaid
	default:
		return false
	}
}

// CampaignStatus represents the state of an airdrop campaign
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignFinalized CampaignStatus = "finalized"
	CampaignArchived  CampaignStatus = "archived"
)

var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:     {CampaignActive, CampaignArchived},
	CampaignActive:    {CampaignPaused, CampaignFinalized},
	CampaignPaused:    {CampaignActive, CampaignFinalized},
	CampaignFinalized: {CampaignArchived},
}

// Valid reports whether s is a known status
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignActive, CampaignPaused, CampaignFinalized, CampaignArchived:
		return true
	}
	return false
}

// CanTransitionTo reports whether an admin may move a campaign from s to next
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	for _, allowed := range campaignTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SubmissionState is the closed set of airdrop submission states
type SubmissionState string

const (
	SubmissionPendingReview  SubmissionState = "pending_review"
	SubmissionVerifiedAuto   SubmissionState = "verified_auto"
	SubmissionVerifiedManual SubmissionState = "verified_manual"
	SubmissionRevoked        SubmissionState = "revoked"
)

// Valid reports whether s is a known state
func (s SubmissionState) Valid() bool {
	switch s {
	case SubmissionPendingReview, SubmissionVerifiedAuto, SubmissionVerifiedManual, SubmissionRevoked:
		return true
	}
	return false
}

// InitialSubmissionState is the state a new submission is created in.
// Manual-review tasks wait for a reviewer; others are verified on arrival.
func InitialSubmissionState(requiresReview bool) SubmissionState {
	if requiresReview {
		return SubmissionPendingReview
	}
	return SubmissionVerifiedAuto
}

// CanTransitionTo: only pending_review moves, to verified_manual or revoked
func (s SubmissionState) CanTransitionTo(next SubmissionState) bool {
	return s == SubmissionPendingReview && (next == SubmissionVerifiedManual || next == SubmissionRevoked)
}

// Allocates reports whether entering this state credits tokens
func (s SubmissionState) Allocates() bool {
	return s == SubmissionVerifiedAuto || s == SubmissionVerifiedManual
}

// CountsTowardCap reports whether a submission in this state consumes the per-task wallet cap
func (s SubmissionState) CountsTowardCap() bool {
	return s != SubmissionRevoked
}

// ReasonCode is a stable machine-readable code carried by negative results.
type ReasonCode string

// Verification outcomes
const (
	ReasonNoTransactionFound ReasonCode = "no_transaction_found"
	ReasonNoExactAmountMatch ReasonCode = "no_exact_amount_match"
)

// Allocation outcomes, in validation order
const (
	ReasonInvalidAmount      ReasonCode = "invalid_amount"
	ReasonCampaignNotFound   ReasonCode = "campaign_not_found"
	ReasonCampaignNotActive  ReasonCode = "campaign_not_active"
	ReasonCampaignNotStarted ReasonCode = "campaign_not_started"
	ReasonCampaignEnded      ReasonCode = "campaign_ended"
	ReasonPoolNotSet         ReasonCode = "pool_not_set"
	ReasonInsufficientPool   ReasonCode = "insufficient_pool"
	ReasonOverUserCap        ReasonCode = "over_user_cap"
)

// Submission outcomes
const (
	ReasonInvalidWallet            ReasonCode = "invalid_wallet"
	ReasonTaskNotFound             ReasonCode = "task_not_found"
	ReasonTaskInactive             ReasonCode = "task_inactive"
	ReasonInvalidEvidenceURL       ReasonCode = "invalid_evidence_url"
	ReasonEvidenceHTTPSRequired    ReasonCode = "evidence_https_required"
	ReasonEvidenceDomainNotAllowed ReasonCode = "evidence_domain_not_allowed"
	ReasonEvidenceTooShort         ReasonCode = "evidence_too_short"
	ReasonDuplicateEvidence        ReasonCode = "duplicate_evidence"
	ReasonRateLimited              ReasonCode = "rate_limited"
	ReasonTaskSubmissionCapReached ReasonCode = "task_submission_cap_reached"
)

// Review outcomes
const (
	ReasonSubmissionNotFound   ReasonCode = "submission_not_found"
	ReasonSubmissionNotPending ReasonCode = "submission_not_pending"
	ReasonRejectReasonRequired ReasonCode = "reject_reason_required"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

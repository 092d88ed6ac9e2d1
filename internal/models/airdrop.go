package models

import (
	"time"

	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

// Campaign is a named airdrop pool
type Campaign struct {
	ID                string               `json:"id" db:"id"`
	Name              string               `json:"name" db:"name"`
	Status            types.CampaignStatus `json:"status" db:"status"`
	PoolTokens        *int64               `json:"poolTokens,omitempty" db:"pool_tokens"`
	DistributedTokens int64                `json:"distributedTokens" db:"distributed_tokens"`
	PerUserCap        *int64               `json:"perUserCap,omitempty" db:"per_user_cap"`
	LockSeconds       int64                `json:"lockSeconds" db:"lock_seconds"`
	StartsAt          *time.Time           `json:"startsAt,omitempty" db:"starts_at"`
	EndsAt            *time.Time           `json:"endsAt,omitempty" db:"ends_at"`
	CreatedAt         time.Time            `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time            `json:"updatedAt" db:"updated_at"`
}

// Remaining returns pool − distributed, or nil for an unset pool
func (c *Campaign) Remaining() *int64 {
	if c.PoolTokens == nil {
		return nil
	}
	r := *c.PoolTokens - c.DistributedTokens
	return &r
}

// CheckAllocation applies the FCFS eligibility rules in order against the
// campaign's current counters. walletTotal is the wallet's existing
// allocation sum for this campaign. It returns "" when the grant may proceed.
//
// Callers must hold the campaign row lock while calling this and while
// applying the grant.
func (c *Campaign) CheckAllocation(now time.Time, amount, walletTotal int64) types.ReasonCode {
	if amount <= 0 {
		return types.ReasonInvalidAmount
	}
	if c.Status != types.CampaignActive {
		return types.ReasonCampaignNotActive
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return types.ReasonCampaignNotStarted
	}
	if c.EndsAt != nil && !now.Before(*c.EndsAt) {
		return types.ReasonCampaignEnded
	}
	if c.PoolTokens == nil {
		return types.ReasonPoolNotSet
	}
	if amount > *c.PoolTokens-c.DistributedTokens {
		return types.ReasonInsufficientPool
	}
	if c.PerUserCap != nil && walletTotal+amount > *c.PerUserCap {
		return types.ReasonOverUserCap
	}
	return ""
}

// Task is a bounty definition inside a campaign
type Task struct {
	ID                      string    `json:"id" db:"id"`
	CampaignID              string    `json:"campaignId" db:"campaign_id"`
	Name                    string    `json:"name" db:"name"`
	BountyTokens            int64     `json:"bountyTokens" db:"bounty_tokens"`
	RequiresReview          bool      `json:"requiresReview" db:"requires_review"`
	AllowedDomains          []string  `json:"allowedDomains,omitempty" db:"allowed_domains"`
	RequireHTTPS            bool      `json:"requireHttps" db:"require_https"`
	MinURLLength            int       `json:"minUrlLength" db:"min_url_length"`
	MaxSubmissionsPerWallet *int      `json:"maxSubmissionsPerWallet,omitempty" db:"max_submissions_per_wallet"`
	Active                  bool      `json:"active" db:"active"`
	CreatedAt               time.Time `json:"createdAt" db:"created_at"`
}

// Submission is one piece of task evidence from a wallet
type Submission struct {
	ID                 string                `json:"id" db:"id"`
	CampaignID         string                `json:"campaignId" db:"campaign_id"`
	TaskID             string                `json:"taskId" db:"task_id"`
	Wallet             string                `json:"wallet" db:"wallet"`
	UserID             *string               `json:"userId,omitempty" db:"user_id"`
	SocialHandle       *string               `json:"socialHandle,omitempty" db:"social_handle"`
	EvidenceURL        string                `json:"evidenceUrl" db:"evidence_url"`
	State              types.SubmissionState `json:"state" db:"state"`
	ClientSubmissionID *string               `json:"clientSubmissionId,omitempty" db:"client_submission_id"`
	Reviewer           *string               `json:"reviewer,omitempty" db:"reviewer"`
	ReviewNotes        *string               `json:"reviewNotes,omitempty" db:"review_notes"`
	ReviewedAt         *time.Time            `json:"reviewedAt,omitempty" db:"reviewed_at"`
	CreatedAt          time.Time             `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time             `json:"updatedAt" db:"updated_at"`
}

// Allocation statuses
const (
	AllocationLocked    = "locked"
	AllocationClaimable = "claimable"
)

// Allocation credits campaign tokens to a wallet
type Allocation struct {
	ID              string     `json:"id" db:"id"`
	CampaignID      string     `json:"campaignId" db:"campaign_id"`
	Wallet          string     `json:"wallet" db:"wallet"`
	UserID          *string    `json:"userId,omitempty" db:"user_id"`
	SubmissionID    *string    `json:"submissionId,omitempty" db:"submission_id"`
	TotalTokens     int64      `json:"totalTokens" db:"total_tokens"`
	LockedTokens    int64      `json:"lockedTokens" db:"locked_tokens"`
	ClaimableTokens int64      `json:"claimableTokens" db:"claimable_tokens"`
	LockEndsAt      *time.Time `json:"lockEndsAt,omitempty" db:"lock_ends_at"`
	Status          string     `json:"status" db:"status"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
}

// NewAllocation builds the allocation row for a grant, fully locked when the
// campaign vests and fully claimable otherwise.
func NewAllocation(c *Campaign, req AllocationRequest, now time.Time) *Allocation {
	a := &Allocation{
		CampaignID:   c.ID,
		Wallet:       req.Wallet,
		UserID:       req.UserID,
		SubmissionID: req.SubmissionID,
		TotalTokens:  req.Amount,
		CreatedAt:    now,
	}
	if c.LockSeconds > 0 {
		ends := now.Add(time.Duration(c.LockSeconds) * time.Second)
		a.LockedTokens = req.Amount
		a.LockEndsAt = &ends
		a.Status = AllocationLocked
	} else {
		a.ClaimableTokens = req.Amount
		a.Status = AllocationClaimable
	}
	return a
}

// AllocationRequest asks for amount tokens from a campaign pool
type AllocationRequest struct {
	CampaignID   string
	Wallet       string
	Amount       int64
	UserID       *string
	SubmissionID *string
}

// AllocationResult is the outcome of an FCFS grant. A rejected grant has
// OK=false and a reason code; it is not an error.
type AllocationResult struct {
	OK              bool             `json:"ok"`
	AllocationID    string           `json:"allocationId,omitempty"`
	RemainingTokens int64            `json:"remainingTokens"`
	Error           types.ReasonCode `json:"error,omitempty"`
}

// Rejected builds a negative allocation result
func Rejected(code types.ReasonCode) *AllocationResult {
	return &AllocationResult{OK: false, Error: code}
}

// CampaignTotals pairs the running counter with the allocation sum
type CampaignTotals struct {
	CampaignID        string `json:"campaignId" db:"campaign_id"`
	Name              string `json:"name" db:"name"`
	DistributedTokens int64  `json:"distributedTokens" db:"distributed_tokens"`
	AllocatedTokens   int64  `json:"allocatedTokens" db:"allocated_tokens"`
	AllocationCount   int64  `json:"allocationCount" db:"allocation_count"`
}

// Drift returns distributed − allocated
func (t CampaignTotals) Drift() int64 {
	return t.DistributedTokens - t.AllocatedTokens
}

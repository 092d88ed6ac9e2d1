// Package models provides persistent records and pure domain math for the
// token-sale portal.
package models

import (
	"time"

	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

// FailureTrancheSoldOut marks a paid intent whose tranche ran out before it
// could be confirmed. Such intents leave the verification sweep and wait for
// an operator.
const FailureTrancheSoldOut = "tranche sold out at confirmation; payment needs operator action"

// Intent represents a purchase intent awaiting on-chain settlement
type Intent struct {
	ID               string             `json:"id" db:"id"`
	UserID           string             `json:"userId" db:"user_id"`
	Status           types.IntentStatus `json:"status" db:"status"`
	AmountUSDCAtomic int64              `json:"amountUsdcAtomic" db:"amount_usdc_atomic"`
	ReferenceKey     string             `json:"referenceKey" db:"reference_key"`
	TreasuryAddress  string             `json:"treasuryAddress" db:"treasury_address"`
	MintAddress      string             `json:"mintAddress" db:"mint_address"`
	TrancheID        string             `json:"trancheId" db:"tranche_id"`
	TokenAmount      int64              `json:"tokenAmount" db:"token_amount"`
	PriceUSDCAtomic  int64              `json:"priceUsdcAtomic" db:"price_usdc_atomic"`
	RefCodeTier1     *string            `json:"refCodeTier1,omitempty" db:"ref_code_tier1"`
	RefCodeTier2     *string            `json:"refCodeTier2,omitempty" db:"ref_code_tier2"`
	RefCodeTier3     *string            `json:"refCodeTier3,omitempty" db:"ref_code_tier3"`
	TxSignature      *string            `json:"txSignature,omitempty" db:"tx_signature"`
	FailureReason    *string            `json:"failureReason,omitempty" db:"failure_reason"`
	CreatedAt        time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time          `json:"updatedAt" db:"updated_at"`
	ConfirmedAt      *time.Time         `json:"confirmedAt,omitempty" db:"confirmed_at"`
}

// ReferralTier pairs an affiliate tier with the code credited at that tier
type ReferralTier struct {
	Tier int
	Code string
}

// ReferralTiers returns the non-empty referral codes in tier order
func (i *Intent) ReferralTiers() []ReferralTier {
	var tiers []ReferralTier
	for tier, code := range []*string{i.RefCodeTier1, i.RefCodeTier2, i.RefCodeTier3} {
		if code != nil && *code != "" {
			tiers = append(tiers, ReferralTier{Tier: tier + 1, Code: *code})
		}
	}
	return tiers
}

// Tranche is a fixed-price supply tier
type Tranche struct {
	ID              string    `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	PriceUSDCAtomic int64     `json:"priceUsdcAtomic" db:"price_usdc_atomic"`
	TotalTokens     int64     `json:"totalTokens" db:"total_tokens"`
	RemainingTokens int64     `json:"remainingTokens" db:"remaining_tokens"`
	Active          bool      `json:"active" db:"active"`
	SortOrder       int       `json:"sortOrder" db:"sort_order"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// CanCover reports whether the tranche currently has tokenAmount left
func (t *Tranche) CanCover(tokenAmount int64) bool {
	return t.Active && tokenAmount > 0 && t.RemainingTokens >= tokenAmount
}

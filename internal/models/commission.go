package models

import (
	"math/bits"
	"time"

	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

// Commission is one affiliate payout row for an (intent, tier) pair
type Commission struct {
	ID               string                 `json:"id" db:"id"`
	IntentID         string                 `json:"intentId" db:"intent_id"`
	Tier             int                    `json:"tier" db:"tier"`
	ReferralCode     string                 `json:"referralCode" db:"referral_code"`
	RateBps          int64                  `json:"rateBps" db:"rate_bps"`
	AmountUSDCAtomic int64                  `json:"amountUsdcAtomic" db:"amount_usdc_atomic"`
	Status           types.CommissionStatus `json:"status" db:"status"`
	CreatedAt        time.Time              `json:"createdAt" db:"created_at"`
	PayableAt        *time.Time             `json:"payableAt,omitempty" db:"payable_at"`
	PaidAt           *time.Time             `json:"paidAt,omitempty" db:"paid_at"`
	PaidTxSignature  *string                `json:"paidTxSignature,omitempty" db:"paid_tx_signature"`

	// Inserted is set when the row was created by the current commit call
	Inserted bool `json:"-" db:"-"`
}

// Tier rates in basis points
const (
	Tier1RateBps int64 = 2000
	Tier2RateBps int64 = 1000
	Tier3RateBps int64 = 500

	bpsDenominator uint64 = 10000
)

// TierRateBps returns the fixed rate for an affiliate tier, or false for an unknown tier
func TierRateBps(tier int) (int64, bool) {
	switch tier {
	case 1:
		return Tier1RateBps, true
	case 2:
		return Tier2RateBps, true
	case 3:
		return Tier3RateBps, true
	}
	return 0, false
}

// CommissionAmount computes amount × rate / 10000 rounded half-up on the
// atomic integer. Negative inputs yield zero.
//
// This is the only place the payout rounding rule is defined; the ledger
// stores the value computed here.
func CommissionAmount(amountAtomic, rateBps int64) int64 {
	if amountAtomic <= 0 || rateBps <= 0 {
		return 0
	}
	if rateBps > int64(bpsDenominator) {
		rateBps = int64(bpsDenominator)
	}
	hi, lo := bits.Mul64(uint64(amountAtomic), uint64(rateBps))
	lo, carry := bits.Add64(lo, bpsDenominator/2, 0)
	hi += carry
	q, _ := bits.Div64(hi, lo, bpsDenominator)
	return int64(q)
}

// PlannedCommission is a commission row before it is persisted
type PlannedCommission struct {
	Tier             int
	ReferralCode     string
	RateBps          int64
	AmountUSDCAtomic int64
}

// PlanCommissions computes the rows a confirmed intent should produce
func PlanCommissions(intent *Intent) []PlannedCommission {
	tiers := intent.ReferralTiers()
	planned := make([]PlannedCommission, 0, len(tiers))
	for _, rt := range tiers {
		rate, ok := TierRateBps(rt.Tier)
		if !ok {
			continue
		}
		planned = append(planned, PlannedCommission{
			Tier:             rt.Tier,
			ReferralCode:     rt.Code,
			RateBps:          rate,
			AmountUSDCAtomic: CommissionAmount(intent.AmountUSDCAtomic, rate),
		})
	}
	return planned
}

package models

import "github.com/shopspring/decimal"

// USDCDecimals is the decimal precision of USDC atomic units
const USDCDecimals int32 = 6

// DisplayTolerance is the largest display difference treated as equal
var DisplayTolerance = decimal.New(1, -6)

// ToDisplay converts an atomic integer amount to a decimal with the given precision
func ToDisplay(atomic int64, decimals int32) decimal.Decimal {
	return decimal.New(atomic, -decimals)
}

// FormatUSDC renders USDC atomic units as a fixed 6-decimal string
func FormatUSDC(atomic int64) string {
	return ToDisplay(atomic, USDCDecimals).StringFixed(USDCDecimals)
}

// DisplayEqual reports whether two display amounts agree within DisplayTolerance
func DisplayEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(DisplayTolerance)
}

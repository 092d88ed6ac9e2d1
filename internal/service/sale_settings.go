package service

import (
	"github.com/gagliardetto/solana-go"

	"github.com/skopiLandToken/skopi-sub000/internal/config"
	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
)

const defaultLookback = 50

// SaleSettings holds the resolved payment destination for new intents
type SaleSettings struct {
	Mint     string
	Treasury string // USDC associated token account of the treasury owner
	Lookback int
}

// ResolveSaleSettings validates the configured mint and treasury keys and
// derives the treasury's associated token account when no explicit account
// is configured.
func ResolveSaleSettings(sale config.SaleConfig, verify config.VerificationConfig) (*SaleSettings, error) {
	if sale.USDCMint == "" {
		return nil, apperrors.NewMisconfigurationError("USDC_MINT", "USDC mint is not configured")
	}
	mint, err := solana.PublicKeyFromBase58(sale.USDCMint)
	if err != nil {
		return nil, apperrors.NewMisconfigurationError("USDC_MINT", "USDC mint is not a valid public key")
	}

	lookback := verify.Lookback
	if lookback <= 0 {
		lookback = defaultLookback
	}

	if sale.TreasuryTokenAccount != "" {
		ata, err := solana.PublicKeyFromBase58(sale.TreasuryTokenAccount)
		if err != nil {
			return nil, apperrors.NewMisconfigurationError("TREASURY_TOKEN_ACCOUNT", "treasury token account is not a valid public key")
		}
		return &SaleSettings{Mint: mint.String(), Treasury: ata.String(), Lookback: lookback}, nil
	}

	if sale.TreasuryOwner == "" {
		return nil, apperrors.NewMisconfigurationError("TREASURY_OWNER", "treasury owner is not configured")
	}
	owner, err := solana.PublicKeyFromBase58(sale.TreasuryOwner)
	if err != nil {
		return nil, apperrors.NewMisconfigurationError("TREASURY_OWNER", "treasury owner is not a valid public key")
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, apperrors.NewMisconfigurationError("TREASURY_OWNER", "cannot derive treasury token account: "+err.Error())
	}
	return &SaleSettings{Mint: mint.String(), Treasury: ata.String(), Lookback: lookback}, nil
}

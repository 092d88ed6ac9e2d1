package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/skopiLandToken/skopi-sub000/internal/logging"
)

const maxSignatureLimit = 1000

// SolanaObserver implements ChainObserver over Solana JSON-RPC
type SolanaObserver struct {
	pool       *RPCPool
	commitment rpc.CommitmentType
	logger     *logging.Logger
}

// NewSolanaObserver creates an observer reading at the given commitment
// ("confirmed" or "finalized"; anything else falls back to confirmed).
func NewSolanaObserver(pool *RPCPool, commitment string) *SolanaObserver {
	c := rpc.CommitmentConfirmed
	if commitment == string(rpc.CommitmentFinalized) {
		c = rpc.CommitmentFinalized
	}
	return &SolanaObserver{
		pool:       pool,
		commitment: c,
		logger:     logging.GetGlobalLogger().WithField("component", "solana_observer"),
	}
}

// GetRecentTransfers implements ChainObserver
func (o *SolanaObserver) GetRecentTransfers(ctx context.Context, addressOrReference string, limit int) ([]TokenTransfer, error) {
	key, err := solana.PublicKeyFromBase58(addressOrReference)
	if err != nil {
		return nil, NewAdapterError("", "GetRecentTransfers", ErrInvalidAddress, map[string]interface{}{
			"address": addressOrReference,
		})
	}
	if limit <= 0 || limit > maxSignatureLimit {
		limit = maxSignatureLimit
	}

	client, endpoint := o.pool.GetClient(), o.pool.GetCurrentURL()

	start := time.Now()
	sigs, err := client.GetSignaturesForAddressWithOpts(ctx, key, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: o.commitment,
	})
	if err != nil {
		o.pool.RecordFailure(err)
		return nil, NewAdapterError(endpoint, "GetSignaturesForAddress", err, nil)
	}
	o.pool.RecordSuccess(time.Since(start))

	maxVersion := uint64(0)
	var out []TokenTransfer
	for _, sig := range sigs {
		if sig.Err != nil {
			continue
		}

		start = time.Now()
		tx, err := client.GetParsedTransaction(ctx, sig.Signature, &rpc.GetParsedTransactionOpts{
			Commitment:                     o.commitment,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		if errors.Is(err, rpc.ErrNotFound) {
			// Indexed signature whose body is not yet served at this commitment.
			o.logger.WithField("signature", sig.Signature.String()).Debug("transaction not yet available")
			continue
		}
		if err != nil {
			o.pool.RecordFailure(err)
			return nil, NewAdapterError(endpoint, "GetParsedTransaction", err, map[string]interface{}{
				"signature": sig.Signature.String(),
			})
		}
		o.pool.RecordSuccess(time.Since(start))

		if tx.Meta != nil && tx.Meta.Err != nil {
			continue
		}
		if tx.BlockTime == nil && sig.BlockTime != nil {
			tx.BlockTime = sig.BlockTime
		}
		out = append(out, ExtractTransfers(sig.Signature.String(), tx)...)
	}

	return out, nil
}

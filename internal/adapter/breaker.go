package adapter

import (
	"context"
	"errors"

	"github.com/skopiLandToken/skopi-sub000/internal/circuitbreaker"
)

// BreakerObserver guards a ChainObserver with a circuit breaker so a failing
// RPC provider is not hammered by every verification call.
type BreakerObserver struct {
	next    ChainObserver
	breaker *circuitbreaker.CircuitBreaker
}

// NewBreakerObserver wraps next with breaker
func NewBreakerObserver(next ChainObserver, breaker *circuitbreaker.CircuitBreaker) *BreakerObserver {
	return &BreakerObserver{next: next, breaker: breaker}
}

// GetRecentTransfers implements ChainObserver
func (b *BreakerObserver) GetRecentTransfers(ctx context.Context, addressOrReference string, limit int) ([]TokenTransfer, error) {
	var (
		out       []TokenTransfer
		callerErr error
	)
	err := b.breaker.Execute(ctx, func() error {
		transfers, err := b.next.GetRecentTransfers(ctx, addressOrReference, limit)
		if errors.Is(err, ErrInvalidAddress) {
			// Caller error; does not count against the provider.
			callerErr = err
			return nil
		}
		out = transfers
		return err
	})
	if callerErr != nil {
		return nil, callerErr
	}
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return nil, NewAdapterError("", "GetRecentTransfers", ErrProviderUnavailable, map[string]interface{}{
				"breaker": b.breaker.GetState(),
			})
		}
		return nil, err
	}
	return out, nil
}

// Stats exposes the breaker statistics for health reporting
func (b *BreakerObserver) Stats() *circuitbreaker.Stats {
	return b.breaker.GetStats()
}

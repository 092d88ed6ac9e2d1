package adapter

import (
	"context"
	"fmt"
	"time"
)

// TokenTransfer is one fungible-token movement decoded from a chain transaction
type TokenTransfer struct {
	Signature   string    `json:"signature"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Authority   string    `json:"authority,omitempty"`
	Mint        string    `json:"mint"`
	Amount      uint64    `json:"amount"`
	Decimals    uint8     `json:"decimals"`
	Slot        uint64    `json:"slot"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChainObserver reads recent token activity from the chain
type ChainObserver interface {
	// GetRecentTransfers returns the token transfers of the last limit
	// transactions that touched addressOrReference, most recent first.
	// Failed transactions are skipped. An empty result is not an error:
	// settled payments may take a while to become visible.
	GetRecentTransfers(ctx context.Context, addressOrReference string, limit int) ([]TokenTransfer, error)
}

// Common error types for chain observers

var (
	// ErrInvalidAddress indicates the address format is invalid
	ErrInvalidAddress = fmt.Errorf("invalid address format")

	// ErrProviderUnavailable indicates the RPC provider is unavailable
	ErrProviderUnavailable = fmt.Errorf("rpc provider unavailable")

	// ErrProviderRateLimit indicates the provider rate limit was exceeded
	ErrProviderRateLimit = fmt.Errorf("provider rate limit exceeded")

	// ErrTransactionNotFound indicates the requested transaction was not found
	ErrTransactionNotFound = fmt.Errorf("transaction not found")
)

// AdapterError wraps errors with additional context
type AdapterError struct {
	Endpoint string
	Op       string // Operation that failed (e.g., "GetSignaturesForAddress")
	Err      error
	Details  map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("chain observer error [%s:%s]: %v (details: %+v)", e.Endpoint, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("chain observer error [%s:%s]: %v", e.Endpoint, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(endpoint string, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Endpoint: endpoint,
		Op:       op,
		Err:      err,
		Details:  details,
	}
}

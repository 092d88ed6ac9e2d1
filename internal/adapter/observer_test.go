package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skopiLandToken/skopi-sub000/internal/circuitbreaker"
)

type stubObserver struct {
	transfers []TokenTransfer
	err       error
	calls     int
}

func (s *stubObserver) GetRecentTransfers(ctx context.Context, ref string, limit int) ([]TokenTransfer, error) {
	s.calls++
	return s.transfers, s.err
}

func testBreaker() *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
		Name:             "test",
		MaxFailures:      2,
		FailureThreshold: 0.5,
		Timeout:          30 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	})
}

func TestBreakerObserverOpensAndRecovers(t *testing.T) {
	ctx := context.Background()
	stub := &stubObserver{err: errors.New("503 service unavailable")}
	obs := NewBreakerObserver(stub, testBreaker())

	for i := 0; i < 2; i++ {
		_, err := obs.GetRecentTransfers(ctx, "ref", 10)
		require.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateOpen, obs.Stats().State)

	_, err := obs.GetRecentTransfers(ctx, "ref", 10)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 2, stub.calls, "open breaker must not reach the provider")

	time.Sleep(40 * time.Millisecond)
	stub.err = nil
	stub.transfers = []TokenTransfer{{Signature: "s", Amount: 1}}

	transfers, err := obs.GetRecentTransfers(ctx, "ref", 10)
	require.NoError(t, err)
	assert.Len(t, transfers, 1)
	assert.Equal(t, circuitbreaker.StateClosed, obs.Stats().State)
}

func TestBreakerObserverInvalidAddressDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	stub := &stubObserver{err: NewAdapterError("", "GetRecentTransfers", ErrInvalidAddress, nil)}
	obs := NewBreakerObserver(stub, testBreaker())

	for i := 0; i < 5; i++ {
		_, err := obs.GetRecentTransfers(ctx, "not-base58", 10)
		assert.ErrorIs(t, err, ErrInvalidAddress)
	}
	assert.Equal(t, circuitbreaker.StateClosed, obs.Stats().State)
}

func TestSolanaObserverRejectsInvalidReference(t *testing.T) {
	pool, err := NewRPCPool(&RPCPoolConfig{Endpoints: []string{"http://127.0.0.1:1"}})
	require.NoError(t, err)
	defer pool.Close()

	_, err = NewSolanaObserver(pool, "confirmed").GetRecentTransfers(context.Background(), "0OIl", 10)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestRPCPoolFailover(t *testing.T) {
	pool, err := NewRPCPoolFromURLs(" http://a.invalid , http://b.invalid,", time.Hour)
	require.NoError(t, err)
	defer pool.Close()

	assert.Equal(t, 2, pool.EndpointCount())
	assert.Equal(t, "http://a.invalid", pool.GetCurrentURL())

	require.NoError(t, pool.OnRateLimited())
	assert.Equal(t, "http://b.invalid", pool.GetCurrentURL())

	assert.Error(t, pool.OnRateLimited(), "both endpoints are cooling down")
	assert.False(t, pool.TryResetToPrimary())

	status := pool.Status()
	assert.Equal(t, 2, status.TotalEndpoints)
	assert.True(t, status.EndpointStatus[0].InCooldown)
}

func TestRPCPoolRecordFailureFailsOverOnRateLimit(t *testing.T) {
	pool, err := NewRPCPool(&RPCPoolConfig{Endpoints: []string{"http://a.invalid", "http://b.invalid"}, CooldownTime: time.Millisecond})
	require.NoError(t, err)
	defer pool.Close()

	pool.RecordFailure(errors.New("HTTP 429 Too Many Requests"))
	assert.Equal(t, 1, pool.Status().CurrentIndex)

	time.Sleep(5 * time.Millisecond)
	assert.True(t, pool.TryResetToPrimary())
	assert.Equal(t, 0, pool.Status().CurrentIndex)

	pool.RecordFailure(errors.New("connection refused"))
	assert.Equal(t, 0, pool.Status().CurrentIndex)
	assert.Equal(t, 2, pool.Status().ConsecutiveFails)
}

func TestIsRateLimitError(t *testing.T) {
	assert.True(t, IsRateLimitError(errors.New("429")))
	assert.True(t, IsRateLimitError(errors.New("Request throttled")))
	assert.False(t, IsRateLimitError(errors.New("connection reset")))
	assert.False(t, IsRateLimitError(nil))
}

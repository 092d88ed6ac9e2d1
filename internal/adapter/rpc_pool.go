package adapter

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"

	"github.com/skopiLandToken/skopi-sub000/internal/logging"
)

// RPCPool manages multiple Solana RPC endpoints with failover on rate limiting (429)
// Strategy: Stick to current endpoint until 429, then switch to next
type RPCPool struct {
	endpoints    []string
	clients      []*rpc.Client
	currentIndex int
	mu           sync.RWMutex
	cooldowns    map[int]time.Time // Track when each endpoint was rate limited
	cooldownTime time.Duration     // How long to wait before retrying a rate-limited endpoint

	// Health tracking
	totalRequests    int64
	failedReqs       int64
	totalLatency     time.Duration
	lastSuccess      time.Time
	lastFailure      time.Time
	consecutiveFails int
}

// RPCPoolConfig holds configuration for creating an RPC pool
type RPCPoolConfig struct {
	// Endpoints is a list of RPC URLs
	Endpoints []string
	// CooldownTime is how long to wait before retrying a rate-limited endpoint
	// Default: 60 seconds
	CooldownTime time.Duration
}

// NewRPCPool creates a new RPC pool from multiple endpoints
func NewRPCPool(cfg *RPCPoolConfig) (*RPCPool, error) {
	if cfg == nil || len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}

	cooldownTime := cfg.CooldownTime
	if cooldownTime == 0 {
		cooldownTime = 60 * time.Second
	}

	pool := &RPCPool{
		endpoints:    cfg.Endpoints,
		clients:      make([]*rpc.Client, len(cfg.Endpoints)),
		cooldowns:    make(map[int]time.Time),
		cooldownTime: cooldownTime,
	}
	pool.clients[0] = rpc.New(cfg.Endpoints[0])

	logging.WithField("endpoints", len(cfg.Endpoints)).Info("RPC pool initialized")

	return pool, nil
}

// NewRPCPoolFromURLs creates an RPC pool from comma-separated URLs
func NewRPCPoolFromURLs(urls string, cooldown time.Duration) (*RPCPool, error) {
	var valid []string
	for _, ep := range strings.Split(urls, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			valid = append(valid, ep)
		}
	}
	return NewRPCPool(&RPCPoolConfig{Endpoints: valid, CooldownTime: cooldown})
}

// GetClient returns the current active client
func (p *RPCPool) GetClient() *rpc.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.clients[p.currentIndex]
}

// GetCurrentURL returns the current active RPC URL
func (p *RPCPool) GetCurrentURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.endpoints[p.currentIndex]
}

// EndpointCount returns the number of endpoints in the pool
func (p *RPCPool) EndpointCount() int {
	return len(p.endpoints)
}

// OnRateLimited should be called when a 429 response is received.
// It switches to the next endpoint not in cooldown and returns an error
// if all endpoints are rate limited.
func (p *RPCPool) OnRateLimited() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cooldowns[p.currentIndex] = time.Now()
	startIndex := p.currentIndex

	for i := 0; i < len(p.endpoints); i++ {
		nextIndex := (p.currentIndex + 1 + i) % len(p.endpoints)

		if limitedAt, exists := p.cooldowns[nextIndex]; exists {
			if time.Since(limitedAt) < p.cooldownTime {
				continue
			}
			delete(p.cooldowns, nextIndex)
		}

		p.switchToEndpoint(nextIndex)
		logging.WithFields(map[string]interface{}{
			"from": startIndex,
			"to":   nextIndex,
		}).Warn("RPC endpoint rate limited, switched endpoint")
		return nil
	}

	return fmt.Errorf("all %d RPC endpoints are rate limited", len(p.endpoints))
}

// switchToEndpoint switches to a specific endpoint (must hold lock)
func (p *RPCPool) switchToEndpoint(index int) {
	if p.clients[index] == nil {
		p.clients[index] = rpc.New(p.endpoints[index])
	}
	p.currentIndex = index
}

// TryResetToPrimary attempts to switch back to the primary endpoint (index 0)
// if its cooldown has expired. Call this periodically to prefer the primary.
func (p *RPCPool) TryResetToPrimary() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.currentIndex == 0 {
		return true
	}

	if limitedAt, exists := p.cooldowns[0]; exists {
		if time.Since(limitedAt) < p.cooldownTime {
			return false
		}
		delete(p.cooldowns, 0)
	}

	p.switchToEndpoint(0)
	logging.Info("RPC pool reset to primary endpoint")
	return true
}

// RecordSuccess records a successful request
func (p *RPCPool) RecordSuccess(duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalRequests++
	p.totalLatency += duration
	p.lastSuccess = time.Now()
	p.consecutiveFails = 0
}

// RecordFailure records a failed request and fails over on rate limit errors
func (p *RPCPool) RecordFailure(err error) {
	p.mu.Lock()
	p.totalRequests++
	p.failedReqs++
	p.lastFailure = time.Now()
	p.consecutiveFails++
	p.mu.Unlock()

	if IsRateLimitError(err) {
		if failErr := p.OnRateLimited(); failErr != nil {
			logging.WithError(failErr).Warn("RPC failover failed")
		}
	}
}

// IsRateLimitError checks if an error indicates rate limiting (429)
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "throttl")
}

// Close closes all client connections
func (p *RPCPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, client := range p.clients {
		if client != nil {
			_ = client.Close()
			p.clients[i] = nil
		}
	}
}

// Status returns the current status of the pool
func (p *RPCPool) Status() *RPCPoolStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := &RPCPoolStatus{
		TotalEndpoints:   len(p.endpoints),
		CurrentIndex:     p.currentIndex,
		EndpointStatus:   make([]EndpointStatus, len(p.endpoints)),
		TotalRequests:    p.totalRequests,
		FailedRequests:   p.failedReqs,
		LastSuccess:      p.lastSuccess,
		LastFailure:      p.lastFailure,
		ConsecutiveFails: p.consecutiveFails,
		Healthy:          p.consecutiveFails < 5,
	}
	if ok := p.totalRequests - p.failedReqs; ok > 0 {
		status.AverageLatency = p.totalLatency / time.Duration(ok)
	}

	for i := range p.endpoints {
		es := EndpointStatus{
			Index:     i,
			Connected: p.clients[i] != nil,
			IsCurrent: i == p.currentIndex,
		}

		if limitedAt, exists := p.cooldowns[i]; exists {
			remaining := p.cooldownTime - time.Since(limitedAt)
			if remaining > 0 {
				es.InCooldown = true
				es.CooldownRemaining = remaining
			}
		}

		status.EndpointStatus[i] = es
	}

	return status
}

// RPCPoolStatus represents the current status of the RPC pool
type RPCPoolStatus struct {
	TotalEndpoints   int              `json:"totalEndpoints"`
	CurrentIndex     int              `json:"currentIndex"`
	EndpointStatus   []EndpointStatus `json:"endpoints"`
	TotalRequests    int64            `json:"totalRequests"`
	FailedRequests   int64            `json:"failedRequests"`
	AverageLatency   time.Duration    `json:"averageLatency"`
	LastSuccess      time.Time        `json:"lastSuccess"`
	LastFailure      time.Time        `json:"lastFailure"`
	ConsecutiveFails int              `json:"consecutiveFails"`
	Healthy          bool             `json:"healthy"`
}

// EndpointStatus represents the status of a single endpoint
type EndpointStatus struct {
	Index             int           `json:"index"`
	Connected         bool          `json:"connected"`
	IsCurrent         bool          `json:"isCurrent"`
	InCooldown        bool          `json:"inCooldown"`
	CooldownRemaining time.Duration `json:"cooldownRemaining"`
}

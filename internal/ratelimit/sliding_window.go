// Package ratelimit provides a Redis-backed sliding-window limiter shared by
// every portal instance.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Default sliding window configuration values.
const (
	DefaultSubmissionLimit  = 20
	DefaultSubmissionWindow = time.Hour
	DefaultKeyPrefix        = "portal:ratelimit"
)

// slidingWindowScript trims entries older than the window, then admits the
// request only when fewer than limit entries remain. The score is the
// request time in milliseconds.
//
// Returns {allowed, count, retryAfterMs}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local retry = window
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  if retry < 1 then
    retry = 1
  end
  return {0, count, retry}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return {1, count + 1, 0}
`)

// SlidingWindowConfig configures a Redis sliding-window limiter.
type SlidingWindowConfig struct {
	// Redis is shared by every server instance so the limit is global.
	Redis redis.Cmdable

	// Limit is the number of requests admitted per window. Zero disables limiting.
	Limit int

	// Window is the length of the sliding window.
	Window time.Duration

	// Prefix namespaces the Redis keys.
	Prefix string
}

// Validate checks if the configuration is valid.
func (c *SlidingWindowConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if c.Limit > 0 && c.Window < time.Millisecond {
		return errors.New("window must be at least 1ms")
	}
	return nil
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Count      int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, at least 1 when denied.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// SlidingWindowLimiter admits at most Limit requests per subject in any
// Window-long interval.
type SlidingWindowLimiter struct {
	redis  redis.Cmdable
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewSlidingWindowLimiter creates a limiter from cfg.
func NewSlidingWindowLimiter(cfg *SlidingWindowConfig) (*SlidingWindowLimiter, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	prefix := strings.TrimSuffix(strings.TrimSpace(cfg.Prefix), ":")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &SlidingWindowLimiter{
		redis:  cfg.Redis,
		limit:  cfg.Limit,
		window: cfg.Window,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// Allow records one request for scope/subject if it fits in the window.
// Redis failures are returned to the caller; nothing is admitted silently.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, scope, subject string) (Decision, error) {
	if l.limit == 0 {
		return Decision{Allowed: true}, nil
	}

	key := fmt.Sprintf("%s:%s:%s", l.prefix, scope, strings.TrimSpace(subject))
	nowMs := l.now().UnixMilli()
	res, err := slidingWindowScript.Run(ctx, l.redis, []string{key},
		nowMs, l.window.Milliseconds(), l.limit, fmt.Sprintf("%d-%s", nowMs, uuid.NewString())).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("sliding window for %s: %w", key, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("unexpected limiter response length %d", len(res))
	}

	return Decision{
		Allowed:    res[0] == 1,
		Count:      int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

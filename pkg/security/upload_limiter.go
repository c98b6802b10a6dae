package security

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// UploadLimiter enforces rate limits on scan uploads using a Redis sliding window
type UploadLimiter struct {
	client       *goredis.Client
	maxPerMinute int // Max uploads per minute per IP
	now          func() time.Time
}

// Lua script for sliding window rate limiting
// KEYS[1] = rate limit key
// ARGV[1] = max count allowed
// ARGV[2] = window size in seconds
// ARGV[3] = current timestamp (milliseconds)
// Returns: uploads left after this one, or -1 if rate limited
const uploadRateLimitScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

-- Remove expired entries outside the window
redis.call('ZREMRANGEBYSCORE', key, 0, now - window * 1000)

-- Get current count
local count = redis.call('ZCARD', key)

if count >= limit then
    return -1
end

-- Add new entry with unique member
redis.call('ZADD', key, now, now .. '-' .. math.random(1000000))
redis.call('EXPIRE', key, window)
return limit - count - 1
`

const uploadWindowSeconds = 60

// NewUploadLimiter creates an upload rate limiter.
// A nil client disables limiting. Default: 10 uploads/min per IP.
func NewUploadLimiter(client *goredis.Client, perMin int) *UploadLimiter {
	if perMin <= 0 {
		perMin = 10
	}
	return &UploadLimiter{
		client:       client,
		maxPerMinute: perMin,
		now:          time.Now,
	}
}

// UploadDecision is the outcome of one limit check
type UploadDecision struct {
	Allowed    bool
	Remaining  int // uploads left in the window after this one
	RetryAfter int // seconds, set when not allowed
}

// Enabled reports whether a Redis backend is attached
func (ul *UploadLimiter) Enabled() bool {
	return ul != nil && ul.client != nil
}

// AllowUpload checks the per-IP limit.
// Without Redis it fails OPEN; on Redis errors it also allows and returns the error for logging.
func (ul *UploadLimiter) AllowUpload(ctx context.Context, ip string) (UploadDecision, error) {
	if !ul.Enabled() {
		return UploadDecision{Allowed: true, Remaining: ul.maxPerMinute}, nil
	}

	key := fmt.Sprintf("ratelimit:scan_upload:ip:%s", ip)
	remaining, err := ul.checkLimit(ctx, key, ul.maxPerMinute, uploadWindowSeconds, ul.now().UnixMilli())
	if err != nil {
		return UploadDecision{Allowed: true, Remaining: -1}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if remaining < 0 {
		return UploadDecision{RetryAfter: uploadWindowSeconds}, nil
	}
	return UploadDecision{Allowed: true, Remaining: int(remaining)}, nil
}

// checkLimit performs the atomic sliding window rate limit check
func (ul *UploadLimiter) checkLimit(ctx context.Context, key string, limit, window int, now int64) (int64, error) {
	result, err := ul.client.Eval(ctx, uploadRateLimitScript, []string{key}, limit, window, now).Result()
	if err != nil {
		return 0, err
	}
	remaining, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type from rate limit script")
	}
	return remaining, nil
}

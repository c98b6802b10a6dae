package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"file-scan-backend/internal/delivery/http/response"
	"file-scan-backend/pkg/logger"
	"file-scan-backend/pkg/security"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
)

// RateLimitConfig holds configuration for the fixed-window API limiter
type RateLimitConfig struct {
	// Requests per window
	Limit int
	// Time window duration
	Window time.Duration
	// Key prefix for Redis
	KeyPrefix string
}

// DefaultRateLimitConfig returns the global per-IP API limit
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:     100,
		Window:    1 * time.Minute,
		KeyPrefix: "rl:ip:",
	}
}

// Lua script for atomic increment with TTL on first set
// KEYS[1] = counter key
// ARGV[1] = TTL in seconds
// Returns: [current_count, ttl_remaining]
const rateLimitLuaScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('TTL', KEYS[1])
return {count, ttl}
`

type rateLimitEntry struct {
	count   int
	resetAt time.Time
}

// RateLimiter counts requests in Redis and falls back to process memory
// when Redis is absent or failing.
type RateLimiter struct {
	config RateLimitConfig
	client *goredis.Client
	audit  *security.AuditLogger

	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	now     func() time.Time
}

func NewRateLimiter(config RateLimitConfig, client *goredis.Client, audit *security.AuditLogger) *RateLimiter {
	if config.Limit <= 0 {
		config.Limit = DefaultRateLimitConfig().Limit
	}
	if config.Window <= 0 {
		config.Window = DefaultRateLimitConfig().Window
	}
	return &RateLimiter{
		config:  config,
		client:  client,
		audit:   audit,
		entries: make(map[string]*rateLimitEntry),
		now:     time.Now,
	}
}

// Middleware enforces the limit per client IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rl.config.KeyPrefix + c.ClientIP()

		count, resetAt, err := rl.hit(c.Request.Context(), key)
		if err != nil {
			logger.Log.Warn("Redis rate limit failed, using in-memory counter", "error", err)
			count, resetAt = rl.hitInMemory(key)
		}

		remaining := rl.config.Limit - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", resetAt.UTC().Format(time.RFC3339))

		if count > rl.config.Limit {
			retryAfter := int(resetAt.Sub(rl.now()).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			rl.audit.LogRateLimitTriggered(c.Request.Context(), c.ClientIP(), c.GetString("RequestID"), c.FullPath())
			response.Error(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) hit(ctx context.Context, key string) (int, time.Time, error) {
	if rl.client == nil {
		count, resetAt := rl.hitInMemory(key)
		return count, resetAt, nil
	}

	ttlSeconds := int(rl.config.Window.Seconds())
	result, err := rl.client.Eval(ctx, rateLimitLuaScript, []string{key}, ttlSeconds).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis rate limit eval failed: %w", err)
	}

	arr, ok := result.([]interface{})
	if !ok || len(arr) < 2 {
		return 0, time.Time{}, fmt.Errorf("unexpected redis result format")
	}
	count, _ := arr[0].(int64)
	ttl, _ := arr[1].(int64)

	return int(count), rl.now().Add(time.Duration(ttl) * time.Second), nil
}

func (rl *RateLimiter) hitInMemory(key string) (int, time.Time) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Drop expired windows while we hold the lock
	if len(rl.entries) > 10000 {
		for k, e := range rl.entries {
			if now.After(e.resetAt) {
				delete(rl.entries, k)
			}
		}
	}

	entry, ok := rl.entries[key]
	if !ok || now.After(entry.resetAt) {
		entry = &rateLimitEntry{resetAt: now.Add(rl.config.Window)}
		rl.entries[key] = entry
	}
	entry.count++
	return entry.count, entry.resetAt
}

// UploadRemainingHeader tells clients how many uploads are left in the window.
const UploadRemainingHeader = "X-Upload-Remaining"

// UploadRateLimit guards the scan submission endpoint with the sliding-window
// upload limiter. It fails open when Redis is unavailable.
func UploadRateLimit(limiter *security.UploadLimiter, audit *security.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Enabled() {
			c.Next()
			return
		}

		decision, err := limiter.AllowUpload(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Log.Warn("Upload rate limit check failed", "error", err)
		}
		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(decision.RetryAfter))
			audit.LogRateLimitTriggered(c.Request.Context(), c.ClientIP(), c.GetString("RequestID"), c.FullPath())
			response.Error(c, http.StatusTooManyRequests, "Too many uploads. Please try again later.", nil)
			c.Abort()
			return
		}
		if decision.Remaining >= 0 {
			c.Header(UploadRemainingHeader, strconv.Itoa(decision.Remaining))
		}

		c.Next()
	}
}

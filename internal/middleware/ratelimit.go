package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/storefront/internal/config"
)

// tokenBucket keeps {tokens, ts} in one hash per key. Tokens refill
// continuously at ARGV[2] per ARGV[3] milliseconds up to ARGV[1]; the clock
// is the Redis server's, so every API instance sees the same time.
// Returns {allowed, tokens left, retry after ms}.
var tokenBucket = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local ts = tonumber(redis.call('HGET', KEYS[1], 'ts'))
if tokens == nil or ts == nil then
	tokens, ts = capacity, now
end

local rate = refill / interval
tokens = math.min(capacity, tokens + math.max(0, now - ts) * rate)

local allowed, wait = 0, 0
if tokens >= 1 then
	allowed = 1
	tokens = tokens - 1
else
	wait = math.ceil((1 - tokens) / rate)
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', now)
redis.call('PEXPIRE', KEYS[1], ttl)
return {allowed, math.floor(tokens), wait}
`)

func bucketArgs(cfg config.RateLimitConfig) []interface{} {
	return []interface{}{cfg.Capacity, cfg.RefillTokens, cfg.RefillInterval.Milliseconds(), cfg.TTL.Milliseconds()}
}

// NewTokenBucket throttles the contended writes (sell, buy-ticket). With the
// default "entity" strategy each caller gets one bucket per product or
// raffle, so a burst against one item does not lock the caller out of the
// others; "caller" shares one bucket across all of them. Redis failures let
// the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, l log.FieldLogger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	args := bucketArgs(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			res, err := tokenBucket.Run(c.Request().Context(), rdb, []string{key}, args...).Int64Slice()
			if err != nil || len(res) != 3 {
				l.WithError(err).WithField("key", key).Warn("rate limit check failed")
				return next(c)
			}
			allowed, left, waitMs := res[0] == 1, res[1], res[2]

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(left, 10))
			if allowed {
				return next(c)
			}

			secs := (waitMs + 999) / 1000
			h.Set("Retry-After", strconv.FormatInt(secs, 10))
			if cfg.Debug {
				l.WithFields(log.Fields{"key": key, "retry_ms": waitMs}).Info("rate limited")
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":      "Too many requests, please retry later",
				"code":       "rate_limited",
				"retryAfter": secs,
			})
		}
	}
}

// rateKey is prefix:route:caller[:entity]. The caller is the bearer subject
// when Identity found one, the client IP otherwise.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	caller := "ip:" + c.RealIP()
	if uid, ok := c.Get(UserIDKey).(string); ok && uid != "" {
		caller = "user:" + uid
	}
	parts := []string{cfg.Prefix, c.Request().Method + " " + c.Path(), caller}
	if cfg.KeyStrategy != config.RateKeyCaller {
		if id := c.Param("id"); id != "" {
			parts = append(parts, "id:"+id)
		}
	}
	return strings.Join(parts, ":")
}

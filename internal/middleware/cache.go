package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/storefront/internal/config"
)

// cachedResponse is what a cache entry holds. Only the status, the content
// type and the body are kept; every other header belongs to the request that
// produced the entry (CORS, request id) and is set again by the live chain.
type cachedResponse struct {
	Status      int    `json:"s"`
	ContentType string `json:"ct"`
	Body        []byte `json:"b"`
}

// bodyRecorder tees the response body into a bounded buffer.
type bodyRecorder struct {
	http.ResponseWriter
	status    int
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (r *bodyRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	if !r.truncated {
		if r.limit > 0 && r.buf.Len()+len(b) > r.limit {
			r.truncated = true
			r.buf.Reset()
		} else {
			r.buf.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}

// generationKey holds a counter bumped by every successful write. Entry keys
// embed the generation they were read under, so an entry stored by a read
// that raced a write lands in a generation nobody looks up again.
func generationKey(prefix string) string { return prefix + ":gen" }

func cacheKey(cfg config.CacheConfig, gen int64, method, route, query string) string {
	parts := []string{method, route}
	if !strings.EqualFold(cfg.KeyStrategy, "route") {
		parts = append(parts, query)
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "\n")))
	return fmt.Sprintf("%s:g%d:%x", cfg.Prefix, gen, sum[:])
}

// NewRedisCache serves cacheable requests (GET by default) from Redis. Any
// other request that succeeds moves the cache to a new generation, so a sale
// or a new raffle is visible on the next list call. Redis failures turn the
// middleware into a pass-through for that request.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, l log.FieldLogger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	genKey := generationKey(cfg.Prefix)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !cfg.Cacheable(req.Method) {
				err := next(c)
				if status := c.Response().Status; err == nil && status >= 200 && status < 300 {
					// outlive the request: a cancelled client must still invalidate
					if ierr := rdb.Incr(context.WithoutCancel(req.Context()), genKey).Err(); ierr != nil {
						l.WithError(ierr).Warn("cache invalidation failed")
					}
				}
				return err
			}

			ctx := req.Context()
			gen, err := rdb.Get(ctx, genKey).Int64()
			if err != nil && err != redis.Nil {
				l.WithError(err).Debug("cache generation unavailable")
				return next(c)
			}
			key := cacheKey(cfg, gen, req.Method, c.Path(), req.URL.RawQuery)

			if raw, err := rdb.Get(ctx, key).Bytes(); err == nil {
				var hit cachedResponse
				if json.Unmarshal(raw, &hit) == nil {
					c.Response().Header().Set("X-Cache", "HIT")
					return c.Blob(hit.Status, hit.ContentType, hit.Body)
				}
			}

			rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || rec.truncated {
				return nil
			}

			entry, err := json.Marshal(cachedResponse{
				Status:      rec.status,
				ContentType: c.Response().Header().Get(echo.HeaderContentType),
				Body:        rec.buf.Bytes(),
			})
			if err == nil {
				err = rdb.SetEx(context.WithoutCancel(ctx), key, entry, cfg.TTL).Err()
			}
			if err != nil {
				l.WithError(err).WithField("key", key).Debug("cache store failed")
			}
			return nil
		}
	}
}

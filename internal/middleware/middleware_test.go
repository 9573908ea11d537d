package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/logger"
)

const genKey = "test:cache:gen"

func cacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:      true,
		Methods:      []string{"GET"},
		TTL:          time.Minute,
		KeyStrategy:  "route_query",
		Prefix:       "test:cache",
		MaxBodyBytes: 1 << 20,
	}
}

func newEcho(mws ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.Use(mws...)
	e.GET("/api/products", func(c echo.Context) error {
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, []byte(`["fresh"]`))
	})
	e.POST("/api/products", func(c echo.Context) error {
		return c.JSON(http.StatusCreated, echo.Map{"id": "p1"})
	})
	e.POST("/api/products/:id/sell", func(c echo.Context) error {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Insufficient inventory"})
	})
	return e
}

func serve(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func entry(t *testing.T, body string) []byte {
	t.Helper()
	bs, err := json.Marshal(cachedResponse{Status: http.StatusOK, ContentType: echo.MIMEApplicationJSON, Body: []byte(body)})
	require.NoError(t, err)
	return bs
}

func TestCacheDisabledPassesThrough(t *testing.T) {
	cfg := cacheConfig()
	cfg.Enabled = false
	e := newEcho(NewRedisCache(cfg, nil, logger.Discard()))

	rec := serve(e, http.MethodGet, "/api/products")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestCacheKey(t *testing.T) {
	cfg := cacheConfig()
	a := cacheKey(cfg, 0, "GET", "/api/products", "")
	assert.NotEqual(t, a, cacheKey(cfg, 0, "GET", "/api/products", "page=2"))
	assert.NotEqual(t, a, cacheKey(cfg, 1, "GET", "/api/products", ""), "generation is part of the key")
	assert.Regexp(t, `^test:cache:g0:[0-9a-f]{40}$`, a)

	cfg.KeyStrategy = "route"
	assert.Equal(t, cacheKey(cfg, 2, "GET", "/api/raffles", "x=1"), cacheKey(cfg, 2, "GET", "/api/raffles", ""))
}

func TestCacheHitKeepsLiveHeaders(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cfg := cacheConfig()
	e := newEcho(echomw.RequestID(), echomw.CORS(), NewRedisCache(cfg, db, logger.Discard()))

	mock.ExpectGet(genKey).SetVal("3")
	mock.ExpectGet(cacheKey(cfg, 3, "GET", "/api/products", "")).SetVal(string(entry(t, `["cached"]`)))

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set(echo.HeaderOrigin, "http://localhost:5173")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `["cached"]`, rec.Body.String())
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, echo.MIMEApplicationJSON, rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, []string{"*"}, rec.Header().Values(echo.HeaderAccessControlAllowOrigin))
	assert.Len(t, rec.Header().Values(echo.HeaderVary), 1)
	assert.Len(t, rec.Header().Values(echo.HeaderXRequestID), 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheMissStoresBodyAndContentType(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cfg := cacheConfig()
	e := newEcho(echomw.CORS(), NewRedisCache(cfg, db, logger.Discard()))

	key := cacheKey(cfg, 0, "GET", "/api/products", "")
	mock.ExpectGet(genKey).RedisNil()
	mock.ExpectGet(key).RedisNil()
	mock.ExpectSetEx(key, entry(t, `["fresh"]`), time.Minute).SetVal("OK")

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set(echo.HeaderOrigin, "http://localhost:5173")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, `["fresh"]`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLateStoreLandsInOldGeneration(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cfg := cacheConfig()

	e := echo.New()
	e.Use(NewRedisCache(cfg, db, logger.Discard()))
	e.POST("/api/products/:id/sell", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"inventory": 4})
	})
	reads := 0
	e.GET("/api/products", func(c echo.Context) error {
		reads++
		if reads == 1 {
			// a sale commits while this read is still in flight
			serve(e, http.MethodPost, "/api/products/p1/sell")
			return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, []byte(`[{"inventory":5}]`))
		}
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, []byte(`[{"inventory":4}]`))
	})

	old := cacheKey(cfg, 0, "GET", "/api/products", "")
	fresh := cacheKey(cfg, 1, "GET", "/api/products", "")
	mock.ExpectGet(genKey).RedisNil()
	mock.ExpectGet(old).RedisNil()
	mock.ExpectIncr(genKey).SetVal(1)
	mock.ExpectSetEx(old, entry(t, `[{"inventory":5}]`), time.Minute).SetVal("OK")
	mock.ExpectGet(genKey).SetVal("1")
	mock.ExpectGet(fresh).RedisNil()
	mock.ExpectSetEx(fresh, entry(t, `[{"inventory":4}]`), time.Minute).SetVal("OK")

	assert.JSONEq(t, `[{"inventory":5}]`, serve(e, http.MethodGet, "/api/products").Body.String())
	rec := serve(e, http.MethodGet, "/api/products")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `[{"inventory":4}]`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuccessfulWriteBumpsGeneration(t *testing.T) {
	db, mock := redismock.NewClientMock()
	e := newEcho(NewRedisCache(cacheConfig(), db, logger.Discard()))

	mock.ExpectIncr(genKey).SetVal(8)

	rec := serve(e, http.MethodPost, "/api/products")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectedWriteKeepsCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	e := newEcho(NewRedisCache(cacheConfig(), db, logger.Discard()))

	rec := serve(e, http.MethodPost, "/api/products/p1/sell")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOversizedBodyIsNotStored(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cfg := cacheConfig()
	cfg.MaxBodyBytes = 4
	e := newEcho(NewRedisCache(cfg, db, logger.Discard()))

	mock.ExpectGet(genKey).RedisNil()
	mock.ExpectGet(cacheKey(cfg, 0, "GET", "/api/products", "")).RedisNil()

	rec := serve(e, http.MethodGet, "/api/products")
	assert.Equal(t, `["fresh"]`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/raffles/r1/buy-ticket", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/raffles/:id/buy-ticket")
	c.SetParamNames("id")
	c.SetParamValues("r1")

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: config.RateKeyEntity}
	assert.Equal(t, "rl:POST /api/raffles/:id/buy-ticket:ip:10.0.0.1:id:r1", rateKey(cfg, c))

	c.Set(UserIDKey, "u-42")
	cfg.KeyStrategy = config.RateKeyCaller
	assert.Equal(t, "rl:POST /api/raffles/:id/buy-ticket:user:u-42", rateKey(cfg, c))
}

func rateConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Second,
		TTL: time.Minute, KeyStrategy: config.RateKeyEntity, Prefix: "rl",
	}
}

func TestTokenBucketFailsOpen(t *testing.T) {
	db, _ := redismock.NewClientMock() // no expectations: every command errors
	e := newEcho(NewTokenBucket(rateConfig(), db, logger.Discard()))

	rec := serve(e, http.MethodGet, "/api/products")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenBucketAllowsThenRejects(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cfg := rateConfig()
	e := newEcho(NewTokenBucket(cfg, db, logger.Discard()))

	key := []string{"rl:POST /api/products:ip:192.0.2.1"}
	mock.ExpectEvalSha(tokenBucket.Hash(), key, bucketArgs(cfg)...).SetVal([]interface{}{int64(1), int64(1), int64(0)})
	mock.ExpectEvalSha(tokenBucket.Hash(), key, bucketArgs(cfg)...).SetVal([]interface{}{int64(0), int64(0), int64(1500)})

	rec := serve(e, http.MethodPost, "/api/products")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	rec = serve(e, http.MethodPost, "/api/products")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"code":"rate_limited"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentity(t *testing.T) {
	const secret = "s3cret"
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u-7",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	var seen any
	e := echo.New()
	e.Use(Identity(secret))
	e.GET("/", func(c echo.Context) error {
		seen = c.Get(UserIDKey)
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	e.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "u-7", seen)

	seen = nil
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Nil(t, seen)
	assert.Equal(t, http.StatusNoContent, rec.Code, "bad tokens are anonymous, not rejected")
}

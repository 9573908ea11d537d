package router_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/database/dbtest"
	"github.com/iliyamo/storefront/internal/handler"
	"github.com/iliyamo/storefront/internal/logger"
	"github.com/iliyamo/storefront/internal/router"
	"github.com/iliyamo/storefront/internal/service"
)

const origin = "https://shop.example"

func newRouter(t *testing.T, cfg config.Config, rdb *redis.Client) *echo.Echo {
	t.Helper()
	svc := service.New(dbtest.New(t))
	return router.New(router.Deps{
		Config:  cfg,
		Handler: handler.New(svc, logger.Discard()),
		Redis:   rdb,
		Log:     logger.Discard(),
	})
}

func send(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderOrigin, origin)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func createdID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.ID)
	return out.ID
}

func TestRoutes(t *testing.T) {
	e := newRouter(t, config.Config{RequestTimeout: 5 * time.Second}, nil)

	product := createdID(t, send(e, http.MethodPost, "/api/products", `{"name":"Lamp","price":10,"inventory":3}`))
	raffle := createdID(t, send(e, http.MethodPost, "/api/raffles", `{"name":"Bike","totalTickets":2,"ticketPrice":5}`))

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/api/products", "", http.StatusOK},
		{http.MethodPost, "/api/products", `{"name":"Desk","price":99.5,"inventory":1}`, http.StatusCreated},
		{http.MethodPost, "/api/products/" + product + "/sell", `{"quantity":2}`, http.StatusOK},
		{http.MethodGet, "/api/raffles", "", http.StatusOK},
		{http.MethodPost, "/api/raffles", `{"name":"Kayak","totalTickets":10,"ticketPrice":2}`, http.StatusCreated},
		{http.MethodPost, "/api/raffles/" + raffle + "/buy-ticket", `{"buyerName":"Ana"}`, http.StatusOK},
		{http.MethodGet, "/api/stats/sales", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodPost, "/api/products/missing/sell", `{"quantity":1}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := send(e, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())

			h := rec.Header()
			assert.Equal(t, []string{"*"}, h.Values(echo.HeaderAccessControlAllowOrigin))
			assert.Len(t, h.Values(echo.HeaderXRequestID), 1)
		})
	}
}

func TestRateLimitOnlyGuardsContendedWrites(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cfg := config.Config{
		RequestTimeout: 5 * time.Second,
		RateLimit: config.RateLimitConfig{
			Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second,
			TTL: time.Minute, KeyStrategy: config.RateKeyEntity, Prefix: "rl",
		},
	}
	e := newRouter(t, cfg, rdb)

	// creates and reads never reach Redis
	product := createdID(t, send(e, http.MethodPost, "/api/products", `{"name":"Lamp","price":10,"inventory":3}`))
	assert.Equal(t, http.StatusOK, send(e, http.MethodGet, "/api/products", "").Code)

	// evalsha <sha> 1 <key> <args...>; only the bucket key matters here
	key := "rl:POST /api/products/:id/sell:ip:192.0.2.1:id:" + product
	mock.CustomMatch(func(expected, actual []interface{}) error {
		if actual[3] != expected[3] {
			return errors.Errorf("bucket key %v, want %v", actual[3], expected[3])
		}
		return nil
	}).ExpectEvalSha("", []string{key}, 1, 1, 1000, 60000).SetVal([]interface{}{int64(0), int64(0), int64(900)})

	rec := send(e, http.MethodPost, "/api/products/"+product+"/sell", `{"quantity":1}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"*"}, rec.Header().Values(echo.HeaderAccessControlAllowOrigin))
	assert.NoError(t, mock.ExpectationsWereMet())
}

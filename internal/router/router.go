package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/handler"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/middleware"
)

// Deps is everything RegisterRoutes wires together. Redis may be nil, which
// turns the cache and the rate limiter into pass-throughs.
type Deps struct {
	Config  config.Config
	Handler *handler.Handler
	Redis   *redis.Client
	Log     log.FieldLogger
}

// New builds the Echo instance with the global middleware chain and all
// routes.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORS())
	if d.Config.RequestTimeout > 0 {
		e.Use(echomw.ContextTimeout(d.Config.RequestTimeout))
	}

	RegisterRoutes(e, d)
	return e
}

// RegisterRoutes maps the storefront API onto e.
func RegisterRoutes(e *echo.Echo, d Deps) {
	h := d.Handler

	// liveness for load balancers and the client
	e.GET("/health", h.Health)
	e.GET("/metrics", metrics.Handler())

	api := e.Group("/api")
	api.Use(middleware.Identity(d.Config.JWTSecret))
	api.Use(middleware.NewRedisCache(d.Config.Cache, d.Redis, d.Log))

	// sell and buy are the contended writes; only they are rate limited
	limited := middleware.NewTokenBucket(d.Config.RateLimit, d.Redis, d.Log)

	api.GET("/products", h.ListProducts)
	api.POST("/products", h.CreateProduct)
	api.POST("/products/:id/sell", h.SellProduct, limited)

	api.GET("/raffles", h.ListRaffles)
	api.POST("/raffles", h.CreateRaffle)
	api.POST("/raffles/:id/buy-ticket", h.BuyTicket, limited)

	api.GET("/stats/sales", h.SalesStats)
}

// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Sales = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_sales_total",
		Help: "Completed product sales",
	})

	UnitsSold = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_units_sold_total",
		Help: "Product units sold",
	})

	Revenue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_revenue_total",
		Help: "Sum of sale totals in currency units",
	})

	Tickets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_tickets_sold_total",
		Help: "Raffle tickets sold",
	})

	Rejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_rejections_total",
			Help: "Sell and buy attempts refused by a business rule",
		},
		[]string{"operation", "reason"},
	)

	TxRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_tx_retries_total",
			Help: "Transactions re-run after a lock conflict",
		},
		[]string{"operation"},
	)

	StoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_store_failures_total",
			Help: "Operations that failed on the store",
		},
		[]string{"operation"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Middleware records request latency labelled by the matched route pattern.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			requestDuration.
				WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the default registry.
func Handler() echo.HandlerFunc { return echo.WrapHandler(promhttp.Handler()) }

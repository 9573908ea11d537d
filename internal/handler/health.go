package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Health is the liveness endpoint used by load balancers and the client. It
// answers 200 while the store responds to a ping and 503 otherwise.
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.log.WithError(err).Warn("health check: store unreachable")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "ERROR", "message": "Database unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "OK", "message": "Server is running!"})
}

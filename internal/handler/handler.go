package handler // package handler holds the HTTP handlers of the storefront API

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/service"
)

// Storefront is the set of operations the handlers call.
type Storefront interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	CreateProduct(ctx context.Context, in model.NewProduct) (*model.Product, error)
	SellProduct(ctx context.Context, productID string, quantity int) (*model.SaleResult, error)
	ListActiveRaffles(ctx context.Context) ([]model.Raffle, error)
	CreateRaffle(ctx context.Context, in model.NewRaffle) (*model.Raffle, error)
	BuyTicket(ctx context.Context, raffleID string, buyer model.Buyer) (*model.TicketResult, error)
	SalesStats(ctx context.Context) (*model.SalesStats, error)
	Ping(ctx context.Context) error
}

// Handler serves the /api routes and /health. It holds no state of its own;
// every request goes straight to the Storefront.
type Handler struct {
	store Storefront
	log   log.FieldLogger
}

// New returns a Handler backed by store.
func New(store Storefront, l log.FieldLogger) *Handler {
	if store == nil {
		panic("nil storefront passed to handler.New")
	}
	return &Handler{store: store, log: l}
}

// decodeBody reads a JSON object into dst. An empty body leaves dst
// untouched so optional fields keep their defaults.
func decodeBody(c echo.Context, dst any) error {
	dec := json.NewDecoder(c.Request().Body)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &service.ValidationError{Field: "body", Message: "invalid request body: " + describeJSONError(err)}
	}
	return nil
}

func describeJSONError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return typeErr.Field + " has the wrong type"
	}
	return err.Error()
}

// fail maps service errors onto status codes. Store failures only expose
// their generic message; the cause was logged by the service.
func (h *Handler) fail(c echo.Context, err error) error {
	var (
		ve *service.ValidationError
		se *service.StoreError
	)
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Message, "code": "validation_error", "field": ve.Field})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error(), "code": "not_found"})
	case errors.Is(err, service.ErrInsufficientInventory):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error(), "code": "insufficient_inventory"})
	case errors.Is(err, service.ErrSoldOut):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error(), "code": "sold_out"})
	case errors.Is(err, service.ErrRaffleInactive):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error(), "code": "raffle_inactive"})
	case errors.As(err, &se):
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": se.Message, "code": "store_error"})
	default:
		h.log.WithError(err).WithField("path", c.Path()).Error("unhandled error")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error", "code": "internal_error"})
	}
}

package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/model"
)

// ListRaffles handles GET /api/raffles; only active raffles are listed.
func (h *Handler) ListRaffles(c echo.Context) error {
	raffles, err := h.store.ListActiveRaffles(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, raffles)
}

// CreateRaffle handles POST /api/raffles.
func (h *Handler) CreateRaffle(c echo.Context) error {
	var in model.NewRaffle
	if err := decodeBody(c, &in); err != nil {
		return h.fail(c, err)
	}
	r, err := h.store.CreateRaffle(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

type ticketResponse struct {
	model.TicketResult
	Message string `json:"message"`
}

// BuyTicket handles POST /api/raffles/:id/buy-ticket. Buyer name and email
// are optional.
func (h *Handler) BuyTicket(c echo.Context) error {
	var buyer model.Buyer
	if err := decodeBody(c, &buyer); err != nil {
		return h.fail(c, err)
	}
	res, err := h.store.BuyTicket(c.Request().Context(), c.Param("id"), buyer)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ticketResponse{
		TicketResult: *res,
		Message:      fmt.Sprintf("Ticket #%d purchased successfully!", res.Ticket.TicketNumber),
	})
}

package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/model"
)

// ListProducts handles GET /api/products.
func (h *Handler) ListProducts(c echo.Context) error {
	products, err := h.store.ListProducts(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, products)
}

// CreateProduct handles POST /api/products and answers 201 with the product.
func (h *Handler) CreateProduct(c echo.Context) error {
	var in model.NewProduct
	if err := decodeBody(c, &in); err != nil {
		return h.fail(c, err)
	}
	p, err := h.store.CreateProduct(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

type sellRequest struct {
	Quantity *int `json:"quantity"`
}

type sellResponse struct {
	model.SaleResult
	Message string `json:"message"`
}

// SellProduct handles POST /api/products/:id/sell. The quantity defaults to
// one when the body omits it.
func (h *Handler) SellProduct(c echo.Context) error {
	req := sellRequest{}
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, err)
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	res, err := h.store.SellProduct(c.Request().Context(), c.Param("id"), qty)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, sellResponse{
		SaleResult: *res,
		Message:    fmt.Sprintf("Sale completed! %d unit(s) sold for $%s", res.Sale.Quantity, res.Sale.Total),
	})
}

// SalesStats handles GET /api/stats/sales.
func (h *Handler) SalesStats(c echo.Context) error {
	stats, err := h.store.SalesStats(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

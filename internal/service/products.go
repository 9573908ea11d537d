package service

import (
	"context"
	"math"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/repository"
)

// RecentSalesLimit is how many sales SalesStats returns.
const RecentSalesLimit = 10

const (
	maxNameLen = 255
	// counters are INT columns on MySQL
	maxCount = math.MaxInt32
)

// CreateProduct validates and stores a new product. Two identical calls
// create two products.
func (s *Storefront) CreateProduct(ctx context.Context, in model.NewProduct) (*model.Product, error) {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return nil, invalid("name", "name is required")
	case len(name) > maxNameLen:
		return nil, invalid("name", "name must be at most %d characters", maxNameLen)
	case in.Price == nil:
		return nil, invalid("price", "price is required")
	case *in.Price < 0:
		return nil, invalid("price", "price must not be negative")
	case in.Inventory == nil:
		return nil, invalid("inventory", "inventory is required")
	case *in.Inventory < 0:
		return nil, invalid("inventory", "inventory must not be negative")
	case *in.Inventory > maxCount:
		return nil, invalid("inventory", "inventory must be at most %d", maxCount)
	}

	now := s.clock()
	p := &model.Product{
		ID:          s.newID(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Price:       *in.Price,
		Inventory:   *in.Inventory,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, s.fail("create_product", "Error creating product", err, log.Fields{"name": name})
	}
	s.log.WithFields(log.Fields{"product_id": p.ID, "inventory": p.Inventory}).Info("product created")
	return p, nil
}

// ListProducts returns every product, most recently created first.
func (s *Storefront) ListProducts(ctx context.Context) ([]model.Product, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, s.fail("list_products", "Error fetching products", err, nil)
	}
	return products, nil
}

// SellProduct sells quantity units of a product. The inventory decrement and
// the sale row commit together or not at all; concurrent sells of the same
// product queue on its row so stock never goes negative.
func (s *Storefront) SellProduct(ctx context.Context, productID string, quantity int) (*model.SaleResult, error) {
	if quantity < 1 || quantity > maxCount {
		return nil, invalid("quantity", "quantity must be between 1 and %d", maxCount)
	}

	var res model.SaleResult
	err := s.withRetry(ctx, "sell_product", func() error {
		return s.inTx(ctx, func(tx *sqlx.Tx) error {
			now := s.clock()
			ok, err := s.products.DecrementInventoryTx(ctx, tx, productID, quantity, now)
			if err != nil {
				return err
			}
			p, err := s.products.GetTx(ctx, tx, productID)
			if errors.Is(err, repository.ErrNotFound) {
				return &NotFoundError{Entity: "Product", ID: productID}
			}
			if err != nil {
				return err
			}
			if !ok {
				return ErrInsufficientInventory
			}

			total, err := p.Price.Times(quantity)
			if err != nil {
				return invalid("quantity", "sale total is out of range")
			}
			sale := model.Sale{
				ID:        s.newID(),
				ProductID: p.ID,
				Quantity:  quantity,
				Total:     total,
				CreatedAt: now,
			}
			if err := s.sales.CreateTx(ctx, tx, &sale); err != nil {
				return err
			}
			res = model.SaleResult{Sale: sale, Product: *p}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientInventory) {
			metrics.Rejections.WithLabelValues("sell_product", "insufficient_inventory").Inc()
		}
		return nil, s.fail("sell_product", "Error processing sale", err, log.Fields{"product_id": productID, "quantity": quantity})
	}

	s.afterSale(ctx, &res)
	return &res, nil
}

func (s *Storefront) afterSale(ctx context.Context, res *model.SaleResult) {
	metrics.Sales.Inc()
	metrics.UnitsSold.Add(float64(res.Sale.Quantity))
	metrics.Revenue.Add(res.Sale.Total.Decimal().InexactFloat64())

	entry := s.log.WithFields(log.Fields{
		"sale_id":    res.Sale.ID,
		"product_id": res.Product.ID,
		"quantity":   res.Sale.Quantity,
		"total":      res.Sale.Total.String(),
		"inventory":  res.Product.Inventory,
	})
	entry.Info("sale completed")

	if s.events == nil && s.notifier == nil {
		return
	}
	ctx, cancel := detached(ctx)
	defer cancel()
	if s.events != nil {
		if err := s.events.PublishSaleCompleted(ctx, queue.NewSaleCompletedEvent(res.Sale, res.Product)); err != nil {
			entry.WithError(err).Warn("publish sale event failed")
		}
	}
	if s.notifier != nil {
		if err := s.notifier.ProductUpdated(ctx, res.Product); err != nil {
			entry.WithError(err).Warn("realtime product update failed")
		}
	}
}

// SalesStats returns the latest sales with their products and the revenue of
// all sales ever made.
func (s *Storefront) SalesStats(ctx context.Context) (*model.SalesStats, error) {
	recent, err := s.sales.ListRecent(ctx, RecentSalesLimit)
	if err != nil {
		return nil, s.fail("sales_stats", "Error fetching sales stats", err, nil)
	}
	total, err := s.sales.TotalRevenue(ctx)
	if err != nil {
		return nil, s.fail("sales_stats", "Error fetching sales stats", err, nil)
	}
	return &model.SalesStats{RecentSales: recent, TotalRevenue: total}, nil
}

package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/iliyamo/storefront/internal/model"
)

// SaleRepo provides access to the sales table.
type SaleRepo struct {
	db *sqlx.DB
}

// NewSaleRepo returns a SaleRepo bound to db.
func NewSaleRepo(db *sqlx.DB) *SaleRepo { return &SaleRepo{db: db} }

// CreateTx inserts a sale inside tx.
func (r *SaleRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, s *model.Sale) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO sales (id, product_id, quantity, total_cents, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.ProductID, s.Quantity, s.Total, s.CreatedAt,
	)
	return errors.Wrap(err, "insert sale")
}

// recentSaleRow maps the joined sale + product columns; product columns are
// aliased with a "product." prefix.
type recentSaleRow struct {
	model.Sale
	P model.Product `db:"product"`
}

// ListRecent returns the newest sales, each with its product.
func (r *SaleRepo) ListRecent(ctx context.Context, limit int) ([]model.Sale, error) {
	var rows []recentSaleRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT s.id, s.product_id, s.quantity, s.total_cents, s.created_at,
		       p.id          AS `+"`product.id`"+`,
		       p.name        AS `+"`product.name`"+`,
		       p.description AS `+"`product.description`"+`,
		       p.price_cents AS `+"`product.price_cents`"+`,
		       p.inventory   AS `+"`product.inventory`"+`,
		       p.created_at  AS `+"`product.created_at`"+`,
		       p.updated_at  AS `+"`product.updated_at`"+`
		FROM sales s
		JOIN products p ON p.id = s.product_id
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list recent sales")
	}

	sales := make([]model.Sale, 0, len(rows))
	for i := range rows {
		s := rows[i].Sale
		p := rows[i].P
		s.Product = &p
		sales = append(sales, s)
	}
	return sales, nil
}

// TotalRevenue sums every sale total; zero when there are no sales.
func (r *SaleRepo) TotalRevenue(ctx context.Context) (model.Money, error) {
	var total model.Money
	err := r.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(total_cents), 0) FROM sales`)
	return total, errors.Wrap(err, "sum revenue")
}

// DeleteAllTx removes every sale.
func (r *SaleRepo) DeleteAllTx(ctx context.Context, tx *sqlx.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM sales`)
	return errors.Wrap(err, "delete sales")
}

package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/iliyamo/storefront/internal/model"
)

const productColumns = `id, name, description, price_cents, inventory, created_at, updated_at`

// ProductRepo provides access to the products table.
type ProductRepo struct {
	db *sqlx.DB
}

// NewProductRepo returns a ProductRepo bound to db.
func NewProductRepo(db *sqlx.DB) *ProductRepo { return &ProductRepo{db: db} }

// Create inserts a new product row. The caller assigns the id and timestamps.
func (r *ProductRepo) Create(ctx context.Context, p *model.Product) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Price, p.Inventory, p.CreatedAt, p.UpdatedAt,
	)
	return errors.Wrap(err, "insert product")
}

// List returns every product, newest first.
func (r *ProductRepo) List(ctx context.Context) ([]model.Product, error) {
	products := []model.Product{}
	err := r.db.SelectContext(ctx, &products,
		`SELECT `+productColumns+` FROM products ORDER BY created_at DESC, id DESC`)
	return products, errors.Wrap(err, "list products")
}

// GetTx loads one product inside tx or returns ErrNotFound.
func (r *ProductRepo) GetTx(ctx context.Context, tx *sqlx.Tx, id string) (*model.Product, error) {
	var p model.Product
	err := tx.GetContext(ctx, &p, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(errors.Wrap(err, "get product"))
	}
	return &p, nil
}

// DecrementInventoryTx removes qty units from the product's stock when at
// least qty are available. It reports false when the guard did not match,
// which means the product is missing or short on stock; the caller tells the
// two apart with GetTx. The row stays locked until tx ends.
func (r *ProductRepo) DecrementInventoryTx(ctx context.Context, tx *sqlx.Tx, id string, qty int, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE products SET inventory = inventory - ?, updated_at = ? WHERE id = ? AND inventory >= ?`,
		qty, now, id, qty,
	)
	if err != nil {
		return false, errors.Wrap(err, "decrement inventory")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "decrement inventory rows")
	}
	return n == 1, nil
}

// DeleteAllTx removes every product. Sales must be deleted first.
func (r *ProductRepo) DeleteAllTx(ctx context.Context, tx *sqlx.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM products`)
	return errors.Wrap(err, "delete products")
}

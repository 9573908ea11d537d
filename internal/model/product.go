package model

import "time"

// Product is a sellable item with a stock counter.
type Product struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Price       Money     `db:"price_cents" json:"price"`
	Inventory   int       `db:"inventory" json:"inventory"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// Sale records one successful sell. Total is price times quantity at the
// moment of the sale and never changes afterwards.
type Sale struct {
	ID        string    `db:"id" json:"id"`
	ProductID string    `db:"product_id" json:"productId"`
	Quantity  int       `db:"quantity" json:"quantity"`
	Total     Money     `db:"total_cents" json:"total"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`

	Product *Product `db:"-" json:"product,omitempty"`
}

// NewProduct is the input for creating a product.
type NewProduct struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       *Money `json:"price"`
	Inventory   *int   `json:"inventory"`
}

// SaleResult is returned by a completed sell: the new sale and the product
// with its decremented inventory.
type SaleResult struct {
	Sale    Sale    `json:"sale"`
	Product Product `json:"product"`
}

// SalesStats summarises recent activity for the POS dashboard.
type SalesStats struct {
	RecentSales  []Sale `json:"recentSales"`
	TotalRevenue Money  `json:"totalRevenue"`
}

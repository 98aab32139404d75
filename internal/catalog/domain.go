package catalog

import (
	"errors"
	"time"
)

// Product is a catalog entry. StockOnHand is nil for untracked products:
// the reservation ledger treats those as always available.
type Product struct {
	ID          int64
	Name        string
	SKU         string
	Price       float64
	StockOnHand *float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ListFilter narrows product listings.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

// ErrNotFound indicates a missing product row.
var ErrNotFound = errors.New("catalog: product not found")

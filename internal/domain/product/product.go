package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

var hundred = decimal.NewFromInt(100)

// Product represents a catalog item available for purchase.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	// Stock is the number of units available. Never negative.
	Stock int
	// DiscountPercent is the product-level discount in [0,100], always applied.
	DiscountPercent decimal.Decimal
}

// UnitPrice returns the price of one unit after the product-level discount.
// The result is not rounded.
func (p Product) UnitPrice() decimal.Decimal {
	return p.Price.Mul(hundred.Sub(p.DiscountPercent)).Div(hundred)
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	// DefaultImageURL returns the url of the product's default image, or an
	// empty string when the product has none.
	DefaultImageURL(ctx context.Context, id int64) (string, error)
}

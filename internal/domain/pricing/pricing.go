// Package pricing computes the final price of an order line from catalog and
// discount ledger state. It is pure: nothing is read or written besides its
// arguments, so callers decide when a validated claim is consumed.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/product"
)

var hundred = decimal.NewFromInt(100)

// LineInput holds everything needed to price one order line.
type LineInput struct {
	Product  product.Product
	Quantity int
	// DiscountRequested is set when the line asks for a coupon, even if the
	// id did not resolve.
	DiscountRequested bool
	// Discount is the resolved definition, nil when the id is unknown.
	Discount *discount.Discount
	// Claim is the user's unused claim on Discount, nil when there is none.
	Claim *discount.Claim
	Now   time.Time
}

// Quote is the priced line.
type Quote struct {
	// Subtotal is unit price after the product discount times quantity.
	Subtotal decimal.Decimal
	// Final is Subtotal after the coupon, unrounded.
	Final decimal.Decimal
	// Claim is the claim the line will consume, nil without a coupon.
	Claim *discount.Claim
}

// Line prices a single order line. Coupon checks run in a fixed order:
// existence, validity window, collection, minimum order value.
func Line(in LineInput) (Quote, error) {
	subtotal := in.Product.UnitPrice().Mul(decimal.NewFromInt(int64(in.Quantity)))
	q := Quote{Subtotal: subtotal, Final: subtotal}
	if !in.DiscountRequested {
		return q, nil
	}

	d := in.Discount
	if d == nil {
		return Quote{}, discount.ErrNotFound
	}
	if !d.IsActive(in.Now) {
		return Quote{}, discount.ErrInactive
	}
	if in.Claim == nil || in.Claim.Used || in.Claim.DiscountID != d.ID {
		return Quote{}, discount.ErrNotCollected
	}
	if d.MinimumOrderValue != nil && subtotal.LessThan(*d.MinimumOrderValue) {
		return Quote{}, discount.ErrBelowMinimum
	}

	q.Final = subtotal.Mul(hundred.Sub(d.Percent)).Div(hundred)
	q.Claim = in.Claim
	return q, nil
}

// Round converts an unrounded amount to its stored two-decimal form.
func Round(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a discount id does not resolve.
	ErrNotFound = errors.New("discount not found")
	// ErrInactive is returned when a discount is outside its release/expiration window.
	ErrInactive = errors.New("discount is not active")
	// ErrNotCollected is returned when the user has no unused claim on the discount.
	ErrNotCollected = errors.New("discount not collected or already used")
	// ErrBelowMinimum is returned when a line does not reach the discount's
	// minimum order value.
	ErrBelowMinimum = errors.New("order line does not meet minimum value for discount")
	// ErrUnavailable is returned when a discount can no longer be collected.
	ErrUnavailable = errors.New("discount is no longer available")
	// ErrAlreadyCollected is returned when the user already holds a claim on the discount.
	ErrAlreadyCollected = errors.New("discount already collected")
)

// Discount is a percent-off coupon with a validity window and an optional
// cap on the number of collecting users.
type Discount struct {
	ID             int64
	Code           string
	Percent        decimal.Decimal
	ReleaseDate    time.Time
	ExpirationDate time.Time
	// MaxUsers caps the number of claims. Nil means unlimited.
	MaxUsers *int
	// MinimumOrderValue is the smallest line value the discount applies to.
	// Nil means no minimum.
	MinimumOrderValue *decimal.Decimal
	// Collected is the number of claims issued so far.
	Collected int
}

// IsActive reports whether now lies within [ReleaseDate, ExpirationDate].
func (d *Discount) IsActive(now time.Time) bool {
	return !now.Before(d.ReleaseDate) && !now.After(d.ExpirationDate)
}

// IsValid reports whether the discount is active and still below its
// collection cap.
func (d *Discount) IsValid(now time.Time) bool {
	if !d.IsActive(now) {
		return false
	}
	return d.MaxUsers == nil || d.Collected < *d.MaxUsers
}

// Claim is a user's personal, single-use hold on a Discount.
type Claim struct {
	ID         int64
	UserID     int64
	DiscountID int64
	Used       bool
	// OrderID is the order whose line consumed the claim, when Used.
	OrderID *int64
}

// CollectedDiscount pairs an unused claim with its discount definition.
type CollectedDiscount struct {
	Claim    Claim
	Discount Discount
}

// Repository provides read access and the collection write path of the
// discount ledger.
type Repository interface {
	List(ctx context.Context, activeAt *time.Time) ([]Discount, error)
	ListUnused(ctx context.Context, userID int64) ([]CollectedDiscount, error)
	// Collect creates a claim for the user. check is called with the locked
	// discount row before the insert; a non-nil result aborts the collection.
	// Implementations return ErrNotFound and ErrAlreadyCollected.
	Collect(ctx context.Context, userID, discountID int64, check func(*Discount) error) (*Claim, error)
}

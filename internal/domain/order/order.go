package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/product"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipping   Status = "shipping"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
	StatusReturned   Status = "returned"
)

var statuses = []Status{
	StatusPending, StatusProcessing, StatusShipping,
	StatusCompleted, StatusCanceled, StatusReturned,
}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Order is a placed customer order.
type Order struct {
	ID        int64
	UserID    int64
	Total     decimal.Decimal
	Status    Status
	CreatedAt time.Time
	Items     []Item
}

// Item is one priced line of an order. Price is the final line price, after
// product and coupon discounts, rounded to two decimals.
type Item struct {
	ID         int64
	OrderID    int64
	ProductID  int64
	Quantity   int
	Price      decimal.Decimal
	DiscountID *int64
	// ClaimID references the exact user discount claim this line consumed.
	ClaimID *int64

	// Read-side enrichment, filled by listings only.
	ProductName string
	ImageURL    string
}

// Line is one requested (product, quantity, optional discount) entry.
type Line struct {
	ProductID  int64
	Quantity   int
	DiscountID *int64
}

// CreateOrderRequest holds the input for placing an order.
type CreateOrderRequest struct {
	UserID int64
	Lines  []Line
}

// Store provides transactional access to every record the order core
// mutates, plus the read-side listing.
type Store interface {
	// InTx runs fn in a single transaction. A non-nil error from fn rolls
	// back every mutation made through tx.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// List returns orders with enriched items, newest first. A nil userID
	// lists every order.
	List(ctx context.Context, userID *int64) ([]Order, error)
}

// Tx is the set of operations available inside an order transaction.
type Tx interface {
	cart.Store

	// LockProducts loads and row-locks the given products. Missing ids are
	// absent from the result.
	LockProducts(ctx context.Context, ids []int64) (map[int64]product.Product, error)
	// DecrementStock subtracts qty if at least qty units remain and reports
	// whether it did.
	DecrementStock(ctx context.Context, productID int64, qty int) (bool, error)
	RestoreStock(ctx context.Context, productID int64, qty int) error

	// GetDiscount returns the discount with its collected count, or nil.
	GetDiscount(ctx context.Context, id int64) (*discount.Discount, error)
	// LockUnusedClaim row-locks the user's unused claim on the discount, or
	// returns nil when there is none.
	LockUnusedClaim(ctx context.Context, userID, discountID int64) (*discount.Claim, error)
	// ConsumeClaim marks an unused claim as used by the order and reports
	// whether it was still unused.
	ConsumeClaim(ctx context.Context, claimID, orderID int64) (bool, error)
	// ReleaseClaims resets every claim consumed by the order.
	ReleaseClaims(ctx context.Context, orderID int64) (int, error)

	// CreateOrder inserts the order and its items, assigning IDs and CreatedAt.
	CreateOrder(ctx context.Context, o *Order) error
	// LockOrder loads and row-locks an order with its items. Returns ErrNotFound.
	LockOrder(ctx context.Context, id int64) (*Order, error)
	SetStatus(ctx context.Context, id int64, status Status) error
}

package order

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/product"
)

// Sentinel errors for order placement and lifecycle.
var (
	ErrEmptyOrder        = errors.New("no order items provided")
	ErrInvalidLine       = errors.New("invalid product_id or quantity")
	ErrInsufficientStock = errors.New("not enough stock")
	ErrNotFound          = errors.New("order not found")
	ErrNotCancelable     = errors.New("order cannot be canceled")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidTransition = errors.New("order status transition not allowed")
)

// LineError reports which request line failed and why.
type LineError struct {
	Index     int
	ProductID int64
	Err       error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("item %d (product %d): %v", e.Index, e.ProductID, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Kind names an error class of the order core.
type Kind string

const (
	KindEmptyOrder             Kind = "EmptyOrder"
	KindInvalidLine            Kind = "InvalidLine"
	KindProductNotFound        Kind = "ProductNotFound"
	KindInsufficientStock      Kind = "InsufficientStock"
	KindDiscountNotFound       Kind = "DiscountNotFound"
	KindDiscountInactive       Kind = "DiscountInactive"
	KindDiscountNotCollected   Kind = "DiscountNotCollected"
	KindBelowMinimumOrderValue Kind = "BelowMinimumOrderValue"
	KindDiscountUnavailable    Kind = "DiscountUnavailable"
	KindAlreadyCollected       Kind = "AlreadyCollected"
	KindOrderNotFound          Kind = "OrderNotFound"
	KindOrderNotCancelable     Kind = "OrderNotCancelable"
	KindUnauthorized           Kind = "Unauthorized"
	KindInvalidStatus          Kind = "InvalidStatus"
	KindInvalidTransition      Kind = "InvalidTransition"
	KindInternal               Kind = "Internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrEmptyOrder, KindEmptyOrder},
	{ErrInvalidLine, KindInvalidLine},
	{product.ErrNotFound, KindProductNotFound},
	{ErrInsufficientStock, KindInsufficientStock},
	{discount.ErrNotFound, KindDiscountNotFound},
	{discount.ErrInactive, KindDiscountInactive},
	{discount.ErrNotCollected, KindDiscountNotCollected},
	{discount.ErrBelowMinimum, KindBelowMinimumOrderValue},
	{discount.ErrUnavailable, KindDiscountUnavailable},
	{discount.ErrAlreadyCollected, KindAlreadyCollected},
	{ErrNotFound, KindOrderNotFound},
	{ErrNotCancelable, KindOrderNotCancelable},
	{ErrUnauthorized, KindUnauthorized},
	{ErrInvalidStatus, KindInvalidStatus},
	{ErrInvalidTransition, KindInvalidTransition},
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

package cart

import "context"

// Item is one product line in a user's cart.
type Item struct {
	ID        int64
	UserID    int64
	ProductID int64
	Quantity  int
}

// Store removes cart lines once they have been converted into an order.
type Store interface {
	// DeleteProducts removes the user's cart lines for the given products
	// and returns how many rows were removed. Missing lines are not an error.
	DeleteProducts(ctx context.Context, userID int64, productIDs []int64) (int, error)
}

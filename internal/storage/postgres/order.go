package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

const (
	insertOrderSQL = `INSERT INTO orders (user_id, total_price, status)
		VALUES ($1, $2, $3) RETURNING id, created_at`

	insertItemSQL = `INSERT INTO order_items
		(order_id, product_id, quantity, price, discount_id, user_discount_id)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	lockOrderSQL = `SELECT id, user_id, total_price, status, created_at
		FROM orders WHERE id = $1 FOR UPDATE`

	orderItemsSQL = `SELECT id, order_id, product_id, quantity, price, discount_id, user_discount_id
		FROM order_items WHERE order_id = $1 ORDER BY id`

	setStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`

	decrementStockSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`
	restoreStockSQL   = `UPDATE products SET stock = stock + $2 WHERE id = $1`

	deleteCartSQL = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2)`

	listOrdersSQL = `SELECT id, user_id, total_price, status, created_at FROM orders
		WHERE $1::bigint IS NULL OR user_id = $1
		ORDER BY id DESC`

	listItemsSQL = `SELECT i.id, i.order_id, i.product_id, i.quantity, i.price, i.discount_id, i.user_discount_id,
		p.name, COALESCE(img.image_url, '')
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		LEFT JOIN LATERAL (
			SELECT image_url FROM product_images
			WHERE product_id = i.product_id AND is_default
			ORDER BY id LIMIT 1
		) img ON TRUE
		WHERE i.order_id = ANY($1)
		ORDER BY i.order_id, i.id`
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store. Every InTx call runs in one pgx
// transaction.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// InTx runs fn inside a transaction, committing only when fn succeeds.
func (s *OrderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, &orderTx{tx: tx})
	})
}

// List returns orders newest first with product names and default images.
func (s *OrderStore) List(ctx context.Context, userID *int64) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, listOrdersSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}
	rows, err = s.pool.Query(ctx, listItemsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "list order items")
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var (
			it  order.Item
			qty int32
		)
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &qty, &it.Price, &it.DiscountID, &it.ClaimID,
			&it.ProductName, &it.ImageURL)
		it.Quantity = int(qty)
		return it, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan order items")
	}
	for _, it := range items {
		o := &orders[index[it.OrderID]]
		o.Items = append(o.Items, it)
	}
	return orders, nil
}

var _ order.Tx = (*orderTx)(nil)

type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) LockProducts(ctx context.Context, ids []int64) (map[int64]product.Product, error) {
	rows, err := t.tx.Query(ctx, lockProductsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "lock products")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "scan products")
	}
	out := make(map[int64]product.Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (t *orderTx) DecrementStock(ctx context.Context, productID int64, qty int) (bool, error) {
	tag, err := t.tx.Exec(ctx, decrementStockSQL, productID, qty)
	if err != nil {
		return false, errors.Wrapf(err, "decrement stock of product %d", productID)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *orderTx) RestoreStock(ctx context.Context, productID int64, qty int) error {
	if _, err := t.tx.Exec(ctx, restoreStockSQL, productID, qty); err != nil {
		return errors.Wrapf(err, "restore stock of product %d", productID)
	}
	return nil
}

func (t *orderTx) GetDiscount(ctx context.Context, id int64) (*discount.Discount, error) {
	rows, err := t.tx.Query(ctx, getDiscountSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get discount %d", id)
	}
	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "get discount %d", id)
	}
	return &d, nil
}

func (t *orderTx) LockUnusedClaim(ctx context.Context, userID, discountID int64) (*discount.Claim, error) {
	rows, err := t.tx.Query(ctx, lockUnusedClaimSQL, userID, discountID)
	if err != nil {
		return nil, errors.Wrap(err, "lock claim")
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanClaim)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "lock claim")
	}
	return &c, nil
}

func (t *orderTx) ConsumeClaim(ctx context.Context, claimID, orderID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, consumeClaimSQL, claimID, orderID)
	if err != nil {
		return false, errors.Wrapf(err, "consume claim %d", claimID)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *orderTx) ReleaseClaims(ctx context.Context, orderID int64) (int, error) {
	tag, err := t.tx.Exec(ctx, releaseClaimsSQL, orderID)
	if err != nil {
		return 0, errors.Wrapf(err, "release claims of order %d", orderID)
	}
	return int(tag.RowsAffected()), nil
}

func (t *orderTx) CreateOrder(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRow(ctx, insertOrderSQL, o.UserID, o.Total, string(o.Status)).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "insert order")
	}

	batch := &pgx.Batch{}
	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		batch.Queue(insertItemSQL, o.ID, it.ProductID, it.Quantity, it.Price, it.DiscountID, it.ClaimID).
			QueryRow(func(row pgx.Row) error {
				return row.Scan(&it.ID)
			})
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "insert order items")
	}
	return nil
}

func (t *orderTx) LockOrder(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := t.tx.Query(ctx, lockOrderSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "lock order %d", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "lock order %d", id)
	}

	rows, err = t.tx.Query(ctx, orderItemsSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "items of order %d", id)
	}
	o.Items, err = pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, errors.Wrapf(err, "scan items of order %d", id)
	}
	return &o, nil
}

func (t *orderTx) SetStatus(ctx context.Context, id int64, status order.Status) error {
	if _, err := t.tx.Exec(ctx, setStatusSQL, id, string(status)); err != nil {
		return errors.Wrapf(err, "set status of order %d", id)
	}
	return nil
}

// DeleteProducts implements cart.Store within the order transaction.
func (t *orderTx) DeleteProducts(ctx context.Context, userID int64, productIDs []int64) (int, error) {
	tag, err := t.tx.Exec(ctx, deleteCartSQL, userID, productIDs)
	if err != nil {
		return 0, errors.Wrap(err, "delete cart items")
	}
	return int(tag.RowsAffected()), nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Total, &status, &o.CreatedAt)
	o.Status = order.Status(status)
	return o, err
}

func scanItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		it  order.Item
		qty int32
	)
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &qty, &it.Price, &it.DiscountID, &it.ClaimID)
	it.Quantity = int(qty)
	return it, err
}

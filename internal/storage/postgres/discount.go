package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/discount"
)

const (
	discountColumns = `d.id, d.code, d.discount_percent, d.release_date, d.expiration_date,
		d.max_users, d.minimum_order_value,
		(SELECT count(*) FROM user_discounts c WHERE c.discount_id = d.id)`

	listDiscountsSQL = `SELECT ` + discountColumns + ` FROM discounts d
		WHERE $1::timestamptz IS NULL OR ($1 BETWEEN d.release_date AND d.expiration_date)
		ORDER BY d.id`

	getDiscountSQL = `SELECT ` + discountColumns + ` FROM discounts d WHERE d.id = $1`

	lockDiscountSQL = `SELECT id FROM discounts WHERE id = $1 FOR UPDATE`

	insertClaimSQL = `INSERT INTO user_discounts (user_id, discount_id) VALUES ($1, $2)
		RETURNING id, user_id, discount_id, is_used, order_id`

	listUnusedSQL = `SELECT c.id, c.user_id, c.discount_id, c.is_used, c.order_id, ` + discountColumns + `
		FROM user_discounts c JOIN discounts d ON d.id = c.discount_id
		WHERE c.user_id = $1 AND NOT c.is_used
		ORDER BY c.id`

	lockUnusedClaimSQL = `SELECT id, user_id, discount_id, is_used, order_id FROM user_discounts
		WHERE user_id = $1 AND discount_id = $2 AND NOT is_used
		FOR UPDATE`

	consumeClaimSQL = `UPDATE user_discounts SET is_used = TRUE, order_id = $2
		WHERE id = $1 AND NOT is_used`

	releaseClaimsSQL = `UPDATE user_discounts SET is_used = FALSE, order_id = NULL
		WHERE order_id = $1`

	uniqueViolation = "23505"
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// List returns discounts with their collected counts, optionally only those
// active at activeAt.
func (r *DiscountRepository) List(ctx context.Context, activeAt *time.Time) ([]discount.Discount, error) {
	rows, err := r.pool.Query(ctx, listDiscountsSQL, activeAt)
	if err != nil {
		return nil, errors.Wrap(err, "list discounts")
	}
	discounts, err := pgx.CollectRows(rows, scanDiscount)
	if err != nil {
		return nil, errors.Wrap(err, "scan discounts")
	}
	return discounts, nil
}

// ListUnused returns the user's unused claims joined with their discounts.
func (r *DiscountRepository) ListUnused(ctx context.Context, userID int64) ([]discount.CollectedDiscount, error) {
	rows, err := r.pool.Query(ctx, listUnusedSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list unused claims")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (discount.CollectedDiscount, error) {
		var (
			cd discount.CollectedDiscount
			dv discountValues
		)
		c := &cd.Claim
		err := row.Scan(append([]any{&c.ID, &c.UserID, &c.DiscountID, &c.Used, &c.OrderID}, dv.targets()...)...)
		cd.Discount = dv.value()
		return cd, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan unused claims")
	}
	return out, nil
}

// Collect inserts a claim while holding the discount row lock, so the
// collected count seen by check cannot change before the insert.
func (r *DiscountRepository) Collect(ctx context.Context, userID, discountID int64, check func(*discount.Discount) error) (*discount.Claim, error) {
	var claim discount.Claim
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		// The count is read by a separate statement so it sees claims
		// committed while this transaction waited for the lock.
		var id int64
		if err := tx.QueryRow(ctx, lockDiscountSQL, discountID).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return discount.ErrNotFound
			}
			return errors.Wrap(err, "lock discount")
		}
		rows, err := tx.Query(ctx, getDiscountSQL, discountID)
		if err != nil {
			return errors.Wrap(err, "get discount")
		}
		d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
		if err != nil {
			return errors.Wrap(err, "get discount")
		}
		if err := check(&d); err != nil {
			return err
		}

		rows, err = tx.Query(ctx, insertClaimSQL, userID, discountID)
		if err != nil {
			return errors.Wrap(err, "insert claim")
		}
		claim, err = pgx.CollectExactlyOneRow(rows, scanClaim)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return discount.ErrAlreadyCollected
			}
			return errors.Wrap(err, "insert claim")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// discountValues holds scan targets for discountColumns.
type discountValues struct {
	d         discount.Discount
	maxUsers  *int32
	minimum   *decimal.Decimal
	collected int64
}

func (v *discountValues) targets() []any {
	return []any{
		&v.d.ID, &v.d.Code, &v.d.Percent, &v.d.ReleaseDate, &v.d.ExpirationDate,
		&v.maxUsers, &v.minimum, &v.collected,
	}
}

func (v *discountValues) value() discount.Discount {
	d := v.d
	if v.maxUsers != nil {
		n := int(*v.maxUsers)
		d.MaxUsers = &n
	}
	d.MinimumOrderValue = v.minimum
	d.Collected = int(v.collected)
	return d
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var v discountValues
	err := row.Scan(v.targets()...)
	return v.value(), err
}

func scanClaim(row pgx.CollectableRow) (discount.Claim, error) {
	var c discount.Claim
	err := row.Scan(&c.ID, &c.UserID, &c.DiscountID, &c.Used, &c.OrderID)
	return c, err
}

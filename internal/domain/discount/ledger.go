package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Ledger exposes the user-facing discount operations: listing, collecting
// and inspecting personal claims.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

// NewLedger creates a Ledger backed by the given Repository.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// List returns every discount, or only the currently active ones when
// availableOnly is set.
func (l *Ledger) List(ctx context.Context, availableOnly bool) ([]Discount, error) {
	var at *time.Time
	if availableOnly {
		now := l.now()
		at = &now
	}
	discounts, err := l.repo.List(ctx, at)
	if err != nil {
		return nil, errors.Wrap(err, "list discounts")
	}
	return discounts, nil
}

// ListUnused returns the user's claims that can still fund an order line.
func (l *Ledger) ListUnused(ctx context.Context, userID int64) ([]CollectedDiscount, error) {
	claims, err := l.repo.ListUnused(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list unused claims")
	}
	return claims, nil
}

// Collect issues a claim on the discount to the user. The validity check
// runs against the locked discount row, so concurrent collections cannot
// push the claim count past MaxUsers.
func (l *Ledger) Collect(ctx context.Context, userID, discountID int64) (*Claim, error) {
	now := l.now()
	claim, err := l.repo.Collect(ctx, userID, discountID, func(d *Discount) error {
		if !d.IsValid(now) {
			return ErrUnavailable
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnavailable), errors.Is(err, ErrAlreadyCollected):
			return nil, err
		default:
			return nil, errors.Wrap(err, "collect discount")
		}
	}

	zctx.From(ctx).Info("Discount collected",
		zap.Int64("user_id", userID),
		zap.Int64("discount_id", discountID),
		zap.Int64("claim_id", claim.ID),
	)
	return claim, nil
}

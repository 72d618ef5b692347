package order

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
)

// Config tunes lifecycle behavior.
type Config struct {
	// RestoreStockOnCancel returns item quantities to stock when an order
	// enters the canceled state.
	RestoreStockOnCancel bool
	TransitionPolicy     TransitionPolicy
}

// Service coordinates order placement and lifecycle changes.
type Service struct {
	cfg      Config
	store    Store
	products product.Repository
	events   Publisher
	tracer   trace.Tracer
	metrics  *metrics
	now      func() time.Time
}

// NewService creates an order Service with the required dependencies.
func NewService(
	cfg Config,
	store Store,
	products product.Repository,
	events Publisher,
	meterProvider metric.MeterProvider,
	tracerProvider trace.TracerProvider,
) (*Service, error) {
	if cfg.TransitionPolicy == "" {
		cfg.TransitionPolicy = PolicyPermissive
	}
	if !cfg.TransitionPolicy.Valid() {
		return nil, errors.Errorf("unknown transition policy %q", cfg.TransitionPolicy)
	}
	m, err := newMetrics(meterProvider.Meter("storefront/order"))
	if err != nil {
		return nil, errors.Wrap(err, "metrics")
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		products: products,
		events:   events,
		tracer:   tracerProvider.Tracer("storefront/order"),
		metrics:  m,
		now:      time.Now,
	}, nil
}

// CreateOrder validates, prices and persists an order in one transaction.
// Stock decrements, claim consumption and cart cleanup either all commit
// with the order or none of them do.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder", trace.WithAttributes(
		attribute.Int64("user.id", req.UserID),
		attribute.Int("order.lines", len(req.Lines)),
	))
	defer func() { s.end(ctx, span, "create", rerr) }()

	if len(req.Lines) == 0 {
		return nil, ErrEmptyOrder
	}
	ids := make([]int64, 0, len(req.Lines))
	for _, l := range req.Lines {
		if l.ProductID > 0 && !slices.Contains(ids, l.ProductID) {
			ids = append(ids, l.ProductID)
		}
	}
	slices.Sort(ids)

	var o *Order
	if err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		o, err = s.place(ctx, tx, req, ids)
		return err
	}); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order.id", o.ID))
	s.metrics.created.Add(ctx, 1)
	zctx.From(ctx).Info("Order created",
		zap.Int64("order_id", o.ID),
		zap.Int64("user_id", o.UserID),
		zap.Stringer("total", o.Total),
		zap.Int("items", len(o.Items)),
	)
	s.publish(ctx, EventPlaced, o)
	return o, nil
}

func (s *Service) place(ctx context.Context, tx Tx, req CreateOrderRequest, ids []int64) (*Order, error) {
	products, err := tx.LockProducts(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "lock products")
	}

	// Stock left for later lines of the same request.
	remaining := make(map[int64]int, len(products))
	for id, p := range products {
		remaining[id] = p.Stock
	}
	reserved := make(map[int64]bool)
	now := s.now()

	o := &Order{
		UserID: req.UserID,
		Status: StatusPending,
		Total:  decimal.Zero,
		Items:  make([]Item, 0, len(req.Lines)),
	}
	for i, l := range req.Lines {
		if l.ProductID <= 0 || l.Quantity <= 0 {
			return nil, &LineError{Index: i, ProductID: l.ProductID, Err: ErrInvalidLine}
		}
		p, ok := products[l.ProductID]
		if !ok {
			return nil, &LineError{Index: i, ProductID: l.ProductID, Err: product.ErrNotFound}
		}
		if l.Quantity > remaining[l.ProductID] {
			return nil, &LineError{Index: i, ProductID: l.ProductID, Err: errors.Wrapf(ErrInsufficientStock,
				"available %d, requested %d", remaining[l.ProductID], l.Quantity)}
		}
		remaining[l.ProductID] -= l.Quantity

		in := pricing.LineInput{Product: p, Quantity: l.Quantity, Now: now}
		if l.DiscountID != nil {
			in.DiscountRequested = true
			if in.Discount, in.Claim, err = s.lookupDiscount(ctx, tx, req.UserID, *l.DiscountID); err != nil {
				return nil, err
			}
			if in.Claim != nil && reserved[in.Claim.ID] {
				in.Claim = nil
			}
		}
		q, err := pricing.Line(in)
		if err != nil {
			return nil, &LineError{Index: i, ProductID: l.ProductID, Err: err}
		}

		item := Item{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     pricing.Round(q.Final),
		}
		if q.Claim != nil {
			claimID, discountID := q.Claim.ID, q.Claim.DiscountID
			reserved[claimID] = true
			item.ClaimID = &claimID
			item.DiscountID = &discountID
		}
		o.Total = o.Total.Add(item.Price)
		o.Items = append(o.Items, item)
	}

	if err := tx.CreateOrder(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	for i, it := range o.Items {
		ok, err := tx.DecrementStock(ctx, it.ProductID, it.Quantity)
		if err != nil {
			return nil, errors.Wrap(err, "decrement stock")
		}
		if !ok {
			return nil, &LineError{Index: i, ProductID: it.ProductID, Err: ErrInsufficientStock}
		}
	}
	for i, it := range o.Items {
		if it.ClaimID == nil {
			continue
		}
		ok, err := tx.ConsumeClaim(ctx, *it.ClaimID, o.ID)
		if err != nil {
			return nil, errors.Wrap(err, "consume claim")
		}
		if !ok {
			return nil, &LineError{Index: i, ProductID: it.ProductID, Err: discount.ErrNotCollected}
		}
	}
	if _, err := tx.DeleteProducts(ctx, req.UserID, ids); err != nil {
		return nil, errors.Wrap(err, "clear cart")
	}
	return o, nil
}

func (s *Service) lookupDiscount(ctx context.Context, tx Tx, userID, discountID int64) (*discount.Discount, *discount.Claim, error) {
	d, err := tx.GetDiscount(ctx, discountID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get discount")
	}
	if d == nil {
		return nil, nil, nil
	}
	c, err := tx.LockUnusedClaim(ctx, userID, d.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "lock claim")
	}
	return d, c, nil
}

// CancelOrder cancels a pending order owned by userID, releasing its claims
// and, when configured, restoring stock.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID int64) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.CancelOrder", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int64("user.id", userID),
	))
	defer func() { s.end(ctx, span, "cancel", rerr) }()

	var o *Order
	if err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if o, err = s.lockOrder(ctx, tx, orderID); err != nil {
			return err
		}
		// Other users' orders are reported as missing.
		if o.UserID != userID {
			return ErrNotFound
		}
		if o.Status != StatusPending {
			return errors.Wrapf(ErrNotCancelable, "status %s", o.Status)
		}
		return s.enter(ctx, tx, o, StatusCanceled)
	}); err != nil {
		return err
	}

	s.metrics.canceled.Add(ctx, 1)
	zctx.From(ctx).Info("Order canceled", zap.Int64("order_id", orderID), zap.Int64("user_id", userID))
	s.publish(ctx, EventCanceled, o)
	return nil
}

// UpdateOrderStatus moves an order to status on behalf of a privileged actor.
// It reports whether the status actually changed.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, status Status, actor auth.Actor) (_ bool, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateOrderStatus", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("order.status", string(status)),
		attribute.String("actor.role", string(actor.Role)),
	))
	defer func() { s.end(ctx, span, "update_status", rerr) }()

	if !actor.Role.Privileged() {
		return false, ErrUnauthorized
	}
	if !status.Valid() {
		return false, errors.Wrapf(ErrInvalidStatus, "%q", status)
	}

	var (
		o    *Order
		from Status
	)
	if err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if o, err = s.lockOrder(ctx, tx, orderID); err != nil {
			return err
		}
		from = o.Status
		if from == status {
			return nil
		}
		if !s.cfg.TransitionPolicy.Allows(from, status) {
			return errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, status)
		}
		return s.enter(ctx, tx, o, status)
	}); err != nil {
		return false, err
	}
	if from == status {
		return false, nil
	}

	s.metrics.statusChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(status)),
	))
	zctx.From(ctx).Info("Order status changed",
		zap.Int64("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(status)),
		zap.Int64("actor_id", actor.UserID),
	)
	if status == StatusCanceled {
		s.metrics.canceled.Add(ctx, 1)
	}
	s.publish(ctx, EventStatusChanged, o)
	return true, nil
}

func (s *Service) lockOrder(ctx context.Context, tx Tx, orderID int64) (*Order, error) {
	o, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "lock order")
	}
	return o, nil
}

// enter writes the new status and applies the side effects of entering it.
func (s *Service) enter(ctx context.Context, tx Tx, o *Order, to Status) error {
	if err := tx.SetStatus(ctx, o.ID, to); err != nil {
		return errors.Wrap(err, "set status")
	}
	from := o.Status
	o.Status = to
	switch {
	case from == StatusCanceled && to != StatusCanceled:
		return s.recommit(ctx, tx, o)
	case to != StatusCanceled:
		return nil
	}

	released, err := tx.ReleaseClaims(ctx, o.ID)
	if err != nil {
		return errors.Wrap(err, "release claims")
	}
	if s.cfg.RestoreStockOnCancel {
		for _, it := range o.Items {
			if err := tx.RestoreStock(ctx, it.ProductID, it.Quantity); err != nil {
				return errors.Wrap(err, "restore stock")
			}
		}
	}
	zctx.From(ctx).Debug("Cancel side effects applied",
		zap.Int64("order_id", o.ID),
		zap.Int("claims_released", released),
		zap.Bool("stock_restored", s.cfg.RestoreStockOnCancel),
	)
	return nil
}

// recommit takes back what entering canceled gave up, so a later cancel
// can release it again without inflating stock or claims.
func (s *Service) recommit(ctx context.Context, tx Tx, o *Order) error {
	if s.cfg.RestoreStockOnCancel {
		for i, it := range o.Items {
			ok, err := tx.DecrementStock(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return errors.Wrap(err, "decrement stock")
			}
			if !ok {
				return &LineError{Index: i, ProductID: it.ProductID, Err: ErrInsufficientStock}
			}
		}
	}
	for i, it := range o.Items {
		if it.ClaimID == nil {
			continue
		}
		ok, err := tx.ConsumeClaim(ctx, *it.ClaimID, o.ID)
		if err != nil {
			return errors.Wrap(err, "consume claim")
		}
		if !ok {
			return &LineError{Index: i, ProductID: it.ProductID, Err: discount.ErrNotCollected}
		}
	}
	zctx.From(ctx).Debug("Canceled order recommitted", zap.Int64("order_id", o.ID))
	return nil
}

// ListOrders returns the user's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID int64) ([]Order, error) {
	orders, err := s.store.List(ctx, &userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// ListAllOrders returns every order for a privileged actor.
func (s *Service) ListAllOrders(ctx context.Context, actor auth.Actor) ([]Order, error) {
	if !actor.Role.Privileged() {
		return nil, ErrUnauthorized
	}
	orders, err := s.store.List(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "list all orders")
	}
	return orders, nil
}

// OrderItemImage returns the default image url of a product, or an empty
// string when it has none.
func (s *Service) OrderItemImage(ctx context.Context, productID int64) (string, error) {
	url, err := s.products.DefaultImageURL(ctx, productID)
	if err != nil {
		return "", errors.Wrap(err, "default image")
	}
	return url, nil
}

func (s *Service) publish(ctx context.Context, typ EventType, o *Order) {
	ev := Event{
		ID:      uuid.New(),
		Type:    typ,
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  o.Status,
		Total:   o.Total,
		At:      s.now(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.Error(err),
			zap.String("type", string(typ)),
			zap.Int64("order_id", o.ID),
		)
	}
}

func (s *Service) end(ctx context.Context, span trace.Span, op string, err error) {
	defer span.End()
	if err == nil {
		return
	}
	kind := KindOf(err)
	span.SetAttributes(attribute.String("error.kind", string(kind)))
	span.SetStatus(codes.Error, err.Error())
	s.metrics.failed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("kind", string(kind)),
	))
	if kind == KindInternal {
		span.RecordError(err)
		zctx.From(ctx).Error("Order operation failed", zap.String("op", op), zap.Error(err))
	}
}

// Package handler serves the storefront HTTP API.
package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Orders is the order core as seen by the transport. *order.Service
// implements it.
type Orders interface {
	CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*order.Order, error)
	CancelOrder(ctx context.Context, orderID, userID int64) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status order.Status, actor auth.Actor) (bool, error)
	ListOrders(ctx context.Context, userID int64) ([]order.Order, error)
	ListAllOrders(ctx context.Context, actor auth.Actor) ([]order.Order, error)
	OrderItemImage(ctx context.Context, productID int64) (string, error)
}

// Discounts is the discount ledger. *discount.Ledger implements it.
type Discounts interface {
	List(ctx context.Context, availableOnly bool) ([]discount.Discount, error)
	ListUnused(ctx context.Context, userID int64) ([]discount.CollectedDiscount, error)
	Collect(ctx context.Context, userID, discountID int64) (*discount.Claim, error)
}

// Config holds non-dependency handler settings.
type Config struct {
	// MaxBodyBytes limits request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
	// RevocationTTL is how long a revoked key stays in the revocation set.
	// Defaults to 24h.
	RevocationTTL time.Duration
}

// Handler maps HTTP requests to the order core and the discount ledger.
type Handler struct {
	cfg       Config
	orders    Orders
	discounts Discounts
	auth      *Authenticator
	now       func() time.Time
}

// New creates a Handler.
func New(cfg Config, orders Orders, discounts Discounts, authn *Authenticator) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.RevocationTTL <= 0 {
		cfg.RevocationTTL = 24 * time.Hour
	}
	return &Handler{
		cfg:       cfg,
		orders:    orders,
		discounts: discounts,
		auth:      authn,
		now:       time.Now,
	}
}

// Mount registers the API routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/products/{id}/image", h.productImage)
	r.Get("/discounts", h.listDiscounts)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Middleware)

		r.Post("/orders", h.createOrder)
		r.Get("/orders", h.listOrders)
		r.Put("/orders/{id}/cancel", h.cancelOrder)
		r.Put("/orders/{id}/status", h.updateStatus)
		r.Get("/admin/orders", h.listAllOrders)

		r.Post("/discounts/{id}/collect", h.collectDiscount)
		r.Get("/discounts/mine", h.myDiscounts)

		r.Post("/auth/revoke", h.revoke)
	})
}

// Router returns a chi router serving the API under /api.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "NotFound", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})
	r.Route("/api", h.Mount)
	return r
}

var statusByKind = map[order.Kind]int{
	order.KindEmptyOrder:             http.StatusBadRequest,
	order.KindInvalidLine:            http.StatusBadRequest,
	order.KindInvalidStatus:          http.StatusBadRequest,
	order.KindUnauthorized:           http.StatusForbidden,
	order.KindOrderNotFound:          http.StatusNotFound,
	order.KindOrderNotCancelable:     http.StatusConflict,
	order.KindInvalidTransition:      http.StatusConflict,
	order.KindAlreadyCollected:       http.StatusConflict,
	order.KindDiscountUnavailable:    http.StatusConflict,
	order.KindProductNotFound:        http.StatusUnprocessableEntity,
	order.KindInsufficientStock:      http.StatusUnprocessableEntity,
	order.KindDiscountNotFound:       http.StatusUnprocessableEntity,
	order.KindDiscountInactive:       http.StatusUnprocessableEntity,
	order.KindDiscountNotCollected:   http.StatusUnprocessableEntity,
	order.KindBelowMinimumOrderValue: http.StatusUnprocessableEntity,
}

// fail writes err as an API error. override replaces the status of kinds
// whose meaning depends on the route.
func fail(w http.ResponseWriter, r *http.Request, err error, override map[order.Kind]int) {
	kind := order.KindOf(err)
	status, ok := override[kind]
	if !ok {
		status, ok = statusByKind[kind]
	}
	if !ok {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, string(order.KindInternal), "internal error")
		return
	}
	httpmiddleware.WriteError(w, status, string(kind), err.Error())
}

func badRequest(w http.ResponseWriter, msg string) {
	httpmiddleware.WriteError(w, http.StatusBadRequest, "InvalidRequest", msg)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// actor returns the caller stored by the authentication middleware.
func actor(r *http.Request) auth.Actor {
	a, _ := auth.ActorFrom(r.Context())
	return a
}

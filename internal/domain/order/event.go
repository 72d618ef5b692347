package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType names an order lifecycle event.
type EventType string

const (
	EventPlaced        EventType = "order.placed"
	EventCanceled      EventType = "order.canceled"
	EventStatusChanged EventType = "order.status_changed"
)

// Event is emitted after an order change has been committed.
type Event struct {
	ID      uuid.UUID
	Type    EventType
	OrderID int64
	UserID  int64
	Status  Status
	Total   decimal.Decimal
	At      time.Time
}

// Publisher delivers order events. Delivery is best effort: a failure is
// logged and never undoes the committed change.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

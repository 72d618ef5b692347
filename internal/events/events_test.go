package events

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/order"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testEvent() order.Event {
	return order.Event{
		ID:      uuid.MustParse("6f1c1d2e-8c1b-4e5f-9a3b-2d4c6e8f0a1b"),
		Type:    order.EventPlaced,
		OrderID: 42,
		UserID:  7,
		Status:  order.StatusPending,
		Total:   decimal.RequireFromString("144"),
		At:      time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestEncode(t *testing.T) {
	got := string(Encode(testEvent()))
	assert.JSONEq(t, `{
		"id": "6f1c1d2e-8c1b-4e5f-9a3b-2d4c6e8f0a1b",
		"type": "order.placed",
		"order_id": 42,
		"user_id": 7,
		"status": "pending",
		"total_price": "144.00",
		"at": "2025-06-15T12:00:00Z"
	}`, got)
}

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"order.canceled","order_id":5,"extra":[1,2],"total_price":"9.50"}`))
	require.NoError(t, err)
	assert.Equal(t, order.EventCanceled, ev.Type)
	assert.Equal(t, int64(5), ev.OrderID)
	assert.Equal(t, "9.50", ev.Total.StringFixed(2))

	_, err = Decode([]byte(`{"order_id":"x"}`))
	require.Error(t, err)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "42", string(w.msgs[0].Key))
	assert.Equal(t, "order.placed", string(w.msgs[0].Headers[0].Value))

	ev, err := Decode(w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, int64(7), ev.UserID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_Error(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("no brokers")}}
	err := p.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order.placed")
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), testEvent()))
}

// Package events delivers order lifecycle events to downstream consumers.
package events

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

// Encode writes ev as a JSON object.
func Encode(ev order.Event) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str(ev.ID.String())
	e.FieldStart("type")
	e.Str(string(ev.Type))
	e.FieldStart("order_id")
	e.Int64(ev.OrderID)
	e.FieldStart("user_id")
	e.Int64(ev.UserID)
	e.FieldStart("status")
	e.Str(string(ev.Status))
	e.FieldStart("total_price")
	e.Str(ev.Total.StringFixed(2))
	e.FieldStart("at")
	e.Str(ev.At.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}

// Decode parses an event written by Encode. Unknown fields are skipped.
func Decode(data []byte) (order.Event, error) {
	var ev order.Event
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			s, err := d.Str()
			if err != nil {
				return err
			}
			ev.ID, err = uuid.Parse(s)
			return err
		case "type":
			s, err := d.Str()
			ev.Type = order.EventType(s)
			return err
		case "order_id":
			v, err := d.Int64()
			ev.OrderID = v
			return err
		case "user_id":
			v, err := d.Int64()
			ev.UserID = v
			return err
		case "status":
			s, err := d.Str()
			ev.Status = order.Status(s)
			return err
		case "total_price":
			s, err := d.Str()
			if err != nil {
				return err
			}
			ev.Total, err = decimal.NewFromString(s)
			return err
		case "at":
			s, err := d.Str()
			if err != nil {
				return err
			}
			ev.At, err = time.Parse(time.RFC3339Nano, s)
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return order.Event{}, errors.Wrap(err, "decode event")
	}
	return ev, nil
}

package handler

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/order"
)

// decodeOrderLines parses {"order_items":[{"product_id","quantity","discount_id"}]}.
func decodeOrderLines(data []byte) ([]order.Line, error) {
	var lines []order.Line
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "order_items" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		return d.Arr(func(d *jx.Decoder) error {
			l, err := decodeLine(d)
			if err != nil {
				return errors.Wrapf(err, "order_items[%d]", len(lines))
			}
			lines = append(lines, l)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func decodeLine(d *jx.Decoder) (order.Line, error) {
	var l order.Line
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			l.ProductID, err = d.Int64()
		case "quantity":
			l.Quantity, err = d.Int()
		case "discount_id":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var id int64
			id, err = d.Int64()
			l.DiscountID = &id
		default:
			err = d.Skip()
		}
		return err
	})
	return l, err
}

// decodeStatus parses {"status": "..."}.
func decodeStatus(data []byte) (string, error) {
	var status string
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		s, err := d.Str()
		status = s
		return err
	})
	return status, err
}

func money(e *jx.Encoder, v decimal.Decimal) {
	e.Str(v.StringFixed(2))
}

func optInt64(e *jx.Encoder, v *int64) {
	if v == nil {
		e.Null()
		return
	}
	e.Int64(*v)
}

func optStr(e *jx.Encoder, v string) {
	if v == "" {
		e.Null()
		return
	}
	e.Str(v)
}

func encodeOrders(orders []order.Order) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orders")
	e.ArrStart()
	for i := range orders {
		encodeOrder(&e, &orders[i])
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("order_id")
	e.Int64(o.ID)
	e.FieldStart("user_id")
	e.Int64(o.UserID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("total_price")
	money(e, o.Total)
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(it.ID)
		e.FieldStart("product_id")
		e.Int64(it.ProductID)
		e.FieldStart("product_name")
		e.Str(it.ProductName)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("price")
		money(e, it.Price)
		e.FieldStart("discount_id")
		optInt64(e, it.DiscountID)
		e.FieldStart("image_url")
		optStr(e, it.ImageURL)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeDiscountFields(e *jx.Encoder, d *discount.Discount, now time.Time) {
	e.FieldStart("id")
	e.Int64(d.ID)
	e.FieldStart("code")
	e.Str(d.Code)
	e.FieldStart("percent")
	e.Str(d.Percent.String())
	e.FieldStart("release_date")
	e.Str(d.ReleaseDate.UTC().Format(time.RFC3339))
	e.FieldStart("expiration_date")
	e.Str(d.ExpirationDate.UTC().Format(time.RFC3339))
	e.FieldStart("max_users")
	if d.MaxUsers == nil {
		e.Null()
	} else {
		e.Int(*d.MaxUsers)
	}
	e.FieldStart("minimum_order_value")
	if d.MinimumOrderValue == nil {
		e.Null()
	} else {
		money(e, *d.MinimumOrderValue)
	}
	e.FieldStart("collected")
	e.Int(d.Collected)
	e.FieldStart("valid")
	e.Bool(d.IsValid(now))
}

func encodeDiscounts(list []discount.Discount, now time.Time) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("discounts")
	e.ArrStart()
	for i := range list {
		e.ObjStart()
		encodeDiscountFields(&e, &list[i], now)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func encodeCollected(list []discount.CollectedDiscount, now time.Time) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("discounts")
	e.ArrStart()
	for i := range list {
		e.ObjStart()
		e.FieldStart("claim_id")
		e.Int64(list[i].Claim.ID)
		encodeDiscountFields(&e, &list[i].Discount, now)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

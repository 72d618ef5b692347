package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/order"
)

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	lines, err := decodeOrderLines(body)
	if err != nil {
		badRequest(w, "malformed order body: "+err.Error())
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), order.CreateOrderRequest{
		UserID: actor(r).UserID,
		Lines:  lines,
	})
	if err != nil {
		fail(w, r, err, nil)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_id")
	e.Int64(o.ID)
	e.FieldStart("total_price")
	money(&e, o.Total)
	e.ObjEnd()
	writeJSON(w, http.StatusCreated, e.Bytes())
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	if err := h.orders.CancelOrder(r.Context(), id, actor(r).UserID); err != nil {
		fail(w, r, err, nil)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_id")
	e.Int64(id)
	e.FieldStart("status")
	e.Str(string(order.StatusCanceled))
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	body, err := h.readBody(w, r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	raw, err := decodeStatus(body)
	if err != nil {
		badRequest(w, "malformed status body: "+err.Error())
		return
	}
	status, err := order.ParseStatus(raw)
	if err != nil {
		fail(w, r, err, nil)
		return
	}

	changed, err := h.orders.UpdateOrderStatus(r.Context(), id, status, actor(r))
	if err != nil {
		fail(w, r, err, nil)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_id")
	e.Int64(id)
	e.FieldStart("status")
	e.Str(string(status))
	e.FieldStart("changed")
	e.Bool(changed)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context(), actor(r).UserID)
	if err != nil {
		fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, encodeOrders(orders))
}

func (h *Handler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAllOrders(r.Context(), actor(r))
	if err != nil {
		fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, encodeOrders(orders))
}

func (h *Handler) productImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid product id")
		return
	}
	url, err := h.orders.OrderItemImage(r.Context(), id)
	if err != nil {
		fail(w, r, err, nil)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("product_id")
	e.Int64(id)
	e.FieldStart("image_url")
	optStr(&e, url)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

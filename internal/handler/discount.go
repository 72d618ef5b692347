package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/order"
)

func (h *Handler) listDiscounts(w http.ResponseWriter, r *http.Request) {
	var available bool
	if v := r.URL.Query().Get("available"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(w, "invalid available flag")
			return
		}
		available = b
	}
	list, err := h.discounts.List(r.Context(), available)
	if err != nil {
		fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, encodeDiscounts(list, h.now()))
}

// Collecting an unknown discount is a missing resource, unlike referencing
// one from an order line.
var collectStatus = map[order.Kind]int{
	order.KindDiscountNotFound: http.StatusNotFound,
}

func (h *Handler) collectDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid discount id")
		return
	}
	claim, err := h.discounts.Collect(r.Context(), actor(r).UserID, id)
	if err != nil {
		fail(w, r, err, collectStatus)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("claim_id")
	e.Int64(claim.ID)
	e.FieldStart("discount_id")
	e.Int64(claim.DiscountID)
	e.ObjEnd()
	writeJSON(w, http.StatusCreated, e.Bytes())
}

func (h *Handler) myDiscounts(w http.ResponseWriter, r *http.Request) {
	list, err := h.discounts.ListUnused(r.Context(), actor(r).UserID)
	if err != nil {
		fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, encodeCollected(list, h.now()))
}

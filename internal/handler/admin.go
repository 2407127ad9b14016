package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/SG-Fashion/sgfashion/internal/domain/order"
)

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit := h.adminListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, badRequest("limit must be a non-negative integer"))
			return
		}
		if limit == 0 || (n > 0 && n < limit) {
			limit = n
		}
	}
	orders, err := h.checkout.ListOrders(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ordersResponse{Success: true, Orders: toOrders(orders)})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	st, ok := order.ParseStatus(req.Status)
	if !ok {
		writeError(w, r, badRequest("unknown status %q", req.Status))
		return
	}
	o, err := h.checkout.UpdateStatus(r.Context(), chi.URLParam(r, "orderID"), st, req.TrackingURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Success: true, Message: "Status Updated", Order: toOrder(o)})
}

func (h *Handler) adminCancel(w http.ResponseWriter, r *http.Request) {
	h.cancel(w, r, actorFrom(r.Context()))
}

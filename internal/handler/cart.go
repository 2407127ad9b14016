package handler

import (
	"net/http"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), actorFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Success: true, CartData: c})
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.Add(r.Context(), actorFrom(r.Context()).UserID, req.ItemID, req.Size); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("Added To Cart"))
}

func (h *Handler) updateCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Quantity == nil {
		writeError(w, r, badRequest("quantity required"))
		return
	}
	if err := h.carts.Update(r.Context(), actorFrom(r.Context()).UserID, req.ItemID, req.Size, *req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("Cart Updated"))
}

func (h *Handler) mergeCart(w http.ResponseWriter, r *http.Request) {
	var req mergeCartRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.checkout.MergeCart(r.Context(), actorFrom(r.Context()).UserID, req.GuestCart); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("Cart merged successfully"))
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/SG-Fashion/sgfashion/internal/domain/checkout"
	"github.com/SG-Fashion/sgfashion/internal/domain/order"
)

var placedMessage = map[order.PaymentMethod]string{
	order.MethodCOD:     "Order Placed",
	order.MethodHosted:  "Redirect to checkout",
	order.MethodGateway: "Gateway order created",
}

func (h *Handler) placeOrder(method order.PaymentMethod) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req placeOrderRequest
		if err := decode(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		var clientAmount decimal.NullDecimal
		if req.Amount != nil {
			clientAmount = decimal.NewNullDecimal(decimal.Decimal(*req.Amount))
		}

		res, err := h.checkout.PlaceOrder(r.Context(), checkout.PlaceRequest{
			UserID:       actorFrom(r.Context()).UserID,
			Method:       method,
			Items:        toLines(req.Items),
			Address:      req.Address,
			CouponCode:   req.CouponCode,
			ClientAmount: clientAmount,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPlaceResponse(res, placedMessage[method]))
	}
}

func (h *Handler) resumePayment(w http.ResponseWriter, r *http.Request) {
	res, err := h.checkout.ResumePayment(r.Context(), actorFrom(r.Context()).UserID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlaceResponse(res, "Payment restarted"))
}

func (h *Handler) verifyHosted(w http.ResponseWriter, r *http.Request) {
	var req verifyHostedRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.OrderID == "" {
		writeError(w, r, badRequest("orderId required"))
		return
	}
	res, err := h.checkout.VerifyHosted(r.Context(), actorFrom(r.Context()).UserID, req.OrderID, bool(req.Success))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVerifyResponse(res))
}

func (h *Handler) verifyGateway(w http.ResponseWriter, r *http.Request) {
	var req verifyGatewayRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.GatewayOrderID == "" {
		writeError(w, r, badRequest("razorpay_order_id required"))
		return
	}
	res, err := h.checkout.VerifyGateway(r.Context(), actorFrom(r.Context()).UserID, req.GatewayOrderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVerifyResponse(res))
}

func (h *Handler) deletePending(w http.ResponseWriter, r *http.Request) {
	res, err := h.checkout.DeletePending(r.Context(), actorFrom(r.Context()).UserID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := toVerifyResponse(res)
	if res.Deleted {
		resp.Success = true
		resp.Message = "Pending order removed"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.cancel(w, r, actorFrom(r.Context()))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request, actor checkout.Actor) {
	o, err := h.checkout.Cancel(r.Context(), actor, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg := "Order cancelled"
	if o.Refunded {
		msg = "Order cancelled and refund initiated"
	}
	writeJSON(w, http.StatusOK, orderResponse{Success: true, Message: msg, Order: toOrder(o)})
}

func (h *Handler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.checkout.ListUserOrders(r.Context(), actorFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ordersResponse{Success: true, Orders: toOrders(orders)})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.checkout.GetOrder(r.Context(), actorFrom(r.Context()).UserID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Success: true, Order: toOrder(o)})
}

func (h *Handler) previewCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Code == "" {
		writeError(w, r, badRequest("code required"))
		return
	}
	q, err := h.checkout.PreviewCoupon(r.Context(), actorFrom(r.Context()).UserID, req.Code, toLines(req.Items))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		Success:        true,
		Items:          toItems(q.Items),
		Subtotal:       money(q.Subtotal),
		DeliveryCharge: money(q.DeliveryCharge),
		OriginalAmount: money(q.OriginalAmount),
		DiscountAmount: money(q.DiscountAmount),
		AmountAfter:    money(q.AmountAfter),
		Coupon:         q.Coupon,
	})
}

package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/SG-Fashion/sgfashion/internal/domain/auth"
	"github.com/SG-Fashion/sgfashion/internal/domain/cart"
	"github.com/SG-Fashion/sgfashion/internal/domain/checkout"
	"github.com/SG-Fashion/sgfashion/internal/domain/coupon"
	"github.com/SG-Fashion/sgfashion/internal/domain/order"
	"github.com/SG-Fashion/sgfashion/internal/domain/payment"
	"github.com/SG-Fashion/sgfashion/internal/domain/product"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return errors.Wrapf(errBadRequest, format, args...)
}

// decode reads a JSON body into dst. Unknown fields are ignored.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body required")
		}
		return badRequest("invalid json: %v", err)
	}
	return nil
}

// writeJSON writes {"success":true, ...fields of body}. body must marshal to
// a JSON object.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type okResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func ok(message string) okResponse {
	return okResponse{Success: true, Message: message}
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	// OrderID is set when the order was created but payment setup failed.
	OrderID string `json:"orderId,omitempty"`
	// MinPurchase is set when a coupon's minimum purchase was not met.
	MinPurchase *money `json:"minPurchase,omitempty"`
}

// status maps a domain error to its HTTP status. Gateway outcomes are
// checked before the generic conflict and validation classes because a
// refund or setup failure wraps them.
func status(err error) int {
	var (
		unavailable *checkout.UnavailableItemError
		invalidItem *order.InvalidItemError
	)
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, checkout.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, payment.ErrGatewayRejected):
		return http.StatusPaymentRequired
	case errors.Is(err, order.ErrNotFound), errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, payment.ErrAmountMismatch),
		errors.Is(err, payment.ErrReceiptMismatch),
		errors.Is(err, payment.ErrRefundFailed),
		errors.Is(err, order.ErrConflict),
		errors.Is(err, order.ErrOrderNotCancellable),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrAlreadyPaid),
		errors.Is(err, payment.ErrNotSettled),
		errors.Is(err, checkout.ErrNotAwaitingPayment):
		return http.StatusConflict
	case errors.As(err, &unavailable),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrNothingToCharge),
		errors.Is(err, payment.ErrMethodUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errBadRequest),
		errors.As(err, &invalidItem),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrInvalidTrackingURL),
		errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrMinPurchaseNotMet),
		errors.Is(err, coupon.ErrFreebieUnavailable),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes the error envelope. Internal errors are logged and
// replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := status(err)
	resp := errorResponse{
		Message:   err.Error(),
		Retryable: code == http.StatusServiceUnavailable,
	}

	var setup *checkout.PaymentSetupError
	if errors.As(err, &setup) {
		resp.OrderID = setup.OrderID
	}
	var minPurchase *coupon.MinPurchaseError
	if errors.As(err, &minPurchase) {
		m := money(minPurchase.Min)
		resp.MinPurchase = &m
	}

	lg := zctx.From(r.Context())
	switch {
	case code == http.StatusInternalServerError:
		lg.Error("Request failed", zap.Error(err))
		resp.Message = "internal server error"
	case code == http.StatusUnauthorized:
		resp.Message = "not authorized, login again"
	case code >= http.StatusServiceUnavailable || code == http.StatusConflict:
		lg.Warn("Request rejected", zap.Error(err), zap.Int("status", code))
	}
	writeJSON(w, code, resp)
}

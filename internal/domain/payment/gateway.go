package payment

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/SG-Fashion/sgfashion/internal/domain/order"
)

// Gateway order states reported by the order/verify gateway.
const (
	GatewayOrderCreated   = "created"
	GatewayOrderAttempted = "attempted"
	GatewayOrderPaid      = "paid"
)

// GatewayPaymentCaptured is the state of a settled payment.
const GatewayPaymentCaptured = "captured"

// GatewayOrder is the gateway-side order handle returned to the client.
type GatewayOrder struct {
	ID       string `json:"id"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
	Currency string `json:"currency"`
	// Amount and AmountPaid are in minor units.
	Amount     int64 `json:"amount"`
	AmountPaid int64 `json:"amount_paid"`
}

// GatewayPayment is one payment attempt against a gateway order.
type GatewayPayment struct {
	ID     string
	Status string
	Amount int64
}

// CreateOrderRequest creates a gateway order. Amount is in minor units.
type CreateOrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
}

// OrderAPI is the order/verify/refund gateway.
type OrderAPI interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error)
	FetchOrder(ctx context.Context, id string) (*GatewayOrder, error)
	Payments(ctx context.Context, orderID string) ([]GatewayPayment, error)
	// Refund refunds a captured payment. key identifies the refund so a
	// repeated call for the same order is not refunded twice.
	Refund(ctx context.Context, paymentID string, amount int64, key string) error
}

// Gateway is the order/verify/refund checkout (Razorpay). Verification is
// pulled from the gateway, never pushed.
type Gateway struct {
	api      OrderAPI
	currency string
}

var _ Checkout = (*Gateway)(nil)

// NewGateway creates a Gateway checkout.
func NewGateway(api OrderAPI, currency string) *Gateway {
	return &Gateway{api: api, currency: currency}
}

func (g *Gateway) Method() order.PaymentMethod { return order.MethodGateway }

// Start creates a gateway order keyed by the local order id.
func (g *Gateway) Start(ctx context.Context, o *order.Order) (*Intent, error) {
	gwo, err := g.api.CreateOrder(ctx, CreateOrderRequest{
		Amount:   order.MinorUnits(o.Amount),
		Currency: g.currency,
		Receipt:  o.ID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gateway order")
	}
	return &Intent{
		Method:       order.MethodGateway,
		Reference:    gwo.ID,
		GatewayOrder: gwo,
	}, nil
}

// Settle pulls the settlement state of a gateway order. The returned
// Settlement is non-nil whenever the order was fetched; Paid is false while
// the customer has not completed payment.
func (g *Gateway) Settle(ctx context.Context, gatewayOrderID string) (*Settlement, error) {
	gwo, err := g.api.FetchOrder(ctx, gatewayOrderID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch gateway order")
	}
	st := &Settlement{
		Reference: gwo.ID,
		Receipt:   gwo.Receipt,
		Amount:    gwo.Amount,
		Paid:      gwo.Status == GatewayOrderPaid,
	}
	if !st.Paid {
		return st, nil
	}

	payments, err := g.api.Payments(ctx, gatewayOrderID)
	if err != nil {
		return nil, errors.Wrap(err, "list gateway payments")
	}
	for _, p := range payments {
		if p.Status == GatewayPaymentCaptured {
			st.PaymentID = p.ID
			break
		}
	}
	if st.PaymentID == "" && len(payments) > 0 {
		st.PaymentID = payments[0].ID
	}
	return st, nil
}

// Refund refunds the full order amount in minor units, keyed by the local
// order id. Failures match ErrRefundFailed.
func (g *Gateway) Refund(ctx context.Context, o *order.Order) error {
	if o.GatewayPaymentID == "" {
		return &RefundError{PaymentID: "", Err: errors.New("no captured payment")}
	}
	if err := g.api.Refund(ctx, o.GatewayPaymentID, order.MinorUnits(o.Amount), o.ID); err != nil {
		return &RefundError{PaymentID: o.GatewayPaymentID, Err: err}
	}
	return nil
}

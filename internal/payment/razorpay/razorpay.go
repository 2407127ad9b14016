// Package razorpay adapts the Razorpay orders API to payment.OrderAPI.
package razorpay

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	rzp "github.com/razorpay/razorpay-go"
	rzperrors "github.com/razorpay/razorpay-go/errors"
	"go.uber.org/zap"

	"github.com/SG-Fashion/sgfashion/internal/domain/payment"
)

type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Fetch(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Payments(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type paymentAPI interface {
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Client talks to Razorpay. It is built once from the key pair and shared.
type Client struct {
	orders   orderAPI
	payments paymentAPI
	lg       *zap.Logger
}

var _ payment.OrderAPI = (*Client)(nil)

// New creates a Client.
func New(keyID, keySecret string, lg *zap.Logger) (*Client, error) {
	if strings.TrimSpace(keyID) == "" || strings.TrimSpace(keySecret) == "" {
		return nil, errors.New("razorpay: key id and secret are required")
	}
	c := rzp.NewClient(keyID, keySecret)
	return newClient(c.Order, c.Payment, lg), nil
}

func newClient(orders orderAPI, payments paymentAPI, lg *zap.Logger) *Client {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Client{orders: orders, payments: payments, lg: lg}
}

// CreateOrder creates a gateway order; Receipt carries the local order id.
func (c *Client) CreateOrder(ctx context.Context, req payment.CreateOrderRequest) (*payment.GatewayOrder, error) {
	body := map[string]interface{}{
		"amount":   req.Amount,
		"currency": strings.ToUpper(req.Currency),
		"receipt":  req.Receipt,
	}
	res, err := call(ctx, func() (map[string]interface{}, error) {
		return c.orders.Create(body, nil)
	})
	if err != nil {
		return nil, classify(err, "create order")
	}
	o := toOrder(res)
	c.lg.Info("Gateway order created",
		zap.String("order_id", req.Receipt),
		zap.String("gateway_order_id", o.ID),
		zap.Int64("amount", o.Amount),
	)
	return o, nil
}

// FetchOrder reads a gateway order.
func (c *Client) FetchOrder(ctx context.Context, id string) (*payment.GatewayOrder, error) {
	res, err := call(ctx, func() (map[string]interface{}, error) {
		return c.orders.Fetch(id, nil, nil)
	})
	if err != nil {
		return nil, classify(err, "fetch order")
	}
	return toOrder(res), nil
}

// Payments lists the payments made against a gateway order.
func (c *Client) Payments(ctx context.Context, orderID string) ([]payment.GatewayPayment, error) {
	res, err := call(ctx, func() (map[string]interface{}, error) {
		return c.orders.Payments(orderID, nil, nil)
	})
	if err != nil {
		return nil, classify(err, "list payments")
	}
	items, _ := res["items"].([]interface{})
	out := make([]payment.GatewayPayment, 0, len(items))
	for _, raw := range items {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, payment.GatewayPayment{
			ID:     str(m["id"]),
			Status: str(m["status"]),
			Amount: num(m["amount"]),
		})
	}
	return out, nil
}

// refundIdempotencyHeader makes Razorpay return the first refund for a
// repeated key instead of refunding again.
const refundIdempotencyHeader = "X-Refund-Idempotency"

// Refund refunds amount minor units of a captured payment. key is sent as the
// refund receipt and idempotency key.
func (c *Client) Refund(ctx context.Context, paymentID string, amount int64, key string) error {
	data := map[string]interface{}{"receipt": key}
	headers := map[string]string{refundIdempotencyHeader: key}
	_, err := call(ctx, func() (map[string]interface{}, error) {
		return c.payments.Refund(paymentID, int(amount), data, headers)
	})
	if err != nil {
		return classify(err, "refund")
	}
	c.lg.Info("Payment refunded",
		zap.String("payment_id", paymentID),
		zap.Int64("amount", amount),
		zap.String("key", key),
	)
	return nil
}

type result struct {
	res map[string]interface{}
	err error
}

// call runs a blocking SDK call and gives up when ctx is done. The SDK has no
// context support, so an abandoned call may still complete on the gateway.
func call(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	done := make(chan result, 1)
	go func() {
		res, err := fn()
		done <- result{res: res, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.res, r.err
	}
}

// classify maps SDK failures onto the payment error taxonomy. Only
// BAD_REQUEST errors are rejections; server, gateway and transport errors
// are retryable.
func classify(err error, op string) error {
	var badRequest *rzperrors.BadRequestError
	if errors.As(err, &badRequest) {
		return errors.Wrapf(payment.ErrGatewayRejected, "razorpay: %s: %s", op, badRequest.Error())
	}
	return errors.Wrapf(payment.ErrGatewayUnavailable, "razorpay: %s: %v", op, err)
}

func toOrder(m map[string]interface{}) *payment.GatewayOrder {
	return &payment.GatewayOrder{
		ID:         str(m["id"]),
		Receipt:    str(m["receipt"]),
		Status:     str(m["status"]),
		Currency:   str(m["currency"]),
		Amount:     num(m["amount"]),
		AmountPaid: num(m["amount_paid"]),
	}
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

// num reads a JSON number decoded into an interface value.
func num(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}

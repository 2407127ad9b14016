package razorpay

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	rzperrors "github.com/razorpay/razorpay-go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SG-Fashion/sgfashion/internal/domain/payment"
)

type fakeOrders struct {
	created  map[string]interface{}
	order    map[string]interface{}
	payments map[string]interface{}
	err      error
	block    chan struct{}
}

func (f *fakeOrders) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.created = data
	if f.err != nil {
		return nil, f.err
	}
	return map[string]interface{}{
		"id":       "order_1",
		"amount":   float64(data["amount"].(int64)),
		"currency": data["currency"],
		"receipt":  data["receipt"],
		"status":   "created",
	}, nil
}

func (f *fakeOrders) Fetch(string, map[string]interface{}, map[string]string) (map[string]interface{}, error) {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

func (f *fakeOrders) Payments(string, map[string]interface{}, map[string]string) (map[string]interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.payments, nil
}

type fakePayments struct {
	paymentID string
	amount    int
	data      map[string]interface{}
	headers   map[string]string
	err       error
}

func (f *fakePayments) Refund(paymentID string, amount int, data map[string]interface{}, headers map[string]string) (map[string]interface{}, error) {
	f.paymentID = paymentID
	f.amount = amount
	f.data = data
	f.headers = headers
	if f.err != nil {
		return nil, f.err
	}
	return map[string]interface{}{"id": "rfnd_1"}, nil
}

func TestClient_CreateOrder(t *testing.T) {
	orders := &fakeOrders{}
	c := newClient(orders, &fakePayments{}, nil)

	o, err := c.CreateOrder(context.Background(), payment.CreateOrderRequest{Amount: 90900, Currency: "inr", Receipt: "o1"})
	require.NoError(t, err)

	assert.Equal(t, "INR", orders.created["currency"])
	assert.Equal(t, "o1", orders.created["receipt"])
	assert.Equal(t, "order_1", o.ID)
	assert.Equal(t, int64(90900), o.Amount)
	assert.Equal(t, "o1", o.Receipt)
}

func TestClient_FetchOrderAndPayments(t *testing.T) {
	orders := &fakeOrders{
		order: map[string]interface{}{
			"id": "order_1", "receipt": "o1", "status": "paid",
			"amount": float64(90900), "amount_paid": float64(90900),
		},
		payments: map[string]interface{}{
			"count": float64(2),
			"items": []interface{}{
				map[string]interface{}{"id": "pay_a", "status": "failed", "amount": float64(90900)},
				map[string]interface{}{"id": "pay_b", "status": "captured", "amount": float64(90900)},
			},
		},
	}
	c := newClient(orders, &fakePayments{}, nil)

	o, err := c.FetchOrder(context.Background(), "order_1")
	require.NoError(t, err)
	assert.Equal(t, payment.GatewayOrderPaid, o.Status)
	assert.Equal(t, int64(90900), o.AmountPaid)

	ps, err := c.Payments(context.Background(), "order_1")
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, payment.GatewayPayment{ID: "pay_b", Status: "captured", Amount: 90900}, ps[1])

	st, err := payment.NewGateway(c, "INR").Settle(context.Background(), "order_1")
	require.NoError(t, err)
	assert.Equal(t, "pay_b", st.PaymentID)
}

func TestClient_Refund(t *testing.T) {
	payments := &fakePayments{}
	c := newClient(&fakeOrders{}, payments, nil)

	require.NoError(t, c.Refund(context.Background(), "pay_1", 90900, "o1"))
	assert.Equal(t, "pay_1", payments.paymentID)
	assert.Equal(t, 90900, payments.amount)
	assert.Equal(t, "o1", payments.data["receipt"])
	assert.Equal(t, "o1", payments.headers["X-Refund-Idempotency"])
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "bad request", err: &rzperrors.BadRequestError{Message: "amount exceeds"}, want: payment.ErrGatewayRejected},
		{name: "server", err: &rzperrors.ServerError{Message: "oops"}, want: payment.ErrGatewayUnavailable},
		{name: "gateway", err: &rzperrors.GatewayError{Message: "bank down"}, want: payment.ErrGatewayUnavailable},
		{name: "transport", err: errors.New("connection reset"), want: payment.ErrGatewayUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(&fakeOrders{}, &fakePayments{err: tt.err}, nil)
			err := c.Refund(context.Background(), "pay_1", 100, "o1")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	orders := &fakeOrders{block: make(chan struct{})}
	defer close(orders.block)
	c := newClient(orders, &fakePayments{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.FetchOrder(ctx, "order_1")
	require.ErrorIs(t, err, payment.ErrGatewayUnavailable)
}

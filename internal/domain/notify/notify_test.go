package notify

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SG-Fashion/sgfashion/internal/domain/order"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
	ctxErr error
}

func (p *recordingPublisher) Publish(ctx context.Context, events ...Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctxErr = ctx.Err()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

func sampleOrder() *order.Order {
	return &order.Order{
		ID: "o1",
		Items: []order.Item{
			{Name: "Kurta"},
			{Name: "Scarf"},
		},
		Amount: decimal.RequireFromString("909"),
		Status: order.StatusShipped,
		Address: order.Address{
			FirstName: "Asha",
			Email:     "asha@example.com",
			Phone:     "09876543210",
			Street:    "12 MG Road",
			City:      "Pune",
			State:     "MH",
			Zipcode:   "411001",
			Country:   "India",
		},
	}
}

func seqID() func() string {
	n := 0
	return func() string {
		n++
		return "e" + strconv.Itoa(n)
	}
}

func TestEvents(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	placed := Events(KindPlaced, sampleOrder(), now, seqID())
	require.Len(t, placed, 1)
	assert.Equal(t, ChannelSMS, placed[0].Channel)
	assert.Equal(t, "9876543210", placed[0].Recipient)
	assert.Equal(t, []string{"Kurta", "Scarf"}, placed[0].Items)

	paid := Events(KindPayment, sampleOrder(), now, seqID())
	require.Len(t, paid, 2)
	assert.Equal(t, ChannelEmail, paid[1].Channel)
	assert.Equal(t, "asha@example.com", paid[1].Recipient)
	assert.NotEqual(t, paid[0].ID, paid[1].ID)

	o := sampleOrder()
	o.Address.Phone = ""
	assert.Empty(t, Events(KindStatus, o, now, seqID()))
}

func TestMessage(t *testing.T) {
	e := Events(KindStatus, sampleOrder(), time.Now(), seqID())[0]

	tests := []struct {
		kind Kind
		want string
	}{
		{KindPlaced, `Your Order "Kurta, Scarf" of price ₹909 has been placed successfully. Track it here: https://shop.example.com/orders/o1`},
		{KindPayment, `Your Order "Kurta, Scarf" of price ₹909 payment was successful. Track it here: https://shop.example.com/orders/o1`},
		{KindStatus, `Your Order "Kurta, Scarf" of price ₹909 status has been updated to "Shipped". Track it here: https://shop.example.com/orders/o1`},
		{KindCancelled, `Your Order "Kurta, Scarf" of price ₹909 has been cancelled. Thank you for shopping with us.`},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			e.Kind = tt.kind
			assert.Equal(t, tt.want, Message(e, "https://shop.example.com/orders/"))
		})
	}
}

func TestEmail(t *testing.T) {
	e := Events(KindPayment, sampleOrder(), time.Now(), seqID())[1]
	e.FirstName = "<b>Asha</b>"

	subject, body := Email(e)
	assert.Equal(t, "Your Order o1 Confirmation", subject)
	assert.Contains(t, body, "&lt;b&gt;Asha&lt;/b&gt;")
	assert.Contains(t, body, "₹909")
	assert.Contains(t, body, "Pune")
}

func TestDispatcher_DetachesFromRequestContext(t *testing.T) {
	pub := &recordingPublisher{}
	d, err := NewDispatcher(pub, zap.NewNop(), DispatcherConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	d.Notify(ctx, KindPayment, sampleOrder())
	cancel()
	d.Close()

	require.Len(t, pub.events, 2)
	assert.NoError(t, pub.ctxErr)
	assert.Zero(t, d.Failures())
}

func TestDispatcher_FailureIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	d, err := NewDispatcher(pub, zap.NewNop(), DispatcherConfig{Timeout: time.Second})
	require.NoError(t, err)

	d.Notify(context.Background(), KindPlaced, sampleOrder())
	d.Close()

	assert.Equal(t, int64(1), d.Failures())
}

func TestDispatcher_DropsAfterClose(t *testing.T) {
	pub := &recordingPublisher{}
	d, err := NewDispatcher(pub, zap.NewNop(), DispatcherConfig{})
	require.NoError(t, err)

	d.Close()
	d.Notify(context.Background(), KindPlaced, sampleOrder())
	d.Close()

	assert.Empty(t, pub.events)
}

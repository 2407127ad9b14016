// Package stripe adapts Stripe Checkout to payment.SessionAPI.
package stripe

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.uber.org/zap"

	"github.com/SG-Fashion/sgfashion/internal/domain/payment"
)

const metadataOrderID = "orderId"

type sessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Client creates and reads Checkout sessions.
type Client struct {
	sessions sessionAPI
	lg       *zap.Logger
}

var _ payment.SessionAPI = (*Client)(nil)

// New creates a Client for the given secret key. The key is read once at
// startup; the client is shared by all requests.
func New(secretKey string, lg *zap.Logger) (*Client, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	sc := client.New(secretKey, nil)
	return newClient(sc.CheckoutSessions, lg), nil
}

func newClient(sessions sessionAPI, lg *zap.Logger) *Client {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Client{sessions: sessions, lg: lg}
}

// CreateSession creates a payment mode Checkout session for one order.
func (c *Client) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	currency := strings.ToLower(req.Currency)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{metadataOrderID: req.OrderID},
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("order-" + req.OrderID)
	params.Metadata = map[string]string{metadataOrderID: req.OrderID}

	for _, line := range req.Lines {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(max(line.Quantity, 1)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(line.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Name),
				},
			},
		})
	}

	s, err := c.sessions.New(params)
	if err != nil {
		return nil, classify(err, "create session")
	}
	c.lg.Info("Checkout session created",
		zap.String("order_id", req.OrderID),
		zap.String("session_id", s.ID),
	)
	return toSession(s), nil
}

// GetSession reads a Checkout session.
func (c *Client) GetSession(ctx context.Context, id string) (*payment.Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := c.sessions.Get(id, params)
	if err != nil {
		return nil, classify(err, "get session")
	}
	return toSession(s), nil
}

func toSession(s *stripe.CheckoutSession) *payment.Session {
	out := &payment.Session{
		ID:          s.ID,
		URL:         s.URL,
		Reference:   s.ClientReferenceID,
		Paid:        s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal: s.AmountTotal,
	}
	if out.Reference == "" {
		out.Reference = s.Metadata[metadataOrderID]
	}
	if s.PaymentIntent != nil {
		out.PaymentID = s.PaymentIntent.ID
	}
	return out
}

// classify maps Stripe failures onto the payment error taxonomy: 429 and 5xx
// are unavailable, other API errors are rejections, and anything without an
// HTTP status is a transport failure.
func classify(err error, op string) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= 500 {
			return errors.Wrapf(payment.ErrGatewayUnavailable, "stripe: %s: %s", op, se.Msg)
		}
		if se.HTTPStatusCode > 0 {
			return errors.Wrapf(payment.ErrGatewayRejected, "stripe: %s: %s", op, se.Msg)
		}
	}
	return errors.Wrapf(payment.ErrGatewayUnavailable, "stripe: %s: %v", op, err)
}

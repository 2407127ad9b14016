package payment

import (
	"context"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/SG-Fashion/sgfashion/internal/domain/order"
)

// SessionLine is one hosted checkout line item, amounts in minor units.
type SessionLine struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

// SessionRequest creates a hosted checkout session.
type SessionRequest struct {
	OrderID    string
	Currency   string
	Lines      []SessionLine
	SuccessURL string
	CancelURL  string
}

// Session is a hosted checkout session.
type Session struct {
	ID        string
	URL       string
	Reference string
	Paid      bool
	// AmountTotal is in minor units.
	AmountTotal int64
	PaymentID   string
}

// SessionAPI is the hosted checkout gateway.
type SessionAPI interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
}

// HostedConfig configures hosted checkout.
type HostedConfig struct {
	Currency       string
	DeliveryCharge decimal.Decimal
	// ReturnURL is the storefront verify page; orderId and success are
	// appended as query parameters.
	ReturnURL string
}

// Hosted is the redirect based checkout (Stripe Checkout).
type Hosted struct {
	api       SessionAPI
	cfg       HostedConfig
	returnURL *url.URL
}

var _ Checkout = (*Hosted)(nil)

// NewHosted creates a Hosted checkout. ReturnURL must be an absolute http or
// https URL.
func NewHosted(api SessionAPI, cfg HostedConfig) (*Hosted, error) {
	u, err := ParseReturnURL(cfg.ReturnURL)
	if err != nil {
		return nil, err
	}
	return &Hosted{api: api, cfg: cfg, returnURL: u}, nil
}

// ParseReturnURL parses the storefront verify page URL.
func ParseReturnURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parse return url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Errorf("return url %q is not an absolute http url", raw)
	}
	return u, nil
}

func (h *Hosted) Method() order.PaymentMethod { return order.MethodHosted }

// Start creates a session and returns its redirect URL.
func (h *Hosted) Start(ctx context.Context, o *order.Order) (*Intent, error) {
	s, err := h.api.CreateSession(ctx, SessionRequest{
		OrderID:    o.ID,
		Currency:   h.cfg.Currency,
		Lines:      h.Lines(o),
		SuccessURL: h.verifyURL(o.ID, true),
		CancelURL:  h.verifyURL(o.ID, false),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create checkout session")
	}
	return &Intent{
		Method:      order.MethodHosted,
		Reference:   s.ID,
		RedirectURL: s.URL,
	}, nil
}

// Lines itemizes the order plus a delivery line. When the itemized total does
// not equal the payable amount (a discount was applied) a single line for
// the order total is used instead.
func (h *Hosted) Lines(o *order.Order) []SessionLine {
	var (
		lines []SessionLine
		total int64
	)
	for _, it := range o.Items {
		if it.Freebie {
			continue
		}
		unit := order.MinorUnits(it.UnitPrice)
		lines = append(lines, SessionLine{Name: it.Name, UnitAmount: unit, Quantity: int64(it.Quantity)})
		total += unit * int64(it.Quantity)
	}
	if h.cfg.DeliveryCharge.IsPositive() {
		unit := order.MinorUnits(h.cfg.DeliveryCharge)
		lines = append(lines, SessionLine{Name: "Delivery Charges", UnitAmount: unit, Quantity: 1})
		total += unit
	}
	if want := order.MinorUnits(o.Amount); total != want {
		return []SessionLine{{Name: "Order " + o.ID, UnitAmount: want, Quantity: 1}}
	}
	return lines
}

// Settle fetches the session recorded on o and checks it was paid in full.
func (h *Hosted) Settle(ctx context.Context, o *order.Order) (*Settlement, error) {
	if o.GatewayOrderID == "" {
		return nil, errors.Wrapf(ErrNotSettled, "order %s has no checkout session", o.ID)
	}
	s, err := h.api.GetSession(ctx, o.GatewayOrderID)
	if err != nil {
		return nil, errors.Wrap(err, "get checkout session")
	}
	st := &Settlement{
		Reference: s.ID,
		Receipt:   s.Reference,
		PaymentID: s.PaymentID,
		Paid:      s.Paid,
		Amount:    s.AmountTotal,
	}
	if !st.Paid {
		return st, errors.Wrapf(ErrNotSettled, "session %s", s.ID)
	}
	if st.Receipt != "" && st.Receipt != o.ID {
		return st, errors.Wrapf(ErrReceiptMismatch, "session %s belongs to order %s", s.ID, st.Receipt)
	}
	if err := st.CheckAmount(o); err != nil {
		return st, err
	}
	return st, nil
}

func (h *Hosted) verifyURL(orderID string, success bool) string {
	u := *h.returnURL
	q := u.Query()
	q.Set("success", "false")
	if success {
		q.Set("success", "true")
	}
	q.Set("orderId", orderID)
	u.RawQuery = q.Encode()
	return u.String()
}

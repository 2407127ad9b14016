package payment

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/SG-Fashion/sgfashion/internal/domain/order"
)

var (
	// ErrGatewayUnavailable is a network failure, timeout or 5xx from the
	// gateway. The order is unchanged and the caller may retry.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayRejected is a 4xx from the gateway. Not retryable.
	ErrGatewayRejected = errors.New("payment gateway rejected the request")
	// ErrAmountMismatch is returned when the gateway reports an amount that
	// differs from the order amount. The order is never auto-corrected.
	ErrAmountMismatch = errors.New("gateway amount does not match order amount")
	// ErrReceiptMismatch is returned when a gateway object references a
	// different local order.
	ErrReceiptMismatch = errors.New("gateway receipt does not match order")
	// ErrRefundFailed is matched by every refund failure.
	ErrRefundFailed = errors.New("refund failed")
	// ErrNotSettled is returned when verification finds no captured payment.
	ErrNotSettled = errors.New("payment not settled")
	// ErrMethodUnavailable is returned for a payment method without a
	// configured gateway.
	ErrMethodUnavailable = errors.New("payment method not available")
)

// RefundError wraps the cause of a failed refund. It matches both
// ErrRefundFailed and whatever the cause matches.
type RefundError struct {
	PaymentID string
	Err       error
}

func (e *RefundError) Error() string {
	return "refund payment " + e.PaymentID + ": " + e.Err.Error()
}

func (e *RefundError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRefundFailed) hold.
func (e *RefundError) Is(target error) bool { return target == ErrRefundFailed }

// Retryable reports whether err is a transient gateway failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}

// Intent is what the client needs to complete payment.
type Intent struct {
	Method order.PaymentMethod
	// Reference is the gateway handle recorded on the order: the checkout
	// session id or the gateway order id. Empty for cash on delivery.
	Reference string
	// RedirectURL is set for hosted checkout.
	RedirectURL string
	// GatewayOrder is set for the order/verify gateway.
	GatewayOrder *GatewayOrder
}

// Settlement is the gateway's authoritative view of a payment.
type Settlement struct {
	Reference string
	// Receipt is the local order id the gateway was given.
	Receipt   string
	PaymentID string
	Paid      bool
	// Amount is in minor units.
	Amount int64
}

// CheckAmount returns ErrAmountMismatch unless s covers exactly o.Amount.
func (s *Settlement) CheckAmount(o *order.Order) error {
	if want := order.MinorUnits(o.Amount); s.Amount != want {
		return errors.Wrapf(ErrAmountMismatch, "order %s: gateway %d, local %d", o.ID, s.Amount, want)
	}
	return nil
}

// Checkout starts payment for a persisted order. There is one implementation
// per order.PaymentMethod.
type Checkout interface {
	Method() order.PaymentMethod
	Start(ctx context.Context, o *order.Order) (*Intent, error)
}

// CashOnDelivery needs no gateway interaction.
type CashOnDelivery struct{}

var _ Checkout = CashOnDelivery{}

func (CashOnDelivery) Method() order.PaymentMethod { return order.MethodCOD }

func (CashOnDelivery) Start(context.Context, *order.Order) (*Intent, error) {
	return &Intent{Method: order.MethodCOD}, nil
}

// Methods holds the configured checkout variants. Hosted and Gateway are nil
// when their gateway is not configured.
type Methods struct {
	COD     CashOnDelivery
	Hosted  *Hosted
	Gateway *Gateway
}

// For returns the checkout for m.
func (ms *Methods) For(m order.PaymentMethod) (Checkout, error) {
	switch m {
	case order.MethodCOD:
		return ms.COD, nil
	case order.MethodHosted:
		if ms.Hosted != nil {
			return ms.Hosted, nil
		}
	case order.MethodGateway:
		if ms.Gateway != nil {
			return ms.Gateway, nil
		}
	default:
		return nil, errors.Errorf("unsupported payment method %q", m)
	}
	return nil, errors.Wrapf(ErrMethodUnavailable, "%s", m)
}

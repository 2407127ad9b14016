package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// PaymentMethod is the payment variant chosen when the order was placed.
// It is stored with the order and never re-derived.
type PaymentMethod string

const (
	// MethodCOD is cash on delivery: no gateway interaction.
	MethodCOD PaymentMethod = "COD"
	// MethodHosted is the hosted-checkout gateway (Stripe Checkout).
	MethodHosted PaymentMethod = "Stripe"
	// MethodGateway is the order/verify/refund gateway (Razorpay).
	MethodGateway PaymentMethod = "Razorpay"
)

// Valid reports whether m is one of the supported payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCOD, MethodHosted, MethodGateway:
		return true
	default:
		return false
	}
}

var (
	// ErrNotFound is returned when the order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned when a compare-and-swap precondition did not
	// match the stored order.
	ErrConflict = errors.New("order was modified concurrently")
	// ErrOrderNotCancellable is returned when cancelling an order outside
	// Order Placed / Packing.
	ErrOrderNotCancellable = errors.New("order cannot be cancelled")
	// ErrInvalidTransition is returned for status changes the state machine rejects.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidTrackingURL is returned when a tracking URL is not an absolute URL.
	ErrInvalidTrackingURL = errors.New("tracking url must be an absolute http(s) url")
	// ErrEmptyItems is returned when an order has no line items.
	ErrEmptyItems = errors.New("items required")
	// ErrAlreadyPaid is returned when a payment-only operation targets a paid order.
	ErrAlreadyPaid = errors.New("order is already paid")
)

// Item is a line item snapshotted at creation time. Prices are never
// re-read from the catalog afterwards.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
	Freebie   bool            `json:"freebie,omitempty"`
}

// LineTotal returns UnitPrice * Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Address is the shipping and contact snapshot. It is immutable after creation.
type Address struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zipcode   string `json:"zipcode"`
	Country   string `json:"country"`
}

// CouponRef records the coupon applied at creation.
type CouponRef struct {
	Code     string `json:"code"`
	CouponID string `json:"couponId"`
	Type     string `json:"type"`
}

// Order is a persisted purchase attempt.
type Order struct {
	ID               string
	UserID           string
	Items            []Item
	Address          Address
	OriginalAmount   decimal.Decimal
	DiscountAmount   decimal.Decimal
	Amount           decimal.Decimal
	Coupon           *CouponRef
	PaymentMethod    PaymentMethod
	Payment          bool
	Status           Status
	TrackingURL      string
	Refunded         bool
	RefundDate       *time.Time
	GatewayOrderID   string
	GatewayPaymentID string
	Date             time.Time
}

// ItemNames returns the comma separated item names, used in notifications.
func (o *Order) ItemNames() []string {
	names := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		names = append(names, it.Name)
	}
	return names
}

// PayableAmount returns max(0, original - discount).
func PayableAmount(original, discount decimal.Decimal) decimal.Decimal {
	amount := original.Sub(discount)
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// Precondition is the expected stored state for a compare-and-swap write.
// Nil pointer fields are not checked.
type Precondition struct {
	Status   Status
	Payment  *bool
	Refunded *bool
}

// Change lists the fields a compare-and-swap write sets. Nil fields are left
// unchanged.
type Change struct {
	Status           *Status
	Payment          *bool
	TrackingURL      *string
	Refunded         *bool
	RefundDate       *time.Time
	GatewayOrderID   *string
	GatewayPaymentID *string
}

// Filter narrows List results. An empty UserID lists every order.
type Filter struct {
	UserID string
	Limit  int
}

// Repository persists orders. Update and Delete are atomic conditional writes
// on a single order: they return ErrConflict when the precondition does not
// match and ErrNotFound when the order does not exist.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	Update(ctx context.Context, id string, expect Precondition, ch Change) (*Order, error)
	Delete(ctx context.Context, id string, expect Precondition) error
}

func ptr[T any](v T) *T { return &v }

// Package checkout drives orders from cart to settlement: it prices the cart,
// applies coupons, persists the order, starts the gateway payment and
// reconciles the gateway's answer back into the order store.
package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/SG-Fashion/sgfashion/internal/domain/cart"
	"github.com/SG-Fashion/sgfashion/internal/domain/coupon"
	"github.com/SG-Fashion/sgfashion/internal/domain/notify"
	"github.com/SG-Fashion/sgfashion/internal/domain/order"
	"github.com/SG-Fashion/sgfashion/internal/domain/payment"
	"github.com/SG-Fashion/sgfashion/internal/domain/product"
)

var (
	// ErrForbidden is returned when a user acts on another user's order.
	ErrForbidden = errors.New("order belongs to another user")
	// ErrEmptyCart is returned when there is nothing to order.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNothingToCharge is returned when a gateway payment is requested for
	// an order whose payable amount is zero.
	ErrNothingToCharge = errors.New("order total is zero, use cash on delivery")
	// ErrNotAwaitingPayment is returned when resuming or verifying payment
	// for an order that cannot take one.
	ErrNotAwaitingPayment = errors.New("order is not awaiting payment")
)

// UnavailableItemError is returned when a requested line cannot be sold.
type UnavailableItemError struct {
	ProductID string
	Size      string
	Reason    string
}

func (e *UnavailableItemError) Error() string {
	if e.Size != "" {
		return "product " + e.ProductID + " size " + e.Size + ": " + e.Reason
	}
	return "product " + e.ProductID + ": " + e.Reason
}

// PaymentSetupError is returned when the order was persisted but the gateway
// payment could not be started. The order stays pending and can be resumed
// with ResumePayment or cancelled.
type PaymentSetupError struct {
	OrderID string
	Err     error
}

func (e *PaymentSetupError) Error() string {
	return "order " + e.OrderID + " created, payment setup failed: " + e.Err.Error()
}

func (e *PaymentSetupError) Unwrap() error { return e.Err }

// Carts is the cart component as seen by checkout.
type Carts interface {
	Get(ctx context.Context, userID string) (cart.Cart, error)
	Merge(ctx context.Context, userID string, guest cart.Cart) error
	Clear(ctx context.Context, userID string) error
}

// Coupons evaluates coupon codes.
type Coupons interface {
	Evaluate(ctx context.Context, code string, items []order.Item, amount decimal.Decimal) (*coupon.Outcome, error)
}

// Actor is the resolved identity performing an operation.
type Actor struct {
	UserID string
	Admin  bool
}

// Config holds the pricing constants.
type Config struct {
	DeliveryCharge decimal.Decimal
}

// Deps are the collaborators of a Service.
type Deps struct {
	Orders   *order.Store
	Catalog  product.Repository
	Coupons  Coupons
	Carts    Carts
	Methods  *payment.Methods
	Notifier notify.Notifier
	Logger   *zap.Logger
	Meter    metric.Meter
	Tracer   trace.Tracer
}

// Service is the reconciliation orchestrator.
type Service struct {
	orders   *order.Store
	catalog  product.Repository
	coupons  Coupons
	carts    Carts
	methods  *payment.Methods
	notifier notify.Notifier
	lg       *zap.Logger
	tracer   trace.Tracer

	delivery decimal.Decimal

	placed    metric.Int64Counter
	confirmed metric.Int64Counter
	cancelled metric.Int64Counter
	refunds   metric.Int64Counter
}

// NewService creates a Service.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if deps.Orders == nil || deps.Catalog == nil || deps.Coupons == nil || deps.Carts == nil {
		return nil, errors.New("checkout: orders, catalog, coupons and carts are required")
	}
	if deps.Methods == nil {
		deps.Methods = &payment.Methods{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Meter == nil {
		deps.Meter = noop.NewMeterProvider().Meter("checkout")
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("checkout")
	}
	if deps.Notifier == nil {
		deps.Notifier = discard{}
	}

	s := &Service{
		orders:   deps.Orders,
		catalog:  deps.Catalog,
		coupons:  deps.Coupons,
		carts:    deps.Carts,
		methods:  deps.Methods,
		notifier: deps.Notifier,
		lg:       deps.Logger,
		tracer:   deps.Tracer,
		delivery: cfg.DeliveryCharge,
	}

	var err error
	if s.placed, err = deps.Meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders persisted")); err != nil {
		return nil, errors.Wrap(err, "orders.placed")
	}
	if s.confirmed, err = deps.Meter.Int64Counter("payments.confirmed",
		metric.WithDescription("Orders marked paid")); err != nil {
		return nil, errors.Wrap(err, "payments.confirmed")
	}
	if s.cancelled, err = deps.Meter.Int64Counter("orders.cancelled",
		metric.WithDescription("Orders cancelled")); err != nil {
		return nil, errors.Wrap(err, "orders.cancelled")
	}
	if s.refunds, err = deps.Meter.Int64Counter("refunds.issued",
		metric.WithDescription("Gateway refunds issued on cancellation")); err != nil {
		return nil, errors.Wrap(err, "refunds.issued")
	}
	return s, nil
}

func methodAttr(m order.PaymentMethod) metric.AddOption {
	return metric.WithAttributes(attribute.String("method", string(m)))
}

// owned loads an order and checks that actor may act on it.
func (s *Service) owned(ctx context.Context, actor Actor, orderID string) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && o.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	return o, nil
}

type discard struct{}

func (discard) Notify(context.Context, notify.Kind, *order.Order) {}

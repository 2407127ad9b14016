package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxAttempts bounds how many times a compare-and-swap write is re-planned
// after losing a race.
const maxAttempts = 3

// errNoChange tells apply that the stored order already satisfies the
// requested transition.
var errNoChange = errors.New("no change")

// NewOrder is the input for Store.Create.
type NewOrder struct {
	UserID         string
	Items          []Item
	Address        Address
	OriginalAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	Coupon         *CouponRef
	PaymentMethod  PaymentMethod
}

// GatewayRef carries the external correlation ids recorded on payment.
type GatewayRef struct {
	OrderID   string
	PaymentID string
}

// RefundFunc refunds the captured payment of o. It is invoked by Cancel
// before the order is marked cancelled.
type RefundFunc func(ctx context.Context, o *Order) error

// Store owns the order lifecycle. It is the only writer of status, payment,
// amount and refund fields; every write is a conditional update keyed by the
// state the decision was made on.
type Store struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

// NewStore creates a Store over the given repository.
func NewStore(repo Repository) *Store {
	return &Store{
		repo:  repo,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Create validates and persists a new order in Order Placed with payment=false.
func (s *Store) Create(ctx context.Context, n NewOrder) (*Order, error) {
	if len(n.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, it := range n.Items {
		if it.Quantity <= 0 {
			return nil, &InvalidItemError{ProductID: it.ProductID, Reason: "quantity must be greater than 0"}
		}
		if it.UnitPrice.IsNegative() {
			return nil, &InvalidItemError{ProductID: it.ProductID, Reason: "price must not be negative"}
		}
	}
	if !n.PaymentMethod.Valid() {
		return nil, errors.Errorf("unsupported payment method %q", n.PaymentMethod)
	}
	if n.DiscountAmount.IsNegative() || n.DiscountAmount.GreaterThan(n.OriginalAmount) {
		return nil, errors.Errorf("discount %s outside [0, %s]", n.DiscountAmount, n.OriginalAmount)
	}

	o := &Order{
		ID:             s.newID(),
		UserID:         n.UserID,
		Items:          n.Items,
		Address:        n.Address,
		OriginalAmount: n.OriginalAmount.Round(2),
		DiscountAmount: n.DiscountAmount.Round(2),
		Coupon:         n.Coupon,
		PaymentMethod:  n.PaymentMethod,
		Status:         StatusPlaced,
		Date:           s.now().UTC(),
	}
	o.Amount = PayableAmount(o.OriginalAmount, o.DiscountAmount)

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// Get returns a single order.
func (s *Store) Get(ctx context.Context, id string) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns orders newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Order, error) {
	return s.repo.List(ctx, f)
}

// AttachGatewayOrder records the gateway-side order handle on an unpaid order.
func (s *Store) AttachGatewayOrder(ctx context.Context, id, gatewayOrderID string) (*Order, error) {
	o, _, err := s.apply(ctx, id, func(o *Order) (Precondition, Change, error) {
		if o.Payment {
			return Precondition{}, Change{}, ErrAlreadyPaid
		}
		if o.GatewayOrderID == gatewayOrderID {
			return Precondition{}, Change{}, errNoChange
		}
		return Precondition{Status: o.Status, Payment: ptr(false)},
			Change{GatewayOrderID: ptr(gatewayOrderID)}, nil
	})
	return o, err
}

// ConfirmPayment marks the order paid. applied is false when the order was
// already paid, in which case nothing is written and the stored gateway ids
// are kept.
func (s *Store) ConfirmPayment(ctx context.Context, id string, ref GatewayRef) (o *Order, applied bool, err error) {
	return s.apply(ctx, id, func(o *Order) (Precondition, Change, error) {
		if o.Payment {
			return Precondition{}, Change{}, errNoChange
		}
		ch := Change{Payment: ptr(true)}
		if ref.OrderID != "" {
			ch.GatewayOrderID = ptr(ref.OrderID)
		}
		if ref.PaymentID != "" {
			ch.GatewayPaymentID = ptr(ref.PaymentID)
		}
		return Precondition{Status: o.Status, Payment: ptr(false)}, ch, nil
	})
}

// Advance moves the order forward along the fulfilment chain. A tracking URL
// is persisted only when the target is Shipped.
func (s *Store) Advance(ctx context.Context, id string, target Status, trackingURL string) (*Order, error) {
	var tracking *string
	if target == StatusShipped && trackingURL != "" {
		u, err := ValidateTrackingURL(trackingURL)
		if err != nil {
			return nil, err
		}
		tracking = &u
	}

	o, _, err := s.apply(ctx, id, func(o *Order) (Precondition, Change, error) {
		if !o.Status.CanAdvance(target) {
			return Precondition{}, Change{}, errors.Wrapf(ErrInvalidTransition, "%s -> %s", o.Status, target)
		}
		return Precondition{Status: o.Status}, Change{Status: ptr(target), TrackingURL: tracking}, nil
	})
	return o, err
}

// Cancel cancels an order in Order Placed or Packing. When a captured
// gateway payment exists and has not been refunded, refund runs first; if it
// fails the order is left untouched.
func (s *Store) Cancel(ctx context.Context, id string, refund RefundFunc) (*Order, error) {
	refunded := false
	o, _, err := s.apply(ctx, id, func(o *Order) (Precondition, Change, error) {
		if !o.Status.Cancellable() {
			return Precondition{}, Change{}, errors.Wrapf(ErrOrderNotCancellable, "status %q", o.Status)
		}
		if o.RefundDue() && !refunded {
			if refund == nil {
				return Precondition{}, Change{}, errors.New("refund required but no refund handler configured")
			}
			if err := refund(ctx, o); err != nil {
				return Precondition{}, Change{}, err
			}
			refunded = true
		}
		ch := Change{Status: ptr(StatusCancelled)}
		if refunded {
			now := s.now().UTC()
			ch.Refunded = ptr(true)
			ch.RefundDate = &now
		}
		return Precondition{Status: o.Status, Payment: ptr(o.Payment), Refunded: ptr(o.Refunded)}, ch, nil
	})
	if err != nil && refunded {
		// The refund went out but the cancellation was not written. Recording
		// it keeps a retried cancel from refunding twice.
		if _, markErr := s.RecordRefund(context.WithoutCancel(ctx), id); markErr != nil {
			return nil, errors.Wrapf(markErr, "record refund after failed cancellation: %v", err)
		}
		return nil, errors.Wrap(err, "refund issued, order needs manual review")
	}
	return o, err
}

// RecordRefund marks a refund issued outside Cancel. Already refunded orders
// are returned unchanged.
func (s *Store) RecordRefund(ctx context.Context, id string) (*Order, error) {
	o, _, err := s.apply(ctx, id, func(o *Order) (Precondition, Change, error) {
		if o.Refunded {
			return Precondition{}, Change{}, errNoChange
		}
		now := s.now().UTC()
		return Precondition{Status: o.Status, Refunded: ptr(false)},
			Change{Refunded: ptr(true), RefundDate: &now}, nil
	})
	return o, err
}

// DeleteUnpaid removes a pending order whose hosted checkout failed.
// Paid orders are never deleted.
func (s *Store) DeleteUnpaid(ctx context.Context, id string) error {
	for attempt := 1; ; attempt++ {
		o, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if o.Payment {
			return ErrAlreadyPaid
		}
		err = s.repo.Delete(ctx, id, Precondition{Status: o.Status, Payment: ptr(false)})
		if err == nil || !errors.Is(err, ErrConflict) || attempt >= maxAttempts {
			return err
		}
	}
}

// apply loads the order, lets plan decide the conditional write and retries
// when another writer got there first. applied is false when plan reported
// that nothing needs to change.
func (s *Store) apply(
	ctx context.Context,
	id string,
	plan func(o *Order) (Precondition, Change, error),
) (*Order, bool, error) {
	for attempt := 1; ; attempt++ {
		o, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, false, err
		}

		expect, ch, err := plan(o)
		if errors.Is(err, errNoChange) {
			return o, false, nil
		}
		if err != nil {
			return nil, false, err
		}

		updated, err := s.repo.Update(ctx, id, expect, ch)
		if err == nil {
			return updated, true, nil
		}
		if !errors.Is(err, ErrConflict) || attempt >= maxAttempts {
			return nil, false, err
		}
	}
}

// RefundDue reports whether cancelling this order must refund a captured
// gateway payment first.
func (o *Order) RefundDue() bool {
	return o.PaymentMethod == MethodGateway && o.Payment && o.GatewayPaymentID != "" && !o.Refunded
}

// InvalidItemError indicates a line item failed validation.
type InvalidItemError struct {
	ProductID string
	Reason    string
}

func (e *InvalidItemError) Error() string {
	return "item " + e.ProductID + ": " + e.Reason
}

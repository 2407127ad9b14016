package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/SG-Fashion/sgfashion/internal/domain/cart"
	"github.com/SG-Fashion/sgfashion/internal/domain/notify"
	"github.com/SG-Fashion/sgfashion/internal/domain/order"
	"github.com/SG-Fashion/sgfashion/internal/domain/payment"
)

// Cancel cancels an order on behalf of its owner or an admin. A captured
// gateway payment is refunded first; if the refund fails the order is left
// unchanged and the error matches payment.ErrRefundFailed. An unpaid gateway
// order is checked with the gateway so a capture not yet verified is
// refunded too.
func (s *Service) Cancel(ctx context.Context, actor Actor, orderID string) (*order.Order, error) {
	current, err := s.owned(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.recordCapture(ctx, current); err != nil {
		return nil, err
	}

	refunded := false
	o, err := s.orders.Cancel(ctx, orderID, func(ctx context.Context, o *order.Order) error {
		if s.methods.Gateway == nil {
			return &payment.RefundError{
				PaymentID: o.GatewayPaymentID,
				Err:       errors.Wrapf(payment.ErrMethodUnavailable, "%s", o.PaymentMethod),
			}
		}
		if err := s.methods.Gateway.Refund(ctx, o); err != nil {
			return err
		}
		refunded = true
		s.refunds.Add(ctx, 1, methodAttr(o.PaymentMethod))
		s.lg.Info("Refund issued",
			zap.String("order_id", o.ID),
			zap.String("payment_id", o.GatewayPaymentID),
			zap.String("amount", o.Amount.String()),
		)
		return nil
	})
	if err != nil {
		if refunded {
			s.lg.Error("Refund issued but cancellation failed, needs manual review",
				zap.Error(err),
				zap.String("order_id", orderID),
			)
		}
		return nil, err
	}

	s.cancelled.Add(ctx, 1, methodAttr(o.PaymentMethod))
	s.lg.Info("Order cancelled",
		zap.String("order_id", o.ID),
		zap.Bool("admin", actor.Admin),
		zap.Bool("refunded", o.Refunded),
	)
	s.notifier.Notify(ctx, notify.KindCancelled, o)
	return o, nil
}

// recordCapture marks an unpaid, cancellable gateway order paid when the
// gateway reports a capture, so that cancelling it refunds the payment.
func (s *Service) recordCapture(ctx context.Context, o *order.Order) error {
	if o.PaymentMethod != order.MethodGateway || o.Payment || !o.Status.Cancellable() {
		return nil
	}
	st, err := s.settlement(ctx, o)
	if err != nil {
		return errors.Wrap(err, "check gateway settlement")
	}
	if st == nil || !st.Paid {
		return nil
	}
	_, applied, err := s.orders.ConfirmPayment(ctx, o.ID, order.GatewayRef{
		OrderID:   st.Reference,
		PaymentID: st.PaymentID,
	})
	if err != nil {
		return errors.Wrap(err, "record captured payment")
	}
	if applied {
		s.confirmed.Add(ctx, 1, methodAttr(o.PaymentMethod))
		s.lg.Info("Unverified capture recorded before cancellation",
			zap.String("order_id", o.ID),
			zap.String("payment_id", st.PaymentID),
		)
	}
	return nil
}

// DeletePending removes the user's unpaid gateway order after the payment
// window was abandoned. The gateway is asked first: a payment that went
// through after all is confirmed and the order is kept.
func (s *Service) DeletePending(ctx context.Context, userID, orderID string) (*VerifyResult, error) {
	o, err := s.owned(ctx, Actor{UserID: userID}, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentMethod == order.MethodCOD {
		return nil, errors.Wrapf(ErrNotAwaitingPayment, "order paid by %s", o.PaymentMethod)
	}
	if o.Payment {
		return nil, order.ErrAlreadyPaid
	}
	if o.Status != order.StatusPlaced {
		return nil, errors.Wrapf(ErrNotAwaitingPayment, "status %q", o.Status)
	}

	st, err := s.settlement(ctx, o)
	if err != nil {
		return nil, errors.Wrap(err, "check gateway settlement")
	}
	if st != nil && st.Paid {
		return s.confirm(ctx, o.ID, st)
	}

	err = s.orders.DeleteUnpaid(ctx, o.ID)
	switch {
	case errors.Is(err, order.ErrAlreadyPaid):
		return nil, err
	case errors.Is(err, order.ErrNotFound):
		return &VerifyResult{Order: o, Deleted: true}, nil
	case err != nil:
		return nil, errors.Wrap(err, "delete pending order")
	}
	s.lg.Info("Pending order deleted",
		zap.String("order_id", o.ID),
		zap.String("method", string(o.PaymentMethod)),
	)
	return &VerifyResult{Order: o, Deleted: true}, nil
}

// settlement asks the order's gateway for its payment state. It returns nil
// when no gateway object was created for the order.
func (s *Service) settlement(ctx context.Context, o *order.Order) (*payment.Settlement, error) {
	if o.GatewayOrderID == "" {
		return nil, nil
	}
	switch o.PaymentMethod {
	case order.MethodGateway:
		if s.methods.Gateway == nil {
			return nil, errors.Wrapf(payment.ErrMethodUnavailable, "%s", o.PaymentMethod)
		}
		st, err := s.methods.Gateway.Settle(ctx, o.GatewayOrderID)
		if err != nil {
			return nil, err
		}
		if st.Paid {
			if st.Receipt != "" && st.Receipt != o.ID {
				err := errors.Wrapf(payment.ErrReceiptMismatch, "gateway order %s receipt %s", o.GatewayOrderID, st.Receipt)
				s.reviewIfMismatch(err, o)
				return nil, err
			}
			if err := st.CheckAmount(o); err != nil {
				s.reviewIfMismatch(err, o)
				return nil, err
			}
		}
		return st, nil
	case order.MethodHosted:
		if s.methods.Hosted == nil {
			return nil, errors.Wrapf(payment.ErrMethodUnavailable, "%s", o.PaymentMethod)
		}
		st, err := s.methods.Hosted.Settle(ctx, o)
		if errors.Is(err, payment.ErrNotSettled) {
			return &payment.Settlement{Reference: o.GatewayOrderID}, nil
		}
		if err != nil {
			s.reviewIfMismatch(err, o)
			return nil, err
		}
		return st, nil
	default:
		return nil, nil
	}
}

// UpdateStatus moves an order forward on behalf of an admin.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status order.Status, trackingURL string) (*order.Order, error) {
	o, err := s.orders.Advance(ctx, orderID, status, trackingURL)
	if err != nil {
		return nil, err
	}
	s.lg.Info("Order status updated",
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
	)
	s.notifier.Notify(ctx, notify.KindStatus, o)
	return o, nil
}

// ListOrders returns every order, newest first.
func (s *Service) ListOrders(ctx context.Context, limit int) ([]order.Order, error) {
	return s.orders.List(ctx, order.Filter{Limit: limit})
}

// ListUserOrders returns the user's orders, newest first.
func (s *Service) ListUserOrders(ctx context.Context, userID string) ([]order.Order, error) {
	return s.orders.List(ctx, order.Filter{UserID: userID})
}

// GetOrder returns one order owned by userID.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*order.Order, error) {
	return s.owned(ctx, Actor{UserID: userID}, orderID)
}

// MergeCart adds a guest cart into the user's cart at login.
func (s *Service) MergeCart(ctx context.Context, userID string, guest cart.Cart) error {
	return s.carts.Merge(ctx, userID, guest)
}

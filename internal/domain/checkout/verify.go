package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/SG-Fashion/sgfashion/internal/domain/notify"
	"github.com/SG-Fashion/sgfashion/internal/domain/order"
	"github.com/SG-Fashion/sgfashion/internal/domain/payment"
)

// VerifyResult reports the outcome of a verification call.
type VerifyResult struct {
	Order *order.Order
	// Paid is true when the order is paid after the call.
	Paid bool
	// Applied is true only for the call that marked the order paid.
	Applied bool
	// Deleted is true when the unpaid order was removed.
	Deleted bool
	// Refunded is true when the payment landed on a cancelled order and was
	// returned.
	Refunded bool
}

// VerifyHosted handles the hosted checkout return. On success the session is
// checked with the gateway before the order is marked paid; on failure the
// unpaid order is deleted. Repeated calls for a paid order change nothing.
func (s *Service) VerifyHosted(ctx context.Context, userID, orderID string, success bool) (*VerifyResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.VerifyHosted",
		trace.WithAttributes(attribute.String("order.id", orderID), attribute.Bool("success", success)),
	)
	defer span.End()

	o, err := s.owned(ctx, Actor{UserID: userID}, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentMethod != order.MethodHosted {
		return nil, errors.Wrapf(ErrNotAwaitingPayment, "order paid by %s", o.PaymentMethod)
	}
	if o.Payment {
		return &VerifyResult{Order: o, Paid: true}, nil
	}

	if !success {
		err := s.orders.DeleteUnpaid(ctx, o.ID)
		switch {
		case errors.Is(err, order.ErrAlreadyPaid):
			current, getErr := s.orders.Get(ctx, o.ID)
			if getErr != nil {
				return nil, getErr
			}
			return &VerifyResult{Order: current, Paid: true}, nil
		case errors.Is(err, order.ErrNotFound):
			return &VerifyResult{Order: o, Deleted: true}, nil
		case err != nil:
			return nil, errors.Wrap(err, "delete unpaid order")
		}
		s.lg.Info("Hosted checkout failed, order deleted", zap.String("order_id", o.ID))
		return &VerifyResult{Order: o, Deleted: true}, nil
	}

	if s.methods.Hosted == nil {
		return nil, errors.Wrapf(payment.ErrMethodUnavailable, "%s", order.MethodHosted)
	}
	st, err := s.methods.Hosted.Settle(ctx, o)
	if err != nil {
		s.reviewIfMismatch(err, o)
		return nil, err
	}
	return s.confirm(ctx, o.ID, st)
}

// VerifyGateway pulls settlement for a gateway order and marks the local
// order, identified by the gateway receipt, as paid. Idempotent.
func (s *Service) VerifyGateway(ctx context.Context, userID, gatewayOrderID string) (*VerifyResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.VerifyGateway",
		trace.WithAttributes(attribute.String("gateway.order_id", gatewayOrderID)),
	)
	defer span.End()

	if s.methods.Gateway == nil {
		return nil, errors.Wrapf(payment.ErrMethodUnavailable, "%s", order.MethodGateway)
	}
	st, err := s.methods.Gateway.Settle(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}
	if st.Receipt == "" {
		return nil, errors.Wrapf(payment.ErrReceiptMismatch, "gateway order %s has no receipt", gatewayOrderID)
	}

	o, err := s.owned(ctx, Actor{UserID: userID}, st.Receipt)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, errors.Wrapf(payment.ErrReceiptMismatch, "gateway order %s receipt %s", gatewayOrderID, st.Receipt)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", o.ID))
	if o.PaymentMethod != order.MethodGateway {
		return nil, errors.Wrapf(payment.ErrReceiptMismatch, "order %s paid by %s", o.ID, o.PaymentMethod)
	}
	if o.Payment {
		if o.Status == order.StatusCancelled {
			return s.refundCancelled(ctx, o, false)
		}
		return &VerifyResult{Order: o, Paid: true}, nil
	}
	if !st.Paid {
		return &VerifyResult{Order: o}, nil
	}
	if err := st.CheckAmount(o); err != nil {
		s.reviewIfMismatch(err, o)
		return nil, err
	}
	return s.confirm(ctx, o.ID, st)
}

// confirm marks the order paid. Only the call that applies the change clears
// the cart and notifies. A payment on a cancelled order is refunded instead.
func (s *Service) confirm(ctx context.Context, orderID string, st *payment.Settlement) (*VerifyResult, error) {
	o, applied, err := s.orders.ConfirmPayment(ctx, orderID, order.GatewayRef{
		OrderID:   st.Reference,
		PaymentID: st.PaymentID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "confirm payment")
	}
	if applied {
		s.confirmed.Add(ctx, 1, methodAttr(o.PaymentMethod))
		s.lg.Info("Payment confirmed", zap.String("order_id", o.ID), zap.String("payment_id", st.PaymentID))
	}
	if o.Status == order.StatusCancelled {
		return s.refundCancelled(ctx, o, applied)
	}
	if !applied {
		return &VerifyResult{Order: o, Paid: true}, nil
	}

	s.clearCart(ctx, o)
	s.notifier.Notify(ctx, notify.KindPayment, o)
	return &VerifyResult{Order: o, Paid: true, Applied: true}, nil
}

// refundCancelled returns a payment captured for an order that was already
// cancelled. The cart is kept and no payment notification is sent.
func (s *Service) refundCancelled(ctx context.Context, o *order.Order, applied bool) (*VerifyResult, error) {
	res := &VerifyResult{Order: o, Paid: true, Applied: applied, Refunded: o.Refunded}
	if o.Refunded {
		return res, nil
	}
	lg := s.lg.With(zap.String("order_id", o.ID), zap.String("payment_id", o.GatewayPaymentID))
	if !o.RefundDue() {
		lg.Error("Payment on cancelled order has no automatic refund, needs manual review",
			zap.String("method", string(o.PaymentMethod)),
		)
		return res, nil
	}
	if s.methods.Gateway == nil {
		return nil, &payment.RefundError{
			PaymentID: o.GatewayPaymentID,
			Err:       errors.Wrapf(payment.ErrMethodUnavailable, "%s", o.PaymentMethod),
		}
	}
	if err := s.methods.Gateway.Refund(ctx, o); err != nil {
		lg.Error("Refund of payment on cancelled order failed", zap.Error(err))
		return nil, err
	}
	s.refunds.Add(ctx, 1, methodAttr(o.PaymentMethod))

	updated, err := s.orders.RecordRefund(context.WithoutCancel(ctx), o.ID)
	if err != nil {
		lg.Error("Refund issued but not recorded, needs manual review", zap.Error(err))
		return nil, errors.Wrap(err, "record refund")
	}
	lg.Info("Payment on cancelled order refunded", zap.String("amount", o.Amount.String()))
	res.Order = updated
	res.Refunded = true
	return res, nil
}

func (s *Service) reviewIfMismatch(err error, o *order.Order) {
	if errors.Is(err, payment.ErrAmountMismatch) || errors.Is(err, payment.ErrReceiptMismatch) {
		s.lg.Error("Gateway settlement does not match order, needs manual review",
			zap.Error(err),
			zap.String("order_id", o.ID),
			zap.String("amount", o.Amount.String()),
		)
	}
}

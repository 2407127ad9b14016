package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/SG-Fashion/sgfashion/internal/domain/cart"
	"github.com/SG-Fashion/sgfashion/internal/domain/notify"
	"github.com/SG-Fashion/sgfashion/internal/domain/order"
	"github.com/SG-Fashion/sgfashion/internal/domain/payment"
)

// LineRequest is a client requested line. Prices are never taken from the
// client.
type LineRequest struct {
	ProductID string
	Size      string
	Quantity  int
}

// PlaceRequest places an order.
type PlaceRequest struct {
	UserID string
	Method order.PaymentMethod
	// Items are ordered as given; when empty the user's stored cart is used.
	Items      []LineRequest
	Address    order.Address
	CouponCode string
	// ClientAmount is the total the client displayed. It is only compared
	// and logged.
	ClientAmount decimal.NullDecimal
}

// PlaceResult is everything the client needs to complete payment.
type PlaceResult struct {
	Order  *order.Order
	Intent *payment.Intent
}

// Quote is the priced cart with the coupon applied.
type Quote struct {
	Items          []order.Item
	Subtotal       decimal.Decimal
	DeliveryCharge decimal.Decimal
	// OriginalAmount is Subtotal plus DeliveryCharge; coupons apply to it.
	OriginalAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	AmountAfter    decimal.Decimal
	Coupon         *order.CouponRef
}

// PlaceOrder prices the cart, applies the coupon, persists the order and
// starts payment. The order is durable before any gateway call. A gateway
// failure after that returns *PaymentSetupError carrying the order id.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceRequest) (*PlaceResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.PlaceOrder",
		trace.WithAttributes(attribute.String("payment.method", string(req.Method))),
	)
	defer span.End()

	co, err := s.methods.For(req.Method)
	if err != nil {
		return nil, err
	}

	lines := req.Items
	if len(lines) == 0 {
		if lines, err = s.storedLines(ctx, req.UserID); err != nil {
			return nil, err
		}
	}
	q, err := s.quote(ctx, lines, req.CouponCode)
	if err != nil {
		return nil, err
	}
	if req.Method != order.MethodCOD && !q.AmountAfter.IsPositive() {
		return nil, ErrNothingToCharge
	}
	if req.ClientAmount.Valid && !req.ClientAmount.Decimal.Equal(q.OriginalAmount) {
		s.lg.Info("Client amount differs from server price",
			zap.String("user_id", req.UserID),
			zap.String("client_amount", req.ClientAmount.Decimal.String()),
			zap.String("server_amount", q.OriginalAmount.String()),
		)
	}

	o, err := s.orders.Create(ctx, order.NewOrder{
		UserID:         req.UserID,
		Items:          q.Items,
		Address:        req.Address,
		OriginalAmount: q.OriginalAmount,
		DiscountAmount: q.DiscountAmount,
		Coupon:         q.Coupon,
		PaymentMethod:  req.Method,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", o.ID))
	s.placed.Add(ctx, 1, methodAttr(o.PaymentMethod))
	s.lg.Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("method", string(o.PaymentMethod)),
		zap.String("amount", o.Amount.String()),
	)

	if req.Method == order.MethodCOD {
		s.clearCart(ctx, o)
		s.notifier.Notify(ctx, notify.KindPlaced, o)
		return &PlaceResult{Order: o, Intent: &payment.Intent{Method: order.MethodCOD}}, nil
	}

	res, err := s.startPayment(ctx, co, o)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, notify.KindPlaced, res.Order)
	return res, nil
}

// ResumePayment starts a new gateway payment for a pending unpaid order.
func (s *Service) ResumePayment(ctx context.Context, userID, orderID string) (*PlaceResult, error) {
	o, err := s.owned(ctx, Actor{UserID: userID}, orderID)
	if err != nil {
		return nil, err
	}
	if o.Payment || o.PaymentMethod == order.MethodCOD || o.Status != order.StatusPlaced {
		return nil, ErrNotAwaitingPayment
	}
	co, err := s.methods.For(o.PaymentMethod)
	if err != nil {
		return nil, err
	}
	return s.startPayment(ctx, co, o)
}

func (s *Service) startPayment(ctx context.Context, co payment.Checkout, o *order.Order) (*PlaceResult, error) {
	intent, err := co.Start(ctx, o)
	if err != nil {
		s.lg.Warn("Start payment",
			zap.Error(err),
			zap.String("order_id", o.ID),
			zap.Bool("retryable", payment.Retryable(err)),
		)
		return nil, &PaymentSetupError{OrderID: o.ID, Err: err}
	}
	if intent.Reference != "" {
		attached, err := s.orders.AttachGatewayOrder(ctx, o.ID, intent.Reference)
		if err != nil {
			return nil, &PaymentSetupError{OrderID: o.ID, Err: errors.Wrap(err, "record gateway reference")}
		}
		o = attached
	}
	return &PlaceResult{Order: o, Intent: intent}, nil
}

// PreviewCoupon prices lines (or the stored cart) with code applied. Nothing
// is persisted.
func (s *Service) PreviewCoupon(ctx context.Context, userID, code string, lines []LineRequest) (*Quote, error) {
	if len(lines) == 0 {
		var err error
		if lines, err = s.storedLines(ctx, userID); err != nil {
			return nil, err
		}
	}
	return s.quote(ctx, lines, code)
}

func (s *Service) storedLines(ctx context.Context, userID string) ([]LineRequest, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return linesFromCart(c), nil
}

func linesFromCart(c cart.Cart) []LineRequest {
	var lines []LineRequest
	for _, l := range c.Lines() {
		lines = append(lines, LineRequest{ProductID: l.ProductID, Size: l.Size, Quantity: l.Quantity})
	}
	return lines
}

func (s *Service) quote(ctx context.Context, lines []LineRequest, code string) (*Quote, error) {
	items, subtotal, err := s.price(ctx, lines)
	if err != nil {
		return nil, err
	}
	original := subtotal.Add(s.delivery)

	out, err := s.coupons.Evaluate(ctx, code, items, original)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Items:          out.Items,
		Subtotal:       subtotal,
		DeliveryCharge: s.delivery,
		OriginalAmount: original,
		DiscountAmount: out.DiscountAmount,
		AmountAfter:    out.AmountAfter,
		Coupon:         out.Ref(),
	}, nil
}

// price snapshots names and unit prices from the catalog.
func (s *Service) price(ctx context.Context, lines []LineRequest) ([]order.Item, decimal.Decimal, error) {
	if len(lines) == 0 {
		return nil, decimal.Zero, ErrEmptyCart
	}

	ids := make([]string, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, decimal.Zero, &order.InvalidItemError{ProductID: l.ProductID, Reason: "quantity must be greater than 0"}
		}
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}

	products, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "load products")
	}
	byID := make(map[string]int, len(products))
	for i := range products {
		byID[products[i].ID] = i
	}

	items := make([]order.Item, 0, len(lines))
	subtotal := decimal.Zero
	for _, l := range lines {
		i, ok := byID[l.ProductID]
		if !ok {
			return nil, decimal.Zero, &UnavailableItemError{ProductID: l.ProductID, Reason: "not found"}
		}
		p := products[i]
		if !p.InStock {
			return nil, decimal.Zero, &UnavailableItemError{ProductID: p.ID, Reason: "out of stock"}
		}
		if !p.HasSize(l.Size) {
			return nil, decimal.Zero, &UnavailableItemError{ProductID: p.ID, Size: l.Size, Reason: "size not available"}
		}
		it := order.Item{
			ProductID: p.ID,
			Name:      p.Name,
			Size:      l.Size,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
		}
		items = append(items, it)
		subtotal = subtotal.Add(it.LineTotal())
	}
	return items, subtotal, nil
}

func (s *Service) clearCart(ctx context.Context, o *order.Order) {
	if err := s.carts.Clear(ctx, o.UserID); err != nil {
		s.lg.Error("Clear cart",
			zap.Error(err),
			zap.String("order_id", o.ID),
			zap.String("user_id", o.UserID),
		)
	}
}

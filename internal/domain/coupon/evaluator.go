package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/SG-Fashion/sgfashion/internal/domain/order"
	"github.com/SG-Fashion/sgfashion/internal/domain/product"
)

var hundred = decimal.NewFromInt(100)

// Outcome is the result of evaluating a coupon against an order amount.
type Outcome struct {
	AmountAfter    decimal.Decimal
	DiscountAmount decimal.Decimal
	// Coupon is nil when no code was supplied.
	Coupon *Coupon
	// Items is the input items plus the freebie line, if any.
	Items []order.Item
}

// Ref returns the order's coupon reference, or nil without a coupon.
func (o *Outcome) Ref() *order.CouponRef {
	if o.Coupon == nil {
		return nil
	}
	return &order.CouponRef{
		Code:     o.Coupon.Code,
		CouponID: o.Coupon.ID,
		Type:     string(o.Coupon.Type),
	}
}

// Evaluator applies coupon rules. It reads coupons and the catalog and has no
// other side effects, so it is safe to run for previews.
type Evaluator struct {
	coupons Repository
	catalog product.Repository
	now     func() time.Time
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(coupons Repository, catalog product.Repository) *Evaluator {
	return &Evaluator{
		coupons: coupons,
		catalog: catalog,
		now:     time.Now,
	}
}

// Evaluate applies code to amount. An empty code returns amount unchanged.
// items is never modified; the returned Outcome holds its own copy.
func (e *Evaluator) Evaluate(ctx context.Context, code string, items []order.Item, amount decimal.Decimal) (*Outcome, error) {
	out := &Outcome{
		AmountAfter:    amount,
		DiscountAmount: decimal.Zero,
		Items:          append([]order.Item(nil), items...),
	}
	code = NormalizeCode(code)
	if code == "" {
		return out, nil
	}

	c, err := e.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if !c.IsActive {
		return nil, ErrInvalidCoupon
	}
	if !c.ExpiryDate.IsZero() && c.ExpiryDate.Before(e.now()) {
		return nil, ErrCouponExpired
	}
	if amount.LessThan(c.MinPurchase) {
		return nil, &MinPurchaseError{Min: c.MinPurchase}
	}

	switch c.Type {
	case TypeDiscount:
		discount, err := Discount(c, amount)
		if err != nil {
			return nil, err
		}
		out.DiscountAmount = discount
	case TypeFreebie:
		line, err := e.freebie(ctx, c)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, line)
	default:
		return nil, errors.Errorf("unsupported coupon type %q", c.Type)
	}

	out.Coupon = c
	out.AmountAfter = order.PayableAmount(amount, out.DiscountAmount)
	return out, nil
}

func (e *Evaluator) freebie(ctx context.Context, c *Coupon) (order.Item, error) {
	if c.FreebieProductID == "" {
		return order.Item{}, errors.Wrap(ErrFreebieUnavailable, "not configured")
	}
	p, err := e.catalog.GetByID(ctx, c.FreebieProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return order.Item{}, errors.Wrapf(ErrFreebieUnavailable, "product %s", c.FreebieProductID)
		}
		return order.Item{}, errors.Wrap(err, "lookup freebie")
	}
	return order.Item{
		ProductID: p.ID,
		Name:      p.Name,
		Quantity:  1,
		UnitPrice: decimal.Zero,
		Freebie:   true,
	}, nil
}

// Discount computes the money-off for a discount coupon. Percent discounts
// are rounded to a whole currency unit; the result never exceeds amount.
func Discount(c *Coupon, amount decimal.Decimal) (decimal.Decimal, error) {
	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercent:
		discount = amount.Mul(c.DiscountValue).Div(hundred).Round(0)
	case DiscountFlat:
		discount = c.DiscountValue
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type %q", c.DiscountType)
	}
	return floorAtZero(decimal.Min(discount, amount)), nil
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

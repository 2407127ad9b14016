package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type distinguishes money-off coupons from free-item coupons.
type Type string

const (
	TypeDiscount Type = "discount"
	TypeFreebie  Type = "freebie"
)

// DiscountType enumerates the supported discount strategies.
type DiscountType string

const (
	// DiscountPercent takes a percentage of the amount, rounded to a whole unit.
	DiscountPercent DiscountType = "percent"
	// DiscountFlat takes a fixed amount capped at the order amount.
	DiscountFlat DiscountType = "flat"
)

var (
	// ErrInvalidCoupon is returned when a code is unknown or inactive.
	ErrInvalidCoupon = errors.New("invalid coupon")
	// ErrCouponExpired is returned when the coupon expiry date has passed.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrMinPurchaseNotMet is the sentinel matched by *MinPurchaseError.
	ErrMinPurchaseNotMet = errors.New("minimum purchase not met")
	// ErrFreebieUnavailable is returned when a freebie coupon points at no
	// product or at a product that no longer exists.
	ErrFreebieUnavailable = errors.New("freebie unavailable")
)

// MinPurchaseError carries the minimum amount the coupon requires.
type MinPurchaseError struct {
	Min decimal.Decimal
}

func (e *MinPurchaseError) Error() string {
	return "minimum purchase ₹" + e.Min.String() + " required"
}

// Is makes errors.Is(err, ErrMinPurchaseNotMet) hold.
func (e *MinPurchaseError) Is(target error) bool {
	return target == ErrMinPurchaseNotMet
}

// Coupon is a read-only discount rule.
type Coupon struct {
	ID               string
	Code             string
	IsActive         bool
	ExpiryDate       time.Time
	MinPurchase      decimal.Decimal
	Type             Type
	DiscountType     DiscountType
	DiscountValue    decimal.Decimal
	FreebieProductID string
}

// Repository looks up coupons by normalized code. FindByCode returns
// ErrInvalidCoupon when no active coupon matches.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}

// NormalizeCode trims and upper-cases a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

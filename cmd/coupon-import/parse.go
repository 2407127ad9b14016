package main

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SG-Fashion/sgfashion/internal/domain/coupon"
)

// parseCoupon decodes one JSON line:
//
//	{"code":"SAVE10","type":"discount","discountType":"percent","discountValue":10,
//	 "minPurchase":499,"expiryDate":"2025-12-31T00:00:00Z","isActive":true}
//
// Freebie coupons carry "freebieProductId" instead of the discount fields.
// isActive defaults to true.
func parseCoupon(line []byte) (coupon.Coupon, error) {
	c := coupon.Coupon{IsActive: true}
	d := jx.DecodeBytes(line)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			c.ID, err = d.Str()
		case "code":
			c.Code, err = d.Str()
		case "type":
			var v string
			v, err = d.Str()
			c.Type = coupon.Type(v)
		case "discountType":
			var v string
			v, err = d.Str()
			c.DiscountType = coupon.DiscountType(v)
		case "discountValue":
			c.DiscountValue, err = decodeDecimal(d)
		case "minPurchase":
			c.MinPurchase, err = decodeDecimal(d)
		case "expiryDate":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var v string
			if v, err = d.Str(); err != nil {
				return err
			}
			c.ExpiryDate, err = time.Parse(time.RFC3339, v)
		case "freebieProductId":
			c.FreebieProductID, err = d.Str()
		case "isActive":
			c.IsActive, err = d.Bool()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return coupon.Coupon{}, err
	}

	c.Code = coupon.NormalizeCode(c.Code)
	if err := validate(c); err != nil {
		return coupon.Coupon{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return c, nil
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(v)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.Errorf("unexpected %s", d.Next())
	}
}

func validate(c coupon.Coupon) error {
	if c.Code == "" {
		return errors.New("code is required")
	}
	if c.MinPurchase.IsNegative() {
		return errors.New("minPurchase must not be negative")
	}
	switch c.Type {
	case coupon.TypeDiscount:
		switch c.DiscountType {
		case coupon.DiscountPercent:
			if c.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
				return errors.New("percent discount above 100")
			}
		case coupon.DiscountFlat:
		default:
			return errors.Errorf("unknown discountType %q", c.DiscountType)
		}
		if !c.DiscountValue.IsPositive() {
			return errors.New("discountValue must be positive")
		}
	case coupon.TypeFreebie:
		if c.FreebieProductID == "" {
			return errors.New("freebie coupon needs freebieProductId")
		}
	default:
		return errors.Errorf("unknown type %q", c.Type)
	}
	return nil
}

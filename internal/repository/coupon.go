package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SG-Fashion/sgfashion/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT id, code, is_active, expiry_date, min_purchase, type,
		discount_type, discount_value, freebie_product_id
		FROM coupons WHERE code = $1`

	upsertCouponSQL = `INSERT INTO coupons (id, code, is_active, expiry_date, min_purchase, type,
		discount_type, discount_value, freebie_product_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (code) DO UPDATE SET
		is_active = EXCLUDED.is_active, expiry_date = EXCLUDED.expiry_date,
		min_purchase = EXCLUDED.min_purchase, type = EXCLUDED.type,
		discount_type = EXCLUDED.discount_type, discount_value = EXCLUDED.discount_value,
		freebie_product_id = EXCLUDED.freebie_product_id`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL. Codes
// are stored normalized.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code. Inactive coupons are
// returned as stored; the evaluator decides what inactive means.
// Returns coupon.ErrInvalidCoupon when no coupon matches.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	code = coupon.NormalizeCode(code)
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// Upsert inserts a coupon or replaces the one with the same code.
func (r *CouponRepository) Upsert(ctx context.Context, c coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL, upsertArgs(c)...)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// UpsertBatch upserts coupons in one round trip.
func (r *CouponRepository) UpsertBatch(ctx context.Context, coupons []coupon.Coupon) error {
	batch := &pgx.Batch{}
	for _, c := range coupons {
		batch.Queue(upsertCouponSQL, upsertArgs(c)...)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d coupons: %w", len(coupons), err)
	}
	return nil
}

func upsertArgs(c coupon.Coupon) []any {
	var expiry *time.Time
	if !c.ExpiryDate.IsZero() {
		expiry = &c.ExpiryDate
	}
	return []any{
		c.ID, coupon.NormalizeCode(c.Code), c.IsActive, expiry, c.MinPurchase,
		string(c.Type), string(c.DiscountType), c.DiscountValue, c.FreebieProductID,
	}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c                 coupon.Coupon
		expiry            *time.Time
		typ, discountType string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.IsActive, &expiry, &c.MinPurchase, &typ,
		&discountType, &c.DiscountValue, &c.FreebieProductID,
	)
	if expiry != nil {
		c.ExpiryDate = *expiry
	}
	c.Type = coupon.Type(typ)
	c.DiscountType = coupon.DiscountType(discountType)
	return c, err
}

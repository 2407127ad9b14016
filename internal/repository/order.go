package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SG-Fashion/sgfashion/internal/domain/order"
)

const orderColumns = `id, user_id, items, address, original_amount, discount_amount, amount,
	coupon, payment_method, payment, status, tracking_url, refunded, refund_date,
	gateway_order_id, gateway_payment_id, date`

const (
	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE ($1 = '' OR user_id = $1)
	ORDER BY date DESC, id DESC
	LIMIT NULLIF($2::int, 0)`

	// The WHERE clause is the precondition; a NULL expectation is not checked.
	updateOrderSQL = `UPDATE orders SET
		status             = COALESCE($4, status),
		payment            = COALESCE($5, payment),
		tracking_url       = COALESCE($6, tracking_url),
		refunded           = COALESCE($7, refunded),
		refund_date        = COALESCE($8, refund_date),
		gateway_order_id   = COALESCE($9, gateway_order_id),
		gateway_payment_id = COALESCE($10, gateway_payment_id)
	WHERE id = $1 AND status = $2
		AND ($3::boolean IS NULL OR payment = $3)
		AND ($11::boolean IS NULL OR refunded = $11)
	RETURNING ` + orderColumns

	deleteOrderSQL = `DELETE FROM orders
	WHERE id = $1 AND status = $2
		AND ($3::boolean IS NULL OR payment = $3)
		AND ($4::boolean IS NULL OR refunded = $4)`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Updates
// and deletes are single conditional statements, so concurrent writers on
// one order are serialized by the row lock.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Items, address and coupon are stored as JSONB.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	address, err := json.Marshal(o.Address)
	if err != nil {
		return fmt.Errorf("marshaling order address: %w", err)
	}
	var coupon []byte
	if o.Coupon != nil {
		if coupon, err = json.Marshal(o.Coupon); err != nil {
			return fmt.Errorf("marshaling order coupon: %w", err)
		}
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, items, address, o.OriginalAmount, o.DiscountAmount, o.Amount,
		coupon, string(o.PaymentMethod), o.Payment, string(o.Status), o.TrackingURL,
		o.Refunded, o.RefundDate, o.GatewayOrderID, o.GatewayPaymentID, o.Date,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// List returns orders newest first. A zero limit returns every match.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, f.UserID, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func (r *OrderRepository) Update(ctx context.Context, id string, expect order.Precondition, ch order.Change) (*order.Order, error) {
	var status *string
	if ch.Status != nil {
		s := string(*ch.Status)
		status = &s
	}
	rows, err := r.pool.Query(ctx, updateOrderSQL,
		id, string(expect.Status), expect.Payment,
		status, ch.Payment, ch.TrackingURL, ch.Refunded, ch.RefundDate,
		ch.GatewayOrderID, ch.GatewayPaymentID,
		expect.Refunded,
	)
	if err != nil {
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.missOrConflict(ctx, id)
		}
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}
	return &o, nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string, expect order.Precondition) error {
	tag, err := r.pool.Exec(ctx, deleteOrderSQL, id, string(expect.Status), expect.Payment, expect.Refunded)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

// missOrConflict tells a missing order from a failed precondition after a
// conditional write touched no rows.
func (r *OrderRepository) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrConflict
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                      order.Order
		items, address, coupon []byte
		method, status         string
		refundDate             *time.Time
	)
	err := row.Scan(
		&o.ID, &o.UserID, &items, &address, &o.OriginalAmount, &o.DiscountAmount, &o.Amount,
		&coupon, &method, &o.Payment, &status, &o.TrackingURL, &o.Refunded, &refundDate,
		&o.GatewayOrderID, &o.GatewayPaymentID, &o.Date,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("decoding items of order %q: %w", o.ID, err)
	}
	if err := json.Unmarshal(address, &o.Address); err != nil {
		return o, fmt.Errorf("decoding address of order %q: %w", o.ID, err)
	}
	if len(coupon) > 0 {
		o.Coupon = new(order.CouponRef)
		if err := json.Unmarshal(coupon, o.Coupon); err != nil {
			return o, fmt.Errorf("decoding coupon of order %q: %w", o.ID, err)
		}
	}
	o.PaymentMethod = order.PaymentMethod(method)
	o.Status = order.Status(status)
	o.RefundDate = refundDate
	return o, nil
}

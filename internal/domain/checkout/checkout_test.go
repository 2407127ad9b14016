package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SG-Fashion/sgfashion/internal/domain/cart"
	"github.com/SG-Fashion/sgfashion/internal/domain/coupon"
	"github.com/SG-Fashion/sgfashion/internal/domain/notify"
	"github.com/SG-Fashion/sgfashion/internal/domain/order"
	"github.com/SG-Fashion/sgfashion/internal/domain/order/ordertest"
	"github.com/SG-Fashion/sgfashion/internal/domain/payment"
	"github.com/SG-Fashion/sgfashion/internal/domain/product"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type mockCatalog struct {
	products map[string]product.Product
}

func (m *mockCatalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockCoupons struct {
	coupons map[string]*coupon.Coupon
}

func (m *mockCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.coupons[code]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	return c, nil
}

type mockCarts struct {
	mu     sync.Mutex
	carts  map[string]cart.Cart
	clears int
}

func (m *mockCarts) Get(_ context.Context, userID string) (cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.carts[userID], nil
}

func (m *mockCarts) Merge(_ context.Context, userID string, guest cart.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		c = cart.Cart{}
		m.carts[userID] = c
	}
	c.Merge(guest)
	return nil
}

func (m *mockCarts) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	delete(m.carts, userID)
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []notify.Kind
}

func (r *recordingNotifier) Notify(_ context.Context, kind notify.Kind, _ *order.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func (r *recordingNotifier) count(kind notify.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, k := range r.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

type mockOrderAPI struct {
	mu        sync.Mutex
	orders    map[string]*payment.GatewayOrder
	payments  map[string][]payment.GatewayPayment
	refunds   []int64
	createErr error
	refundErr error
}

func (m *mockOrderAPI) CreateOrder(_ context.Context, req payment.CreateOrderRequest) (*payment.GatewayOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	gwo := &payment.GatewayOrder{
		ID:       "order_" + req.Receipt,
		Receipt:  req.Receipt,
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   payment.GatewayOrderCreated,
	}
	m.orders[gwo.ID] = gwo
	return gwo, nil
}

func (m *mockOrderAPI) FetchOrder(_ context.Context, id string) (*payment.GatewayOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gwo, ok := m.orders[id]
	if !ok {
		return nil, errors.Wrap(payment.ErrGatewayRejected, "no such order")
	}
	cp := *gwo
	return &cp, nil
}

func (m *mockOrderAPI) Payments(_ context.Context, orderID string) ([]payment.GatewayPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[orderID], nil
}

func (m *mockOrderAPI) Refund(_ context.Context, _ string, amount int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refundErr != nil {
		return m.refundErr
	}
	m.refunds = append(m.refunds, amount)
	return nil
}

// pay simulates the customer completing payment on the gateway.
func (m *mockOrderAPI) pay(gatewayOrderID, paymentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gwo := m.orders[gatewayOrderID]
	gwo.Status = payment.GatewayOrderPaid
	gwo.AmountPaid = gwo.Amount
	m.payments[gatewayOrderID] = []payment.GatewayPayment{{ID: paymentID, Status: payment.GatewayPaymentCaptured, Amount: gwo.Amount}}
}

type mockSessions struct {
	sessions map[string]*payment.Session
}

func (m *mockSessions) CreateSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	var total int64
	for _, l := range req.Lines {
		total += l.UnitAmount * l.Quantity
	}
	s := &payment.Session{ID: "cs_" + req.OrderID, URL: "https://checkout.example.com/" + req.OrderID, Reference: req.OrderID, AmountTotal: total}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *mockSessions) GetSession(_ context.Context, id string) (*payment.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.Wrap(payment.ErrGatewayRejected, "no such session")
	}
	cp := *s
	return &cp, nil
}

type fixture struct {
	svc      *Service
	repo     *ordertest.Memory
	carts    *mockCarts
	notifier *recordingNotifier
	gateway  *mockOrderAPI
	sessions *mockSessions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	future := time.Now().Add(24 * time.Hour)
	catalog := &mockCatalog{products: map[string]product.Product{
		"p1":   {ID: "p1", Name: "Kurta", Price: d("500"), Sizes: []string{"S", "M", "L"}, InStock: true},
		"p2":   {ID: "p2", Name: "Dupatta", Price: d("250"), InStock: true},
		"p3":   {ID: "p3", Name: "Sold Out Saree", Price: d("2000"), InStock: false},
		"tote": {ID: "tote", Name: "Canvas Tote", Price: d("299"), InStock: true},
	}}
	coupons := &mockCoupons{coupons: map[string]*coupon.Coupon{
		"SAVE10": {
			ID: "c1", Code: "SAVE10", IsActive: true, ExpiryDate: future, MinPurchase: d("500"),
			Type: coupon.TypeDiscount, DiscountType: coupon.DiscountPercent, DiscountValue: d("10"),
		},
		"OLD": {
			ID: "c2", Code: "OLD", IsActive: true, ExpiryDate: time.Now().Add(-time.Hour),
			Type: coupon.TypeDiscount, DiscountType: coupon.DiscountFlat, DiscountValue: d("50"),
		},
		"FREETOTE": {ID: "c3", Code: "FREETOTE", IsActive: true, ExpiryDate: future, Type: coupon.TypeFreebie, FreebieProductID: "tote"},
		"GHOST":    {ID: "c4", Code: "GHOST", IsActive: true, ExpiryDate: future, Type: coupon.TypeFreebie, FreebieProductID: "deleted"},
		"ALLFREE": {
			ID: "c5", Code: "ALLFREE", IsActive: true, ExpiryDate: future,
			Type: coupon.TypeDiscount, DiscountType: coupon.DiscountPercent, DiscountValue: d("100"),
		},
	}}

	f := &fixture{
		repo:     ordertest.NewMemory(),
		carts:    &mockCarts{carts: map[string]cart.Cart{}},
		notifier: &recordingNotifier{},
		gateway:  &mockOrderAPI{orders: map[string]*payment.GatewayOrder{}, payments: map[string][]payment.GatewayPayment{}},
		sessions: &mockSessions{sessions: map[string]*payment.Session{}},
	}

	hosted, err := payment.NewHosted(f.sessions, payment.HostedConfig{
		Currency:       "inr",
		DeliveryCharge: d("10"),
		ReturnURL:      "https://shop.example.com/verify",
	})
	require.NoError(t, err)

	svc, err := NewService(Config{DeliveryCharge: d("10")}, Deps{
		Orders:  order.NewStore(f.repo),
		Catalog: catalog,
		Coupons: coupon.NewEvaluator(coupons, catalog),
		Carts:   f.carts,
		Methods: &payment.Methods{
			Hosted:  hosted,
			Gateway: payment.NewGateway(f.gateway, "INR"),
		},
		Notifier: f.notifier,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func twoKurtas() []LineRequest {
	return []LineRequest{{ProductID: "p1", Size: "M", Quantity: 2}}
}

func TestPlaceOrder_COD(t *testing.T) {
	f := newFixture(t)
	f.carts.carts["u1"] = cart.Cart{"p1": {"M": 2}}

	res, err := f.svc.PlaceOrder(context.Background(), PlaceRequest{
		UserID:     "u1",
		Method:     order.MethodCOD,
		Items:      twoKurtas(),
		Address:    order.Address{FirstName: "Asha", Phone: "9876543210"},
		CouponCode: "save10",
	})
	require.NoError(t, err)

	o := res.Order
	assert.Equal(t, order.StatusPlaced, o.Status)
	assert.False(t, o.Payment)
	assert.True(t, d("1010").Equal(o.OriginalAmount))
	assert.True(t, d("101").Equal(o.DiscountAmount))
	assert.True(t, d("909").Equal(o.Amount))
	require.NotNil(t, o.Coupon)
	assert.Equal(t, "SAVE10", o.Coupon.Code)
	assert.Equal(t, "Kurta", o.Items[0].Name)
	assert.True(t, d("500").Equal(o.Items[0].UnitPrice))

	assert.Equal(t, order.MethodCOD, res.Intent.Method)
	assert.Equal(t, 1, f.carts.clears)
	assert.Equal(t, 1, f.notifier.count(notify.KindPlaced))
}

func TestPlaceOrder_FromStoredCart(t *testing.T) {
	f := newFixture(t)
	f.carts.carts["u1"] = cart.Cart{"p1": {"L": 1}, "p2": {"FREE": 2}}

	res, err := f.svc.PlaceOrder(context.Background(), PlaceRequest{UserID: "u1", Method: order.MethodCOD})
	require.NoError(t, err)
	assert.Len(t, res.Order.Items, 2)
	assert.True(t, d("1010").Equal(res.Order.Amount))
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PlaceOrder(context.Background(), PlaceRequest{UserID: "u1", Method: order.MethodCOD})
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, f.repo.Len())
}

func TestPlaceOrder_RejectsBeforePersisting(t *testing.T) {
	tests := []struct {
		name    string
		items   []LineRequest
		code    string
		method  order.PaymentMethod
		wantErr error
		wantAs  any
	}{
		{name: "expired coupon", items: twoKurtas(), code: "OLD", method: order.MethodGateway, wantErr: coupon.ErrCouponExpired},
		{name: "unknown coupon", items: twoKurtas(), code: "NOPE", method: order.MethodCOD, wantErr: coupon.ErrInvalidCoupon},
		{name: "freebie deleted", items: twoKurtas(), code: "GHOST", method: order.MethodCOD, wantErr: coupon.ErrFreebieUnavailable},
		{name: "below minimum", items: []LineRequest{{ProductID: "p2", Quantity: 1}}, code: "SAVE10", method: order.MethodCOD, wantErr: coupon.ErrMinPurchaseNotMet},
		{name: "zero total on gateway", items: twoKurtas(), code: "ALLFREE", method: order.MethodGateway, wantErr: ErrNothingToCharge},
		{name: "unknown product", items: []LineRequest{{ProductID: "p404", Quantity: 1}}, method: order.MethodCOD, wantAs: new(*UnavailableItemError)},
		{name: "out of stock", items: []LineRequest{{ProductID: "p3", Quantity: 1}}, method: order.MethodCOD, wantAs: new(*UnavailableItemError)},
		{name: "size not sold", items: []LineRequest{{ProductID: "p1", Size: "XXL", Quantity: 1}}, method: order.MethodCOD, wantAs: new(*UnavailableItemError)},
		{name: "zero quantity", items: []LineRequest{{ProductID: "p1", Size: "M", Quantity: 0}}, method: order.MethodCOD, wantAs: new(*order.InvalidItemError)},
		{name: "unknown method", items: twoKurtas(), method: "Barter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.PlaceOrder(context.Background(), PlaceRequest{
				UserID: "u1", Method: tt.method, Items: tt.items, CouponCode: tt.code,
			})
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantAs != nil {
				require.ErrorAs(t, err, tt.wantAs)
			}
			assert.Zero(t, f.repo.Len(), "no order may be persisted")
			assert.Zero(t, f.carts.clears)
			assert.Empty(t, f.notifier.kinds)
		})
	}
}

func TestPlaceOrder_Freebie(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.PlaceOrder(context.Background(), PlaceRequest{
		UserID: "u1", Method: order.MethodCOD, Items: twoKurtas(), CouponCode: "FREETOTE",
	})
	require.NoError(t, err)

	require.Len(t, res.Order.Items, 2)
	free := res.Order.Items[1]
	assert.Equal(t, "tote", free.ProductID)
	assert.True(t, free.UnitPrice.IsZero())
	assert.True(t, d("1010").Equal(res.Order.Amount))
	assert.Equal(t, "freebie", res.Order.Coupon.Type)
}

func TestPlaceOrder_Gateway(t *testing.T) {
	f := newFixture(t)
	f.carts.carts["u1"] = cart.Cart{"p1": {"M": 2}}

	res, err := f.svc.PlaceOrder(context.Background(), PlaceRequest{
		UserID: "u1", Method: order.MethodGateway, Items: twoKurtas(), CouponCode: "SAVE10",
	})
	require.NoError(t, err)

	require.NotNil(t, res.Intent.GatewayOrder)
	gwo := res.Intent.GatewayOrder
	assert.Equal(t, int64(90900), gwo.Amount)
	assert.Equal(t, res.Order.ID, gwo.Receipt)
	assert.Equal(t, gwo.ID, res.Order.GatewayOrderID)

	stored, err := f.repo.Get(context.Background(), res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, gwo.ID, stored.GatewayOrderID)
	assert.False(t, stored.Payment)

	assert.Zero(t, f.carts.clears, "cart is cleared on payment, not placement")
	assert.Equal(t, 1, f.notifier.count(notify.KindPlaced))
}

func TestPlaceOrder_GatewayUnavailableKeepsOrder(t *testing.T) {
	f := newFixture(t)
	f.gateway.createErr = errors.Wrap(payment.ErrGatewayUnavailable, "502")

	_, err := f.svc.PlaceOrder(context.Background(), PlaceRequest{
		UserID: "u1", Method: order.MethodGateway, Items: twoKurtas(),
	})
	var setupErr *PaymentSetupError
	require.ErrorAs(t, err, &setupErr)
	require.ErrorIs(t, err, payment.ErrGatewayUnavailable)

	stored, err := f.repo.Get(context.Background(), setupErr.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPlaced, stored.Status)
	assert.Empty(t, stored.GatewayOrderID)

	f.gateway.createErr = nil
	res, err := f.svc.ResumePayment(context.Background(), "u1", setupErr.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "order_"+setupErr.OrderID, res.Order.GatewayOrderID)

	_, err = f.svc.ResumePayment(context.Background(), "u2", setupErr.OrderID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestVerifyGateway_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.carts.carts["u1"] = cart.Cart{"p1": {"M": 2}}

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodGateway, Items: twoKurtas(), CouponCode: "SAVE10"})
	require.NoError(t, err)
	gwID := res.Intent.GatewayOrder.ID

	pending, err := f.svc.VerifyGateway(ctx, "u1", gwID)
	require.NoError(t, err)
	assert.False(t, pending.Paid)

	f.gateway.pay(gwID, "pay_1")
	first, err := f.svc.VerifyGateway(ctx, "u1", gwID)
	require.NoError(t, err)
	assert.True(t, first.Paid)
	assert.True(t, first.Applied)
	assert.Equal(t, "pay_1", first.Order.GatewayPaymentID)

	f.gateway.pay(gwID, "pay_2")
	second, err := f.svc.VerifyGateway(ctx, "u1", gwID)
	require.NoError(t, err)
	assert.True(t, second.Paid)
	assert.False(t, second.Applied)
	assert.Equal(t, "pay_1", second.Order.GatewayPaymentID)

	assert.Equal(t, 1, f.carts.clears)
	assert.Equal(t, 1, f.notifier.count(notify.KindPayment))
}

func TestVerifyGateway_ConcurrentCallsApplyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodGateway, Items: twoKurtas()})
	require.NoError(t, err)
	gwID := res.Intent.GatewayOrder.ID
	f.gateway.pay(gwID, "pay_1")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.VerifyGateway(ctx, "u1", gwID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.carts.clears)
	assert.Equal(t, 1, f.notifier.count(notify.KindPayment))
}

func TestVerifyGateway_AmountMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodGateway, Items: twoKurtas()})
	require.NoError(t, err)
	gwID := res.Intent.GatewayOrder.ID
	f.gateway.pay(gwID, "pay_1")
	f.gateway.orders[gwID].Amount = 100

	_, err = f.svc.VerifyGateway(ctx, "u1", gwID)
	require.ErrorIs(t, err, payment.ErrAmountMismatch)

	stored, err := f.repo.Get(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.False(t, stored.Payment)
	assert.Zero(t, f.carts.clears)
}

func TestVerifyGateway_OtherUsersOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodGateway, Items: twoKurtas()})
	require.NoError(t, err)
	f.gateway.pay(res.Intent.GatewayOrder.ID, "pay_1")

	_, err = f.svc.VerifyGateway(ctx, "intruder", res.Intent.GatewayOrder.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestVerifyHosted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodHosted, Items: twoKurtas()})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example.com/"+res.Order.ID, res.Intent.RedirectURL)

	_, err = f.svc.VerifyHosted(ctx, "u1", res.Order.ID, true)
	require.ErrorIs(t, err, payment.ErrNotSettled)

	f.sessions.sessions["cs_"+res.Order.ID].Paid = true
	f.sessions.sessions["cs_"+res.Order.ID].PaymentID = "pi_1"

	out, err := f.svc.VerifyHosted(ctx, "u1", res.Order.ID, true)
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, "pi_1", out.Order.GatewayPaymentID)

	again, err := f.svc.VerifyHosted(ctx, "u1", res.Order.ID, false)
	require.NoError(t, err)
	assert.True(t, again.Paid)
	assert.False(t, again.Deleted, "paid orders are never deleted")
	assert.Equal(t, 1, f.carts.clears)
}

func TestVerifyHosted_FailureDeletesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodHosted, Items: twoKurtas()})
	require.NoError(t, err)

	out, err := f.svc.VerifyHosted(ctx, "u1", res.Order.ID, false)
	require.NoError(t, err)
	assert.True(t, out.Deleted)

	_, err = f.repo.Get(ctx, res.Order.ID)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestCancel_RefundsCapturedGatewayPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodGateway, Items: twoKurtas(), CouponCode: "SAVE10"})
	require.NoError(t, err)
	f.gateway.pay(res.Intent.GatewayOrder.ID, "pay_1")
	_, err = f.svc.VerifyGateway(ctx, "u1", res.Intent.GatewayOrder.ID)
	require.NoError(t, err)

	o, err := f.svc.Cancel(ctx, Actor{UserID: "u1"}, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, o.Status)
	assert.True(t, o.Refunded)
	require.NotNil(t, o.RefundDate)
	assert.Equal(t, []int64{90900}, f.gateway.refunds)
	assert.Equal(t, 1, f.notifier.count(notify.KindCancelled))

	_, err = f.svc.Cancel(ctx, Actor{UserID: "u1"}, res.Order.ID)
	require.ErrorIs(t, err, order.ErrOrderNotCancellable)
	assert.Len(t, f.gateway.refunds, 1)
}

func TestCancel_RefundFailureLeavesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodGateway, Items: twoKurtas()})
	require.NoError(t, err)
	f.gateway.pay(res.Intent.GatewayOrder.ID, "pay_1")
	_, err = f.svc.VerifyGateway(ctx, "u1", res.Intent.GatewayOrder.ID)
	require.NoError(t, err)

	f.gateway.refundErr = errors.Wrap(payment.ErrGatewayUnavailable, "timeout")
	_, err = f.svc.Cancel(ctx, Actor{UserID: "u1"}, res.Order.ID)
	require.ErrorIs(t, err, payment.ErrRefundFailed)

	stored, err := f.repo.Get(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPlaced, stored.Status)
	assert.False(t, stored.Refunded)
	assert.Zero(t, f.notifier.count(notify.KindCancelled))
}

func TestCancel_RefundsUnverifiedCapture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.carts.carts["u1"] = cart.Cart{"p1": {"M": 2}}

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodGateway, Items: twoKurtas(), CouponCode: "SAVE10"})
	require.NoError(t, err)
	gwID := res.Intent.GatewayOrder.ID
	f.gateway.pay(gwID, "pay_1")

	// The customer paid but verify never ran before the cancel.
	o, err := f.svc.Cancel(ctx, Actor{UserID: "u1"}, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, o.Status)
	assert.True(t, o.Payment)
	assert.Equal(t, "pay_1", o.GatewayPaymentID)
	assert.True(t, o.Refunded)
	assert.Equal(t, []int64{90900}, f.gateway.refunds)

	out, err := f.svc.VerifyGateway(ctx, "u1", gwID)
	require.NoError(t, err)
	assert.True(t, out.Refunded)
	assert.False(t, out.Applied)
	assert.Len(t, f.gateway.refunds, 1, "a late verify does not refund again")

	assert.Zero(t, f.carts.clears)
	assert.Zero(t, f.notifier.count(notify.KindPayment))
	assert.Equal(t, 1, f.notifier.count(notify.KindCancelled))
}

func TestCancel_UnpaidGatewayOrderChecksGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodGateway, Items: twoKurtas()})
	require.NoError(t, err)

	o, err := f.svc.Cancel(ctx, Actor{UserID: "u1"}, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, o.Status)
	assert.False(t, o.Payment)
	assert.False(t, o.Refunded)
	assert.Empty(t, f.gateway.refunds)
}

func TestCancel_GatewayDownKeepsUnpaidOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodGateway, Items: twoKurtas()})
	require.NoError(t, err)
	delete(f.gateway.orders, res.Intent.GatewayOrder.ID)

	_, err = f.svc.Cancel(ctx, Actor{UserID: "u1"}, res.Order.ID)
	require.ErrorIs(t, err, payment.ErrGatewayRejected)

	stored, err := f.repo.Get(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPlaced, stored.Status)
	assert.Zero(t, f.notifier.count(notify.KindCancelled))
}

func TestVerifyGateway_CaptureAfterCancelIsRefunded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.carts.carts["u1"] = cart.Cart{"p1": {"M": 2}}

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodGateway, Items: twoKurtas(), CouponCode: "SAVE10"})
	require.NoError(t, err)
	gwID := res.Intent.GatewayOrder.ID

	_, err = f.svc.Cancel(ctx, Actor{UserID: "u1"}, res.Order.ID)
	require.NoError(t, err)

	// The gateway window stayed open and the customer paid anyway.
	f.gateway.pay(gwID, "pay_1")
	out, err := f.svc.VerifyGateway(ctx, "u1", gwID)
	require.NoError(t, err)
	assert.True(t, out.Paid)
	assert.True(t, out.Applied)
	assert.True(t, out.Refunded)
	assert.Equal(t, order.StatusCancelled, out.Order.Status)
	require.NotNil(t, out.Order.RefundDate)

	again, err := f.svc.VerifyGateway(ctx, "u1", gwID)
	require.NoError(t, err)
	assert.True(t, again.Refunded)

	stored, err := f.repo.Get(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Payment)
	assert.True(t, stored.Refunded)
	assert.Equal(t, []int64{90900}, f.gateway.refunds)
	assert.Zero(t, f.carts.clears, "cart is kept for a refunded order")
	assert.Zero(t, f.notifier.count(notify.KindPayment))
}

func TestVerifyGateway_CaptureAfterCancelRefundFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodGateway, Items: twoKurtas()})
	require.NoError(t, err)
	gwID := res.Intent.GatewayOrder.ID
	_, err = f.svc.Cancel(ctx, Actor{UserID: "u1"}, res.Order.ID)
	require.NoError(t, err)

	f.gateway.pay(gwID, "pay_1")
	f.gateway.refundErr = errors.Wrap(payment.ErrGatewayUnavailable, "timeout")
	_, err = f.svc.VerifyGateway(ctx, "u1", gwID)
	require.ErrorIs(t, err, payment.ErrRefundFailed)

	stored, err := f.repo.Get(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Payment)
	assert.False(t, stored.Refunded)

	f.gateway.refundErr = nil
	out, err := f.svc.VerifyGateway(ctx, "u1", gwID)
	require.NoError(t, err)
	assert.True(t, out.Refunded)
	assert.Len(t, f.gateway.refunds, 1)
	assert.Zero(t, f.notifier.count(notify.KindPayment))
}

func TestDeletePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodGateway, Items: twoKurtas()})
	require.NoError(t, err)

	_, err = f.svc.DeletePending(ctx, "u2", res.Order.ID)
	require.ErrorIs(t, err, ErrForbidden)

	out, err := f.svc.DeletePending(ctx, "u1", res.Order.ID)
	require.NoError(t, err)
	assert.True(t, out.Deleted)
	assert.False(t, out.Paid)

	_, err = f.repo.Get(ctx, res.Order.ID)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestDeletePending_PaidAfterAllIsKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.carts.carts["u1"] = cart.Cart{"p1": {"M": 2}}

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodGateway, Items: twoKurtas()})
	require.NoError(t, err)
	f.gateway.pay(res.Intent.GatewayOrder.ID, "pay_1")

	out, err := f.svc.DeletePending(ctx, "u1", res.Order.ID)
	require.NoError(t, err)
	assert.False(t, out.Deleted)
	assert.True(t, out.Paid)
	assert.True(t, out.Applied)

	stored, err := f.repo.Get(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Payment)
	assert.Equal(t, "pay_1", stored.GatewayPaymentID)
	assert.Equal(t, 1, f.carts.clears)
	assert.Equal(t, 1, f.notifier.count(notify.KindPayment))

	_, err = f.svc.DeletePending(ctx, "u1", res.Order.ID)
	require.ErrorIs(t, err, order.ErrAlreadyPaid)
}

func TestDeletePending_Hosted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unpaid, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodHosted, Items: twoKurtas()})
	require.NoError(t, err)
	out, err := f.svc.DeletePending(ctx, "u1", unpaid.Order.ID)
	require.NoError(t, err)
	assert.True(t, out.Deleted)

	paid, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodHosted, Items: twoKurtas()})
	require.NoError(t, err)
	f.sessions.sessions["cs_"+paid.Order.ID].Paid = true
	f.sessions.sessions["cs_"+paid.Order.ID].PaymentID = "pi_1"
	out, err = f.svc.DeletePending(ctx, "u1", paid.Order.ID)
	require.NoError(t, err)
	assert.False(t, out.Deleted)
	assert.True(t, out.Paid)
}

func TestDeletePending_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cod, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodCOD, Items: twoKurtas()})
	require.NoError(t, err)
	_, err = f.svc.DeletePending(ctx, "u1", cod.Order.ID)
	require.ErrorIs(t, err, ErrNotAwaitingPayment)

	gw, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodGateway, Items: twoKurtas()})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, Actor{UserID: "u1"}, gw.Order.ID)
	require.NoError(t, err)
	_, err = f.svc.DeletePending(ctx, "u1", gw.Order.ID)
	require.ErrorIs(t, err, ErrNotAwaitingPayment)

	_, err = f.svc.DeletePending(ctx, "u1", "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestCancel_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodCOD, Items: twoKurtas()})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, Actor{UserID: "u2"}, res.Order.ID)
	require.ErrorIs(t, err, ErrForbidden)

	o, err := f.svc.Cancel(ctx, Actor{Admin: true}, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, o.Status)
	assert.False(t, o.Refunded)
	assert.Empty(t, f.gateway.refunds)
}

func TestCancel_AfterShipping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodCOD, Items: twoKurtas()})
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, res.Order.ID, order.StatusShipped, "https://track.example.com/abc")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, Actor{UserID: "u1"}, res.Order.ID)
	require.ErrorIs(t, err, order.ErrOrderNotCancellable)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodCOD, Items: twoKurtas()})
	require.NoError(t, err)

	o, err := f.svc.UpdateStatus(ctx, res.Order.ID, order.StatusShipped, "https://track.example.com/abc")
	require.NoError(t, err)
	assert.Equal(t, "https://track.example.com/abc", o.TrackingURL)
	assert.Equal(t, 1, f.notifier.count(notify.KindStatus))

	_, err = f.svc.UpdateStatus(ctx, res.Order.ID, order.StatusPacking, "")
	require.ErrorIs(t, err, order.ErrInvalidTransition)
	assert.Equal(t, 1, f.notifier.count(notify.KindStatus))
}

func TestListAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", Method: order.MethodCOD, Items: twoKurtas()})
	require.NoError(t, err)
	_, err = f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u2", Method: order.MethodCOD, Items: twoKurtas()})
	require.NoError(t, err)

	all, err := f.svc.ListOrders(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.svc.ListUserOrders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.Order.ID, mine[0].ID)

	_, err = f.svc.GetOrder(ctx, "u2", a.Order.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestPreviewCoupon(t *testing.T) {
	f := newFixture(t)

	q, err := f.svc.PreviewCoupon(context.Background(), "u1", "SAVE10", twoKurtas())
	require.NoError(t, err)
	assert.True(t, d("1000").Equal(q.Subtotal))
	assert.True(t, d("1010").Equal(q.OriginalAmount))
	assert.True(t, d("101").Equal(q.DiscountAmount))
	assert.True(t, d("909").Equal(q.AmountAfter))
	assert.Zero(t, f.repo.Len())
}

func TestMergeCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.MergeCart(ctx, "u1", cart.Cart{"p1": {"M": 2}}))
	require.NoError(t, f.svc.MergeCart(ctx, "u1", cart.Cart{"p1": {"M": 3}}))
	assert.Equal(t, cart.Cart{"p1": {"M": 5}}, f.carts.carts["u1"])
}

package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/SG-Fashion/sgfashion/internal/domain/cart"
	"github.com/SG-Fashion/sgfashion/internal/domain/checkout"
	"github.com/SG-Fashion/sgfashion/internal/domain/order"
	"github.com/SG-Fashion/sgfashion/internal/domain/payment"
)

// money is a decimal written as a bare JSON number.
type money decimal.Decimal

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).String()), nil
}

func (m *money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*m = money(d)
	return nil
}

type lineDTO struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

func toLines(in []lineDTO) []checkout.LineRequest {
	out := make([]checkout.LineRequest, 0, len(in))
	for _, l := range in {
		out = append(out, checkout.LineRequest{ProductID: l.ProductID, Size: l.Size, Quantity: l.Quantity})
	}
	return out
}

type placeOrderRequest struct {
	Items      []lineDTO     `json:"items"`
	Address    order.Address `json:"address"`
	CouponCode string        `json:"couponCode"`
	// Amount is the total the client displayed; it is never charged.
	Amount *money `json:"amount"`
}

type itemDTO struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	Price     money  `json:"price"`
	Freebie   bool   `json:"freebie,omitempty"`
}

type orderDTO struct {
	ID               string           `json:"id"`
	UserID           string           `json:"userId"`
	Items            []itemDTO        `json:"items"`
	Address          order.Address    `json:"address"`
	OriginalAmount   money            `json:"originalAmount"`
	DiscountAmount   money            `json:"discountAmount"`
	Amount           money            `json:"amount"`
	Coupon           *order.CouponRef `json:"coupon"`
	PaymentMethod    string           `json:"paymentMethod"`
	Payment          bool             `json:"payment"`
	Status           string           `json:"status"`
	TrackingURL      string           `json:"trackingUrl,omitempty"`
	Refunded         bool             `json:"refunded"`
	RefundDate       *time.Time       `json:"refundDate,omitempty"`
	GatewayOrderID   string           `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID string           `json:"gatewayPaymentId,omitempty"`
	Date             time.Time        `json:"date"`
}

func toItems(in []order.Item) []itemDTO {
	out := make([]itemDTO, 0, len(in))
	for _, it := range in {
		out = append(out, itemDTO{
			ProductID: it.ProductID,
			Name:      it.Name,
			Size:      it.Size,
			Quantity:  it.Quantity,
			Price:     money(it.UnitPrice),
			Freebie:   it.Freebie,
		})
	}
	return out
}

func toOrder(o *order.Order) orderDTO {
	return orderDTO{
		ID:               o.ID,
		UserID:           o.UserID,
		Items:            toItems(o.Items),
		Address:          o.Address,
		OriginalAmount:   money(o.OriginalAmount),
		DiscountAmount:   money(o.DiscountAmount),
		Amount:           money(o.Amount),
		Coupon:           o.Coupon,
		PaymentMethod:    string(o.PaymentMethod),
		Payment:          o.Payment,
		Status:           string(o.Status),
		TrackingURL:      o.TrackingURL,
		Refunded:         o.Refunded,
		RefundDate:       o.RefundDate,
		GatewayOrderID:   o.GatewayOrderID,
		GatewayPaymentID: o.GatewayPaymentID,
		Date:             o.Date,
	}
}

func toOrders(in []order.Order) []orderDTO {
	out := make([]orderDTO, 0, len(in))
	for i := range in {
		out = append(out, toOrder(&in[i]))
	}
	return out
}

type placeOrderResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Order   orderDTO `json:"order"`
	// SessionURL is the hosted checkout page.
	SessionURL string `json:"session_url,omitempty"`
	// GatewayOrder is what the gateway's client widget is opened with.
	GatewayOrder   *payment.GatewayOrder `json:"gatewayOrder,omitempty"`
	AmountAfter    money                 `json:"amountAfter"`
	DiscountAmount money                 `json:"discountAmount"`
}

func toPlaceResponse(res *checkout.PlaceResult, message string) placeOrderResponse {
	resp := placeOrderResponse{
		Success:        true,
		Message:        message,
		Order:          toOrder(res.Order),
		AmountAfter:    money(res.Order.Amount),
		DiscountAmount: money(res.Order.DiscountAmount),
	}
	if res.Intent != nil {
		resp.SessionURL = res.Intent.RedirectURL
		resp.GatewayOrder = res.Intent.GatewayOrder
	}
	return resp
}

type verifyHostedRequest struct {
	OrderID string `json:"orderId"`
	// Success arrives as a boolean or as the "true"/"false" query value the
	// return URL carried.
	Success flexBool `json:"success"`
}

type verifyGatewayRequest struct {
	GatewayOrderID string `json:"razorpay_order_id"`
}

type verifyResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Paid    bool      `json:"paid"`
	Deleted  bool      `json:"deleted,omitempty"`
	Refunded bool      `json:"refunded,omitempty"`
	Order    *orderDTO `json:"order,omitempty"`
}

func toVerifyResponse(res *checkout.VerifyResult) verifyResponse {
	resp := verifyResponse{Success: res.Paid, Paid: res.Paid, Deleted: res.Deleted, Refunded: res.Refunded}
	switch {
	case res.Refunded:
		resp.Success = false
		resp.Message = "Payment refunded, order was cancelled"
	case res.Paid:
		resp.Message = "Payment Successful"
	case res.Deleted:
		resp.Message = "Payment Failed, order removed"
	default:
		resp.Message = "Payment Pending"
	}
	if res.Order != nil && !res.Deleted {
		o := toOrder(res.Order)
		resp.Order = &o
	}
	return resp
}

type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `true`, `"true"`:
		*b = true
	case `false`, `"false"`, `null`, `""`:
		*b = false
	default:
		return badRequest("success must be true or false")
	}
	return nil
}

type couponRequest struct {
	Code  string    `json:"code"`
	Items []lineDTO `json:"items"`
}

type quoteResponse struct {
	Success        bool             `json:"success"`
	Items          []itemDTO        `json:"items"`
	Subtotal       money            `json:"subtotal"`
	DeliveryCharge money            `json:"deliveryCharge"`
	OriginalAmount money            `json:"originalAmount"`
	DiscountAmount money            `json:"discountAmount"`
	AmountAfter    money            `json:"amountAfter"`
	Coupon         *order.CouponRef `json:"coupon,omitempty"`
}

type statusRequest struct {
	Status      string `json:"status"`
	TrackingURL string `json:"trackingUrl"`
}

type cartItemRequest struct {
	ItemID   string `json:"itemId"`
	Size     string `json:"size"`
	Quantity *int   `json:"quantity"`
}

type mergeCartRequest struct {
	GuestCart cart.Cart `json:"guestCart"`
}

type cartResponse struct {
	Success  bool      `json:"success"`
	CartData cart.Cart `json:"cartData"`
}

type ordersResponse struct {
	Success bool       `json:"success"`
	Orders  []orderDTO `json:"orders"`
}

type orderResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Order   orderDTO `json:"order"`
}

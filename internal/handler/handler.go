// Package handler exposes the checkout engine over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/SG-Fashion/sgfashion/internal/domain/auth"
	"github.com/SG-Fashion/sgfashion/internal/domain/cart"
	"github.com/SG-Fashion/sgfashion/internal/domain/checkout"
	"github.com/SG-Fashion/sgfashion/internal/domain/order"
	"github.com/SG-Fashion/sgfashion/pkg/httpmiddleware"
)

// Checkout is the subset of *checkout.Service the handlers call.
type Checkout interface {
	PlaceOrder(ctx context.Context, req checkout.PlaceRequest) (*checkout.PlaceResult, error)
	ResumePayment(ctx context.Context, userID, orderID string) (*checkout.PlaceResult, error)
	VerifyHosted(ctx context.Context, userID, orderID string, success bool) (*checkout.VerifyResult, error)
	VerifyGateway(ctx context.Context, userID, gatewayOrderID string) (*checkout.VerifyResult, error)
	Cancel(ctx context.Context, actor checkout.Actor, orderID string) (*order.Order, error)
	DeletePending(ctx context.Context, userID, orderID string) (*checkout.VerifyResult, error)
	UpdateStatus(ctx context.Context, orderID string, status order.Status, trackingURL string) (*order.Order, error)
	ListOrders(ctx context.Context, limit int) ([]order.Order, error)
	ListUserOrders(ctx context.Context, userID string) ([]order.Order, error)
	GetOrder(ctx context.Context, userID, orderID string) (*order.Order, error)
	PreviewCoupon(ctx context.Context, userID, code string, lines []checkout.LineRequest) (*checkout.Quote, error)
	MergeCart(ctx context.Context, userID string, guest cart.Cart) error
}

var _ Checkout = (*checkout.Service)(nil)

// Carts is the subset of *cart.Service the handlers call.
type Carts interface {
	Get(ctx context.Context, userID string) (cart.Cart, error)
	Add(ctx context.Context, userID, productID, size string) error
	Update(ctx context.Context, userID, productID, size string, qty int) error
}

var _ Carts = (*cart.Service)(nil)

// UserResolver maps a bearer token to a user id.
type UserResolver interface {
	UserID(token string) (string, error)
}

// KeyResolver maps an admin API key to its stored info.
type KeyResolver interface {
	Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error)
}

// Config holds non-dependency handler settings.
type Config struct {
	// AdminListLimit caps the admin order listing. Zero means no cap.
	AdminListLimit int
}

// Handler serves the shop API.
type Handler struct {
	checkout Checkout
	carts    Carts
	users    UserResolver
	keys     KeyResolver

	adminListLimit int
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config, co Checkout, carts Carts, users UserResolver, keys KeyResolver) (*Handler, error) {
	if co == nil || carts == nil || users == nil || keys == nil {
		return nil, errors.New("handler: checkout, carts, users and keys are required")
	}
	return &Handler{
		checkout:       co,
		carts:          carts,
		users:          users,
		keys:           keys,
		adminListLimit: cfg.AdminListLimit,
	}, nil
}

// Routes mounts the API under /api. Middlewares run inside the router so
// they see the matched route pattern.
func (h *Handler) Routes(middlewares ...httpmiddleware.Middleware) http.Handler {
	r := chi.NewRouter()
	for _, m := range middlewares {
		r.Use(m)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.requireUser)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.listUserOrders)
				r.Post("/cod", h.placeOrder(order.MethodCOD))
				r.Post("/stripe", h.placeOrder(order.MethodHosted))
				r.Post("/razorpay", h.placeOrder(order.MethodGateway))
				r.Post("/verify/stripe", h.verifyHosted)
				r.Post("/verify/razorpay", h.verifyGateway)
				r.Get("/{orderID}", h.getOrder)
				r.Delete("/{orderID}", h.deletePending)
				r.Post("/{orderID}/resume", h.resumePayment)
				r.Post("/{orderID}/cancel", h.cancelOrder)
			})
			r.Post("/coupons/validate", h.previewCoupon)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.getCart)
				r.Post("/add", h.addToCart)
				r.Post("/update", h.updateCart)
				r.Post("/merge", h.mergeCart)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAdmin)

			r.Get("/orders", h.listOrders)
			r.Post("/orders/{orderID}/status", h.updateStatus)
			r.Post("/orders/{orderID}/cancel", h.adminCancel)
		})
	})
	return r
}

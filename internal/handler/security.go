package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/SG-Fashion/sgfashion/internal/domain/auth"
	"github.com/SG-Fashion/sgfashion/internal/domain/checkout"
)

type actorKey struct{}

func withActor(ctx context.Context, a checkout.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// actorFrom returns the identity resolved by requireUser or requireAdmin.
func actorFrom(ctx context.Context) checkout.Actor {
	a, _ := ctx.Value(actorKey{}).(checkout.Actor)
	return a
}

// bearerToken reads "Authorization: Bearer <t>", falling back to the legacy
// "token" header.
func bearerToken(r *http.Request) string {
	if v := r.Header.Get("Authorization"); v != "" {
		scheme, token, ok := strings.Cut(v, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.Header.Get("token")
}

func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.users.UserID(bearerToken(r))
		if err != nil {
			writeError(w, r, auth.ErrUnauthorized)
			return
		}
		ctx := r.Context()
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("user.id", userID))
		ctx = zctx.With(ctx, zap.String("user_id", userID))
		next.ServeHTTP(w, r.WithContext(withActor(ctx, checkout.Actor{UserID: userID})))
	})
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := h.keys.Authenticate(r.Context(), r.Header.Get("api_key"))
		if err != nil {
			writeError(w, r, auth.ErrUnauthorized)
			return
		}
		ctx := zctx.With(r.Context(), zap.String("api_key_id", info.ID))
		next.ServeHTTP(w, r.WithContext(withActor(ctx, checkout.Actor{Admin: true})))
	})
}

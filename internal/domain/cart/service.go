package cart

import (
	"context"

	"github.com/go-faster/errors"
)

// Service implements the user cart operations.
type Service struct {
	store Store
}

// NewService creates a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Get returns the user's cart; a user without a cart gets an empty one.
func (s *Service) Get(ctx context.Context, userID string) (Cart, error) {
	c, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if c == nil {
		c = Cart{}
	}
	return c, nil
}

// Merge adds a guest cart into the user's stored cart. It is additive:
// calling it twice with the same guest cart counts every entry twice.
func (s *Service) Merge(ctx context.Context, userID string, guest Cart) error {
	if err := guest.Validate(); err != nil {
		return err
	}
	delta := Cart{}
	delta.Merge(guest)
	if len(delta) == 0 {
		return nil
	}
	if err := s.store.Increment(ctx, userID, delta); err != nil {
		return errors.Wrap(err, "merge cart")
	}
	return nil
}

// Add puts one more item of productID/size into the cart.
func (s *Service) Add(ctx context.Context, userID, productID, size string) error {
	delta := Cart{productID: {size: 1}}
	if err := delta.Validate(); err != nil {
		return err
	}
	if err := s.store.Increment(ctx, userID, delta); err != nil {
		return errors.Wrap(err, "add to cart")
	}
	return nil
}

// Update sets the quantity of productID/size; 0 removes it.
func (s *Service) Update(ctx context.Context, userID, productID, size string, qty int) error {
	if err := (Cart{productID: {size: qty}}).Validate(); err != nil {
		return err
	}
	if err := s.store.Set(ctx, userID, productID, size, qty); err != nil {
		return errors.Wrap(err, "update cart")
	}
	return nil
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.store.Clear(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

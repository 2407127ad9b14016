package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/SG-Fashion/sgfashion/internal/domain/cart"
)

const cartsCollection = "carts"

var _ cart.Store = (*CartStore)(nil)

// CartStore keeps one document per user, keyed by user id:
//
//	{_id: userID, items: {productID: {size: qty}}, updatedAt}
//
// Quantity changes are single-document updates, so concurrent increments
// from several sessions add up instead of overwriting each other.
type CartStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewCartStore returns a CartStore on the carts collection of db.
func NewCartStore(db *mongo.Database) *CartStore {
	return &CartStore{coll: db.Collection(cartsCollection), now: time.Now}
}

type cartDocument struct {
	UserID string    `bson:"_id"`
	Items  cart.Cart `bson:"items"`
}

// Get returns the stored cart, or nil when the user has none.
func (s *CartStore) Get(ctx context.Context, userID string) (cart.Cart, error) {
	var doc cartDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting cart of %q: %w", userID, err)
	}
	return doc.Items, nil
}

// Increment adds every quantity in delta to the stored cart.
func (s *CartStore) Increment(ctx context.Context, userID string, delta cart.Cart) error {
	inc := bson.M{}
	for productID, sizes := range delta {
		for size, qty := range sizes {
			if qty == 0 {
				continue
			}
			inc[itemPath(productID, size)] = qty
		}
	}
	if len(inc) == 0 {
		return nil
	}

	update := bson.M{
		"$inc": inc,
		"$set": bson.M{"updatedAt": s.now()},
	}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": userID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("incrementing cart of %q: %w", userID, err)
	}
	return nil
}

// Set overwrites one quantity. Zero removes the size, and the product when
// it has no sizes left.
func (s *CartStore) Set(ctx context.Context, userID, productID, size string, qty int) error {
	if qty > 0 {
		update := bson.M{"$set": bson.M{itemPath(productID, size): qty, "updatedAt": s.now()}}
		if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": userID}, update, options.Update().SetUpsert(true)); err != nil {
			return fmt.Errorf("setting cart item of %q: %w", userID, err)
		}
		return nil
	}

	update := bson.M{
		"$unset": bson.M{itemPath(productID, size): ""},
		"$set":   bson.M{"updatedAt": s.now()},
	}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": userID}, update); err != nil {
		return fmt.Errorf("removing cart item of %q: %w", userID, err)
	}

	productPath := "items." + productID
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": userID, productPath: bson.M{}},
		bson.M{"$unset": bson.M{productPath: ""}},
	)
	if err != nil {
		return fmt.Errorf("removing empty cart product of %q: %w", userID, err)
	}
	return nil
}

// Clear empties the cart, keeping the document.
func (s *CartStore) Clear(ctx context.Context, userID string) error {
	update := bson.M{"$set": bson.M{"items": bson.M{}, "updatedAt": s.now()}}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": userID}, update); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", userID, err)
	}
	return nil
}

func itemPath(productID, size string) string {
	return "items." + productID + "." + size
}

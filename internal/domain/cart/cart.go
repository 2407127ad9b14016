package cart

import (
	"context"
	"sort"
	"strings"

	"github.com/go-faster/errors"
)

var (
	// ErrInvalidQuantity is returned for negative quantities.
	ErrInvalidQuantity = errors.New("quantity must not be negative")
	// ErrInvalidKey is returned for product ids or sizes that cannot be
	// stored as document field names.
	ErrInvalidKey = errors.New("invalid product id or size")
)

// Cart maps productId -> size -> quantity. A size with quantity 0 is never
// stored; an absent product means zero of every size.
type Cart map[string]map[string]int

// Line is one (product, size, quantity) entry of a cart.
type Line struct {
	ProductID string
	Size      string
	Quantity  int
}

// Add adds qty of productID/size. Non-positive quantities are ignored.
func (c Cart) Add(productID, size string, qty int) {
	if qty <= 0 {
		return
	}
	sizes, ok := c[productID]
	if !ok {
		sizes = make(map[string]int)
		c[productID] = sizes
	}
	sizes[size] += qty
}

// Merge adds every quantity of other into c. Quantities in c never decrease.
func (c Cart) Merge(other Cart) {
	for productID, sizes := range other {
		for size, qty := range sizes {
			c.Add(productID, size, qty)
		}
	}
}

// Set replaces the quantity of productID/size. Zero removes the size and,
// when it was the last one, the product.
func (c Cart) Set(productID, size string, qty int) {
	if qty > 0 {
		if c[productID] == nil {
			c[productID] = make(map[string]int)
		}
		c[productID][size] = qty
		return
	}
	delete(c[productID], size)
	if len(c[productID]) == 0 {
		delete(c, productID)
	}
}

// Lines returns the cart entries sorted by product then size.
func (c Cart) Lines() []Line {
	var lines []Line
	for productID, sizes := range c {
		for size, qty := range sizes {
			if qty <= 0 {
				continue
			}
			lines = append(lines, Line{ProductID: productID, Size: size, Quantity: qty})
		}
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ProductID != lines[j].ProductID {
			return lines[i].ProductID < lines[j].ProductID
		}
		return lines[i].Size < lines[j].Size
	})
	return lines
}

// Empty reports whether the cart holds no positive quantity.
func (c Cart) Empty() bool {
	return len(c.Lines()) == 0
}

// Validate checks keys and quantities of an incoming cart.
func (c Cart) Validate() error {
	for productID, sizes := range c {
		if err := validateKey(productID); err != nil {
			return err
		}
		for size, qty := range sizes {
			if err := validateKey(size); err != nil {
				return err
			}
			if qty < 0 {
				return errors.Wrapf(ErrInvalidQuantity, "%s/%s", productID, size)
			}
		}
	}
	return nil
}

func validateKey(k string) error {
	if k == "" || strings.ContainsAny(k, ".$") {
		return errors.Wrapf(ErrInvalidKey, "%q", k)
	}
	return nil
}

// Store persists carts. Increment must add every quantity of delta in a
// single atomic write, creating the cart when missing.
type Store interface {
	Get(ctx context.Context, userID string) (Cart, error)
	Increment(ctx context.Context, userID string, delta Cart) error
	Set(ctx context.Context, userID, productID, size string, qty int) error
	Clear(ctx context.Context, userID string) error
}

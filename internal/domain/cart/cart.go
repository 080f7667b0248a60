// Package cart holds the per-owner shopping cart and its mutation service.
//
// A cart belongs to exactly one owner (authenticated user id or guest token)
// and is replaced wholesale on every write; there is no line-level locking.
// The backing store is an abstract key-value interface so the same pricing
// logic works over a database row, a file, or an in-memory map.
package cart

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
)

// Size guards. The storefront enforces these too, but the server is the
// authority: oversized carts were an abuse vector in production.
const (
	MaxLines        = 50
	MaxLineQuantity = 99
)

var (
	// ErrLineNotFound is returned when a mutation references an unknown cart line.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrCartFull is returned when adding a line would exceed MaxLines.
	ErrCartFull = errors.New("cart line limit reached")
	// ErrQuantityRange is returned for non-positive or oversized quantities.
	ErrQuantityRange = errors.New("quantity out of range")
	// ErrEmptyCart is returned when an operation needs at least one line.
	ErrEmptyCart = errors.New("cart is empty")
)

// Line is one orderable entry in a cart: an item, a quantity, and the chosen
// customization options keyed by customization group.
type Line struct {
	CartItemID     string              `json:"cart_item_id"`
	ItemID         string              `json:"item_id"`
	Quantity       int                 `json:"quantity"`
	Customizations map[string][]string `json:"customizations,omitempty"`
}

// SameSelection reports whether two lines reference the same item with the
// same customization choices. Option order within a group does not matter.
func (l Line) SameSelection(other Line) bool {
	if l.ItemID != other.ItemID || len(l.Customizations) != len(other.Customizations) {
		return false
	}
	for group, opts := range l.Customizations {
		otherOpts, ok := other.Customizations[group]
		if !ok || len(opts) != len(otherOpts) {
			return false
		}
		a := slices.Clone(opts)
		b := slices.Clone(otherOpts)
		slices.Sort(a)
		slices.Sort(b)
		if !slices.Equal(a, b) {
			return false
		}
	}
	return true
}

// OptionIDs returns all selected option ids across groups.
func (l Line) OptionIDs() []string {
	var out []string
	for _, opts := range l.Customizations {
		out = append(out, opts...)
	}
	return out
}

// Cart is the full cart state for one owner.
type Cart struct {
	OwnerID      string
	Lines        []Line
	DiscountCode string
	UpdatedAt    time.Time
}

// findLine returns the index of the line with the given cart item id, or -1.
func (c *Cart) findLine(cartItemID string) int {
	for i := range c.Lines {
		if c.Lines[i].CartItemID == cartItemID {
			return i
		}
	}
	return -1
}

// Store is the durable cart mapping keyed by owner identity. Read returns an
// empty cart (never nil) when the owner has none; Write replaces the whole
// cart.
type Store interface {
	Read(ctx context.Context, ownerID string) (*Cart, error)
	Write(ctx context.Context, c *Cart) error
	Clear(ctx context.Context, ownerID string) error
}

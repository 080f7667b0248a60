package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/streetfare/orderline/internal/domain/discount"
	"github.com/streetfare/orderline/internal/domain/order"
	"github.com/streetfare/orderline/internal/domain/pricing"
)

// View is what every cart operation returns: the stored cart plus a fresh
// pricing breakdown so the client never renders stale totals.
type View struct {
	Cart    *Cart
	Pricing *pricing.Result
}

// Service implements the cart mutations. Every mutation reads the cart,
// applies the change, writes it back wholesale, and re-prices against a
// fresh catalog snapshot.
type Service struct {
	store     Store
	quoter    *pricing.Quoter
	discounts discount.Validator
	now       func() time.Time
}

// NewService creates a cart Service.
func NewService(store Store, quoter *pricing.Quoter, discounts discount.Validator) *Service {
	return &Service{
		store:     store,
		quoter:    quoter,
		discounts: discounts,
		now:       time.Now,
	}
}

// Get returns the owner's cart with current pricing. orderType affects only
// discount eligibility; empty defaults to collection.
func (s *Service) Get(ctx context.Context, ownerID string, orderType order.Type) (*View, error) {
	c, err := s.store.Read(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}
	return s.view(ctx, c, orderType)
}

// AddLine adds an item to the cart. Adding the same item with the same
// customization selection merges into the existing line by summing
// quantities rather than appending a duplicate.
func (s *Service) AddLine(ctx context.Context, ownerID, itemID string, quantity int, customizations map[string][]string, orderType order.Type) (*View, error) {
	if quantity <= 0 || quantity > MaxLineQuantity {
		return nil, ErrQuantityRange
	}

	c, err := s.store.Read(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}

	incoming := Line{
		ItemID:         itemID,
		Quantity:       quantity,
		Customizations: customizations,
	}

	merged := false
	for i := range c.Lines {
		if c.Lines[i].SameSelection(incoming) {
			next := c.Lines[i].Quantity + quantity
			if next > MaxLineQuantity {
				return nil, ErrQuantityRange
			}
			c.Lines[i].Quantity = next
			merged = true
			break
		}
	}
	if !merged {
		if len(c.Lines) >= MaxLines {
			return nil, ErrCartFull
		}
		incoming.CartItemID = uuid.New().String()
		c.Lines = append(c.Lines, incoming)
	}

	return s.save(ctx, c, orderType)
}

// UpdateQuantity sets the quantity of an existing line.
func (s *Service) UpdateQuantity(ctx context.Context, ownerID, cartItemID string, quantity int, orderType order.Type) (*View, error) {
	if quantity <= 0 || quantity > MaxLineQuantity {
		return nil, ErrQuantityRange
	}

	c, err := s.store.Read(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}

	i := c.findLine(cartItemID)
	if i < 0 {
		return nil, ErrLineNotFound
	}
	c.Lines[i].Quantity = quantity

	return s.save(ctx, c, orderType)
}

// RemoveLine deletes a line from the cart.
func (s *Service) RemoveLine(ctx context.Context, ownerID, cartItemID string, orderType order.Type) (*View, error) {
	c, err := s.store.Read(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}

	i := c.findLine(cartItemID)
	if i < 0 {
		return nil, ErrLineNotFound
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)

	return s.save(ctx, c, orderType)
}

// ApplyDiscount attaches a discount code to the cart. The code is validated
// as part of the returned pricing; an ineligible code stays attached and is
// reported as an advisory problem, since eligibility can change (e.g. the
// cart grows past the minimum spend).
func (s *Service) ApplyDiscount(ctx context.Context, ownerID, code string, orderType order.Type) (*View, error) {
	if code == "" {
		return nil, errors.New("discount code required")
	}

	cart, err := s.store.Read(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}
	if len(cart.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	cart.DiscountCode = code

	return s.save(ctx, cart, orderType)
}

// RemoveDiscount detaches any applied discount code.
func (s *Service) RemoveDiscount(ctx context.Context, ownerID string, orderType order.Type) (*View, error) {
	c, err := s.store.Read(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}
	c.DiscountCode = ""

	return s.save(ctx, c, orderType)
}

// save writes the cart back and returns the fresh view.
func (s *Service) save(ctx context.Context, c *Cart, orderType order.Type) (*View, error) {
	c.UpdatedAt = s.now()
	if err := s.store.Write(ctx, c); err != nil {
		return nil, errors.Wrap(err, "write cart")
	}
	return s.view(ctx, c, orderType)
}

// view re-prices the cart against a fresh catalog snapshot.
func (s *Service) view(ctx context.Context, c *Cart, orderType order.Type) (*View, error) {
	if !orderType.Valid() {
		orderType = order.TypeCollection
	}

	res, _, err := s.quoter.Quote(ctx,
		PricingLines(c.Lines),
		discount.Check(s.discounts, c.DiscountCode, orderType, c.OwnerID),
	)
	if err != nil {
		return nil, err
	}

	return &View{Cart: c, Pricing: res}, nil
}

// PricingLines converts stored cart lines into pricing engine input.
func PricingLines(lines []Line) []pricing.Line {
	out := make([]pricing.Line, len(lines))
	for i, l := range lines {
		out[i] = pricing.Line{
			CartItemID: l.CartItemID,
			ItemID:     l.ItemID,
			Quantity:   l.Quantity,
			OptionIDs:  l.OptionIDs(),
		}
	}
	return out
}

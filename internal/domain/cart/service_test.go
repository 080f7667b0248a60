package cart_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetfare/orderline/internal/domain/cart"
	"github.com/streetfare/orderline/internal/domain/catalog"
	"github.com/streetfare/orderline/internal/domain/discount"
	"github.com/streetfare/orderline/internal/domain/order"
	"github.com/streetfare/orderline/internal/domain/pricing"
	"github.com/streetfare/orderline/internal/storage/memory"
)

type stubCatalog struct {
	items   map[string]catalog.Item
	options map[string]catalog.Option
}

func (s *stubCatalog) Snapshot(_ context.Context, _, _ []string) (*catalog.Snapshot, error) {
	return &catalog.Snapshot{Items: s.items, Options: s.options}, nil
}

func (s *stubCatalog) ListItems(_ context.Context) ([]catalog.Item, error) {
	out := make([]catalog.Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	return out, nil
}

type stubValidator struct {
	outcome discount.Outcome
	lastReq discount.Request
}

func (s *stubValidator) Validate(_ context.Context, req discount.Request) (discount.Outcome, error) {
	s.lastReq = req
	return s.outcome, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newService(v discount.Validator) (*cart.Service, cart.Store) {
	cat := &stubCatalog{
		items: map[string]catalog.Item{
			"taco":    {ID: "taco", Name: "Carnitas Taco", Price: dec("5.00"), CategoryID: "tacos", IsActive: true},
			"burrito": {ID: "burrito", Name: "Beef Burrito", Price: dec("9.50"), CategoryID: "burritos", IsActive: true},
		},
		options: map[string]catalog.Option{
			"guac": {ID: "guac", GroupID: "extras", Name: "Guacamole", AdditionalPrice: dec("1.50")},
		},
	}
	store := memory.NewCartStore()
	quoter := pricing.NewQuoter(cat, dec("0.09"))
	return cart.NewService(store, quoter, v), store
}

func TestService_AddLine(t *testing.T) {
	svc, _ := newService(&stubValidator{})
	ctx := context.Background()

	view, err := svc.AddLine(ctx, "guest-1", "taco", 2, nil, order.TypeCollection)
	require.NoError(t, err)
	require.Len(t, view.Cart.Lines, 1)
	assert.NotEmpty(t, view.Cart.Lines[0].CartItemID)
	assert.Equal(t, "10.00", view.Pricing.Subtotal.StringFixed(2))

	// Different item appends a second line.
	view, err = svc.AddLine(ctx, "guest-1", "burrito", 1, nil, order.TypeCollection)
	require.NoError(t, err)
	require.Len(t, view.Cart.Lines, 2)
	assert.Equal(t, "19.50", view.Pricing.Subtotal.StringFixed(2))
}

func TestService_AddLineMergesSameSelection(t *testing.T) {
	svc, _ := newService(&stubValidator{})
	ctx := context.Background()

	custom := map[string][]string{"extras": {"guac"}}

	view, err := svc.AddLine(ctx, "guest-1", "taco", 1, custom, order.TypeCollection)
	require.NoError(t, err)
	firstID := view.Cart.Lines[0].CartItemID

	view, err = svc.AddLine(ctx, "guest-1", "taco", 2, custom, order.TypeCollection)
	require.NoError(t, err)
	require.Len(t, view.Cart.Lines, 1, "same selection should merge, not append")
	assert.Equal(t, firstID, view.Cart.Lines[0].CartItemID)
	assert.Equal(t, 3, view.Cart.Lines[0].Quantity)

	// A different customization selection is a separate line.
	view, err = svc.AddLine(ctx, "guest-1", "taco", 1, nil, order.TypeCollection)
	require.NoError(t, err)
	assert.Len(t, view.Cart.Lines, 2)
}

func TestService_AddLineQuantityGuards(t *testing.T) {
	svc, _ := newService(&stubValidator{})
	ctx := context.Background()

	_, err := svc.AddLine(ctx, "guest-1", "taco", 0, nil, order.TypeCollection)
	assert.ErrorIs(t, err, cart.ErrQuantityRange)

	_, err = svc.AddLine(ctx, "guest-1", "taco", cart.MaxLineQuantity+1, nil, order.TypeCollection)
	assert.ErrorIs(t, err, cart.ErrQuantityRange)

	// Merging past the per-line cap is rejected too.
	_, err = svc.AddLine(ctx, "guest-1", "taco", cart.MaxLineQuantity, nil, order.TypeCollection)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, "guest-1", "taco", 1, nil, order.TypeCollection)
	assert.ErrorIs(t, err, cart.ErrQuantityRange)
}

func TestService_UpdateQuantity(t *testing.T) {
	svc, _ := newService(&stubValidator{})
	ctx := context.Background()

	view, err := svc.AddLine(ctx, "guest-1", "taco", 1, nil, order.TypeCollection)
	require.NoError(t, err)
	lineID := view.Cart.Lines[0].CartItemID

	view, err = svc.UpdateQuantity(ctx, "guest-1", lineID, 4, order.TypeCollection)
	require.NoError(t, err)
	assert.Equal(t, 4, view.Cart.Lines[0].Quantity)
	assert.Equal(t, "20.00", view.Pricing.Subtotal.StringFixed(2))

	_, err = svc.UpdateQuantity(ctx, "guest-1", "nope", 2, order.TypeCollection)
	assert.ErrorIs(t, err, cart.ErrLineNotFound)
}

func TestService_RemoveLine(t *testing.T) {
	svc, _ := newService(&stubValidator{})
	ctx := context.Background()

	view, err := svc.AddLine(ctx, "guest-1", "taco", 1, nil, order.TypeCollection)
	require.NoError(t, err)
	lineID := view.Cart.Lines[0].CartItemID

	view, err = svc.RemoveLine(ctx, "guest-1", lineID, order.TypeCollection)
	require.NoError(t, err)
	assert.Empty(t, view.Cart.Lines)

	_, err = svc.RemoveLine(ctx, "guest-1", lineID, order.TypeCollection)
	assert.ErrorIs(t, err, cart.ErrLineNotFound)
}

func TestService_ApplyDiscount(t *testing.T) {
	validator := &stubValidator{outcome: discount.Outcome{Approved: true, Amount: dec("2.00")}}
	svc, _ := newService(validator)
	ctx := context.Background()

	_, err := svc.ApplyDiscount(ctx, "guest-1", "SAVE10", order.TypeCollection)
	assert.ErrorIs(t, err, cart.ErrEmptyCart)

	_, err = svc.AddLine(ctx, "guest-1", "taco", 4, nil, order.TypeCollection)
	require.NoError(t, err)

	view, err := svc.ApplyDiscount(ctx, "guest-1", "SAVE10", order.TypeCollection)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", view.Cart.DiscountCode)
	assert.True(t, view.Pricing.DiscountApplied)
	assert.Equal(t, "2.00", view.Pricing.DiscountAmount.StringFixed(2))
	assert.Equal(t, "SAVE10", validator.lastReq.Code)
	assert.Equal(t, "guest-1", validator.lastReq.OwnerID)
}

func TestService_IneligibleDiscountStaysAttached(t *testing.T) {
	validator := &stubValidator{outcome: discount.Outcome{
		Reason:  discount.ReasonBelowMinimumSpend,
		Message: "order must be at least 20.00 to use this code",
	}}
	svc, _ := newService(validator)
	ctx := context.Background()

	_, err := svc.AddLine(ctx, "guest-1", "taco", 1, nil, order.TypeCollection)
	require.NoError(t, err)

	view, err := svc.ApplyDiscount(ctx, "guest-1", "SAVE10", order.TypeCollection)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", view.Cart.DiscountCode)
	assert.False(t, view.Pricing.DiscountApplied)
	require.Len(t, view.Pricing.Problems, 1)
	assert.Equal(t, discount.ReasonBelowMinimumSpend, view.Pricing.Problems[0].Code)
	assert.False(t, view.Pricing.CheckoutBlocked(), "a rejected discount must not block checkout")

	view, err = svc.RemoveDiscount(ctx, "guest-1", order.TypeCollection)
	require.NoError(t, err)
	assert.Empty(t, view.Cart.DiscountCode)
	assert.Empty(t, view.Pricing.Problems)
}

func TestService_GetReturnsEmptyCart(t *testing.T) {
	svc, _ := newService(&stubValidator{})

	view, err := svc.Get(context.Background(), "nobody", order.TypeCollection)
	require.NoError(t, err)
	assert.Empty(t, view.Cart.Lines)
	assert.Equal(t, "0.00", view.Pricing.Total.StringFixed(2))
}

package checkout_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetfare/orderline/internal/domain/cart"
	"github.com/streetfare/orderline/internal/domain/catalog"
	"github.com/streetfare/orderline/internal/domain/checkout"
	"github.com/streetfare/orderline/internal/domain/discount"
	"github.com/streetfare/orderline/internal/domain/fulfillment"
	"github.com/streetfare/orderline/internal/domain/order"
	"github.com/streetfare/orderline/internal/domain/pricing"
	"github.com/streetfare/orderline/internal/events"
	"github.com/streetfare/orderline/internal/storage/memory"
)

type stubCatalog struct {
	items map[string]catalog.Item
}

func (s *stubCatalog) Snapshot(context.Context, []string, []string) (*catalog.Snapshot, error) {
	return &catalog.Snapshot{Items: s.items, Options: map[string]catalog.Option{}}, nil
}

func (s *stubCatalog) ListItems(context.Context) ([]catalog.Item, error) {
	return nil, nil
}

type stubValidator struct {
	outcome discount.Outcome
}

func (s *stubValidator) Validate(context.Context, discount.Request) (discount.Outcome, error) {
	return s.outcome, nil
}

// mockOrderRepo records commits and serves canned answers for the rest of
// the Repository surface.
type mockOrderRepo struct {
	commitParams *order.CommitParams
	commitResult *order.CommitResult
	commitErr    error
	ticketInUse  map[string]bool
	// byKey holds orders from prior commits, keyed by idempotency key.
	byKey map[string]*order.Order
	// clearCarts, when set, clears the owner's cart on commit the way the
	// real repository does inside its transaction.
	clearCarts cart.Store
}

func (m *mockOrderRepo) Commit(ctx context.Context, params order.CommitParams) (*order.CommitResult, error) {
	m.commitParams = &params
	if m.commitErr != nil {
		return nil, m.commitErr
	}
	if m.commitResult != nil {
		return m.commitResult, nil
	}
	if params.IdempotencyKey != "" {
		if m.byKey == nil {
			m.byKey = make(map[string]*order.Order)
		}
		m.byKey[params.IdempotencyKey] = params.Order
	}
	if m.clearCarts != nil && params.ClearCartOwner != "" {
		if err := m.clearCarts.Clear(ctx, params.ClearCartOwner); err != nil {
			return nil, err
		}
	}
	return &order.CommitResult{Order: params.Order}, nil
}

func (m *mockOrderRepo) FindByIdempotencyKey(_ context.Context, _, key string) (*order.Order, error) {
	if o, ok := m.byKey[key]; ok {
		return o, nil
	}
	return nil, order.ErrNotFound
}

func (m *mockOrderRepo) TicketInUse(_ context.Context, ticket string) (bool, error) {
	return m.ticketInUse[ticket], nil
}

func (m *mockOrderRepo) FindByTicketAndToken(context.Context, string, string) (*order.Order, error) {
	return nil, order.ErrNotFound
}

func (m *mockOrderRepo) GetByID(context.Context, string) (*order.Order, error) {
	return nil, order.ErrNotFound
}

func (m *mockOrderRepo) ListOpen(context.Context) ([]order.Order, error) { return nil, nil }

func (m *mockOrderRepo) Transition(context.Context, string, fulfillment.Status, string) (*fulfillment.Change, error) {
	return nil, order.ErrNotFound
}

func (m *mockOrderRepo) History(context.Context, string) ([]fulfillment.Change, error) {
	return nil, nil
}

type capturePublisher struct {
	published []events.OrderCommitted
}

func (p *capturePublisher) Publish(_ context.Context, ev events.OrderCommitted) {
	p.published = append(p.published, ev)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fixture struct {
	finalizer *checkout.Finalizer
	carts     cart.Store
	repo      *mockOrderRepo
	publisher *capturePublisher
}

func newFixture(v discount.Validator, repo *mockOrderRepo) *fixture {
	cat := &stubCatalog{items: map[string]catalog.Item{
		"taco": {ID: "taco", Name: "Carnitas Taco", Price: dec("5.00"), CategoryID: "tacos", IsActive: true},
		"birria": {
			ID: "birria", Name: "Birria Plate", Price: dec("13.00"), CategoryID: "specials",
			IsActive: true, StockTracked: true, CurrentStock: 10,
		},
		"retired": {ID: "retired", Name: "Old Special", Price: dec("12.00"), IsActive: false},
	}}

	carts := memory.NewCartStore()
	quoter := pricing.NewQuoter(cat, dec("0.09"))
	publisher := &capturePublisher{}

	return &fixture{
		finalizer: checkout.NewFinalizer(carts, quoter, v, repo, publisher),
		carts:     carts,
		repo:      repo,
		publisher: publisher,
	}
}

func (f *fixture) seedCart(t *testing.T, c *cart.Cart) {
	t.Helper()
	require.NoError(t, f.carts.Write(context.Background(), c))
}

func TestFinalizer_Committed(t *testing.T) {
	repo := &mockOrderRepo{}
	f := newFixture(&stubValidator{}, repo)
	f.seedCart(t, &cart.Cart{OwnerID: "guest-1", Lines: []cart.Line{
		{CartItemID: "l1", ItemID: "taco", Quantity: 2},
		{CartItemID: "l2", ItemID: "birria", Quantity: 1},
	}})

	res, err := f.finalizer.Finalize(context.Background(), checkout.Request{
		OwnerID:        "guest-1",
		OrderType:      order.TypeCollection,
		GuestName:      "Ana",
		GuestContact:   "ana@example.com",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, checkout.StateCommitted, res.State)
	require.NotNil(t, res.Order)

	o := res.Order
	assert.NotEmpty(t, o.ID)
	assert.Regexp(t, `^[BCDFGHJKLMNPQRSTVWXZ]-\d{3}$`, o.TicketNumber)
	assert.Regexp(t, `^SF-\d{8}-[0-9A-F]{8}$`, o.OrderNumber)
	assert.NotEmpty(t, o.TrackingToken)
	assert.Equal(t, fulfillment.StatusReceived, o.Status)
	assert.Equal(t, "23.00", o.Subtotal.StringFixed(2))
	assert.Equal(t, "25.07", o.Total.StringFixed(2))
	require.Len(t, o.Items, 2)
	assert.Equal(t, "5.00", o.Items[0].UnitPrice.StringFixed(2))

	// Commit carried the stock decrement for the tracked item only.
	require.NotNil(t, repo.commitParams)
	require.Len(t, repo.commitParams.StockDecrements, 1)
	assert.Equal(t, "birria", repo.commitParams.StockDecrements[0].ItemID)
	assert.Equal(t, 1, repo.commitParams.StockDecrements[0].Quantity)
	assert.Nil(t, repo.commitParams.DiscountClaim)
	assert.Equal(t, "guest-1", repo.commitParams.ClearCartOwner)
	assert.Equal(t, "key-1", repo.commitParams.IdempotencyKey)

	// One event, with the tracking token on it for the notification service.
	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, o.ID, f.publisher.published[0].OrderID)
	assert.Equal(t, o.TrackingToken, f.publisher.published[0].TrackingToken)
}

func TestFinalizer_RejectedOnBlockingProblem(t *testing.T) {
	repo := &mockOrderRepo{}
	f := newFixture(&stubValidator{}, repo)
	f.seedCart(t, &cart.Cart{OwnerID: "guest-1", Lines: []cart.Line{
		{CartItemID: "l1", ItemID: "taco", Quantity: 1},
		{CartItemID: "l2", ItemID: "retired", Quantity: 1},
	}})

	res, err := f.finalizer.Finalize(context.Background(), checkout.Request{
		OwnerID:   "guest-1",
		OrderType: order.TypeCollection,
	})
	require.NoError(t, err)
	assert.Equal(t, checkout.StateRejected, res.State)
	assert.Nil(t, res.Order)
	require.NotEmpty(t, res.Problems)
	assert.Equal(t, pricing.CodeItemUnavailable, res.Problems[0].Code)
	assert.Equal(t, "l2", res.Problems[0].Field)

	// Nothing was committed and the cart is untouched.
	assert.Nil(t, repo.commitParams)
	c, err := f.carts.Read(context.Background(), "guest-1")
	require.NoError(t, err)
	assert.Len(t, c.Lines, 2)
	assert.Empty(t, f.publisher.published)
}

func TestFinalizer_StockConflictRejects(t *testing.T) {
	repo := &mockOrderRepo{commitErr: &order.StockConflictError{ItemID: "birria"}}
	f := newFixture(&stubValidator{}, repo)
	f.seedCart(t, &cart.Cart{OwnerID: "guest-1", Lines: []cart.Line{
		{CartItemID: "l1", ItemID: "birria", Quantity: 2},
	}})

	res, err := f.finalizer.Finalize(context.Background(), checkout.Request{
		OwnerID:   "guest-1",
		OrderType: order.TypeCollection,
	})
	require.NoError(t, err)
	assert.Equal(t, checkout.StateRejected, res.State)
	require.Len(t, res.Problems, 1)
	assert.Equal(t, "STOCK_CONFLICT", res.Problems[0].Code)
	assert.Equal(t, "birria", res.Problems[0].Field)
	assert.Empty(t, f.publisher.published)
}

func TestFinalizer_DiscountClaimOnApprovedCode(t *testing.T) {
	repo := &mockOrderRepo{}
	f := newFixture(&stubValidator{outcome: discount.Outcome{Approved: true, Amount: dec("2.00")}}, repo)
	f.seedCart(t, &cart.Cart{
		OwnerID:      "guest-1",
		DiscountCode: "SAVE10",
		Lines:        []cart.Line{{CartItemID: "l1", ItemID: "taco", Quantity: 4}},
	})

	res, err := f.finalizer.Finalize(context.Background(), checkout.Request{
		OwnerID:   "guest-1",
		OrderType: order.TypeCollection,
	})
	require.NoError(t, err)
	assert.Equal(t, checkout.StateCommitted, res.State)
	assert.Equal(t, "2.00", res.Order.DiscountAmount.StringFixed(2))
	assert.Equal(t, "SAVE10", res.Order.DiscountCode)

	require.NotNil(t, repo.commitParams.DiscountClaim)
	assert.Equal(t, "SAVE10", repo.commitParams.DiscountClaim.Code)
	assert.Equal(t, "guest-1", repo.commitParams.DiscountClaim.OwnerID)
}

func TestFinalizer_RejectedDiscountCommitsWithoutClaim(t *testing.T) {
	repo := &mockOrderRepo{}
	f := newFixture(&stubValidator{outcome: discount.Outcome{
		Reason: discount.ReasonExpired, Message: "discount code has expired",
	}}, repo)
	f.seedCart(t, &cart.Cart{
		OwnerID:      "guest-1",
		DiscountCode: "LATE",
		Lines:        []cart.Line{{CartItemID: "l1", ItemID: "taco", Quantity: 1}},
	})

	res, err := f.finalizer.Finalize(context.Background(), checkout.Request{
		OwnerID:   "guest-1",
		OrderType: order.TypeCollection,
	})
	require.NoError(t, err)

	// An ineligible code never blocks: the order commits at full price.
	assert.Equal(t, checkout.StateCommitted, res.State)
	assert.Equal(t, "0.00", res.Order.DiscountAmount.StringFixed(2))
	assert.Empty(t, res.Order.DiscountCode)
	assert.Nil(t, repo.commitParams.DiscountClaim)
}

func TestFinalizer_ReplayedCommitSkipsEvent(t *testing.T) {
	stored := &order.Order{ID: "o-1", TicketNumber: "K-123", Status: fulfillment.StatusPreparing}
	repo := &mockOrderRepo{commitResult: &order.CommitResult{Order: stored, Replayed: true}}
	f := newFixture(&stubValidator{}, repo)
	f.seedCart(t, &cart.Cart{OwnerID: "guest-1", Lines: []cart.Line{
		{CartItemID: "l1", ItemID: "taco", Quantity: 1},
	}})

	res, err := f.finalizer.Finalize(context.Background(), checkout.Request{
		OwnerID:        "guest-1",
		OrderType:      order.TypeCollection,
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, checkout.StateCommitted, res.State)
	assert.True(t, res.Replayed)
	assert.Equal(t, "o-1", res.Order.ID)
	assert.Empty(t, f.publisher.published, "a replay must not re-publish the event")
}

func TestFinalizer_RetryAfterCommitReturnsStoredOrder(t *testing.T) {
	repo := &mockOrderRepo{}
	f := newFixture(&stubValidator{}, repo)
	repo.clearCarts = f.carts
	f.seedCart(t, &cart.Cart{OwnerID: "guest-1", Lines: []cart.Line{
		{CartItemID: "l1", ItemID: "taco", Quantity: 2},
	}})

	req := checkout.Request{
		OwnerID:        "guest-1",
		OrderType:      order.TypeCollection,
		IdempotencyKey: "key-retry",
	}

	first, err := f.finalizer.Finalize(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, checkout.StateCommitted, first.State)
	require.False(t, first.Replayed)

	// The commit cleared the cart; a retry of the same submission must still
	// find the stored order instead of rejecting the now-empty cart.
	c, err := f.carts.Read(context.Background(), "guest-1")
	require.NoError(t, err)
	require.Empty(t, c.Lines)

	second, err := f.finalizer.Finalize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, checkout.StateCommitted, second.State)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.Order.OrderNumber, second.Order.OrderNumber)
	assert.Len(t, f.publisher.published, 1, "the retry must not re-publish the event")

	// Without the key there is nothing to replay against.
	_, err = f.finalizer.Finalize(context.Background(), checkout.Request{
		OwnerID:   "guest-1",
		OrderType: order.TypeCollection,
	})
	assert.ErrorIs(t, err, cart.ErrEmptyCart)
}

func TestFinalizer_InputGuards(t *testing.T) {
	repo := &mockOrderRepo{}
	f := newFixture(&stubValidator{}, repo)

	_, err := f.finalizer.Finalize(context.Background(), checkout.Request{
		OwnerID:   "guest-1",
		OrderType: "drone",
	})
	assert.ErrorIs(t, err, checkout.ErrInvalidOrderType)

	_, err = f.finalizer.Finalize(context.Background(), checkout.Request{
		OwnerID:   "guest-1",
		OrderType: order.TypeCollection,
	})
	assert.ErrorIs(t, err, cart.ErrEmptyCart)
}

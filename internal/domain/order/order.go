// Package order defines the immutable order record produced by checkout and
// the persistence contract for committing, tracking, and fulfilling orders.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/streetfare/orderline/internal/domain/fulfillment"
)

// Type is how the customer receives the order.
type Type string

const (
	TypeCollection Type = "collection"
	TypeDelivery   Type = "delivery"
)

// Valid reports whether t is a known order type.
func (t Type) Valid() bool {
	return t == TypeCollection || t == TypeDelivery
}

var (
	// ErrNotFound is returned when no order matches the lookup. Guest
	// tracking deliberately returns this for a wrong tracking token too:
	// a ticket number alone must never reveal order details.
	ErrNotFound = errors.New("order not found")
	// ErrCommitFailed wraps persistence failures during commit. The whole
	// transaction has rolled back; the caller should retry with the same
	// idempotency key.
	ErrCommitFailed = errors.New("order commit failed")
)

// StockConflictError is returned when committing would drive an item's stock
// negative — typically two concurrent checkouts racing for the last unit.
type StockConflictError struct {
	ItemID string
}

func (e *StockConflictError) Error() string {
	return "insufficient stock for item " + e.ItemID
}

// Code returns the machine-readable error code for API responses.
func (e *StockConflictError) Code() string { return "STOCK_CONFLICT" }

// Item is a frozen copy of a cart line at commit time. The unit price never
// changes afterwards: catalog price edits must not rewrite history.
type Item struct {
	ItemID         string              `json:"item_id"`
	Name           string              `json:"name"`
	Quantity       int                 `json:"quantity"`
	UnitPrice      decimal.Decimal     `json:"unit_price"`
	LineTotal      decimal.Decimal     `json:"line_total"`
	Customizations map[string][]string `json:"customizations,omitempty"`
}

// Order is a committed, immutable order. Only Status changes after creation,
// and every accepted change is appended to the status history.
type Order struct {
	ID             string
	OrderNumber    string
	TicketNumber   string
	TrackingToken  string
	OwnerID        string
	GuestName      string
	GuestContact   string
	OrderType      Type
	Items          []Item
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	DiscountCode   string
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
	Status         fulfillment.Status
	CreatedAt      time.Time
}

// StockDecrement is one conditional stock adjustment the commit transaction
// must apply atomically (decrement-if-sufficient, never read-then-write).
type StockDecrement struct {
	ItemID   string
	Quantity int
}

// DiscountClaim records a discount use inside the commit transaction. The
// claim must succeed or fail together with the order insert so a code can
// never be redeemed twice under concurrent checkouts.
type DiscountClaim struct {
	Code    string
	OwnerID string
}

// CommitParams is everything the repository needs to commit one order in a
// single transaction.
type CommitParams struct {
	Order           *Order
	StockDecrements []StockDecrement
	DiscountClaim   *DiscountClaim
	// ClearCartOwner, when non-empty, clears that owner's cart in the same
	// transaction.
	ClearCartOwner string
	// IdempotencyKey deduplicates checkout retries per owner. Empty disables
	// idempotency handling.
	IdempotencyKey string
}

// CommitResult reports what the commit transaction did.
type CommitResult struct {
	Order *Order
	// Replayed is true when a prior commit with the same idempotency key
	// already produced this order; nothing was written this time.
	Replayed bool
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Commit atomically applies all of params: stock decrements, the order
	// and item inserts, the discount claim, and the cart clear. On any
	// failure everything rolls back. Returns *StockConflictError when a
	// conditional decrement cannot be satisfied.
	Commit(ctx context.Context, params CommitParams) (*CommitResult, error)

	// FindByIdempotencyKey returns the order a prior commit produced for
	// this owner and key, or ErrNotFound. Lets a checkout retry recover the
	// stored order even after the commit already cleared the cart.
	FindByIdempotencyKey(ctx context.Context, ownerID, key string) (*Order, error)

	// TicketInUse reports whether a ticket number is already assigned to an
	// order still on the board (not completed or cancelled).
	TicketInUse(ctx context.Context, ticket string) (bool, error)

	// FindByTicketAndToken returns the order only when both the ticket number
	// and the tracking token match the same row.
	FindByTicketAndToken(ctx context.Context, ticket, token string) (*Order, error)

	// GetByID returns an order by its internal id.
	GetByID(ctx context.Context, id string) (*Order, error)

	// ListOpen returns orders that are not completed or cancelled, oldest
	// first, for the staff queue.
	ListOpen(ctx context.Context) ([]Order, error)

	// Transition atomically validates and applies a fulfillment status
	// change, appending it to the status history. Illegal transitions return
	// *fulfillment.InvalidTransitionError.
	Transition(ctx context.Context, orderID string, to fulfillment.Status, actor string) (*fulfillment.Change, error)

	// History returns the accepted status changes for an order in the order
	// they were committed.
	History(ctx context.Context, orderID string) ([]fulfillment.Change, error)
}

// Package checkout turns a validated cart into a committed order.
//
// Each checkout attempt walks a small state machine:
//
//	DRAFT -> VALIDATING -> REJECTED
//	                    -> COMMITTING -> COMMITTED
//
// VALIDATING re-prices the cart against the current catalog (prices and
// stock may have drifted since the customer last looked), and COMMITTING is
// a single database transaction: stock decrements, order insert, discount
// claim, cart clear. A failed attempt leaves the cart exactly as it was.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streetfare/orderline/internal/domain/cart"
	"github.com/streetfare/orderline/internal/domain/discount"
	"github.com/streetfare/orderline/internal/domain/fulfillment"
	"github.com/streetfare/orderline/internal/domain/order"
	"github.com/streetfare/orderline/internal/domain/pricing"
	"github.com/streetfare/orderline/internal/events"
)

// State is the phase a checkout attempt is in.
type State string

const (
	StateDraft      State = "draft"
	StateValidating State = "validating"
	StateRejected   State = "rejected"
	StateCommitting State = "committing"
	StateCommitted  State = "committed"
)

// ticketAttempts bounds collision re-rolls when minting a ticket number.
const ticketAttempts = 5

// ErrInvalidOrderType is returned for an unknown order type.
var ErrInvalidOrderType = errors.New("invalid order type")

// Request is one checkout submission.
type Request struct {
	OwnerID   string
	OrderType order.Type
	// GuestName and GuestContact identify a guest purchaser; empty for
	// authenticated owners whose contact details live on their account.
	GuestName    string
	GuestContact string
	// IdempotencyKey deduplicates network retries of the same submission.
	// Optional but strongly recommended by the API docs.
	IdempotencyKey string
}

// Result reports how the attempt ended. Rejected results carry the problem
// list so the client can point at the exact offending cart lines; a bare
// "something went wrong" is not acceptable output for this flow.
type Result struct {
	State    State
	Order    *order.Order
	Pricing  *pricing.Result
	Problems []pricing.Problem
	// Replayed is true when the idempotency key matched a previous commit
	// and the stored order was returned unchanged.
	Replayed bool
}

// Finalizer orchestrates checkout attempts.
type Finalizer struct {
	carts     cart.Store
	quoter    *pricing.Quoter
	discounts discount.Validator
	orders    order.Repository
	publisher events.Publisher
	now       func() time.Time
}

// NewFinalizer creates a Finalizer with the required collaborators.
func NewFinalizer(
	carts cart.Store,
	quoter *pricing.Quoter,
	discounts discount.Validator,
	orders order.Repository,
	publisher events.Publisher,
) *Finalizer {
	return &Finalizer{
		carts:     carts,
		quoter:    quoter,
		discounts: discounts,
		orders:    orders,
		publisher: publisher,
		now:       time.Now,
	}
}

// Finalize runs one checkout attempt for req. Validation failures come back
// as a Rejected result, not an error; errors are reserved for storage and
// invariant failures.
func (f *Finalizer) Finalize(ctx context.Context, req Request) (*Result, error) {
	lg := zctx.From(ctx).With(zap.String("owner_id", req.OwnerID))

	if !req.OrderType.Valid() {
		return nil, ErrInvalidOrderType
	}

	// A retry of an already-committed submission must get the stored order
	// back, not an empty-cart rejection: the original commit cleared the
	// cart, so the key is the only thing left identifying the attempt.
	if req.IdempotencyKey != "" {
		prior, err := f.orders.FindByIdempotencyKey(ctx, req.OwnerID, req.IdempotencyKey)
		switch {
		case err == nil:
			lg.Info("checkout replayed", zap.String("order_id", prior.ID))
			return &Result{State: StateCommitted, Order: prior, Replayed: true}, nil
		case !errors.Is(err, order.ErrNotFound):
			return nil, errors.Wrap(err, "idempotency lookup")
		}
	}

	c, err := f.carts.Read(ctx, req.OwnerID)
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}
	if len(c.Lines) == 0 {
		return nil, cart.ErrEmptyCart
	}

	// VALIDATING: final server-side re-price against current catalog state.
	lg.Debug("checkout validating", zap.Int("lines", len(c.Lines)))

	res, snap, err := f.quoter.Quote(ctx,
		cart.PricingLines(c.Lines),
		discount.Check(f.discounts, c.DiscountCode, req.OrderType, req.OwnerID),
	)
	if err != nil {
		return nil, err
	}

	if res.CheckoutBlocked() {
		lg.Info("checkout rejected", zap.Int("problems", len(res.Problems)))
		return &Result{
			State:    StateRejected,
			Pricing:  res,
			Problems: res.Problems,
		}, nil
	}

	// COMMITTING.
	o, err := f.buildOrder(ctx, c, req, res)
	if err != nil {
		return nil, err
	}

	params := order.CommitParams{
		Order:          o,
		ClearCartOwner: req.OwnerID,
		IdempotencyKey: req.IdempotencyKey,
	}
	for _, line := range res.Lines {
		item, ok := snap.Items[line.ItemID]
		if ok && item.StockTracked {
			params.StockDecrements = append(params.StockDecrements, order.StockDecrement{
				ItemID:   line.ItemID,
				Quantity: line.Quantity,
			})
		}
	}
	if res.DiscountApplied {
		params.DiscountClaim = &order.DiscountClaim{
			Code:    c.DiscountCode,
			OwnerID: req.OwnerID,
		}
	}

	commit, err := f.orders.Commit(ctx, params)
	if err != nil {
		var conflict *order.StockConflictError
		if errors.As(err, &conflict) {
			// Someone else took the last unit between our snapshot and the
			// commit. The transaction rolled back; the cart is untouched.
			lg.Info("checkout stock conflict", zap.String("item_id", conflict.ItemID))
			return &Result{
				State:   StateRejected,
				Pricing: res,
				Problems: []pricing.Problem{{
					Field:   conflict.ItemID,
					Code:    conflict.Code(),
					Message: conflict.Error(),
				}},
			}, nil
		}
		return nil, errors.Wrap(err, "commit order")
	}

	if !commit.Replayed {
		f.publisher.Publish(ctx, events.OrderCommitted{
			OrderID:       commit.Order.ID,
			OrderNumber:   commit.Order.OrderNumber,
			TicketNumber:  commit.Order.TicketNumber,
			TrackingToken: commit.Order.TrackingToken,
			OwnerID:       commit.Order.OwnerID,
			GuestContact:  commit.Order.GuestContact,
			Total:         commit.Order.Total.StringFixed(2),
			CommittedAt:   commit.Order.CreatedAt,
		})
	}

	lg.Info("checkout committed",
		zap.String("order_id", commit.Order.ID),
		zap.String("ticket", commit.Order.TicketNumber),
		zap.Bool("replayed", commit.Replayed),
	)

	return &Result{
		State:    StateCommitted,
		Order:    commit.Order,
		Pricing:  res,
		Replayed: commit.Replayed,
	}, nil
}

// buildOrder freezes the pricing result into an order record and mints the
// ticket number and tracking token.
func (f *Finalizer) buildOrder(ctx context.Context, c *cart.Cart, req Request, res *pricing.Result) (*order.Order, error) {
	ticket, err := f.mintTicket(ctx)
	if err != nil {
		return nil, err
	}

	now := f.now().UTC()
	items := make([]order.Item, len(res.Lines))
	for i, line := range res.Lines {
		items[i] = order.Item{
			ItemID:         line.ItemID,
			Name:           line.Name,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			LineTotal:      line.LineTotal,
			Customizations: c.Lines[i].Customizations,
		}
	}

	discountCode := ""
	if res.DiscountApplied {
		discountCode = res.DiscountCode
	}

	return &order.Order{
		ID:             uuid.New().String(),
		OrderNumber:    orderNumber(now),
		TicketNumber:   ticket,
		TrackingToken:  NewTrackingToken(),
		OwnerID:        req.OwnerID,
		GuestName:      req.GuestName,
		GuestContact:   req.GuestContact,
		OrderType:      req.OrderType,
		Items:          items,
		Subtotal:       res.Subtotal,
		DiscountAmount: res.DiscountAmount,
		DiscountCode:   discountCode,
		TaxAmount:      res.TaxAmount,
		Total:          res.Total,
		Status:         fulfillment.StatusReceived,
		CreatedAt:      now,
	}, nil
}

// mintTicket generates a ticket number that is not currently on the board.
// A unique partial index backs this check, so a race between two commits can
// only fail the later transaction, never hand out a duplicate.
func (f *Finalizer) mintTicket(ctx context.Context) (string, error) {
	for range ticketAttempts {
		ticket := NewTicketNumber()
		inUse, err := f.orders.TicketInUse(ctx, ticket)
		if err != nil {
			return "", errors.Wrap(err, "check ticket")
		}
		if !inUse {
			return ticket, nil
		}
	}
	return "", errors.New("could not mint a free ticket number")
}

// orderNumber builds the long-form unique order reference.
func orderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("SF-%s-%s", now.Format("20060102"), suffix)
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streetfare/orderline/internal/domain/fulfillment"
	"github.com/streetfare/orderline/internal/domain/order"
)

const (
	findByIdempotencyKeySQL = `SELECT id FROM orders
		WHERE owner_id = $1 AND idempotency_key = $2`

	decrementStockSQL = `UPDATE menu_items
		SET current_stock = current_stock - $2
		WHERE id = $1 AND stock_tracked AND current_stock >= $2`

	claimDiscountSQL = `UPDATE discount_codes
		SET usage_count = usage_count + 1
		WHERE code = UPPER($1) AND status = 'active'
			AND (usage_limit = 0 OR usage_count < usage_limit)
		RETURNING per_user_limit`

	insertDiscountUsageSQL = `INSERT INTO discount_usages (code, owner_id, order_id)
		VALUES (UPPER($1), $2, $3)`

	insertOrderSQL = `INSERT INTO orders (
			id, order_number, ticket_number, tracking_token, owner_id,
			guest_name, guest_contact, order_type,
			subtotal, discount_amount, tax_amount, total_amount, discount_code,
			status, idempotency_key, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	insertOrderItemSQL = `INSERT INTO order_items (
			order_id, line_no, item_id, name, quantity, unit_price, line_total, customizations
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	insertStatusChangeSQL = `INSERT INTO order_status_history (order_id, previous_status, new_status, actor, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	ticketInUseSQL = `SELECT EXISTS (
			SELECT 1 FROM orders
			WHERE ticket_number = $1 AND status NOT IN ('completed', 'cancelled')
		)`

	getOrderSQL = `SELECT id, order_number, ticket_number, tracking_token, owner_id,
			guest_name, guest_contact, order_type,
			subtotal, discount_amount, tax_amount, total_amount, discount_code,
			status, created_at
		FROM orders `

	getOrderItemsSQL = `SELECT item_id, name, quantity, unit_price, line_total, customizations
		FROM order_items WHERE order_id = $1 ORDER BY line_no`

	lockOrderStatusSQL = `SELECT status FROM orders WHERE id = $1 FOR UPDATE`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`

	getHistorySQL = `SELECT order_id, previous_status, new_status, actor, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY id`
)

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Commit applies the whole checkout commit in one transaction: idempotency
// replay check, conditional stock decrements, discount claim, order and item
// inserts, initial status-history row, cart clear. Any failure rolls back
// everything.
func (r *OrderRepository) Commit(ctx context.Context, params order.CommitParams) (*order.CommitResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(order.ErrCommitFailed, err.Error())
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Replay: a prior commit with this key already produced an order.
	if params.IdempotencyKey != "" {
		var existingID string
		err := tx.QueryRow(ctx, findByIdempotencyKeySQL, params.Order.OwnerID, params.IdempotencyKey).Scan(&existingID)
		switch {
		case err == nil:
			existing, err := getOrder(ctx, tx, "WHERE id = $1", existingID)
			if err != nil {
				return nil, errors.Wrap(order.ErrCommitFailed, err.Error())
			}
			return &order.CommitResult{Order: existing, Replayed: true}, nil
		case errors.Is(err, pgx.ErrNoRows):
			// First commit for this key.
		default:
			return nil, errors.Wrap(order.ErrCommitFailed, err.Error())
		}
	}

	// Decrement-if-sufficient, one conditional UPDATE per tracked item. A row
	// that does not match means another checkout took the stock first.
	for _, dec := range params.StockDecrements {
		tag, err := tx.Exec(ctx, decrementStockSQL, dec.ItemID, dec.Quantity)
		if err != nil {
			return nil, errors.Wrap(order.ErrCommitFailed, err.Error())
		}
		if tag.RowsAffected() == 0 {
			return nil, &order.StockConflictError{ItemID: dec.ItemID}
		}
	}

	if params.DiscountClaim != nil {
		if err := claimDiscount(ctx, tx, params.DiscountClaim, params.Order.ID); err != nil {
			return nil, err
		}
	}

	o := params.Order
	if _, err := tx.Exec(ctx, insertOrderSQL,
		o.ID, o.OrderNumber, o.TicketNumber, o.TrackingToken, o.OwnerID,
		o.GuestName, o.GuestContact, string(o.OrderType),
		o.Subtotal, o.DiscountAmount, o.TaxAmount, o.Total, o.DiscountCode,
		string(o.Status), params.IdempotencyKey, o.CreatedAt,
	); err != nil {
		return nil, errors.Wrap(order.ErrCommitFailed, err.Error())
	}

	batch := &pgx.Batch{}
	for i, item := range o.Items {
		custom, err := json.Marshal(item.Customizations)
		if err != nil {
			return nil, errors.Wrap(order.ErrCommitFailed, err.Error())
		}
		batch.Queue(insertOrderItemSQL,
			o.ID, i+1, item.ItemID, item.Name, item.Quantity,
			item.UnitPrice, item.LineTotal, custom,
		)
	}
	batch.Queue(insertStatusChangeSQL, o.ID, "", string(o.Status), "system", o.CreatedAt)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, errors.Wrap(order.ErrCommitFailed, err.Error())
	}

	if params.ClearCartOwner != "" {
		if _, err := tx.Exec(ctx, clearCartSQL, params.ClearCartOwner); err != nil {
			return nil, errors.Wrap(order.ErrCommitFailed, err.Error())
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(order.ErrCommitFailed, err.Error())
	}

	return &order.CommitResult{Order: o}, nil
}

// claimDiscount increments the code's usage atomically and records the usage
// row. The conditional UPDATE takes a row lock on the code, so concurrent
// claims for the same code serialize here and the per-user re-check below is
// race-free.
func claimDiscount(ctx context.Context, tx pgx.Tx, claim *order.DiscountClaim, orderID string) error {
	var perUserLimit int
	err := tx.QueryRow(ctx, claimDiscountSQL, claim.Code).Scan(&perUserLimit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrap(order.ErrCommitFailed, "discount code no longer claimable")
		}
		return errors.Wrap(order.ErrCommitFailed, err.Error())
	}

	if perUserLimit > 0 {
		var uses int
		if err := tx.QueryRow(ctx, countOwnerUsesSQL, claim.Code, claim.OwnerID).Scan(&uses); err != nil {
			return errors.Wrap(order.ErrCommitFailed, err.Error())
		}
		if uses >= perUserLimit {
			return errors.Wrap(order.ErrCommitFailed, "discount per-user limit reached")
		}
	}

	if _, err := tx.Exec(ctx, insertDiscountUsageSQL, claim.Code, claim.OwnerID, orderID); err != nil {
		return errors.Wrap(order.ErrCommitFailed, err.Error())
	}
	return nil
}

// FindByIdempotencyKey returns the order a prior commit stored for this
// owner and key, if any.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, ownerID, key string) (*order.Order, error) {
	if ownerID == "" || key == "" {
		return nil, order.ErrNotFound
	}
	return getOrder(ctx, r.pool, "WHERE owner_id = $1 AND idempotency_key = $2", ownerID, key)
}

// TicketInUse reports whether a ticket number belongs to an open order.
func (r *OrderRepository) TicketInUse(ctx context.Context, ticket string) (bool, error) {
	var inUse bool
	if err := r.pool.QueryRow(ctx, ticketInUseSQL, ticket).Scan(&inUse); err != nil {
		return false, fmt.Errorf("checking ticket %q: %w", ticket, err)
	}
	return inUse, nil
}

// FindByTicketAndToken returns the order only when both credentials match
// the same row. A correct ticket with a wrong token is indistinguishable
// from no order at all.
func (r *OrderRepository) FindByTicketAndToken(ctx context.Context, ticket, token string) (*order.Order, error) {
	if ticket == "" || token == "" {
		return nil, order.ErrNotFound
	}
	return getOrder(ctx, r.pool, "WHERE ticket_number = $1 AND tracking_token = $2", ticket, token)
}

// GetByID returns an order by its internal id.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, r.pool, "WHERE id = $1", id)
}

// ListOpen returns orders still on the board, oldest first.
func (r *OrderRepository) ListOpen(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL+
		`WHERE status NOT IN ('completed', 'cancelled') ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing open orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scanning open orders: %w", err)
	}

	for i := range orders {
		items, err := getOrderItems(ctx, r.pool, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// Transition validates and applies a fulfillment status change under a row
// lock, appending it to the history. Entries land in the history in the
// order their transactions commit.
func (r *OrderRepository) Transition(ctx context.Context, orderID string, to fulfillment.Status, actor string) (*fulfillment.Change, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("beginning transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string
	if err := tx.QueryRow(ctx, lockOrderStatusSQL, orderID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("locking order %q: %w", orderID, err)
	}

	from := fulfillment.Status(current)
	if err := fulfillment.Transition(from, to); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, updateOrderStatusSQL, orderID, string(to)); err != nil {
		return nil, fmt.Errorf("updating order %q status: %w", orderID, err)
	}
	if _, err := tx.Exec(ctx, insertStatusChangeSQL, orderID, string(from), string(to), actor, now); err != nil {
		return nil, fmt.Errorf("recording status change for %q: %w", orderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transition for %q: %w", orderID, err)
	}

	return &fulfillment.Change{
		OrderID:        orderID,
		PreviousStatus: from,
		NewStatus:      to,
		Actor:          actor,
		At:             now,
	}, nil
}

// History returns the accepted transitions for an order in commit order.
func (r *OrderRepository) History(ctx context.Context, orderID string) ([]fulfillment.Change, error) {
	rows, err := r.pool.Query(ctx, getHistorySQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("loading history for %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (fulfillment.Change, error) {
		var (
			c        fulfillment.Change
			from, to string
		)
		err := row.Scan(&c.OrderID, &from, &to, &c.Actor, &c.At)
		c.PreviousStatus = fulfillment.Status(from)
		c.NewStatus = fulfillment.Status(to)
		return c, err
	})
}

func getOrder(ctx context.Context, q querier, where string, args ...any) (*order.Order, error) {
	rows, err := q.Query(ctx, getOrderSQL+where, args...)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}

	items, err := getOrderItems(ctx, q, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func getOrderItems(ctx context.Context, q querier, orderID string) ([]order.Item, error) {
	rows, err := q.Query(ctx, getOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var (
			item   order.Item
			custom []byte
		)
		if err := row.Scan(&item.ItemID, &item.Name, &item.Quantity,
			&item.UnitPrice, &item.LineTotal, &custom); err != nil {
			return item, err
		}
		err := json.Unmarshal(custom, &item.Customizations)
		return item, err
	})
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o               order.Order
		orderType, stat string
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.TicketNumber, &o.TrackingToken, &o.OwnerID,
		&o.GuestName, &o.GuestContact, &orderType,
		&o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.Total, &o.DiscountCode,
		&stat, &o.CreatedAt,
	)
	o.OrderType = order.Type(orderType)
	o.Status = fulfillment.Status(stat)
	return o, err
}

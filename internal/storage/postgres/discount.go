package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streetfare/orderline/internal/domain/discount"
	"github.com/streetfare/orderline/internal/domain/order"
)

const (
	getCodeSQL = `SELECT code, discount_type, discount_value, description,
			valid_from, valid_until, usage_limit, per_user_limit, minimum_spend,
			applicable_order_types, applicable_category_ids, applicable_item_ids,
			status, usage_count
		FROM discount_codes WHERE code = UPPER($1)`

	countOwnerUsesSQL = `SELECT COUNT(*) FROM discount_usages
		WHERE code = UPPER($1) AND owner_id = $2`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
// Codes are stored upper-case; lookups normalize in SQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// FindByCode looks up a discount code. Returns discount.ErrCodeNotFound when
// no row exists.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Code, error) {
	rows, err := r.pool.Query(ctx, getCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding discount code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanDiscountCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrCodeNotFound
		}
		return nil, fmt.Errorf("finding discount code %q: %w", code, err)
	}
	return &c, nil
}

// CountOwnerUses returns the number of committed orders by ownerID that
// redeemed the code.
func (r *DiscountRepository) CountOwnerUses(ctx context.Context, code, ownerID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countOwnerUsesSQL, code, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting uses of %q by %q: %w", code, ownerID, err)
	}
	return n, nil
}

func scanDiscountCode(row pgx.CollectableRow) (discount.Code, error) {
	var (
		c          discount.Code
		kind       string
		orderTypes []string
	)
	err := row.Scan(
		&c.Code, &kind, &c.Value, &c.Description,
		&c.ValidFrom, &c.ValidUntil, &c.UsageLimit, &c.PerUserLimit, &c.MinimumSpend,
		&orderTypes, &c.ApplicableCategoryIDs, &c.ApplicableItemIDs,
		&c.Status, &c.UsageCount,
	)
	if err != nil {
		return c, err
	}

	c.Kind = discount.Kind(kind)
	c.ApplicableOrderTypes = make([]order.Type, len(orderTypes))
	for i, t := range orderTypes {
		c.ApplicableOrderTypes[i] = order.Type(t)
	}
	return c, nil
}

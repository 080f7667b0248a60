package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streetfare/orderline/internal/domain/cart"
)

const (
	readCartSQL = `SELECT owner_id, lines, discount_code, updated_at
		FROM carts WHERE owner_id = $1`

	writeCartSQL = `INSERT INTO carts (owner_id, lines, discount_code, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id) DO UPDATE
		SET lines = $2, discount_code = $3, updated_at = $4`

	clearCartSQL = `DELETE FROM carts WHERE owner_id = $1`
)

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store backed by PostgreSQL. The whole cart is a
// single row per owner, lines stored as JSONB and replaced wholesale on each
// write.
type CartStore struct {
	pool *pgxpool.Pool
}

// NewCartStore returns a CartStore that uses the given pool.
func NewCartStore(pool *pgxpool.Pool) *CartStore {
	return &CartStore{pool: pool}
}

// Read returns the owner's cart, or a fresh empty cart when none exists.
func (s *CartStore) Read(ctx context.Context, ownerID string) (*cart.Cart, error) {
	var (
		c         cart.Cart
		linesJSON []byte
	)
	err := s.pool.QueryRow(ctx, readCartSQL, ownerID).
		Scan(&c.OwnerID, &linesJSON, &c.DiscountCode, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &cart.Cart{OwnerID: ownerID}, nil
		}
		return nil, fmt.Errorf("reading cart for %q: %w", ownerID, err)
	}

	if err := json.Unmarshal(linesJSON, &c.Lines); err != nil {
		return nil, fmt.Errorf("unmarshaling cart lines for %q: %w", ownerID, err)
	}
	return &c, nil
}

// Write replaces the owner's cart.
func (s *CartStore) Write(ctx context.Context, c *cart.Cart) error {
	linesJSON, err := json.Marshal(c.Lines)
	if err != nil {
		return fmt.Errorf("marshaling cart lines: %w", err)
	}

	_, err = s.pool.Exec(ctx, writeCartSQL, c.OwnerID, linesJSON, c.DiscountCode, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("writing cart for %q: %w", c.OwnerID, err)
	}
	return nil
}

// Clear removes the owner's cart row.
func (s *CartStore) Clear(ctx context.Context, ownerID string) error {
	_, err := s.pool.Exec(ctx, clearCartSQL, ownerID)
	if err != nil {
		return fmt.Errorf("clearing cart for %q: %w", ownerID, err)
	}
	return nil
}

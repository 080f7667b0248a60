package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streetfare/orderline/internal/domain/catalog"
)

const (
	listItemsSQL = `SELECT id, name, price, category_id, is_active, stock_tracked, current_stock, low_stock_threshold
		FROM menu_items ORDER BY category_id, id`

	getItemsByIDsSQL = `SELECT id, name, price, category_id, is_active, stock_tracked, current_stock, low_stock_threshold
		FROM menu_items WHERE id = ANY($1)`

	getOptionsByIDsSQL = `SELECT id, group_id, name, additional_price
		FROM customization_options WHERE id = ANY($1)`
)

var _ catalog.Reader = (*CatalogReader)(nil)

// CatalogReader implements catalog.Reader backed by PostgreSQL.
type CatalogReader struct {
	pool *pgxpool.Pool
}

// NewCatalogReader returns a CatalogReader that uses the given pool.
func NewCatalogReader(pool *pgxpool.Pool) *CatalogReader {
	return &CatalogReader{pool: pool}
}

// Snapshot loads all requested items and options in two batched queries —
// one per table, regardless of cart size. Missing ids are simply absent from
// the snapshot maps; the pricing engine treats them as unavailable.
func (r *CatalogReader) Snapshot(ctx context.Context, itemIDs, optionIDs []string) (*catalog.Snapshot, error) {
	snap := &catalog.Snapshot{
		Items:   make(map[string]catalog.Item, len(itemIDs)),
		Options: make(map[string]catalog.Option, len(optionIDs)),
	}

	if len(itemIDs) > 0 {
		rows, err := r.pool.Query(ctx, getItemsByIDsSQL, itemIDs)
		if err != nil {
			return nil, fmt.Errorf("getting menu items: %w", err)
		}
		items, err := pgx.CollectRows(rows, scanItem)
		if err != nil {
			return nil, fmt.Errorf("scanning menu items: %w", err)
		}
		for _, item := range items {
			snap.Items[item.ID] = item
		}
	}

	if len(optionIDs) > 0 {
		rows, err := r.pool.Query(ctx, getOptionsByIDsSQL, optionIDs)
		if err != nil {
			return nil, fmt.Errorf("getting customization options: %w", err)
		}
		opts, err := pgx.CollectRows(rows, scanOption)
		if err != nil {
			return nil, fmt.Errorf("scanning customization options: %w", err)
		}
		for _, opt := range opts {
			snap.Options[opt.ID] = opt
		}
	}

	return snap, nil
}

// ListItems returns the full menu for the storefront, grouped by category.
func (r *CatalogReader) ListItems(ctx context.Context) ([]catalog.Item, error) {
	rows, err := r.pool.Query(ctx, listItemsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing menu items: %w", err)
	}
	return pgx.CollectRows(rows, scanItem)
}

func scanItem(row pgx.CollectableRow) (catalog.Item, error) {
	var i catalog.Item
	err := row.Scan(
		&i.ID, &i.Name, &i.Price, &i.CategoryID,
		&i.IsActive, &i.StockTracked, &i.CurrentStock, &i.LowStockThreshold,
	)
	return i, err
}

func scanOption(row pgx.CollectableRow) (catalog.Option, error) {
	var o catalog.Option
	err := row.Scan(&o.ID, &o.GroupID, &o.Name, &o.AdditionalPrice)
	return o, err
}

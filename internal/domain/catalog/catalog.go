// Package catalog exposes the read-only menu state the pricing engine
// revalidates carts against. Catalog lifecycle (creating items, adjusting
// prices, restocking) is owned by back-office tooling; this core only reads
// point-in-time snapshots.
package catalog

import (
	"context"

	"github.com/shopspring/decimal"
)

// Item is a menu item as seen at snapshot time.
type Item struct {
	ID                string
	Name              string
	Price             decimal.Decimal
	CategoryID        string
	IsActive          bool
	StockTracked      bool
	CurrentStock      int
	LowStockThreshold int
}

// LowStock reports whether a stock-tracked item has dropped to or below its
// configured threshold.
func (i Item) LowStock() bool {
	return i.StockTracked && i.CurrentStock <= i.LowStockThreshold
}

// Option is a priced customization choice (size, add-on) attachable to items.
type Option struct {
	ID              string
	GroupID         string
	Name            string
	AdditionalPrice decimal.Decimal
}

// Snapshot is a consistent point-in-time view of the catalog rows a single
// pricing pass needs. Each pricing computation works from exactly one
// snapshot; it never re-reads the catalog mid-pass.
type Snapshot struct {
	Items   map[string]Item
	Options map[string]Option
}

// Reader loads catalog snapshots. Implementations must fetch all requested
// items and options in one batched round trip each; a per-line lookup loop
// is a regression.
type Reader interface {
	Snapshot(ctx context.Context, itemIDs, optionIDs []string) (*Snapshot, error)
	ListItems(ctx context.Context) ([]Item, error)
}

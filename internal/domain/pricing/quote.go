package pricing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/streetfare/orderline/internal/domain/catalog"
)

// Quoter couples the pricing engine to a catalog reader and a tax rate.
// Both the cart service and the checkout finalizer quote through it, so the
// storefront preview and the final server-side check share one code path.
type Quoter struct {
	catalog catalog.Reader
	taxRate decimal.Decimal
}

// NewQuoter creates a Quoter. taxRate is a fraction (0.09 for 9%).
func NewQuoter(reader catalog.Reader, taxRate decimal.Decimal) *Quoter {
	return &Quoter{catalog: reader, taxRate: taxRate}
}

// TaxRate returns the configured tax rate.
func (q *Quoter) TaxRate() decimal.Decimal { return q.taxRate }

// Quote loads one catalog snapshot covering every item and option referenced
// by the lines — a single batched read, never one query per line — and
// computes totals against it. The snapshot is returned so the caller can
// derive stock decrements from the same state the totals were checked against.
func (q *Quoter) Quote(ctx context.Context, lines []Line, check DiscountCheck) (*Result, *catalog.Snapshot, error) {
	itemIDs := make([]string, 0, len(lines))
	var optionIDs []string
	seenItems := make(map[string]struct{}, len(lines))
	seenOpts := make(map[string]struct{})

	for _, line := range lines {
		if _, ok := seenItems[line.ItemID]; !ok {
			seenItems[line.ItemID] = struct{}{}
			itemIDs = append(itemIDs, line.ItemID)
		}
		for _, optID := range line.OptionIDs {
			if _, ok := seenOpts[optID]; !ok {
				seenOpts[optID] = struct{}{}
				optionIDs = append(optionIDs, optID)
			}
		}
	}

	snap, err := q.catalog.Snapshot(ctx, itemIDs, optionIDs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "catalog snapshot")
	}

	return Compute(ctx, lines, snap, check, q.taxRate), snap, nil
}

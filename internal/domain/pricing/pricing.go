// Package pricing computes cart totals against a catalog snapshot.
//
// Compute is the single server-side source of truth for what a cart costs:
// the storefront calls it after every cart mutation, and checkout re-runs it
// one last time before committing an order. Validation problems are data in
// the result, not errors — the client needs to know exactly which line is
// wrong so it can be edited out.
package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/streetfare/orderline/internal/domain/catalog"
)

// Problem codes surfaced in Result.Problems.
const (
	CodeItemUnavailable   = "ITEM_UNAVAILABLE"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
)

// Problem describes a single validation issue found while pricing a cart.
// Field identifies the offending cart line (or "discount_code").
type Problem struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Blocking reports whether this problem must prevent checkout. Discount
// rejections and other advisory problems do not block; the cart can still be
// purchased at full price.
func (p Problem) Blocking() bool {
	return p.Code == CodeItemUnavailable || p.Code == CodeInsufficientStock
}

// Line is one cart entry to be priced.
type Line struct {
	CartItemID string
	ItemID     string
	Quantity   int
	OptionIDs  []string
}

// PricedLine is a Line after price resolution. Unavailable lines are kept in
// the result with a zero unit price so the caller can render them; they are
// never silently dropped.
type PricedLine struct {
	CartItemID string
	ItemID     string
	Name       string
	CategoryID string
	Quantity   int
	OptionIDs  []string
	UnitPrice  decimal.Decimal
	LineTotal  decimal.Decimal
	Available  bool
}

// Discount is the outcome of checking the cart's attached discount code.
// When rejected, Reason carries the machine-readable rejection code and the
// amount is zero.
type Discount struct {
	Code     string
	Approved bool
	Amount   decimal.Decimal
	Reason   string
	Message  string
}

// DiscountCheck resolves the attached discount code once the subtotal over
// available lines is known. Implementations close over the validator, the
// code, and the owner identity. A nil DiscountCheck means no code attached.
type DiscountCheck func(ctx context.Context, subtotal decimal.Decimal, lines []PricedLine) Discount

// Result is the full pricing breakdown for one cart.
type Result struct {
	Lines          []PricedLine
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	DiscountCode   string
	// DiscountApplied is true when the attached code passed validation and
	// DiscountAmount reflects it. A false value with a non-empty code means
	// the rejection reason is in Problems.
	DiscountApplied bool
	TaxAmount       decimal.Decimal
	Total           decimal.Decimal
	Problems        []Problem
}

// CheckoutBlocked reports whether any blocking problem is present.
func (r *Result) CheckoutBlocked() bool {
	for _, p := range r.Problems {
		if p.Blocking() {
			return true
		}
	}
	return false
}

// BlockingProblems returns only the problems that must prevent checkout.
func (r *Result) BlockingProblems() []Problem {
	var out []Problem
	for _, p := range r.Problems {
		if p.Blocking() {
			out = append(out, p)
		}
	}
	return out
}

// Compute prices the given cart lines against the snapshot, consults check
// for the attached discount, and applies tax at taxRate (a fraction, e.g.
// 0.09 for 9%) on the discounted subtotal.
//
// Every line the caller passes in appears in the result. Lines whose item is
// missing, inactive, or short on stock are flagged unavailable with a zero
// unit price and excluded from the subtotal.
func Compute(ctx context.Context, lines []Line, snap *catalog.Snapshot, check DiscountCheck, taxRate decimal.Decimal) *Result {
	res := &Result{
		Lines:          make([]PricedLine, 0, len(lines)),
		Subtotal:       decimal.Zero,
		DiscountAmount: decimal.Zero,
		TaxAmount:      decimal.Zero,
		Total:          decimal.Zero,
	}

	for _, line := range lines {
		priced := priceLine(line, snap, res)
		res.Lines = append(res.Lines, priced)
		if priced.Available {
			res.Subtotal = res.Subtotal.Add(priced.LineTotal)
		}
	}
	res.Subtotal = res.Subtotal.Round(2)

	if check != nil {
		d := check(ctx, res.Subtotal, res.Lines)
		res.DiscountCode = d.Code
		if d.Approved {
			// The validator caps the amount at the subtotal; clamp again so a
			// misbehaving implementation can never push the total negative.
			res.DiscountAmount = decimal.Min(d.Amount, res.Subtotal).Round(2)
			res.DiscountApplied = true
		} else if d.Code != "" {
			res.Problems = append(res.Problems, Problem{
				Field:   "discount_code",
				Code:    d.Reason,
				Message: d.Message,
			})
		}
	}

	taxed := res.Subtotal.Sub(res.DiscountAmount)
	res.TaxAmount = taxed.Mul(taxRate).Round(2)
	res.Total = taxed.Add(res.TaxAmount)
	if res.Total.IsNegative() {
		res.Total = decimal.Zero
	}
	res.Total = res.Total.Round(2)

	return res
}

// priceLine resolves a single line against the snapshot, appending problems
// to res as it goes.
func priceLine(line Line, snap *catalog.Snapshot, res *Result) PricedLine {
	out := PricedLine{
		CartItemID: line.CartItemID,
		ItemID:     line.ItemID,
		Quantity:   line.Quantity,
		OptionIDs:  line.OptionIDs,
		UnitPrice:  decimal.Zero,
		LineTotal:  decimal.Zero,
	}

	item, ok := snap.Items[line.ItemID]
	if !ok || !item.IsActive {
		res.Problems = append(res.Problems, Problem{
			Field:   line.CartItemID,
			Code:    CodeItemUnavailable,
			Message: fmt.Sprintf("item %s is no longer available", line.ItemID),
		})
		return out
	}
	out.Name = item.Name
	out.CategoryID = item.CategoryID

	if item.StockTracked && item.CurrentStock < line.Quantity {
		res.Problems = append(res.Problems, Problem{
			Field:   line.CartItemID,
			Code:    CodeInsufficientStock,
			Message: fmt.Sprintf("only %d of %s left in stock", item.CurrentStock, item.Name),
		})
		return out
	}

	unit := item.Price
	for _, optID := range line.OptionIDs {
		// Options were resolved in the same batched snapshot as the items.
		// An option missing from the snapshot was deleted from the catalog;
		// treat the line as unavailable rather than under-pricing it.
		opt, ok := snap.Options[optID]
		if !ok {
			out.Name = item.Name
			out.UnitPrice = decimal.Zero
			res.Problems = append(res.Problems, Problem{
				Field:   line.CartItemID,
				Code:    CodeItemUnavailable,
				Message: fmt.Sprintf("customization %s for %s is no longer available", optID, item.Name),
			})
			return out
		}
		unit = unit.Add(opt.AdditionalPrice)
	}

	out.UnitPrice = unit.Round(2)
	out.LineTotal = unit.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)
	out.Available = true
	return out
}

package discount

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/streetfare/orderline/internal/domain/order"
	"github.com/streetfare/orderline/internal/domain/pricing"
)

// Check adapts a Validator into the pricing engine's discount hook for one
// pricing pass. Returns nil when no code is attached, which tells the engine
// to skip the discount step entirely.
//
// A storage failure during validation is reported as a rejection rather than
// failing the whole pricing computation: the cart must stay purchasable at
// full price even when the discount backend is down.
func Check(v Validator, code string, orderType order.Type, ownerID string) pricing.DiscountCheck {
	if code == "" {
		return nil
	}
	return func(ctx context.Context, subtotal decimal.Decimal, lines []pricing.PricedLine) pricing.Discount {
		refs := make([]LineRef, 0, len(lines))
		for _, l := range lines {
			if l.Available {
				refs = append(refs, LineRef{ItemID: l.ItemID, CategoryID: l.CategoryID})
			}
		}

		out, err := v.Validate(ctx, Request{
			Code:      code,
			Subtotal:  subtotal,
			OrderType: orderType,
			OwnerID:   ownerID,
			Lines:     refs,
		})
		if err != nil {
			return pricing.Discount{
				Code:    code,
				Reason:  ReasonCheckFailed,
				Message: "discount code could not be validated",
			}
		}

		return pricing.Discount{
			Code:     code,
			Approved: out.Approved,
			Amount:   out.Amount,
			Reason:   out.Reason,
			Message:  out.Message,
		}
	}
}

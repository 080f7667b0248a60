package handler

import (
	"time"

	"github.com/streetfare/orderline/internal/domain/cart"
	"github.com/streetfare/orderline/internal/domain/fulfillment"
	"github.com/streetfare/orderline/internal/domain/order"
	"github.com/streetfare/orderline/internal/domain/pricing"
)

// Money is rendered as a fixed two-decimal string; floats do not survive
// round-trips through JSON clients intact.

type cartLine struct {
	CartItemID     string              `json:"cart_item_id"`
	ItemID         string              `json:"item_id"`
	Name           string              `json:"name,omitempty"`
	Quantity       int                 `json:"quantity"`
	Customizations map[string][]string `json:"customizations,omitempty"`
	UnitPrice      string              `json:"unit_price"`
	LineTotal      string              `json:"line_total"`
	Available      bool                `json:"available"`
}

type pricingBreakdown struct {
	Subtotal        string            `json:"subtotal"`
	DiscountCode    string            `json:"discount_code,omitempty"`
	DiscountAmount  string            `json:"discount_amount"`
	DiscountApplied bool              `json:"discount_applied"`
	TaxAmount       string            `json:"tax_amount"`
	Total           string            `json:"total"`
	Problems        []pricing.Problem `json:"problems,omitempty"`
}

type cartResponse struct {
	Lines   []cartLine       `json:"lines"`
	Pricing pricingBreakdown `json:"pricing"`
}

func toCartResponse(v *cart.View) cartResponse {
	lines := make([]cartLine, len(v.Pricing.Lines))
	for i, pl := range v.Pricing.Lines {
		lines[i] = cartLine{
			CartItemID: pl.CartItemID,
			ItemID:     pl.ItemID,
			Name:       pl.Name,
			Quantity:   pl.Quantity,
			UnitPrice:  pl.UnitPrice.StringFixed(2),
			LineTotal:  pl.LineTotal.StringFixed(2),
			Available:  pl.Available,
		}
		if i < len(v.Cart.Lines) {
			lines[i].Customizations = v.Cart.Lines[i].Customizations
		}
	}
	return cartResponse{
		Lines:   lines,
		Pricing: toPricingBreakdown(v.Pricing),
	}
}

func toPricingBreakdown(res *pricing.Result) pricingBreakdown {
	return pricingBreakdown{
		Subtotal:        res.Subtotal.StringFixed(2),
		DiscountCode:    res.DiscountCode,
		DiscountAmount:  res.DiscountAmount.StringFixed(2),
		DiscountApplied: res.DiscountApplied,
		TaxAmount:       res.TaxAmount.StringFixed(2),
		Total:           res.Total.StringFixed(2),
		Problems:        res.Problems,
	}
}

type orderItemResponse struct {
	ItemID         string              `json:"item_id"`
	Name           string              `json:"name"`
	Quantity       int                 `json:"quantity"`
	UnitPrice      string              `json:"unit_price"`
	LineTotal      string              `json:"line_total"`
	Customizations map[string][]string `json:"customizations,omitempty"`
}

type orderResponse struct {
	ID           string `json:"id"`
	OrderNumber  string `json:"order_number"`
	TicketNumber string `json:"ticket_number"`
	// TrackingToken is returned once, in the checkout response. Tracking
	// lookups require it; it never appears in staff responses.
	TrackingToken  string              `json:"tracking_token,omitempty"`
	OrderType      string              `json:"order_type"`
	Status         string              `json:"status"`
	Items          []orderItemResponse `json:"items"`
	Subtotal       string              `json:"subtotal"`
	DiscountCode   string              `json:"discount_code,omitempty"`
	DiscountAmount string              `json:"discount_amount"`
	TaxAmount      string              `json:"tax_amount"`
	Total          string              `json:"total"`
	CreatedAt      time.Time           `json:"created_at"`
}

func toOrderResponse(o *order.Order, includeToken bool) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemResponse{
			ItemID:         item.ItemID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice.StringFixed(2),
			LineTotal:      item.LineTotal.StringFixed(2),
			Customizations: item.Customizations,
		}
	}

	out := orderResponse{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		TicketNumber:   o.TicketNumber,
		OrderType:      string(o.OrderType),
		Status:         string(o.Status),
		Items:          items,
		Subtotal:       o.Subtotal.StringFixed(2),
		DiscountCode:   o.DiscountCode,
		DiscountAmount: o.DiscountAmount.StringFixed(2),
		TaxAmount:      o.TaxAmount.StringFixed(2),
		Total:          o.Total.StringFixed(2),
		CreatedAt:      o.CreatedAt,
	}
	if includeToken {
		out.TrackingToken = o.TrackingToken
	}
	return out
}

type statusChangeResponse struct {
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status"`
	Actor          string    `json:"actor"`
	At             time.Time `json:"at"`
}

func toHistoryResponse(changes []fulfillment.Change) []statusChangeResponse {
	out := make([]statusChangeResponse, len(changes))
	for i, ch := range changes {
		out[i] = statusChangeResponse{
			PreviousStatus: string(ch.PreviousStatus),
			NewStatus:      string(ch.NewStatus),
			Actor:          ch.Actor,
			At:             ch.At,
		}
	}
	return out
}

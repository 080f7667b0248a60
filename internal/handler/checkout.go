package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/streetfare/orderline/internal/domain/checkout"
	"github.com/streetfare/orderline/internal/domain/order"
)

// idempotencyHeader deduplicates retried checkout submissions.
const idempotencyHeader = "Idempotency-Key"

type checkoutRequest struct {
	OrderType    string `json:"order_type" binding:"required"`
	GuestName    string `json:"guest_name"`
	GuestContact string `json:"guest_contact"`
}

type checkoutResponse struct {
	State    string         `json:"state"`
	Order    *orderResponse `json:"order,omitempty"`
	Pricing  any            `json:"pricing,omitempty"`
	Replayed bool           `json:"replayed,omitempty"`
}

// Checkout runs one checkout attempt for the caller's cart. A rejected
// attempt comes back as 409 with the exact problems; the cart is untouched.
func (h *Handler) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := h.finalizer.Finalize(c.Request.Context(), checkout.Request{
		OwnerID:        sessionID(c),
		OrderType:      order.Type(req.OrderType),
		GuestName:      req.GuestName,
		GuestContact:   req.GuestContact,
		IdempotencyKey: c.GetHeader(idempotencyHeader),
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	if result.State == checkout.StateRejected {
		c.JSON(http.StatusConflict, checkoutResponse{
			State:   string(result.State),
			Pricing: toPricingBreakdown(result.Pricing),
		})
		return
	}

	// The tracking token appears here and nowhere else.
	resp := toOrderResponse(result.Order, true)
	c.JSON(http.StatusCreated, checkoutResponse{
		State:    string(result.State),
		Order:    &resp,
		Replayed: result.Replayed,
	})
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/streetfare/orderline/internal/domain/auth"
	"github.com/streetfare/orderline/internal/domain/fulfillment"
)

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ListOpenOrders returns the kitchen queue: orders not yet completed or
// cancelled, oldest first.
func (h *Handler) ListOpenOrders(c *gin.Context) {
	if !requireScope(c, auth.ScopeQueue) {
		return
	}

	orders, err := h.orders.ListOpen(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}

	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i], false)
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

// UpdateOrderStatus advances an order through the fulfillment machine.
// Illegal jumps are rejected with 409 and the order is left unchanged.
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	if !requireScope(c, auth.ScopeStatus) {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	to := fulfillment.Status(req.Status)
	if !to.Valid() {
		respondError(c, http.StatusBadRequest, "INVALID_STATUS", "unknown status "+req.Status)
		return
	}

	change, err := h.orders.Transition(c.Request.Context(), c.Param("id"), to, apiKeyName(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, statusChangeResponse{
		PreviousStatus: string(change.PreviousStatus),
		NewStatus:      string(change.NewStatus),
		Actor:          change.Actor,
		At:             change.At,
	})
}

// OrderHistory returns the accepted status transitions for an order.
func (h *Handler) OrderHistory(c *gin.Context) {
	if !requireScope(c, auth.ScopeQueue) {
		return
	}

	// A missing order has an empty history; confirm it exists first so the
	// client can tell the two apart.
	if _, err := h.orders.GetByID(c.Request.Context(), c.Param("id")); err != nil {
		respondDomainError(c, err)
		return
	}

	history, err := h.orders.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": toHistoryResponse(history)})
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TrackOrder is the guest status lookup. It requires both the ticket number
// and the tracking token from the checkout response; a valid ticket with a
// wrong token is answered exactly like an unknown ticket, so ticket numbers
// alone leak nothing.
func (h *Handler) TrackOrder(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		respondError(c, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found")
		return
	}

	o, err := h.orders.FindByTicketAndToken(c.Request.Context(), c.Param("ticket"), token)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(o, false))
}

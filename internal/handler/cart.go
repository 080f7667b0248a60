package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type addItemRequest struct {
	ItemID         string              `json:"item_id" binding:"required"`
	Quantity       int                 `json:"quantity" binding:"required"`
	Customizations map[string][]string `json:"customizations"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

type applyDiscountRequest struct {
	Code string `json:"code" binding:"required"`
}

// GetCart returns the caller's cart with a fresh pricing breakdown.
func (h *Handler) GetCart(c *gin.Context) {
	view, err := h.carts.Get(c.Request.Context(), sessionID(c), orderType(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(view))
}

// AddCartItem adds an item to the cart. The same item with the same
// customization selection merges into the existing line.
func (h *Handler) AddCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	view, err := h.carts.AddLine(c.Request.Context(), sessionID(c),
		req.ItemID, req.Quantity, req.Customizations, orderType(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(view))
}

// UpdateCartItem sets the quantity of an existing cart line.
func (h *Handler) UpdateCartItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	view, err := h.carts.UpdateQuantity(c.Request.Context(), sessionID(c),
		c.Param("id"), req.Quantity, orderType(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(view))
}

// RemoveCartItem deletes a cart line.
func (h *Handler) RemoveCartItem(c *gin.Context) {
	view, err := h.carts.RemoveLine(c.Request.Context(), sessionID(c),
		c.Param("id"), orderType(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(view))
}

// ApplyDiscount attaches a discount code to the cart. An ineligible code
// stays attached; its rejection shows up in the pricing problems.
func (h *Handler) ApplyDiscount(c *gin.Context) {
	var req applyDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	view, err := h.carts.ApplyDiscount(c.Request.Context(), sessionID(c),
		req.Code, orderType(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(view))
}

// RemoveDiscount detaches any applied discount code.
func (h *Handler) RemoveDiscount(c *gin.Context) {
	view, err := h.carts.RemoveDiscount(c.Request.Context(), sessionID(c), orderType(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(view))
}

// Package handler exposes the storefront and staff REST surface.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streetfare/orderline/internal/domain/auth"
	"github.com/streetfare/orderline/internal/domain/cart"
	"github.com/streetfare/orderline/internal/domain/catalog"
	"github.com/streetfare/orderline/internal/domain/checkout"
	"github.com/streetfare/orderline/internal/domain/fulfillment"
	"github.com/streetfare/orderline/internal/domain/order"
)

// sessionHeader carries the guest session identity. The server mints one on
// first contact and echoes it back; clients resend it on every request.
const sessionHeader = "X-Session-ID"

// Handler wires HTTP requests to the domain services.
type Handler struct {
	catalog   catalog.Reader
	carts     *cart.Service
	finalizer *checkout.Finalizer
	orders    order.Repository
	apikeys   auth.Repository
	pepper    []byte
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cat catalog.Reader,
	carts *cart.Service,
	finalizer *checkout.Finalizer,
	orders order.Repository,
	apikeys auth.Repository,
	pepper []byte,
) *Handler {
	return &Handler{
		catalog:   cat,
		carts:     carts,
		finalizer: finalizer,
		orders:    orders,
		apikeys:   apikeys,
		pepper:    pepper,
	}
}

// Register mounts all routes on the engine.
func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api")

	api.GET("/menu", h.GetMenu)

	api.GET("/cart", h.GetCart)
	api.POST("/cart/items", h.AddCartItem)
	api.PATCH("/cart/items/:id", h.UpdateCartItem)
	api.DELETE("/cart/items/:id", h.RemoveCartItem)
	api.POST("/cart/discount", h.ApplyDiscount)
	api.DELETE("/cart/discount", h.RemoveDiscount)

	api.POST("/checkout", h.Checkout)
	api.GET("/orders/:ticket", h.TrackOrder)

	staff := api.Group("/staff", h.APIKeyAuth())
	staff.GET("/orders", h.ListOpenOrders)
	staff.POST("/orders/:id/status", h.UpdateOrderStatus)
	staff.GET("/orders/:id/history", h.OrderHistory)
}

// sessionID returns the caller's session identity, minting one when the
// header is absent. The minted id is echoed so the client can adopt it.
func sessionID(c *gin.Context) string {
	id := c.GetHeader(sessionHeader)
	if id == "" {
		id = uuid.New().String()
	}
	c.Header(sessionHeader, id)
	return id
}

// orderType reads the optional order_type query parameter. Validation happens
// in the domain; an empty value defaults to collection there.
func orderType(c *gin.Context) order.Type {
	return order.Type(c.Query("order_type"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Code: code, Message: message})
}

// respondDomainError maps known domain errors to HTTP responses. Unknown
// errors are logged and become an opaque 500.
func respondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cart.ErrQuantityRange):
		respondError(c, http.StatusBadRequest, "QUANTITY_RANGE", err.Error())
	case errors.Is(err, cart.ErrCartFull):
		respondError(c, http.StatusBadRequest, "CART_FULL", err.Error())
	case errors.Is(err, cart.ErrEmptyCart):
		respondError(c, http.StatusBadRequest, "EMPTY_CART", err.Error())
	case errors.Is(err, cart.ErrLineNotFound):
		respondError(c, http.StatusNotFound, "LINE_NOT_FOUND", err.Error())
	case errors.Is(err, checkout.ErrInvalidOrderType):
		respondError(c, http.StatusBadRequest, "INVALID_ORDER_TYPE", err.Error())
	case errors.Is(err, order.ErrNotFound):
		respondError(c, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found")
	default:
		var transition *fulfillment.InvalidTransitionError
		if errors.As(err, &transition) {
			respondError(c, http.StatusConflict, transition.Code(), transition.Error())
			return
		}

		zctx.From(c.Request.Context()).Error("request failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

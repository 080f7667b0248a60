package handler_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetfare/orderline/internal/domain/auth"
	"github.com/streetfare/orderline/internal/domain/cart"
	"github.com/streetfare/orderline/internal/domain/catalog"
	"github.com/streetfare/orderline/internal/domain/checkout"
	"github.com/streetfare/orderline/internal/domain/discount"
	"github.com/streetfare/orderline/internal/domain/fulfillment"
	"github.com/streetfare/orderline/internal/domain/order"
	"github.com/streetfare/orderline/internal/domain/pricing"
	"github.com/streetfare/orderline/internal/events"
	"github.com/streetfare/orderline/internal/handler"
	"github.com/streetfare/orderline/internal/storage/memory"
)

const testPepper = "test-pepper"

type stubCatalog struct {
	items map[string]catalog.Item
}

func (s *stubCatalog) Snapshot(context.Context, []string, []string) (*catalog.Snapshot, error) {
	return &catalog.Snapshot{Items: s.items, Options: map[string]catalog.Option{}}, nil
}

func (s *stubCatalog) ListItems(context.Context) ([]catalog.Item, error) {
	return []catalog.Item{
		s.items["taco"],
		s.items["birria"],
	}, nil
}

type stubValidator struct{}

func (stubValidator) Validate(context.Context, discount.Request) (discount.Outcome, error) {
	return discount.Outcome{Reason: discount.ReasonNotFound, Message: "not found"}, nil
}

type stubOrderRepo struct {
	byTicket map[string]*order.Order
	byKey    map[string]*order.Order
	open     []order.Order
	history  []fulfillment.Change
	change   *fulfillment.Change
	transErr error
}

func (s *stubOrderRepo) Commit(_ context.Context, params order.CommitParams) (*order.CommitResult, error) {
	if params.IdempotencyKey != "" {
		if s.byKey == nil {
			s.byKey = make(map[string]*order.Order)
		}
		s.byKey[params.IdempotencyKey] = params.Order
	}
	return &order.CommitResult{Order: params.Order}, nil
}

func (s *stubOrderRepo) FindByIdempotencyKey(_ context.Context, _, key string) (*order.Order, error) {
	if o, ok := s.byKey[key]; ok {
		return o, nil
	}
	return nil, order.ErrNotFound
}

func (s *stubOrderRepo) TicketInUse(context.Context, string) (bool, error) { return false, nil }

func (s *stubOrderRepo) FindByTicketAndToken(_ context.Context, ticket, token string) (*order.Order, error) {
	o, ok := s.byTicket[ticket]
	if !ok || o.TrackingToken != token {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (s *stubOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	for i := range s.open {
		if s.open[i].ID == id {
			return &s.open[i], nil
		}
	}
	return nil, order.ErrNotFound
}

func (s *stubOrderRepo) ListOpen(context.Context) ([]order.Order, error) { return s.open, nil }

func (s *stubOrderRepo) Transition(_ context.Context, _ string, _ fulfillment.Status, _ string) (*fulfillment.Change, error) {
	if s.transErr != nil {
		return nil, s.transErr
	}
	return s.change, nil
}

func (s *stubOrderRepo) History(context.Context, string) ([]fulfillment.Change, error) {
	return s.history, nil
}

type stubAPIKeys struct {
	info *auth.APIKeyInfo
}

func (s *stubAPIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if s.info == nil || s.info.KeyHash != hash {
		return nil, order.ErrNotFound
	}
	return s.info, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func keyHash(key string) string {
	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestRouter(repo *stubOrderRepo, keys *stubAPIKeys) *gin.Engine {
	cat := &stubCatalog{items: map[string]catalog.Item{
		"taco": {ID: "taco", Name: "Carnitas Taco", Price: dec("4.50"), CategoryID: "tacos", IsActive: true},
		"birria": {
			ID: "birria", Name: "Birria Plate", Price: dec("13.00"), CategoryID: "specials",
			IsActive: true, StockTracked: true, CurrentStock: 3, LowStockThreshold: 5,
		},
	}}

	store := memory.NewCartStore()
	quoter := pricing.NewQuoter(cat, dec("0.09"))
	validator := stubValidator{}
	cartSvc := cart.NewService(store, quoter, validator)
	finalizer := checkout.NewFinalizer(store, quoter, validator, repo, events.NewLogPublisher(nil))

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	h := handler.NewHandler(cat, cartSvc, finalizer, repo, keys, []byte(testPepper))
	h.Register(engine)
	return engine
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetMenu(t *testing.T) {
	router := newTestRouter(&stubOrderRepo{}, &stubAPIKeys{})

	w := doJSON(t, router, http.MethodGet, "/api/menu", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Categories []struct {
			CategoryID string `json:"category_id"`
			Items      []struct {
				ID       string `json:"id"`
				Price    string `json:"price"`
				LowStock bool   `json:"low_stock"`
			} `json:"items"`
		} `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Categories, 2)
	assert.Equal(t, "tacos", resp.Categories[0].CategoryID)
	assert.Equal(t, "4.50", resp.Categories[0].Items[0].Price)
	assert.True(t, resp.Categories[1].Items[0].LowStock)
}

func TestCartFlow(t *testing.T) {
	router := newTestRouter(&stubOrderRepo{}, &stubAPIKeys{})
	session := map[string]string{"X-Session-ID": "guest-1"}

	// Add an item.
	w := doJSON(t, router, http.MethodPost, "/api/cart/items",
		gin.H{"item_id": "taco", "quantity": 2}, session)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "guest-1", w.Header().Get("X-Session-ID"))

	var resp struct {
		Lines []struct {
			CartItemID string `json:"cart_item_id"`
			Quantity   int    `json:"quantity"`
		} `json:"lines"`
		Pricing struct {
			Subtotal string `json:"subtotal"`
			Total    string `json:"total"`
		} `json:"pricing"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Lines, 1)
	assert.Equal(t, "9.00", resp.Pricing.Subtotal)
	lineID := resp.Lines[0].CartItemID

	// Update the quantity.
	w = doJSON(t, router, http.MethodPatch, "/api/cart/items/"+lineID,
		gin.H{"quantity": 3}, session)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Lines[0].Quantity)
	assert.Equal(t, "13.50", resp.Pricing.Subtotal)

	// A different session sees an empty cart.
	w = doJSON(t, router, http.MethodGet, "/api/cart", nil,
		map[string]string{"X-Session-ID": "guest-2"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Lines)

	// Remove the line.
	w = doJSON(t, router, http.MethodDelete, "/api/cart/items/"+lineID, nil, session)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/api/cart/items/"+lineID, nil, session)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCartValidationErrors(t *testing.T) {
	router := newTestRouter(&stubOrderRepo{}, &stubAPIKeys{})
	session := map[string]string{"X-Session-ID": "guest-1"}

	w := doJSON(t, router, http.MethodPost, "/api/cart/items",
		gin.H{"item_id": "taco", "quantity": 200}, session)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "QUANTITY_RANGE")

	w = doJSON(t, router, http.MethodPost, "/api/cart/items",
		gin.H{"quantity": 1}, session)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Discount on an empty cart.
	w = doJSON(t, router, http.MethodPost, "/api/cart/discount",
		gin.H{"code": "SAVE10"}, session)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "EMPTY_CART")
}

func TestCheckout(t *testing.T) {
	repo := &stubOrderRepo{}
	router := newTestRouter(repo, &stubAPIKeys{})
	session := map[string]string{"X-Session-ID": "guest-1"}

	w := doJSON(t, router, http.MethodPost, "/api/cart/items",
		gin.H{"item_id": "taco", "quantity": 2}, session)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/checkout",
		gin.H{"order_type": "collection", "guest_name": "Ana"}, session)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		State string `json:"state"`
		Order struct {
			TicketNumber  string `json:"ticket_number"`
			TrackingToken string `json:"tracking_token"`
			Total         string `json:"total"`
			Status        string `json:"status"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "committed", resp.State)
	assert.NotEmpty(t, resp.Order.TicketNumber)
	assert.NotEmpty(t, resp.Order.TrackingToken, "checkout response must carry the tracking token")
	assert.Equal(t, "9.81", resp.Order.Total)
	assert.Equal(t, "received", resp.Order.Status)
}

func TestCheckout_RejectedOnStockShortage(t *testing.T) {
	router := newTestRouter(&stubOrderRepo{}, &stubAPIKeys{})
	session := map[string]string{"X-Session-ID": "guest-1"}

	w := doJSON(t, router, http.MethodPost, "/api/cart/items",
		gin.H{"item_id": "birria", "quantity": 3}, session)
	require.Equal(t, http.StatusOK, w.Code)

	// Stock drops to 1 via another order; the snapshot stub always reports 3,
	// so force the shortage by asking for more than is available.
	w = doJSON(t, router, http.MethodPatch, "/api/cart/items/"+firstLineID(t, w), gin.H{"quantity": 5}, session)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/checkout",
		gin.H{"order_type": "collection"}, session)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "INSUFFICIENT_STOCK")
}

func firstLineID(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Lines []struct {
			CartItemID string `json:"cart_item_id"`
		} `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Lines)
	return resp.Lines[0].CartItemID
}

func TestCheckout_EmptyCart(t *testing.T) {
	router := newTestRouter(&stubOrderRepo{}, &stubAPIKeys{})

	w := doJSON(t, router, http.MethodPost, "/api/checkout",
		gin.H{"order_type": "collection"}, map[string]string{"X-Session-ID": "guest-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "EMPTY_CART")
}

func TestTrackOrder(t *testing.T) {
	stored := &order.Order{
		ID: "o-1", OrderNumber: "SF-20260315-DEADBEEF", TicketNumber: "K-347",
		TrackingToken: "tok-1", OrderType: order.TypeCollection,
		Status: fulfillment.StatusPreparing, Total: dec("25.07"),
		CreatedAt: time.Now().UTC(),
	}
	repo := &stubOrderRepo{byTicket: map[string]*order.Order{"K-347": stored}}
	router := newTestRouter(repo, &stubAPIKeys{})

	// Both credentials right.
	w := doJSON(t, router, http.MethodGet, "/api/orders/K-347?token=tok-1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"preparing"`)
	assert.NotContains(t, w.Body.String(), "tok-1", "tracking responses must not echo the token")

	// Wrong token looks exactly like an unknown ticket.
	w = doJSON(t, router, http.MethodGet, "/api/orders/K-347?token=wrong", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Missing token is not enough.
	w = doJSON(t, router, http.MethodGet, "/api/orders/K-347", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStaffAuth(t *testing.T) {
	keys := &stubAPIKeys{info: &auth.APIKeyInfo{
		ID: "k1", KeyHash: keyHash("staff-key"), Name: "window",
		Scopes: []string{auth.ScopeQueue},
	}}
	router := newTestRouter(&stubOrderRepo{}, keys)

	w := doJSON(t, router, http.MethodGet, "/api/staff/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/staff/orders", nil,
		map[string]string{"X-API-Key": "wrong-key"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/staff/orders", nil,
		map[string]string{"X-API-Key": "staff-key"})
	assert.Equal(t, http.StatusOK, w.Code)

	// The key lacks the status scope.
	w = doJSON(t, router, http.MethodPost, "/api/staff/orders/o-1/status",
		gin.H{"status": "preparing"}, map[string]string{"X-API-Key": "staff-key"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStaffStatusUpdate(t *testing.T) {
	keys := &stubAPIKeys{info: &auth.APIKeyInfo{
		ID: "k1", KeyHash: keyHash("staff-key"), Name: "window",
		Scopes: []string{auth.ScopeQueue, auth.ScopeStatus},
	}}
	staff := map[string]string{"X-API-Key": "staff-key"}

	t.Run("accepted", func(t *testing.T) {
		repo := &stubOrderRepo{change: &fulfillment.Change{
			OrderID:        "o-1",
			PreviousStatus: fulfillment.StatusReceived,
			NewStatus:      fulfillment.StatusPreparing,
			Actor:          "window",
			At:             time.Now().UTC(),
		}}
		router := newTestRouter(repo, keys)

		w := doJSON(t, router, http.MethodPost, "/api/staff/orders/o-1/status",
			gin.H{"status": "preparing"}, staff)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"preparing"`)
	})

	t.Run("illegal transition", func(t *testing.T) {
		repo := &stubOrderRepo{transErr: &fulfillment.InvalidTransitionError{
			From: fulfillment.StatusCompleted,
			To:   fulfillment.StatusPreparing,
		}}
		router := newTestRouter(repo, keys)

		w := doJSON(t, router, http.MethodPost, "/api/staff/orders/o-1/status",
			gin.H{"status": "preparing"}, staff)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_STATE_TRANSITION")
	})

	t.Run("unknown status value", func(t *testing.T) {
		router := newTestRouter(&stubOrderRepo{}, keys)

		w := doJSON(t, router, http.MethodPost, "/api/staff/orders/o-1/status",
			gin.H{"status": "shipped"}, staff)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_STATUS")
	})
}

func TestStaffQueueAndHistory(t *testing.T) {
	keys := &stubAPIKeys{info: &auth.APIKeyInfo{
		ID: "k1", KeyHash: keyHash("staff-key"), Name: "window",
		Scopes: []string{auth.ScopeQueue},
	}}
	staff := map[string]string{"X-API-Key": "staff-key"}

	repo := &stubOrderRepo{
		open: []order.Order{{
			ID: "o-1", OrderNumber: "SF-20260315-DEADBEEF", TicketNumber: "K-347",
			TrackingToken: "tok-1", OrderType: order.TypeCollection,
			Status: fulfillment.StatusReceived, Total: dec("25.07"),
		}},
		history: []fulfillment.Change{
			{OrderID: "o-1", NewStatus: fulfillment.StatusReceived, Actor: "system"},
			{OrderID: "o-1", PreviousStatus: fulfillment.StatusReceived, NewStatus: fulfillment.StatusPreparing, Actor: "window"},
		},
	}
	router := newTestRouter(repo, keys)

	w := doJSON(t, router, http.MethodGet, "/api/staff/orders", nil, staff)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "K-347")
	assert.NotContains(t, w.Body.String(), "tok-1", "staff responses must not leak tracking tokens")

	w = doJSON(t, router, http.MethodGet, "/api/staff/orders/o-1/history", nil, staff)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		History []struct {
			NewStatus string `json:"new_status"`
			Actor     string `json:"actor"`
		} `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.History, 2)
	assert.Equal(t, "received", resp.History[0].NewStatus)
	assert.Equal(t, "window", resp.History[1].Actor)

	w = doJSON(t, router, http.MethodGet, "/api/staff/orders/missing/history", nil, staff)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/egannguyen/go-order-payments/internal/entity"
	"github.com/egannguyen/go-order-payments/internal/gateway"
	"github.com/egannguyen/go-order-payments/internal/service"
	"github.com/egannguyen/go-order-payments/internal/signature"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKeySecret     = "key-secret"
	testWebhookSecret = "webhook-secret"
	userToken         = "user-token"
	adminToken        = "admin-token"
)

type stubOrders struct {
	mu   sync.Mutex
	byID map[string]entity.Order
}

func (s *stubOrders) Get(_ context.Context, id string) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return &o, nil
}

func (s *stubOrders) GetByGatewayOrderID(_ context.Context, gid string) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.byID {
		if o.PaymentResult.GatewayOrderID == gid {
			return &o, nil
		}
	}
	return nil, entity.ErrNotFound
}

func (s *stubOrders) Create(_ context.Context, o *entity.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[o.ID] = *o
	return nil
}

func (s *stubOrders) Update(_ context.Context, o *entity.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[o.ID]
	if !ok {
		return entity.ErrNotFound
	}
	if stored.Version != o.Version {
		return entity.ErrVersionConflict
	}
	o.Version++
	s.byID[o.ID] = *o
	return nil
}

func (s *stubOrders) FindByUser(_ context.Context, userID string) ([]entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Order
	for _, o := range s.byID {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *stubOrders) FindAll(_ context.Context) ([]entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Order
	for _, o := range s.byID {
		out = append(out, o)
	}
	return out, nil
}

type stubGateway struct{}

func (stubGateway) CreateOrder(_ context.Context, amount int64, currency, receipt string) (gateway.GatewayOrder, error) {
	return gateway.GatewayOrder{ID: "order_abc", Amount: amount, Currency: currency, Receipt: receipt, Status: "created"}, nil
}

func (stubGateway) Refund(_ context.Context, _ string, amount int64, _ map[string]string) (gateway.Refund, error) {
	return gateway.Refund{ID: "rfnd_1", Amount: amount, Status: "processed"}, nil
}

type stubDedup struct{ seen sync.Map }

func (d *stubDedup) MarkProcessed(_ context.Context, key string) (bool, error) {
	_, loaded := d.seen.LoadOrStore(key, true)
	return !loaded, nil
}

func (d *stubDedup) Forget(_ context.Context, key string) error {
	d.seen.Delete(key)
	return nil
}

func newTestRouter(t *testing.T) (*chi.Mux, *stubOrders) {
	t.Helper()
	orders := &stubOrders{byID: make(map[string]entity.Order)}
	orderSvc := service.NewOrderService(orders, nil, stubGateway{}, nil, testKeySecret, "INR")
	webhookSvc := service.NewWebhookService(orderSvc, &stubDedup{}, testWebhookSecret)

	auth := NewStaticAuthenticator(map[string]Identity{
		userToken:  {UserID: "user-1"},
		adminToken: {UserID: "admin-1", IsAdmin: true},
	})
	handler := NewHandler(orderSvc, webhookSvc, auth, "rzp_test_key")

	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	handler.RegisterRoutes(r)
	return r, orders
}

func doRequest(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createOrderBody() map[string]any {
	return map[string]any{
		"order_items": []map[string]any{
			{"product_id": "prod-1", "name": "Keyboard", "price": 450.0, "quantity": 1},
		},
		"shipping_address": map[string]string{
			"address": "1 Main St", "city": "Mumbai", "postal_code": "400001", "country": "IN",
		},
		"payment_method": "razorpay",
		"items_price":    450.0,
		"shipping_price": 50.0,
		"total_price":    500.0,
	}
}

func TestHandler_GetConfig_Public(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/orders/config", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rzp_test_key", body["key"])
}

func TestHandler_CreateOrder_RequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/orders", "", createOrderBody())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_CreateOrder(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/orders", userToken, createOrderBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Order        entity.Order         `json:"order"`
		GatewayOrder gateway.GatewayOrder `json:"gateway_order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user-1", resp.Order.UserID)
	assert.Equal(t, "order_abc", resp.GatewayOrder.ID)
	assert.Equal(t, "order_abc", resp.Order.PaymentResult.GatewayOrderID)
}

func TestHandler_CreateOrder_NoItems(t *testing.T) {
	router, _ := newTestRouter(t)

	body := createOrderBody()
	body["order_items"] = []map[string]any{}
	body["items_price"] = 0.0
	body["total_price"] = 50.0

	rec := doRequest(t, router, http.MethodPost, "/api/orders", userToken, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_VerifyPayment_BadSignature(t *testing.T) {
	router, _ := newTestRouter(t)

	created := doRequest(t, router, http.MethodPost, "/api/orders", userToken, createOrderBody())
	require.Equal(t, http.StatusCreated, created.Code)
	var resp struct {
		Order entity.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))

	rec := doRequest(t, router, http.MethodPost, "/api/orders/verify", userToken, map[string]string{
		"razorpay_order_id":   "order_abc",
		"razorpay_payment_id": "pay_123",
		"razorpay_signature":  "bogus",
		"order_id":            resp.Order.ID,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid payment signature")
}

func TestHandler_VerifyPayment(t *testing.T) {
	router, _ := newTestRouter(t)

	created := doRequest(t, router, http.MethodPost, "/api/orders", userToken, createOrderBody())
	var resp struct {
		Order entity.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))

	sig := signature.Sign(signature.PaymentMessage("order_abc", "pay_123"), testKeySecret)
	rec := doRequest(t, router, http.MethodPost, "/api/orders/verify", userToken, map[string]string{
		"razorpay_order_id":   "order_abc",
		"razorpay_payment_id": "pay_123",
		"razorpay_signature":  sig,
		"order_id":            resp.Order.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated entity.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.True(t, updated.IsPaid)
	assert.Equal(t, "pay_123", updated.PaymentResult.PaymentID)
}

func TestHandler_AdminRoutes_Forbidden(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, req := range []struct{ method, path string }{
		{http.MethodGet, "/api/orders"},
		{http.MethodPut, "/api/orders/some-id/deliver"},
		{http.MethodPost, "/api/orders/some-id/refund"},
	} {
		rec := doRequest(t, router, req.method, req.path, userToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s", req.method, req.path)
	}
}

func TestHandler_MarkDelivered_UnpaidConflict(t *testing.T) {
	router, _ := newTestRouter(t)

	created := doRequest(t, router, http.MethodPost, "/api/orders", userToken, createOrderBody())
	var resp struct {
		Order entity.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))

	rec := doRequest(t, router, http.MethodPut, "/api/orders/"+resp.Order.ID+"/deliver", adminToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_GetOrder_OtherUserHidden(t *testing.T) {
	router, orders := newTestRouter(t)

	orders.byID["other"] = entity.Order{ID: "other", UserID: "someone-else", Status: entity.StatusCreated}

	rec := doRequest(t, router, http.MethodGet, "/api/orders/other", userToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/orders/other", adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_Webhook(t *testing.T) {
	router, orders := newTestRouter(t)

	created := doRequest(t, router, http.MethodPost, "/api/orders", userToken, createOrderBody())
	var resp struct {
		Order entity.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))

	body := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_123","order_id":"order_abc","status":"captured"}}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/razorpay", strings.NewReader(body))
	req.Header.Set(webhookSignatureHeader, signature.Sign([]byte(body), testWebhookSecret))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received": true}`, rec.Body.String())

	stored, err := orders.Get(context.Background(), resp.Order.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPaid)
}

func TestHandler_Webhook_BadSignature(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_123","order_id":"order_abc"}}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/razorpay", strings.NewReader(body))
	req.Header.Set(webhookSignatureHeader, "bogus")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

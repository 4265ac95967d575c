package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"checkout-svc/models"
	"checkout-svc/reconciler"
	"checkout-svc/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const testWebhookSecret = "test-webhook-secret"

type fakeOrderRepo struct {
	orders map[string]*models.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*models.Order)}
}

func (f *fakeOrderRepo) FindByLemonSqueezyOrderID(ctx context.Context, id string) (*models.Order, error) {
	if o, ok := f.orders[id]; ok {
		clone := *o
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeOrderRepo) Create(ctx context.Context, order *models.Order) error {
	clone := *order
	f.orders[order.LemonSqueezyOrderID] = &clone
	return nil
}

func (f *fakeOrderRepo) Update(ctx context.Context, order *models.Order) error {
	if _, ok := f.orders[order.LemonSqueezyOrderID]; !ok {
		return repository.ErrNotFound
	}
	clone := *order
	f.orders[order.LemonSqueezyOrderID] = &clone
	return nil
}

func setupWebhookTest(t *testing.T) (*fakeOrderRepo, *gin.Engine) {
	repo := newFakeOrderRepo()
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	rec := reconciler.New(repo, nil, "order_events", logger)
	handler := NewWebhookHandler(testWebhookSecret, rec, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhook", handler.HandleWebhook)

	return repo, router
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(router *gin.Engine, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/webhook", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("x-signature", sig)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookHandler_OrderCreated(t *testing.T) {
	repo, router := setupWebhookTest(t)

	body := []byte(`{
		"meta": {"event_name": "order_created", "custom_data": {"payloadProductId": "2"}},
		"data": {"id": "O1", "type": "orders", "attributes": {"identifier": "#1001", "user_email": "x@y.com", "status": "paid", "total": 500}}
	}`)

	w := postWebhook(router, body, signBody(body))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	order, ok := repo.orders["O1"]
	if !ok {
		t.Fatal("Expected order O1 to be persisted")
	}
	if order.Status != models.OrderStatusPaid {
		t.Errorf("Expected status paid, got %q", order.Status)
	}
	if order.Amount != 500 {
		t.Errorf("Expected amount 500, got %d", order.Amount)
	}
}

func TestWebhookHandler_InvalidSignature(t *testing.T) {
	repo, router := setupWebhookTest(t)

	body := []byte(`{"meta":{"event_name":"order_created"},"data":{"id":"O1"}}`)
	w := postWebhook(router, body, signBody([]byte("different body")))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
	if len(repo.orders) != 0 {
		t.Error("Expected no orders to be persisted for unauthorized delivery")
	}
}

func TestWebhookHandler_MissingSignature(t *testing.T) {
	_, router := setupWebhookTest(t)

	body := []byte(`{"meta":{"event_name":"order_created"},"data":{"id":"O1"}}`)
	w := postWebhook(router, body, "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestWebhookHandler_InvalidJSON(t *testing.T) {
	_, router := setupWebhookTest(t)

	body := []byte(`{not json`)
	w := postWebhook(router, body, signBody(body))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestWebhookHandler_UnrecognizedEvent(t *testing.T) {
	repo, router := setupWebhookTest(t)

	body := []byte(`{
		"meta": {"event_name": "subscription_created"},
		"data": {"id": "S1", "type": "subscriptions", "attributes": {}}
	}`)
	w := postWebhook(router, body, signBody(body))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if len(repo.orders) != 0 {
		t.Error("Expected no order mutation for unrecognized event")
	}
}

func TestWebhookHandler_MalformedEventAcknowledged(t *testing.T) {
	repo, router := setupWebhookTest(t)

	// Parses fine but has no data.id; acknowledged so the provider stops
	// retrying.
	body := []byte(`{"meta":{"event_name":"order_created"},"data":{"attributes":{}}}`)
	w := postWebhook(router, body, signBody(body))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if len(repo.orders) != 0 {
		t.Error("Expected no orders for malformed event")
	}
}

func TestWebhookHandler_RefundAfterCreate(t *testing.T) {
	repo, router := setupWebhookTest(t)

	created := []byte(`{
		"meta": {"event_name": "order_created"},
		"data": {"id": "O1", "type": "orders", "attributes": {"identifier": "#1001", "user_email": "x@y.com", "status": "paid", "total": 500}}
	}`)
	if w := postWebhook(router, created, signBody(created)); w.Code != http.StatusOK {
		t.Fatalf("order_created: expected status %d, got %d", http.StatusOK, w.Code)
	}

	refunded := []byte(`{
		"meta": {"event_name": "order_refunded"},
		"data": {"id": "O1", "type": "orders", "attributes": {"identifier": "#1001", "user_email": "x@y.com", "status": "refunded", "total": 500}}
	}`)
	if w := postWebhook(router, refunded, signBody(refunded)); w.Code != http.StatusOK {
		t.Fatalf("order_refunded: expected status %d, got %d", http.StatusOK, w.Code)
	}

	if repo.orders["O1"].Status != models.OrderStatusRefunded {
		t.Errorf("Expected final status refunded, got %q", repo.orders["O1"].Status)
	}
}

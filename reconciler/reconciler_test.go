package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"checkout-svc/models"
	"checkout-svc/repository"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// In-memory OrderRepository keyed on the provider order id.
type fakeOrderRepo struct {
	orders    map[string]*models.Order
	createErr error
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
	if f.createErr != nil {
		return f.createErr
	}
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

func newTestReconciler(t *testing.T, repo repository.OrderRepository) *Reconciler {
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	return New(repo, nil, "order_events", logger)
}

func makeEvent(t *testing.T, eventName, orderID string) (*models.WebhookEvent, []byte) {
	raw := fmt.Sprintf(`{
		"meta": {"event_name": %q, "custom_data": {"payloadProductId": "2"}},
		"data": {"id": %q, "type": "orders", "attributes": {"identifier": "#1001", "user_email": "x@y.com", "status": "paid", "total": 500}}
	}`, eventName, orderID)

	var event models.WebhookEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		t.Fatalf("Failed to build test event: %v", err)
	}
	return &event, []byte(raw)
}

func TestReconcile_OrderCreated(t *testing.T) {
	repo := newFakeOrderRepo()
	rec := newTestReconciler(t, repo)

	event, raw := makeEvent(t, "order_created", "O1")
	if err := rec.Reconcile(context.Background(), event, raw); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}

	order, ok := repo.orders["O1"]
	if !ok {
		t.Fatal("Expected order O1 to be created")
	}
	if order.Status != models.OrderStatusPaid {
		t.Errorf("Expected status %q, got %q", models.OrderStatusPaid, order.Status)
	}
	if order.OrderIdentifier != "#1001" {
		t.Errorf("Expected identifier #1001, got %q", order.OrderIdentifier)
	}
	if order.Email != "x@y.com" {
		t.Errorf("Expected email x@y.com, got %q", order.Email)
	}
	if order.Amount != 500 {
		t.Errorf("Expected amount 500, got %d", order.Amount)
	}
	if order.ProductID != "2" {
		t.Errorf("Expected product id 2 from custom data, got %q", order.ProductID)
	}
	if len(order.Raw) == 0 {
		t.Error("Expected raw payload snapshot to be stored")
	}
}

func TestReconcile_DuplicateOrderCreated(t *testing.T) {
	repo := newFakeOrderRepo()
	rec := newTestReconciler(t, repo)

	event, raw := makeEvent(t, "order_created", "O1")
	if err := rec.Reconcile(context.Background(), event, raw); err != nil {
		t.Fatalf("First delivery returned error: %v", err)
	}
	if err := rec.Reconcile(context.Background(), event, raw); err != nil {
		t.Fatalf("Duplicate delivery returned error: %v", err)
	}

	if len(repo.orders) != 1 {
		t.Fatalf("Expected exactly one order row, got %d", len(repo.orders))
	}
	if repo.orders["O1"].Status != models.OrderStatusPaid {
		t.Errorf("Expected status paid after duplicate delivery, got %q", repo.orders["O1"].Status)
	}
}

func TestReconcile_OrderCreatedThenRefunded(t *testing.T) {
	repo := newFakeOrderRepo()
	rec := newTestReconciler(t, repo)

	created, createdRaw := makeEvent(t, "order_created", "O1")
	if err := rec.Reconcile(context.Background(), created, createdRaw); err != nil {
		t.Fatalf("order_created returned error: %v", err)
	}

	refunded, refundedRaw := makeEvent(t, "order_refunded", "O1")
	if err := rec.Reconcile(context.Background(), refunded, refundedRaw); err != nil {
		t.Fatalf("order_refunded returned error: %v", err)
	}

	if len(repo.orders) != 1 {
		t.Fatalf("Expected exactly one order row, got %d", len(repo.orders))
	}
	if repo.orders["O1"].Status != models.OrderStatusRefunded {
		t.Errorf("Expected status refunded, got %q", repo.orders["O1"].Status)
	}
}

func TestReconcile_RefundForUnknownOrder(t *testing.T) {
	repo := newFakeOrderRepo()
	rec := newTestReconciler(t, repo)

	event, raw := makeEvent(t, "order_refunded", "O404")
	if err := rec.Reconcile(context.Background(), event, raw); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}

	// No placeholder order is created for a refund of an unknown order.
	if len(repo.orders) != 0 {
		t.Errorf("Expected no order rows, got %d", len(repo.orders))
	}
}

func TestReconcile_UnrecognizedEventType(t *testing.T) {
	repo := newFakeOrderRepo()
	rec := newTestReconciler(t, repo)

	event, raw := makeEvent(t, "subscription_created", "O1")
	if err := rec.Reconcile(context.Background(), event, raw); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}

	if len(repo.orders) != 0 {
		t.Errorf("Expected no state change for unrecognized event, got %d rows", len(repo.orders))
	}
}

func TestReconcile_MissingOrderID(t *testing.T) {
	repo := newFakeOrderRepo()
	rec := newTestReconciler(t, repo)

	event, raw := makeEvent(t, "order_created", "")
	err := rec.Reconcile(context.Background(), event, raw)
	if !errors.Is(err, ErrMalformedEvent) {
		t.Errorf("Expected ErrMalformedEvent, got %v", err)
	}
}

func TestReconcile_ConcurrentDuplicateCreate(t *testing.T) {
	repo := newFakeOrderRepo()
	// Simulate the insert race: the lookup missed but the constraint fired.
	repo.createErr = fmt.Errorf("failed to create order: %w", &pq.Error{Code: "23505"})
	rec := newTestReconciler(t, repo)

	event, raw := makeEvent(t, "order_created", "O1")
	if err := rec.Reconcile(context.Background(), event, raw); err != nil {
		t.Errorf("Expected unique violation to be swallowed, got %v", err)
	}
}

func TestReconcile_PersistenceFailureSwallowed(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.createErr = errors.New("connection refused")
	rec := newTestReconciler(t, repo)

	event, raw := makeEvent(t, "order_created", "O1")
	if err := rec.Reconcile(context.Background(), event, raw); err != nil {
		t.Errorf("Expected persistence failure to be swallowed, got %v", err)
	}
}

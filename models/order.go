package models

import (
	"encoding/json"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusRefunded OrderStatus = "refunded"
)

// Order is the local record of a Lemon Squeezy order, written exclusively by
// webhook reconciliation. LemonSqueezyOrderID is the dedup key and carries a
// UNIQUE constraint in the database.
type Order struct {
	ID                  int             `json:"id"`
	LemonSqueezyOrderID string          `json:"lemon_squeezy_order_id"`
	OrderIdentifier     string          `json:"order_identifier"`
	Email               string          `json:"email"`
	Amount              int64           `json:"amount"`
	Status              OrderStatus     `json:"status"`
	ProductID           string          `json:"product_id"`
	Raw                 json.RawMessage `json:"raw,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// OrderEvent is published to Kafka after an order row is persisted.
type OrderEvent struct {
	LemonSqueezyOrderID string      `json:"lemon_squeezy_order_id"`
	OrderIdentifier     string      `json:"order_identifier"`
	Email               string      `json:"email"`
	Amount              int64       `json:"amount"`
	Status              OrderStatus `json:"status"`
	EventType           string      `json:"event_type"` // order_paid, order_refunded
}

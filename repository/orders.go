package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-svc/models"

	"github.com/lib/pq"
)

// OrderRepository exposes typed find/create/update operations. The
// lookup-then-write upsert lives in the reconciler, so a concurrent duplicate
// delivery can still reach Create and fail on the UNIQUE constraint; callers
// detect that with IsUniqueViolation.
type OrderRepository interface {
	FindByLemonSqueezyOrderID(ctx context.Context, lemonSqueezyOrderID string) (*models.Order, error)
	Create(ctx context.Context, order *models.Order) error
	Update(ctx context.Context, order *models.Order) error
}

type pgOrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderRepository {
	return &pgOrderRepository{db: db}
}

func (r *pgOrderRepository) FindByLemonSqueezyOrderID(ctx context.Context, lemonSqueezyOrderID string) (*models.Order, error) {
	var o models.Order
	err := r.db.QueryRowContext(ctx,
		"SELECT id, lemon_squeezy_order_id, order_identifier, email, amount, status, product_id, raw, created_at, updated_at FROM orders WHERE lemon_squeezy_order_id = $1",
		lemonSqueezyOrderID,
	).Scan(&o.ID, &o.LemonSqueezyOrderID, &o.OrderIdentifier, &o.Email, &o.Amount, &o.Status, &o.ProductID, &o.Raw, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return &o, nil
}

func (r *pgOrderRepository) Create(ctx context.Context, order *models.Order) error {
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO orders (lemon_squeezy_order_id, order_identifier, email, amount, status, product_id, raw) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at, updated_at",
		order.LemonSqueezyOrderID, order.OrderIdentifier, order.Email, order.Amount, order.Status, order.ProductID, rawArg(order.Raw),
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *pgOrderRepository) Update(ctx context.Context, order *models.Order) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE orders SET order_identifier = $1, email = $2, amount = $3, status = $4, product_id = $5, raw = $6, updated_at = CURRENT_TIMESTAMP WHERE lemon_squeezy_order_id = $7",
		order.OrderIdentifier, order.Email, order.Amount, order.Status, order.ProductID, rawArg(order.Raw), order.LemonSqueezyOrderID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// rawArg passes the snapshot as text so lib/pq doesn't encode it as bytea,
// which the jsonb column would reject. Empty snapshots become NULL.
func rawArg(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation (code 23505).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

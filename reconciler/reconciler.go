// Package reconciler maps verified webhook events onto persisted order state.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"

	"checkout-svc/kafka"
	"checkout-svc/models"
	"checkout-svc/repository"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrMalformedEvent means the event parsed but lacks the provider order id.
// The webhook handler logs it and still acknowledges the delivery, since the
// provider would otherwise retry an event that can never be processed.
var ErrMalformedEvent = errors.New("malformed event: missing order id")

type Reconciler struct {
	orders   repository.OrderRepository
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func New(orders repository.OrderRepository, producer sarama.SyncProducer, topic string, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		orders:   orders,
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// Reconcile applies one webhook event. State machine: order_created creates a
// paid order (or updates it in place on duplicate delivery), order_refunded
// moves an existing order to refunded. Unrecognized event types are accepted
// without a state change. Persistence failures are logged and swallowed so
// the webhook acknowledgment never depends on local writes.
func (r *Reconciler) Reconcile(ctx context.Context, event *models.WebhookEvent, raw []byte) error {
	ctx, span := otel.Tracer("checkout-service").Start(ctx, "Reconcile")
	defer span.End()

	if event.Data.ID == "" {
		span.SetAttributes(attribute.Bool("event.malformed", true))
		return ErrMalformedEvent
	}

	span.SetAttributes(
		attribute.String("event.type", event.Meta.EventName),
		attribute.String("order.lemon_squeezy_id", event.Data.ID),
	)

	switch event.Meta.EventName {
	case "order_created":
		r.handleOrderCreated(ctx, event, raw)
	case "order_refunded":
		r.handleOrderRefunded(ctx, event, raw)
	default:
		r.logger.Info("Ignoring unrecognized webhook event",
			zap.String("event_type", event.Meta.EventName),
			zap.String("lemon_squeezy_order_id", event.Data.ID),
		)
	}

	return nil
}

func (r *Reconciler) handleOrderCreated(ctx context.Context, event *models.WebhookEvent, raw []byte) {
	order := &models.Order{
		LemonSqueezyOrderID: event.Data.ID,
		OrderIdentifier:     event.Data.Attributes.Identifier,
		Email:               event.Data.Attributes.UserEmail,
		Amount:              event.Data.Attributes.Total,
		Status:              models.OrderStatusPaid,
		ProductID:           event.PayloadProductID(),
		Raw:                 json.RawMessage(raw),
	}

	r.logger.Info("Order created",
		zap.String("lemon_squeezy_order_id", order.LemonSqueezyOrderID),
		zap.String("order_identifier", order.OrderIdentifier),
		zap.Int64("amount", order.Amount),
		zap.String("product_id", order.ProductID),
	)

	existing, err := r.orders.FindByLemonSqueezyOrderID(ctx, order.LemonSqueezyOrderID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		r.logger.Error("Failed to look up order", zap.String("lemon_squeezy_order_id", order.LemonSqueezyOrderID), zap.Error(err))
		return
	}

	if existing != nil {
		// Duplicate delivery: update the existing row in place rather than
		// creating a second one.
		if err := r.orders.Update(ctx, order); err != nil {
			r.logger.Error("Failed to update order", zap.String("lemon_squeezy_order_id", order.LemonSqueezyOrderID), zap.Error(err))
			return
		}
	} else {
		if err := r.orders.Create(ctx, order); err != nil {
			if repository.IsUniqueViolation(err) {
				// A concurrent delivery won the insert race. The constraint
				// did its job; nothing to retry.
				r.logger.Warn("Concurrent duplicate order delivery",
					zap.String("lemon_squeezy_order_id", order.LemonSqueezyOrderID))
				return
			}
			r.logger.Error("Failed to persist order", zap.String("lemon_squeezy_order_id", order.LemonSqueezyOrderID), zap.Error(err))
			return
		}
	}

	r.publish(ctx, order, "order_paid")
}

func (r *Reconciler) handleOrderRefunded(ctx context.Context, event *models.WebhookEvent, raw []byte) {
	existing, err := r.orders.FindByLemonSqueezyOrderID(ctx, event.Data.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Refund for an order this system never saw. Don't create a
			// placeholder row.
			r.logger.Warn("Refund for unknown order", zap.String("lemon_squeezy_order_id", event.Data.ID))
			return
		}
		r.logger.Error("Failed to look up order", zap.String("lemon_squeezy_order_id", event.Data.ID), zap.Error(err))
		return
	}

	existing.Status = models.OrderStatusRefunded
	existing.Raw = json.RawMessage(raw)

	r.logger.Info("Order refunded", zap.String("lemon_squeezy_order_id", existing.LemonSqueezyOrderID))

	if err := r.orders.Update(ctx, existing); err != nil {
		r.logger.Error("Failed to update order status", zap.String("lemon_squeezy_order_id", existing.LemonSqueezyOrderID), zap.Error(err))
		return
	}

	r.publish(ctx, existing, "order_refunded")
}

func (r *Reconciler) publish(ctx context.Context, order *models.Order, eventType string) {
	if r.producer == nil {
		return
	}

	event := models.OrderEvent{
		LemonSqueezyOrderID: order.LemonSqueezyOrderID,
		OrderIdentifier:     order.OrderIdentifier,
		Email:               order.Email,
		Amount:              order.Amount,
		Status:              order.Status,
		EventType:           eventType,
	}

	if err := kafka.PublishOrderEvent(ctx, r.producer, r.topic, event, r.logger); err != nil {
		// Downstream consumers miss this event, but the order row is the
		// source of truth.
		r.logger.Error("Failed to publish order event", zap.Error(err))
	}
}

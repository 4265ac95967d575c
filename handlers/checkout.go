package handlers

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"checkout-svc/middleware"
	"checkout-svc/models"
	"checkout-svc/payment"
	"checkout-svc/repository"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// emailPattern accepts local@domain with at least one dot in the domain.
// Email is a display field here, not a lookup key, so the check stays
// permissive.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// PaymentClient is the slice of the Lemon Squeezy client the checkout flow
// uses.
type PaymentClient interface {
	CreateCheckout(ctx context.Context, variantID, email string, customData map[string]string) (*payment.Checkout, error)
	ListStores(ctx context.Context) ([]payment.Store, error)
}

type CheckoutHandler struct {
	products repository.ProductRepository
	payments PaymentClient
	logger   *zap.Logger
}

func NewCheckoutHandler(products repository.ProductRepository, payments PaymentClient, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		products: products,
		payments: payments,
		logger:   logger,
	}
}

// CreateCheckout resolves a catalog product to its Lemon Squeezy variant and
// returns the provider-hosted checkout URL. The catalog product id travels as
// custom data so the webhook can be traced back to the catalog entry.
func (h *CheckoutHandler) CreateCheckout(c *gin.Context) {
	ctx, span := otel.Tracer("checkout-service").Start(c.Request.Context(), "CreateCheckout")
	defer span.End()

	var req models.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON in request body"})
		return
	}

	if req.ProductID == "" || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: productId and email"})
		return
	}

	if !emailPattern.MatchString(req.Email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email format"})
		return
	}

	span.SetAttributes(attribute.String("product.id", req.ProductID))

	product, err := h.products.GetByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch product", zap.String("product_id", req.ProductID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout", "message": err.Error()})
		return
	}

	if product.LemonVariantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Product not linked to Lemon Squeezy"})
		return
	}

	checkout, err := h.payments.CreateCheckout(ctx, product.LemonVariantID, req.Email, map[string]string{
		"payloadProductId": strconv.Itoa(product.ID),
	})
	if err != nil {
		span.RecordError(err)
		middleware.RecordCheckoutCreated("error")
		h.logger.Error("Checkout creation failed",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("product_id", req.ProductID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout", "message": err.Error()})
		return
	}

	if checkout == nil || checkout.URL == "" {
		middleware.RecordCheckoutCreated("error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout link"})
		return
	}

	span.SetAttributes(attribute.String("checkout.id", checkout.ID))
	middleware.RecordCheckoutCreated("success")
	h.logger.Info("Checkout created",
		zap.String("product_id", req.ProductID),
		zap.String("checkout_id", checkout.ID),
	)

	c.JSON(http.StatusOK, models.CreateCheckoutResponse{
		Success:     true,
		CheckoutURL: checkout.URL,
		CheckoutID:  checkout.ID,
	})
}

// TestCheckout is a diagnostics endpoint: it reports the first catalog
// product and the stores visible to the configured API key, so a deployer can
// verify catalog data and provider credentials line up.
func (h *CheckoutHandler) TestCheckout(c *gin.Context) {
	ctx, span := otel.Tracer("checkout-service").Start(c.Request.Context(), "TestCheckout")
	defer span.End()

	products, err := h.products.List(ctx)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to fetch products", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Test failed", "message": err.Error()})
		return
	}

	if len(products) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"error":      "No products found",
			"suggestion": "Create a product first with a valid lemon_variant_id",
		})
		return
	}

	stores, err := h.payments.ListStores(ctx)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to list stores", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Test failed", "message": err.Error()})
		return
	}

	product := products[0]
	c.JSON(http.StatusOK, gin.H{
		"message": "Test endpoint ready",
		"product": gin.H{
			"id":               product.ID,
			"title":            product.Title,
			"lemon_variant_id": product.LemonVariantID,
		},
		"stores":   stores,
		"nextStep": "Use POST /checkout with this product data",
	})
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"checkout-svc/cache"
	"checkout-svc/circuitbreaker"
	"checkout-svc/models"
	"checkout-svc/repository"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProductHandler serves read-only catalog reads. Catalog administration
// happens outside this service.
type ProductHandler struct {
	products       repository.ProductRepository
	redisClient    *redis.Client
	logger         *zap.Logger
	circuitBreaker *circuitbreaker.CircuitBreaker
}

func NewProductHandler(products repository.ProductRepository, redisClient *redis.Client, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products:       products,
		redisClient:    redisClient,
		logger:         logger,
		circuitBreaker: circuitbreaker.NewCircuitBreaker(5, 30*time.Second),
	}
}

func (h *ProductHandler) GetProducts(c *gin.Context) {
	ctx, span := otel.Tracer("checkout-service").Start(c.Request.Context(), "GetProducts")
	defer span.End()

	products, err := h.products.List(ctx)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to fetch products", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	span.SetAttributes(attribute.Int("products.count", len(products)))
	c.JSON(http.StatusOK, products)
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	ctx, span := otel.Tracer("checkout-service").Start(c.Request.Context(), "GetProduct")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("product.id", id))

	// Try to get from cache first
	cachedData, err := cache.GetProduct(ctx, h.redisClient, id)
	if err == nil {
		var product models.Product
		if err := json.Unmarshal(cachedData, &product); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			c.JSON(http.StatusOK, product)
			return
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	var product *models.Product
	dbErr := h.circuitBreaker.Execute(ctx, func() error {
		var err error
		product, err = h.products.GetByID(ctx, id)
		return err
	})

	if dbErr != nil {
		if errors.Is(dbErr, circuitbreaker.ErrCircuitOpen) {
			span.SetAttributes(attribute.String("circuit.state", "open"))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
			return
		}
		if errors.Is(dbErr, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		span.RecordError(dbErr)
		h.logger.Error("Failed to fetch product", zap.Error(dbErr))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	// Cache the product for 5 minutes
	cache.SetProduct(ctx, h.redisClient, id, product, 5*time.Minute)

	c.JSON(http.StatusOK, product)
}

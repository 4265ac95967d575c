// Package payment is a thin client for the Lemon Squeezy REST API. It exposes
// exactly the three calls the service needs: checkout creation, order reads
// and store listing. No retries and no circuit breaking; a provider failure
// is returned to the caller with the provider's status and error body.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"checkout-svc/config"

	"go.uber.org/zap"
)

const checkoutExpiry = 24 * time.Hour

// APIError carries the provider's HTTP status and error body for diagnostics.
// It never contains the API key.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lemon squeezy API error: status %d: %s", e.Status, e.Body)
}

// Checkout is a provider-hosted checkout session. It is never persisted
// locally; only the redirect URL and id are forwarded to the caller.
type Checkout struct {
	ID  string
	URL string
}

type Store struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// Client owns its HTTP client and credentials instead of configuring a shared
// process-wide instance.
type Client struct {
	baseURL    string
	apiKey     string
	storeID    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.LemonSqueezy.APIURL,
		apiKey:  cfg.LemonSqueezy.APIKey,
		storeID: cfg.LemonSqueezy.StoreID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// JSON:API envelope for POST /checkouts.
type checkoutRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			CheckoutData struct {
				Email  string            `json:"email,omitempty"`
				Custom map[string]string `json:"custom,omitempty"`
			} `json:"checkout_data"`
			ExpiresAt string `json:"expires_at"`
			Preview   bool   `json:"preview"`
		} `json:"attributes"`
		Relationships struct {
			Store   relationship `json:"store"`
			Variant relationship `json:"variant"`
		} `json:"relationships"`
	} `json:"data"`
}

type relationship struct {
	Data struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"data"`
}

type checkoutResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
}

// CreateCheckout creates a checkout session for a variant. customData is
// echoed back in webhook events and links the provider order to the catalog
// product.
func (c *Client) CreateCheckout(ctx context.Context, variantID, email string, customData map[string]string) (*Checkout, error) {
	var req checkoutRequest
	req.Data.Type = "checkouts"
	req.Data.Attributes.CheckoutData.Email = email
	req.Data.Attributes.CheckoutData.Custom = customData
	req.Data.Attributes.ExpiresAt = time.Now().Add(checkoutExpiry).UTC().Format(time.RFC3339)
	req.Data.Attributes.Preview = false
	req.Data.Relationships.Store.Data.Type = "stores"
	req.Data.Relationships.Store.Data.ID = c.storeID
	req.Data.Relationships.Variant.Data.Type = "variants"
	req.Data.Relationships.Variant.Data.ID = variantID

	c.logger.Info("Creating checkout",
		zap.String("variant_id", variantID),
		zap.String("store_id", c.storeID),
	)

	var resp checkoutResponse
	if err := c.do(ctx, http.MethodPost, "/checkouts", &req, &resp); err != nil {
		return nil, err
	}

	return &Checkout{
		ID:  resp.Data.ID,
		URL: resp.Data.Attributes.URL,
	}, nil
}

type orderResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Identifier string `json:"identifier"`
			UserEmail  string `json:"user_email"`
			Status     string `json:"status"`
			Total      int64  `json:"total"`
		} `json:"attributes"`
	} `json:"data"`
}

// ProviderOrder is the provider's view of an order, used for diagnostics and
// manual reconciliation.
type ProviderOrder struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	UserEmail  string `json:"user_email"`
	Status     string `json:"status"`
	Total      int64  `json:"total"`
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*ProviderOrder, error) {
	var resp orderResponse
	if err := c.do(ctx, http.MethodGet, "/orders/"+orderID, nil, &resp); err != nil {
		return nil, err
	}

	return &ProviderOrder{
		ID:         resp.Data.ID,
		Identifier: resp.Data.Attributes.Identifier,
		UserEmail:  resp.Data.Attributes.UserEmail,
		Status:     resp.Data.Attributes.Status,
		Total:      resp.Data.Attributes.Total,
	}, nil
}

type storesResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name   string `json:"name"`
			Domain string `json:"domain"`
		} `json:"attributes"`
	} `json:"data"`
}

func (c *Client) ListStores(ctx context.Context) ([]Store, error) {
	var resp storesResponse
	if err := c.do(ctx, http.MethodGet, "/stores", nil, &resp); err != nil {
		return nil, err
	}

	stores := make([]Store, 0, len(resp.Data))
	for _, s := range resp.Data {
		stores = append(stores, Store{
			ID:     s.ID,
			Name:   s.Attributes.Name,
			Domain: s.Attributes.Domain,
		})
	}
	return stores, nil
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("Content-Type", "application/vnd.api+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Lemon Squeezy API error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(data)),
		)
		return &APIError{Status: resp.StatusCode, Body: string(data)}
	}

	if respBody != nil {
		if err := json.Unmarshal(data, respBody); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the REST client for the print-on-demand provider.
type Client struct {
	endpoint string
	apiKey   string
	shopID   string
	http     *http.Client
}

// ClientOption customises the fulfillment client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithTimeout bounds individual provider calls.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
	}
}

// NewClient constructs a fulfillment client for the configured shop.
func NewClient(endpoint, apiKey, shopID string, opts ...ClientOption) (*Client, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" || strings.TrimSpace(apiKey) == "" || strings.TrimSpace(shopID) == "" {
		return nil, ErrNotConfigured
	}

	client := &Client{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(apiKey),
		shopID:   strings.TrimSpace(shopID),
		http:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// CreateOrder submits a print order to the provider and returns its handle.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (ProviderOrder, error) {
	if c == nil || c.http == nil {
		return ProviderOrder{}, ErrNotConfigured
	}
	if strings.TrimSpace(req.ExternalID) == "" {
		return ProviderOrder{}, errors.New("fulfillment: external id is required")
	}
	if len(req.LineItems) == 0 {
		return ProviderOrder{}, errors.New("fulfillment: at least one line item is required")
	}

	endpoint, err := url.JoinPath(c.endpoint, "shops", c.shopID, "orders.json")
	if err != nil {
		return ProviderOrder{}, fmt.Errorf("fulfillment: build order url: %w", err)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return ProviderOrder{}, fmt.Errorf("fulfillment: encode order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return ProviderOrder{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ProviderOrder{}, fmt.Errorf("fulfillment: create order %s: %w", req.ExternalID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ProviderOrder{}, fmt.Errorf("fulfillment: create order %s: status %d: %s", req.ExternalID, resp.StatusCode, drainBody(resp.Body))
	}

	var order ProviderOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return ProviderOrder{}, fmt.Errorf("fulfillment: decode order response: %w", err)
	}
	if order.ID == "" {
		return ProviderOrder{}, errors.New("fulfillment: order response missing id")
	}
	return order, nil
}

func drainBody(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 2048))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

var _ Bridge = (*Client)(nil)

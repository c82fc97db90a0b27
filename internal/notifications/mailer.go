package notifications

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

// ErrNotConfigured is returned when the mailer is missing credentials.
var ErrNotConfigured = errors.New("notifications: mailer is not configured")

// Message is one transactional email to deliver.
type Message struct {
	From    string `json:"from"`
	ReplyTo string `json:"reply_to,omitempty"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Mailer delivers a message and returns the vendor's message id.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Client is the REST client for the transactional email vendor.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// ClientOption customises the mailer client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithTimeout bounds individual send calls.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
	}
}

// NewClient constructs a mailer client for the configured vendor endpoint.
func NewClient(endpoint, apiKey string, opts ...ClientOption) (*Client, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" || strings.TrimSpace(apiKey) == "" {
		return nil, ErrNotConfigured
	}

	client := &Client{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(apiKey),
		http:     &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Send delivers one message through the vendor API.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if c == nil || c.http == nil {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(msg.To) == "" {
		return "", errors.New("notifications: recipient is required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return "", errors.New("notifications: subject is required")
	}

	endpoint, err := url.JoinPath(c.endpoint, "emails")
	if err != nil {
		return "", fmt.Errorf("notifications: build send url: %w", err)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("notifications: encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("notifications: send to %s: %w", msg.To, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("notifications: send to %s: status %d: %s", msg.To, resp.StatusCode, drainBody(resp.Body))
	}

	var sent struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sent); err != nil {
		return "", fmt.Errorf("notifications: decode send response: %w", err)
	}
	return sent.ID, nil
}

func drainBody(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 2048))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

var _ Mailer = (*Client)(nil)

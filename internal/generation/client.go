package generation

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

const (
	defaultSubmitTimeout = 5 * time.Minute
	defaultPollInterval  = 2 * time.Second
	statusCompleted      = "COMPLETED"
	statusFailed         = "FAILED"
)

// ProgressHandler observes queue status transitions while a run is awaited.
type ProgressHandler func(requestID string, status string)

// Client talks to the queue-based inference API: submit a request, poll its
// status URL, then fetch the response payload once the run completes.
type Client struct {
	endpoint      string
	apiKey        string
	http          *http.Client
	pollInterval  time.Duration
	submitTimeout time.Duration
	onProgress    ProgressHandler
	sleep         func(ctx context.Context, d time.Duration) error
}

// ClientOption customises queue client behaviour.
type ClientOption func(*Client)

// WithQueueHTTPClient overrides the HTTP client.
func WithQueueHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithPollInterval overrides the delay between status polls.
func WithPollInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithProgressHandler registers an observer called with every queue status
// seen while polling, terminal ones included.
func WithProgressHandler(handler ProgressHandler) ClientOption {
	return func(c *Client) {
		if handler != nil {
			c.onProgress = handler
		}
	}
}

// WithSubmitTimeout bounds the total time from submit to completed result.
func WithSubmitTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.submitTimeout = timeout
		}
	}
}

// NewClient constructs a queue client for the configured endpoint.
func NewClient(endpoint string, apiKey string, opts ...ClientOption) (*Client, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("generation: endpoint is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("generation: api key is required")
	}

	client := &Client{
		endpoint:      endpoint,
		apiKey:        strings.TrimSpace(apiKey),
		http:          &http.Client{Timeout: 30 * time.Second},
		pollInterval:  defaultPollInterval,
		submitTimeout: defaultSubmitTimeout,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// StyleTransfer renders the portrait into the target painting style.
func (c *Client) StyleTransfer(ctx context.Context, input StyleTransferInput) (Result, error) {
	if strings.TrimSpace(input.PortraitURL) == "" {
		return Result{}, errors.New("generation: portrait url is required")
	}
	prompt := styleTransferInstruction
	if tweak := strings.TrimSpace(input.PromptTweak); tweak != "" {
		prompt = prompt + ". " + tweak
	}
	payload := map[string]any{
		"prompt":    prompt,
		"image_url": input.PortraitURL,
	}
	return c.run(ctx, modelStyleTransfer, payload)
}

// ComposePet integrates the pet photo into the styled base portrait.
func (c *Client) ComposePet(ctx context.Context, input CompositeInput) (Result, error) {
	if strings.TrimSpace(input.BasePortraitURL) == "" {
		return Result{}, errors.New("generation: base portrait url is required")
	}
	if strings.TrimSpace(input.PetURL) == "" {
		return Result{}, errors.New("generation: pet url is required")
	}
	prompt := compositeInstruction
	if tweak := strings.TrimSpace(input.PromptTweak); tweak != "" {
		prompt = prompt + ". " + tweak
	}
	payload := map[string]any{
		"prompt":     prompt,
		"image_urls": []string{input.BasePortraitURL, input.PetURL},
	}
	return c.run(ctx, modelComposite, payload)
}

// Upscale produces the print-resolution output from the approved preview.
func (c *Client) Upscale(ctx context.Context, input UpscaleInput) (Result, error) {
	if strings.TrimSpace(input.ImageURL) == "" {
		return Result{}, errors.New("generation: image url is required")
	}
	factor := input.Factor
	if factor <= 0 {
		factor = 3
	}
	payload := map[string]any{
		"prompt":         upscaleInstruction,
		"image_url":      input.ImageURL,
		"upscale_factor": factor,
		"creativity":     0.35,
		"resemblance":    0.6,
		"output_format":  "png",
	}
	return c.run(ctx, modelUpscale, payload)
}

type submitResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type resultResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Image *struct {
		URL string `json:"url"`
	} `json:"image"`
}

func (c *Client) run(ctx context.Context, model string, payload map[string]any) (Result, error) {
	if c == nil || c.http == nil {
		return Result{}, errors.New("generation: client not initialised")
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if c.submitTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.submitTimeout)
		defer cancel()
	}

	submitted, err := c.submit(runCtx, model, payload)
	if err != nil {
		return Result{}, err
	}

	if err := c.await(runCtx, submitted); err != nil {
		return Result{RequestID: submitted.RequestID}, err
	}

	imageURL, err := c.fetchResult(runCtx, submitted)
	if err != nil {
		return Result{RequestID: submitted.RequestID}, err
	}
	return Result{RequestID: submitted.RequestID, ImageURL: imageURL}, nil
}

func (c *Client) submit(ctx context.Context, model string, payload map[string]any) (submitResponse, error) {
	endpoint, err := url.JoinPath(c.endpoint, model)
	if err != nil {
		return submitResponse{}, fmt.Errorf("generation: build submit url: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return submitResponse{}, fmt.Errorf("generation: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return submitResponse{}, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return submitResponse{}, fmt.Errorf("generation: submit %s: %w", model, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return submitResponse{}, fmt.Errorf("generation: submit %s: status %d: %s", model, resp.StatusCode, drainBody(resp.Body))
	}

	var submitted submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return submitResponse{}, fmt.Errorf("generation: decode submit response: %w", err)
	}
	if submitted.RequestID == "" || submitted.StatusURL == "" || submitted.ResponseURL == "" {
		return submitResponse{}, errors.New("generation: submit response missing request handles")
	}
	return submitted, nil
}

func (c *Client) await(ctx context.Context, submitted submitResponse) error {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, submitted.StatusURL, nil)
		if err != nil {
			return err
		}
		c.setHeaders(req)

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("generation: poll %s: %w", submitted.RequestID, err)
		}

		var status statusResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("generation: poll %s: status %d", submitted.RequestID, resp.StatusCode)
		}
		if decodeErr != nil {
			return fmt.Errorf("generation: decode status response: %w", decodeErr)
		}

		if c.onProgress != nil {
			c.onProgress(submitted.RequestID, status.Status)
		}

		switch status.Status {
		case statusCompleted:
			return nil
		case statusFailed:
			detail := status.Error
			if detail == "" {
				detail = "run failed"
			}
			return fmt.Errorf("generation: request %s failed: %s", submitted.RequestID, detail)
		}

		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return err
		}
	}
}

func (c *Client) fetchResult(ctx context.Context, submitted submitResponse) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, submitted.ResponseURL, nil)
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation: fetch result %s: %w", submitted.RequestID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("generation: fetch result %s: status %d", submitted.RequestID, resp.StatusCode)
	}

	var result resultResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("generation: decode result response: %w", err)
	}
	if len(result.Images) > 0 && result.Images[0].URL != "" {
		return result.Images[0].URL, nil
	}
	if result.Image != nil && result.Image.URL != "" {
		return result.Image.URL, nil
	}
	return "", ErrNoOutput
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

func drainBody(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 2048))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

var _ Provider = (*Client)(nil)

package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	List(params *stripe.CheckoutSessionListParams) ([]*stripe.CheckoutSession, error)
}

type stripeClients struct {
	sessions stripeSessionAPI
}

// sessionClientAdapter drains the SDK iterator behind the narrow interface so
// tests can stub listings without constructing iterators.
type sessionClientAdapter struct {
	api *client.API
}

func (a sessionClientAdapter) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return a.api.CheckoutSessions.Get(id, params)
}

func (a sessionClientAdapter) List(params *stripe.CheckoutSessionListParams) ([]*stripe.CheckoutSession, error) {
	iter := a.api.CheckoutSessions.List(params)
	var sessions []*stripe.CheckoutSession
	for iter.Next() {
		sessions = append(sessions, iter.CheckoutSession())
	}
	return sessions, iter.Err()
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey        string
	WebhookSecret string
	Backends      *stripe.Backends
	Logger        StripeLogger
	Clients       *stripeClients
}

// StripeProvider implements the Provider interface using Stripe APIs.
type StripeProvider struct {
	api           stripeClients
	webhookSecret string
	logger        StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{sessions: sessionClientAdapter{api: sc}}
	}
	if clients.sessions == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:           clients,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		logger:        logger,
	}, nil
}

// RetrieveSession fetches a checkout session with its payment intent expanded.
func (p *StripeProvider) RetrieveSession(ctx context.Context, sessionID string) (CheckoutSessionDetails, error) {
	if p == nil {
		return CheckoutSessionDetails{}, errors.New("stripe: provider is nil")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return CheckoutSessionDetails{}, errors.New("stripe: session id is required")
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	session, err := p.api.sessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return CheckoutSessionDetails{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return CheckoutSessionDetails{}, fmt.Errorf("stripe: retrieve session %s: %w", sessionID, err)
	}

	return stripeSessionDetails(session), nil
}

// ListSessions returns checkout sessions created after the query bound.
func (p *StripeProvider) ListSessions(ctx context.Context, query SessionListQuery) ([]CheckoutSessionDetails, error) {
	if p == nil {
		return nil, errors.New("stripe: provider is nil")
	}

	limit := query.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	params := &stripe.CheckoutSessionListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))
	if !query.CreatedAfter.IsZero() {
		params.CreatedRange = &stripe.RangeQueryParams{
			GreaterThanOrEqual: query.CreatedAfter.Unix(),
		}
	}

	sessions, err := p.api.sessions.List(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: list sessions: %w", err)
	}

	details := make([]CheckoutSessionDetails, 0, len(sessions))
	for _, session := range sessions {
		if session == nil {
			continue
		}
		details = append(details, stripeSessionDetails(session))
	}
	p.logger(context.Background(), "payments.stripe.sessions.listed", map[string]any{
		"count": len(details),
	})
	return details, nil
}

// ParseWebhookEvent verifies the Stripe-Signature header and decodes the payload.
func (p *StripeProvider) ParseWebhookEvent(payload []byte, signature string) (WebhookEvent, error) {
	if p == nil {
		return WebhookEvent{}, errors.New("stripe: provider is nil")
	}
	if p.webhookSecret == "" {
		return WebhookEvent{}, errors.New("stripe: webhook secret is not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}

	parsed := WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}

	if strings.HasPrefix(parsed.Type, "checkout.session.") {
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return WebhookEvent{}, fmt.Errorf("stripe: decode session event: %w", err)
		}
		details := stripeSessionDetails(&session)
		parsed.Session = &details
	}

	return parsed, nil
}

func stripeSessionDetails(session *stripe.CheckoutSession) CheckoutSessionDetails {
	if session == nil {
		return CheckoutSessionDetails{}
	}

	status := PaymentStatusUnpaid
	switch session.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid:
		status = PaymentStatusPaid
	case stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		status = PaymentStatusNoPaymentRequired
	}

	intentID := ""
	if session.PaymentIntent != nil {
		intentID = session.PaymentIntent.ID
	}

	email := strings.TrimSpace(session.CustomerEmail)
	name := ""
	if session.CustomerDetails != nil {
		if email == "" {
			email = strings.TrimSpace(session.CustomerDetails.Email)
		}
		name = strings.TrimSpace(session.CustomerDetails.Name)
	}

	metadata := make(map[string]string, len(session.Metadata))
	for k, v := range session.Metadata {
		metadata[k] = v
	}

	var shipping *ShippingDetails
	if session.ShippingDetails != nil && session.ShippingDetails.Address != nil {
		addr := session.ShippingDetails.Address
		shipping = &ShippingDetails{
			Name:       strings.TrimSpace(session.ShippingDetails.Name),
			Phone:      strings.TrimSpace(session.ShippingDetails.Phone),
			Line1:      addr.Line1,
			Line2:      addr.Line2,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
		}
	}

	return CheckoutSessionDetails{
		SessionID:       session.ID,
		PaymentIntentID: intentID,
		PaymentStatus:   status,
		AmountTotal:     session.AmountTotal,
		Currency:        strings.ToLower(string(session.Currency)),
		CustomerEmail:   email,
		CustomerName:    name,
		Shipping:        shipping,
		Metadata:        metadata,
		CreatedAt:       time.Unix(session.Created, 0).UTC(),
	}
}

var _ Provider = (*StripeProvider)(nil)

package payments

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubSessionAPI struct {
	getFunc  func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	listFunc func(params *stripe.CheckoutSessionListParams) ([]*stripe.CheckoutSession, error)
}

func (s *stubSessionAPI) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if s.getFunc == nil {
		return nil, errors.New("unexpected Get call")
	}
	return s.getFunc(id, params)
}

func (s *stubSessionAPI) List(params *stripe.CheckoutSessionListParams) ([]*stripe.CheckoutSession, error) {
	if s.listFunc == nil {
		return nil, errors.New("unexpected List call")
	}
	return s.listFunc(params)
}

func newTestProvider(t *testing.T, sessions stripeSessionAPI) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		WebhookSecret: "whsec_test",
		Clients:       &stripeClients{sessions: sessions},
	})
	if err != nil {
		t.Fatalf("NewStripeProvider returned error: %v", err)
	}
	return provider
}

func TestRetrieveSessionMapsDetails(t *testing.T) {
	created := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)

	stub := &stubSessionAPI{
		getFunc: func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			if id != "cs_test_123" {
				t.Errorf("unexpected session id %s", id)
			}
			return &stripe.CheckoutSession{
				ID:            "cs_test_123",
				PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
				PaymentIntent: &stripe.PaymentIntent{ID: "pi_123"},
				AmountTotal:   12900,
				Currency:      stripe.CurrencyEUR,
				CustomerDetails: &stripe.CheckoutSessionCustomerDetails{
					Email: "jane@example.com",
					Name:  "Jane Doe",
				},
				Metadata: map[string]string{"artworkId": "art_1"},
				Created:  created.Unix(),
			}, nil
		},
	}

	provider := newTestProvider(t, stub)

	details, err := provider.RetrieveSession(context.Background(), "cs_test_123")
	if err != nil {
		t.Fatalf("RetrieveSession returned error: %v", err)
	}
	if !details.Paid() {
		t.Error("expected session to be paid")
	}
	if details.PaymentIntentID != "pi_123" {
		t.Errorf("unexpected payment intent %s", details.PaymentIntentID)
	}
	if details.Currency != "eur" {
		t.Errorf("unexpected currency %s", details.Currency)
	}
	if details.CustomerEmail != "jane@example.com" || details.CustomerName != "Jane Doe" {
		t.Errorf("unexpected customer %s / %s", details.CustomerEmail, details.CustomerName)
	}
	if details.Metadata["artworkId"] != "art_1" {
		t.Errorf("unexpected metadata %v", details.Metadata)
	}
	if !details.CreatedAt.Equal(created) {
		t.Errorf("unexpected created at %s", details.CreatedAt)
	}
}

func TestRetrieveSessionNotFound(t *testing.T) {
	stub := &stubSessionAPI{
		getFunc: func(string, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			return nil, &stripe.Error{HTTPStatusCode: http.StatusNotFound}
		},
	}

	provider := newTestProvider(t, stub)

	_, err := provider.RetrieveSession(context.Background(), "cs_missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestListSessionsAppliesQueryBounds(t *testing.T) {
	after := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	stub := &stubSessionAPI{
		listFunc: func(params *stripe.CheckoutSessionListParams) ([]*stripe.CheckoutSession, error) {
			if params.Limit == nil || *params.Limit != 25 {
				t.Errorf("unexpected limit %v", params.Limit)
			}
			if params.CreatedRange == nil || params.CreatedRange.GreaterThanOrEqual != after.Unix() {
				t.Errorf("unexpected created range %v", params.CreatedRange)
			}
			return []*stripe.CheckoutSession{
				{ID: "cs_1", PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid},
				nil,
				{ID: "cs_2", PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid},
			}, nil
		},
	}

	provider := newTestProvider(t, stub)

	sessions, err := provider.ListSessions(context.Background(), SessionListQuery{CreatedAfter: after, Limit: 25})
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].SessionID != "cs_1" || sessions[1].SessionID != "cs_2" {
		t.Errorf("unexpected sessions %v", sessions)
	}
	if sessions[1].PaymentStatus != PaymentStatusUnpaid {
		t.Errorf("unexpected payment status %s", sessions[1].PaymentStatus)
	}
}

func TestParseWebhookEventRejectsBadSignature(t *testing.T) {
	provider := newTestProvider(t, &stubSessionAPI{})

	_, err := provider.ParseWebhookEvent([]byte(`{"id":"evt_1"}`), "t=1,v1=deadbeef")
	if !errors.Is(err, ErrInvalidWebhookSignature) {
		t.Fatalf("expected ErrInvalidWebhookSignature, got %v", err)
	}
}

package payments

import (
	"context"
	"errors"
	"time"
)

// PaymentStatus normalises the provider's session payment states.
type PaymentStatus string

const (
	// PaymentStatusPaid means funds were captured for the session.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusUnpaid means the session exists but was never paid.
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	// PaymentStatusNoPaymentRequired covers zero-amount sessions.
	PaymentStatusNoPaymentRequired PaymentStatus = "no_payment_required"
)

// ErrSessionNotFound is returned when the provider has no session for the id.
var ErrSessionNotFound = errors.New("payments: checkout session not found")

// ErrInvalidWebhookSignature is returned when webhook verification fails.
var ErrInvalidWebhookSignature = errors.New("payments: invalid webhook signature")

// ShippingDetails is the destination captured at checkout, when collected.
type ShippingDetails struct {
	Name       string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// CheckoutSessionDetails is the provider-neutral view of a checkout session.
type CheckoutSessionDetails struct {
	SessionID       string
	PaymentIntentID string
	PaymentStatus   PaymentStatus
	AmountTotal     int64
	Currency        string
	CustomerEmail   string
	CustomerName    string
	Shipping        *ShippingDetails
	Metadata        map[string]string
	CreatedAt       time.Time
}

// Paid reports whether the session represents captured funds.
func (d CheckoutSessionDetails) Paid() bool {
	return d.PaymentStatus == PaymentStatusPaid
}

// SessionListQuery bounds a session listing for reconciliation sweeps.
type SessionListQuery struct {
	CreatedAfter time.Time
	Limit        int
}

// WebhookEvent is a verified event delivered by the payment provider.
type WebhookEvent struct {
	ID      string
	Type    string
	Session *CheckoutSessionDetails
}

// Provider exposes the payment operations the order ledger depends on.
type Provider interface {
	// RetrieveSession fetches a single checkout session by its identifier.
	RetrieveSession(ctx context.Context, sessionID string) (CheckoutSessionDetails, error)
	// ListSessions returns sessions created after the query bound, newest first.
	ListSessions(ctx context.Context, query SessionListQuery) ([]CheckoutSessionDetails, error)
	// ParseWebhookEvent verifies the signature and decodes the event payload.
	ParseWebhookEvent(payload []byte, signature string) (WebhookEvent, error)
}

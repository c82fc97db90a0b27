package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/pawtrait-studio/api/internal/domain"
	"github.com/pawtrait-studio/api/internal/fulfillment"
	"github.com/pawtrait-studio/api/internal/payments"
	"github.com/pawtrait-studio/api/internal/platform/httpx"
	"github.com/pawtrait-studio/api/internal/services"
)

const (
	maxWebhookBytes       = 1 << 20
	stripeSignatureHeader = "Stripe-Signature"

	checkoutSessionCompleted          = "checkout.session.completed"
	checkoutSessionAsyncPaymentPaid   = "checkout.session.async_payment_succeeded"
	checkoutSessionAsyncPaymentFailed = "checkout.session.async_payment_failed"
)

// WebhookHandlers receives payment and fulfillment provider callbacks.
type WebhookHandlers struct {
	payments payments.Provider
	orders   services.OrderService
	verifier func(http.Handler) http.Handler
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// WebhookHandlersConfig wires the webhook handlers.
type WebhookHandlersConfig struct {
	Payments payments.Provider
	Orders   services.OrderService
	// FulfillmentVerifier guards the fulfillment endpoint with the vendor's
	// HMAC signature. The Stripe endpoint verifies its own signatures.
	FulfillmentVerifier func(http.Handler) http.Handler
	Logger              func(ctx context.Context, event string, fields map[string]any)
}

// NewWebhookHandlers validates dependencies and constructs the handlers.
func NewWebhookHandlers(cfg WebhookHandlersConfig) (*WebhookHandlers, error) {
	if cfg.Payments == nil {
		return nil, errors.New("handlers: payments provider is required")
	}
	if cfg.Orders == nil {
		return nil, errors.New("handlers: order service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &WebhookHandlers{
		payments: cfg.Payments,
		orders:   cfg.Orders,
		verifier: cfg.FulfillmentVerifier,
		logger:   logger,
	}, nil
}

// Routes registers the webhook endpoints on the router group.
func (h *WebhookHandlers) Routes(r chi.Router) {
	r.Post("/stripe", h.Stripe)
	if h.verifier != nil {
		r.With(h.verifier).Post("/fulfillment", h.Fulfillment)
		return
	}
	r.Post("/fulfillment", h.Fulfillment)
}

// Stripe verifies and applies a payment provider event. Processing errors
// return 500 so the provider retries; signature failures return 400 so it
// does not.
func (h *WebhookHandlers) Stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "could not read webhook payload", http.StatusBadRequest))
		return
	}

	event, err := h.payments.ParseWebhookEvent(payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidWebhookSignature) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		h.logger(ctx, "handlers.webhooks.stripe.parse_failed", map[string]any{"error": err.Error()})
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "could not decode webhook event", http.StatusBadRequest))
		return
	}

	switch event.Type {
	case checkoutSessionCompleted, checkoutSessionAsyncPaymentPaid:
		if event.Session == nil || !event.Session.Paid() {
			h.logger(ctx, "handlers.webhooks.stripe.skipped", map[string]any{
				"eventId": event.ID,
				"type":    event.Type,
				"reason":  "session missing or unpaid",
			})
			break
		}
		if err := h.applyPaidSession(ctx, *event.Session); err != nil {
			h.logger(ctx, "handlers.webhooks.stripe.apply_failed", map[string]any{
				"eventId": event.ID,
				"session": event.Session.SessionID,
				"error":   err.Error(),
			})
			httpx.WriteError(ctx, w, httpx.NewError("processing_failed", "event could not be applied", http.StatusInternalServerError))
			return
		}
	case checkoutSessionAsyncPaymentFailed:
		h.logger(ctx, "handlers.webhooks.stripe.payment_failed", map[string]any{
			"eventId": event.ID,
		})
	default:
		// Unsubscribed event types are acknowledged without action.
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

func (h *WebhookHandlers) applyPaidSession(ctx context.Context, session payments.CheckoutSessionDetails) error {
	artworkID := strings.TrimSpace(session.Metadata["artworkId"])
	productType := strings.TrimSpace(session.Metadata["productType"])
	if artworkID == "" || productType == "" {
		// Sessions created outside this product have no artwork context;
		// acknowledging them keeps the endpoint quiet on shared accounts.
		h.logger(ctx, "handlers.webhooks.stripe.no_metadata", map[string]any{
			"session": session.SessionID,
		})
		return nil
	}

	customerName := session.CustomerName
	if name := strings.TrimSpace(session.Metadata["customerName"]); name != "" {
		customerName = name
	}

	metadata := map[string]any{}
	if pet := strings.TrimSpace(session.Metadata["petName"]); pet != "" {
		metadata["petName"] = pet
	}
	if shipping := shippingMetadata(session.Shipping, session.CustomerEmail); shipping != nil {
		metadata["shipping"] = shipping
	}

	_, err := h.orders.CreateFromPayment(ctx, services.CreateOrderFromPaymentCommand{
		SessionID:       session.SessionID,
		PaymentIntentID: session.PaymentIntentID,
		ArtworkID:       artworkID,
		ProductType:     domain.ProductType(productType),
		ProductSize:     strings.TrimSpace(session.Metadata["size"]),
		PriceCents:      session.AmountTotal,
		Currency:        session.Currency,
		CustomerEmail:   session.CustomerEmail,
		CustomerName:    customerName,
		Metadata:        metadata,
	})
	return err
}

// Fulfillment applies a print vendor status event. Events for unknown orders
// or stale transitions are acknowledged so the vendor stops redelivering them.
func (h *WebhookHandlers) Fulfillment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var event fulfillment.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBytes)).Decode(&event); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "could not decode webhook event", http.StatusBadRequest))
		return
	}
	if event.Data.ID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "event is missing the order id", http.StatusBadRequest))
		return
	}

	cmd, ok := fulfillmentCommandFrom(event)
	if !ok {
		h.logger(ctx, "handlers.webhooks.fulfillment.ignored", map[string]any{
			"type":  event.Type,
			"order": event.Data.ID,
		})
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	if _, err := h.orders.UpdateFromFulfillment(ctx, cmd); err != nil {
		switch {
		case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrOrderInvalidState):
			// Replaying a stale or unknown event forever helps nobody.
			h.logger(ctx, "handlers.webhooks.fulfillment.skipped", map[string]any{
				"type":  event.Type,
				"order": event.Data.ID,
				"error": err.Error(),
			})
		default:
			h.logger(ctx, "handlers.webhooks.fulfillment.apply_failed", map[string]any{
				"type":  event.Type,
				"order": event.Data.ID,
				"error": err.Error(),
			})
			httpx.WriteError(ctx, w, httpx.NewError("processing_failed", "event could not be applied", http.StatusInternalServerError))
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

func fulfillmentCommandFrom(event fulfillment.Event) (services.UpdateFromFulfillmentCommand, bool) {
	cmd := services.UpdateFromFulfillmentCommand{
		ProviderOrderID:   event.Data.ID,
		FulfillmentStatus: event.Data.Status,
	}

	switch event.Type {
	case fulfillment.EventOrderUpdated, fulfillment.EventSentToProduction:
		cmd.Status = fulfillment.MapStatus(event.Data.Status)
	case fulfillment.EventShipmentCreated:
		cmd.Status = domain.OrderStatusShipped
	case fulfillment.EventDelivered:
		cmd.Status = domain.OrderStatusDelivered
	default:
		return services.UpdateFromFulfillmentCommand{}, false
	}

	if len(event.Data.Shipments) > 0 {
		shipment := event.Data.Shipments[0]
		cmd.TrackingNumber = shipment.Number
		cmd.TrackingURL = shipment.URL
	}

	return cmd, true
}

func shippingMetadata(shipping *payments.ShippingDetails, email string) map[string]any {
	if shipping == nil {
		return nil
	}

	first, last := splitName(shipping.Name)
	return map[string]any{
		"firstName": first,
		"lastName":  last,
		"email":     strings.TrimSpace(email),
		"phone":     shipping.Phone,
		"country":   shipping.Country,
		"region":    shipping.State,
		"address1":  shipping.Line1,
		"address2":  shipping.Line2,
		"city":      shipping.City,
		"zip":       shipping.PostalCode,
	}
}

func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	if idx := strings.LastIndex(full, " "); idx > 0 {
		return full[:idx], full[idx+1:]
	}
	return full, ""
}

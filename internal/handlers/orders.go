package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/pawtrait-studio/api/internal/domain"
	"github.com/pawtrait-studio/api/internal/platform/httpx"
	"github.com/pawtrait-studio/api/internal/services"
)

// OrderHandlers serves the customer-facing order lookup endpoints.
type OrderHandlers struct {
	orders services.OrderService
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderHandlers constructs the order handlers.
func NewOrderHandlers(orders services.OrderService, logger func(ctx context.Context, event string, fields map[string]any)) (*OrderHandlers, error) {
	if orders == nil {
		return nil, errors.New("handlers: order service is required")
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &OrderHandlers{orders: orders, logger: logger}, nil
}

// Routes registers the order endpoints on the router group.
func (h *OrderHandlers) Routes(r chi.Router) {
	r.Get("/session/{sessionID}", h.GetBySession)
	r.Get("/{orderID}", h.Get)
	r.Get("/{orderID}/history", h.History)
}

// GetBySession resolves the order created for a checkout session. The store
// front polls this after checkout redirects back.
func (h *OrderHandlers) GetBySession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.orders.GetBySessionID(ctx, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponseFrom(order))
}

// Get returns an order by its identifier.
func (h *OrderHandlers) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponseFrom(order))
}

// History returns the append-only status trail for an order.
func (h *OrderHandlers) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := h.orders.StatusHistory(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	history := make([]orderHistoryEntry, 0, len(entries))
	for _, entry := range entries {
		history = append(history, orderHistoryEntry{
			Status:    string(entry.Status),
			Notes:     entry.Notes,
			CreatedAt: entry.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict))
	default:
		h.logger(ctx, "handlers.orders.error", map[string]any{"error": err.Error()})
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "something went wrong", http.StatusInternalServerError))
	}
}

type orderHistoryEntry struct {
	Status    string    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type orderResponse struct {
	ID                string     `json:"id"`
	OrderNumber       string     `json:"orderNumber"`
	SessionID         string     `json:"sessionId"`
	ArtworkID         string     `json:"artworkId"`
	ProductType       string     `json:"productType"`
	ProductSize       string     `json:"productSize,omitempty"`
	PriceCents        int64      `json:"priceCents"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	FulfillmentStatus string     `json:"fulfillmentStatus,omitempty"`
	TrackingNumber    string     `json:"trackingNumber,omitempty"`
	TrackingURL       string     `json:"trackingUrl,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	PaidAt            *time.Time `json:"paidAt,omitempty"`
	ShippedAt         *time.Time `json:"shippedAt,omitempty"`
	DeliveredAt       *time.Time `json:"deliveredAt,omitempty"`
}

func orderResponseFrom(order domain.Order) orderResponse {
	return orderResponse{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		SessionID:         order.SessionID,
		ArtworkID:         order.ArtworkRef,
		ProductType:       string(order.ProductType),
		ProductSize:       order.ProductSize,
		PriceCents:        order.PriceCents,
		Currency:          order.Currency,
		Status:            string(order.Status),
		FulfillmentStatus: order.FulfillmentStatus,
		TrackingNumber:    order.TrackingNumber,
		TrackingURL:       order.TrackingURL,
		CreatedAt:         order.CreatedAt,
		PaidAt:            order.PaidAt,
		ShippedAt:         order.ShippedAt,
		DeliveredAt:       order.DeliveredAt,
	}
}

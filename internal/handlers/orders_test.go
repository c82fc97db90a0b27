package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/pawtrait-studio/api/internal/domain"
	"github.com/pawtrait-studio/api/internal/services"
)

func newOrderRouter(t *testing.T, orders services.OrderService) http.Handler {
	t.Helper()
	if orders == nil {
		orders = &stubOrderService{}
	}
	h, err := NewOrderHandlers(orders, nil)
	if err != nil {
		t.Fatalf("NewOrderHandlers: %v", err)
	}
	return NewRouter(WithOrderRoutes(h.Routes))
}

func TestGetOrderBySession(t *testing.T) {
	orders := &stubOrderService{
		getBySessionFunc: func(ctx context.Context, sessionID string) (domain.Order, error) {
			return domain.Order{
				ID:          "ord_01H",
				SessionID:   sessionID,
				OrderNumber: "PW-2026-000042",
				Status:      domain.OrderStatusPaid,
				ProductType: domain.ProductTypeArtPrint,
				PriceCents:  9999,
				Currency:    "usd",
			}, nil
		},
	}
	router := newOrderRouter(t, orders)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/session/cs_123", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID != "cs_123" || resp.OrderNumber != "PW-2026-000042" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Status != "paid" {
		t.Errorf("unexpected status %q", resp.Status)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	orders := &stubOrderService{
		getFunc: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderNotFound
		},
	}
	router := newOrderRouter(t, orders)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord_missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "order_not_found" {
		t.Errorf("unexpected error code %v", body["error"])
	}
}

func TestOrderHistoryListsEntries(t *testing.T) {
	created := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	orders := &stubOrderService{
		historyFunc: func(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error) {
			return []domain.OrderStatusHistoryEntry{
				{Status: domain.OrderStatusPaid, Notes: "payment confirmed", CreatedAt: created},
				{Status: domain.OrderStatusProcessing, Notes: "submitted to fulfillment as pfy_123", CreatedAt: created.Add(time.Hour)},
			}, nil
		},
	}
	router := newOrderRouter(t, orders)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord_01H/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		History []orderHistoryEntry `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.History) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(body.History))
	}
	if body.History[0].Status != "paid" || body.History[1].Status != "processing" {
		t.Errorf("unexpected history %+v", body.History)
	}
}

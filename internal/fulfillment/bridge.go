package fulfillment

import (
	"context"
	"errors"
	"strings"

	"github.com/pawtrait-studio/api/internal/domain"
)

// ErrNotConfigured is returned when the bridge is missing credentials.
var ErrNotConfigured = errors.New("fulfillment: bridge is not configured")

// ShippingAddress is the destination for a physical print order.
type ShippingAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Country   string `json:"country"`
	Region    string `json:"region,omitempty"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city"`
	Zip       string `json:"zip"`
}

// LineItem is one printable item on a provider order.
type LineItem struct {
	ProductID  string         `json:"product_id"`
	VariantID  int            `json:"variant_id"`
	Quantity   int            `json:"quantity"`
	PrintAreas map[string]any `json:"print_areas"`
}

// OrderRequest is the payload sent to the provider when creating an order.
// ExternalID carries the checkout session id so provider callbacks can be
// correlated back to the local ledger.
type OrderRequest struct {
	ExternalID               string          `json:"external_id"`
	Label                    string          `json:"label,omitempty"`
	LineItems                []LineItem      `json:"line_items"`
	ShippingMethod           int             `json:"shipping_method"`
	SendShippingNotification bool            `json:"send_shipping_notification"`
	AddressTo                ShippingAddress `json:"address_to"`
}

// ProviderOrder is the provider's view of a created order.
type ProviderOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Bridge turns approved final artwork into physical print orders.
type Bridge interface {
	CreateOrder(ctx context.Context, req OrderRequest) (ProviderOrder, error)
}

// Webhook event topics delivered by the provider.
const (
	EventOrderUpdated     = "order:updated"
	EventSentToProduction = "order:sent-to-production"
	EventShipmentCreated  = "order:shipment:created"
	EventDelivered        = "order:shipment:delivered"
)

// Shipment carries tracking details attached to a shipment event.
type Shipment struct {
	Carrier string `json:"carrier"`
	Number  string `json:"number"`
	URL     string `json:"url"`
}

// EventData is the order payload inside a webhook event.
type EventData struct {
	ID         string     `json:"id"`
	ExternalID string     `json:"external_id"`
	Status     string     `json:"status"`
	Shipments  []Shipment `json:"shipments,omitempty"`
}

// Event is a webhook notification from the fulfillment provider.
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// MapStatus translates the provider status vocabulary into the local order
// status. Unknown values fall back to processing so late vocabulary additions
// never strand an order.
func MapStatus(providerStatus string) domain.OrderStatus {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "pending", "in-production":
		return domain.OrderStatusProcessing
	case "fulfilled", "shipped":
		return domain.OrderStatusShipped
	case "delivered":
		return domain.OrderStatusDelivered
	case "cancelled":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusProcessing
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/pawtrait-studio/api/internal/domain"
	"github.com/pawtrait-studio/api/internal/fulfillment"
	"github.com/pawtrait-studio/api/internal/notifications"
	"github.com/pawtrait-studio/api/internal/platform/storage"
	"github.com/pawtrait-studio/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status_changed"

	orderIDPrefix      = "ord_"
	orderNumberCounter = "orders"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates a lifecycle transition guard was violated.
	ErrOrderInvalidState = errors.New("order: invalid state")
	// ErrOrderConflict indicates a concurrent writer already created the order.
	ErrOrderConflict = errors.New("order: conflict")
)

var orderStatusTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:       {domain.OrderStatusPaid, domain.OrderStatusCancelled},
	domain.OrderStatusPaid:          {domain.OrderStatusProcessing, domain.OrderStatusPendingReview, domain.OrderStatusRefunded, domain.OrderStatusCancelled},
	domain.OrderStatusPendingReview: {domain.OrderStatusProcessing, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusProcessing:    {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:       {domain.OrderStatusDelivered},
}

func canTransitionOrder(from, to domain.OrderStatus) bool {
	for _, allowed := range orderStatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	History     repositories.OrderStatusHistoryRepository
	Counters    repositories.CounterRepository
	Artifacts   ArtifactStore
	Fulfillment fulfillment.Bridge
	Notifier    Notifier
	Events      OrderEventPublisher
	Tx          repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders      repositories.OrderRepository
	history     repositories.OrderStatusHistoryRepository
	counters    repositories.CounterRepository
	artifacts   ArtifactStore
	fulfillment fulfillment.Bridge
	notifier    Notifier
	events      OrderEventPublisher
	tx          repositories.UnitOfWork
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.History == nil {
		return nil, errors.New("order service: status history repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	tx := deps.Tx
	if tx == nil {
		tx = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:      deps.Orders,
		history:     deps.History,
		counters:    deps.Counters,
		artifacts:   deps.Artifacts,
		fulfillment: deps.Fulfillment,
		notifier:    deps.Notifier,
		events:      deps.Events,
		tx:          tx,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepoError(err)
	}
	return order, nil
}

func (s *orderService) GetBySessionID(ctx context.Context, sessionID string) (domain.Order, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Order{}, fmt.Errorf("%w: session id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindBySessionID(ctx, sessionID)
	if err != nil {
		return domain.Order{}, s.mapRepoError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	for _, status := range filter.Status {
		if !domain.ValidOrderStatus(status) {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: unknown order status %q", ErrOrderInvalidInput, status)
		}
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.mapRepoError(err)
	}
	return page, nil
}

func (s *orderService) CreateFromPayment(ctx context.Context, cmd CreateOrderFromPaymentCommand) (domain.Order, error) {
	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return domain.Order{}, fmt.Errorf("%w: session id is required", ErrOrderInvalidInput)
	}
	if cmd.PriceCents < 0 {
		return domain.Order{}, fmt.Errorf("%w: price must not be negative", ErrOrderInvalidInput)
	}
	if !validProductType(cmd.ProductType) {
		return domain.Order{}, fmt.Errorf("%w: unknown product type %q", ErrOrderInvalidInput, cmd.ProductType)
	}

	// The checkout session is the idempotency anchor: webhook redelivery and
	// reconciliation both land here and must not duplicate the order.
	existing, err := s.orders.FindBySessionID(ctx, sessionID)
	if err == nil {
		return existing, nil
	}
	if !isRepoNotFound(err) {
		return domain.Order{}, s.mapRepoError(err)
	}

	now := s.clock()
	sequence, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order: allocate order number: %w", err)
	}

	currency := strings.ToLower(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = "usd"
	}

	order := domain.Order{
		ID:              orderIDPrefix + s.newID(),
		SessionID:       sessionID,
		PaymentIntentID: strings.TrimSpace(cmd.PaymentIntentID),
		OrderNumber:     fmt.Sprintf("PW-%04d-%06d", now.Year(), sequence),
		ArtworkRef:      strings.TrimSpace(cmd.ArtworkID),
		ProductType:     cmd.ProductType,
		ProductSize:     strings.TrimSpace(cmd.ProductSize),
		PriceCents:      cmd.PriceCents,
		Currency:        currency,
		CustomerEmail:   strings.TrimSpace(cmd.CustomerEmail),
		CustomerName:    strings.TrimSpace(cmd.CustomerName),
		Status:          domain.OrderStatusPaid,
		Metadata:        ensureMap(cloneMap(cmd.Metadata)),
		CreatedAt:       now,
		UpdatedAt:       now,
		PaidAt:          &now,
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Insert(ctx, order); err != nil {
			return err
		}
		return s.history.Append(ctx, domain.OrderStatusHistoryEntry{
			ID:        s.newID(),
			OrderRef:  order.ID,
			Status:    domain.OrderStatusPaid,
			Notes:     "payment confirmed",
			CreatedAt: now,
		})
	})
	if err != nil {
		// A concurrent webhook delivery may have won the insert race.
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			if winner, findErr := s.orders.FindBySessionID(ctx, sessionID); findErr == nil {
				return winner, nil
			}
			return domain.Order{}, fmt.Errorf("%w: %v", ErrOrderConflict, err)
		}
		return domain.Order{}, s.mapRepoError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		OccurredAt:    now,
		Metadata:      map[string]any{"sessionId": sessionID},
	})

	if s.notifier != nil {
		if err := s.notifier.OrderConfirmation(ctx, notifications.OrderConfirmationData{
			CustomerName:  order.CustomerName,
			CustomerEmail: order.CustomerEmail,
			OrderNumber:   order.OrderNumber,
			ProductType:   string(order.ProductType),
			ProductSize:   order.ProductSize,
			AmountCents:   order.PriceCents,
			Currency:      order.Currency,
		}); err != nil {
			s.logger(ctx, "order.notify.confirmation.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
		}
	}

	return order, nil
}

func (s *orderService) UpdateFromFulfillment(ctx context.Context, cmd UpdateFromFulfillmentCommand) (domain.Order, error) {
	providerOrderID := strings.TrimSpace(cmd.ProviderOrderID)
	if providerOrderID == "" {
		return domain.Order{}, fmt.Errorf("%w: provider order id is required", ErrOrderInvalidInput)
	}
	if !domain.ValidOrderStatus(cmd.Status) {
		return domain.Order{}, fmt.Errorf("%w: unknown order status %q", ErrOrderInvalidInput, cmd.Status)
	}

	order, err := s.orders.FindByFulfillmentOrderID(ctx, providerOrderID)
	if err != nil {
		return domain.Order{}, s.mapRepoError(err)
	}

	now := s.clock()
	if order.Status == cmd.Status {
		// Same-status redelivery still refreshes tracking details.
		applied := applyTracking(&order, cmd)
		if !applied {
			return order, nil
		}
		order.UpdatedAt = now
		if err := s.orders.Update(ctx, order); err != nil {
			return domain.Order{}, s.mapRepoError(err)
		}
		return order, nil
	}

	if !canTransitionOrder(order.Status, cmd.Status) {
		return domain.Order{}, fmt.Errorf("%w: cannot move order %s from %s to %s", ErrOrderInvalidState, order.ID, order.Status, cmd.Status)
	}

	previous := order.Status
	order.Status = cmd.Status
	applyTracking(&order, cmd)
	order.UpdatedAt = now
	switch cmd.Status {
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Update(ctx, order); err != nil {
			return err
		}
		notes := "fulfillment update"
		if status := strings.TrimSpace(cmd.FulfillmentStatus); status != "" {
			notes = "fulfillment: " + status
		}
		return s.history.Append(ctx, domain.OrderStatusHistoryEntry{
			ID:        s.newID(),
			OrderRef:  order.ID,
			Status:    cmd.Status,
			Notes:     notes,
			CreatedAt: now,
		})
	})
	if err != nil {
		return domain.Order{}, s.mapRepoError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		OccurredAt:     now,
	})

	if cmd.Status == domain.OrderStatusShipped && s.notifier != nil {
		if err := s.notifier.OrderShipped(ctx, notifications.ShippedData{
			CustomerName:   order.CustomerName,
			CustomerEmail:  order.CustomerEmail,
			OrderNumber:    order.OrderNumber,
			TrackingNumber: order.TrackingNumber,
			TrackingURL:    order.TrackingURL,
		}); err != nil {
			s.logger(ctx, "order.notify.shipped.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
		}
	}

	return order, nil
}

func (s *orderService) StartFulfillment(ctx context.Context, orderID string, artworkURL string) (domain.Order, error) {
	if s.fulfillment == nil {
		return domain.Order{}, fulfillment.ErrNotConfigured
	}
	artworkURL = strings.TrimSpace(artworkURL)
	if artworkURL == "" {
		return domain.Order{}, fmt.Errorf("%w: artwork url is required", ErrOrderInvalidInput)
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusPaid && order.Status != domain.OrderStatusPendingReview {
		return domain.Order{}, fmt.Errorf("%w: order %s is %s, fulfillment requires paid or pending_review", ErrOrderInvalidState, order.ID, order.Status)
	}
	if order.ProductType == domain.ProductTypeDigital {
		return domain.Order{}, fmt.Errorf("%w: order %s", fulfillment.ErrDigitalProduct, order.ID)
	}

	address, ok := shippingFromMetadata(order.Metadata)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: order %s has no shipping address", ErrOrderInvalidState, order.ID)
	}

	config, err := fulfillment.ResolveProductConfig(fulfillment.ProductSpec{
		Type:    order.ProductType,
		Size:    order.ProductSize,
		Country: address.Country,
	})
	if err != nil {
		return domain.Order{}, err
	}

	// The approved file is copied into the order's own delivery area so the
	// vendor never depends on artwork-scoped objects.
	printURL := artworkURL
	if s.artifacts != nil {
		object, err := storage.BuildObjectPath(storage.PurposeOrderDelivery, storage.PathParams{
			OrderID:  order.ID,
			FileName: "artwork-print.png",
		})
		if err != nil {
			return domain.Order{}, fmt.Errorf("order: build delivery path: %w", err)
		}
		printURL, err = s.artifacts.CopyFromURL(ctx, artworkURL, object)
		if err != nil {
			return domain.Order{}, fmt.Errorf("order: stage delivery file: %w", err)
		}
	}

	providerOrder, err := s.fulfillment.CreateOrder(ctx, fulfillment.OrderRequest{
		ExternalID: order.SessionID,
		Label:      order.OrderNumber,
		LineItems: []fulfillment.LineItem{{
			ProductID:  strconv.Itoa(config.BlueprintID),
			VariantID:  config.VariantID,
			Quantity:   1,
			PrintAreas: map[string]any{"front": printURL},
		}},
		ShippingMethod:           config.ShippingMethod,
		SendShippingNotification: false,
		AddressTo:                address,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("order: submit fulfillment order: %w", err)
	}

	now := s.clock()
	previous := order.Status
	order.Status = domain.OrderStatusProcessing
	order.FulfillmentOrderID = providerOrder.ID
	order.FulfillmentStatus = optionalString(providerOrder.Status, "pending")
	order.UpdatedAt = now

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Update(ctx, order); err != nil {
			return err
		}
		return s.history.Append(ctx, domain.OrderStatusHistoryEntry{
			ID:        s.newID(),
			OrderRef:  order.ID,
			Status:    domain.OrderStatusProcessing,
			Notes:     "submitted to fulfillment as " + providerOrder.ID,
			CreatedAt: now,
		})
	})
	if err != nil {
		return domain.Order{}, s.mapRepoError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		OccurredAt:     now,
		Metadata:       map[string]any{"fulfillmentOrderId": providerOrder.ID},
	})

	return order, nil
}

func (s *orderService) StatusHistory(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	entries, err := s.history.List(ctx, order.ID)
	if err != nil {
		return nil, s.mapRepoError(err)
	}
	return entries, nil
}

// applyTracking copies non-empty tracking fields onto the order and reports
// whether anything changed.
func applyTracking(order *domain.Order, cmd UpdateFromFulfillmentCommand) bool {
	changed := false
	if v := strings.TrimSpace(cmd.FulfillmentStatus); v != "" && v != order.FulfillmentStatus {
		order.FulfillmentStatus = v
		changed = true
	}
	if v := strings.TrimSpace(cmd.TrackingNumber); v != "" && v != order.TrackingNumber {
		order.TrackingNumber = v
		changed = true
	}
	if v := strings.TrimSpace(cmd.TrackingURL); v != "" && v != order.TrackingURL {
		order.TrackingURL = v
		changed = true
	}
	return changed
}

// shippingFromMetadata reads the checkout shipping details captured on the
// order's metadata under the "shipping" key.
func shippingFromMetadata(metadata map[string]any) (fulfillment.ShippingAddress, bool) {
	raw, ok := metadata["shipping"].(map[string]any)
	if !ok {
		return fulfillment.ShippingAddress{}, false
	}
	address := fulfillment.ShippingAddress{
		FirstName: metadataString(raw, "firstName"),
		LastName:  metadataString(raw, "lastName"),
		Email:     metadataString(raw, "email"),
		Phone:     metadataString(raw, "phone"),
		Country:   metadataString(raw, "country"),
		Region:    metadataString(raw, "region"),
		Address1:  metadataString(raw, "address1"),
		Address2:  metadataString(raw, "address2"),
		City:      metadataString(raw, "city"),
		Zip:       metadataString(raw, "zip"),
	}
	if address.Country == "" || address.Address1 == "" || address.City == "" || address.Zip == "" {
		return fulfillment.ShippingAddress{}, false
	}
	return address, true
}

func validProductType(t domain.ProductType) bool {
	switch t {
	case domain.ProductTypeDigital, domain.ProductTypeArtPrint, domain.ProductTypeFramedCanvas:
		return true
	}
	return false
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) mapRepoError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func optionalString(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func ensureMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

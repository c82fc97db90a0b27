package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/pawtrait-studio/api/internal/domain"
	pfirestore "github.com/pawtrait-studio/api/internal/platform/firestore"
	"github.com/pawtrait-studio/api/internal/repositories"
)

const (
	ordersCollection        = "orders"
	orderSessionsCollection = "orderSessions"
)

// OrderRepository persists order records keyed by the checkout session identifier.
// A session index document is created in the same transaction as the order, so a
// concurrent insert for the same session surfaces as a conflict.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.Order]
	sessions *pfirestore.BaseRepository[orderSessionDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}

	encoder := func(ctx context.Context, value domain.Order) (any, error) {
		return encodeOrderDocument(value), nil
	}
	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.Order, error) {
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Order{}, err
		}
		doc.ID = snap.Ref.ID
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = snap.CreateTime
		}
		if doc.UpdatedAt.IsZero() {
			doc.UpdatedAt = snap.UpdateTime
		}
		return decodeOrderDocument(doc), nil
	}

	base := pfirestore.NewBaseRepository[domain.Order](provider, ordersCollection, encoder, decoder)
	sessions := pfirestore.NewBaseRepository[orderSessionDocument](provider, orderSessionsCollection, nil, nil)
	return &OrderRepository{provider: provider, base: base, sessions: sessions}, nil
}

// Insert creates the order and its session index in one transaction. A duplicate
// session identifier fails with a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	order.ID = strings.TrimSpace(order.ID)
	if order.ID == "" {
		return errors.New("order repository: id is required")
	}
	sessionID := strings.TrimSpace(order.SessionID)
	if sessionID == "" {
		return errors.New("order repository: session id is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.base.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		sessionRef, err := r.sessions.DocumentRef(ctx, sessionID)
		if err != nil {
			return err
		}

		if err := tx.Create(sessionRef, orderSessionDocument{
			OrderRef:  order.ID,
			CreatedAt: order.CreatedAt.UTC(),
		}); err != nil {
			return err
		}
		return tx.Create(orderRef, encodeOrderDocument(order))
	})
	if err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the order document state.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	order.ID = strings.TrimSpace(order.ID)
	if order.ID == "" {
		return errors.New("order repository: id is required")
	}

	docRef, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	payload := encodeOrderDocument(order)
	if _, err := docRef.Set(ctx, payload); err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

// FindByID loads an order by its identifier.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data, nil
}

// FindBySessionID resolves the order created for a checkout session.
func (r *OrderRepository) FindBySessionID(ctx context.Context, sessionID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Order{}, errors.New("order repository: session id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("sessionId", "==", sessionID).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.find_by_session", status.Error(codes.NotFound, "order not found"))
	}
	return docs[0].Data, nil
}

// FindByFulfillmentOrderID resolves the order tracked by a vendor order identifier.
func (r *OrderRepository) FindByFulfillmentOrderID(ctx context.Context, fulfillmentOrderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	fulfillmentOrderID = strings.TrimSpace(fulfillmentOrderID)
	if fulfillmentOrderID == "" {
		return domain.Order{}, errors.New("order repository: fulfillment order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("fulfillmentOrderId", "==", fulfillmentOrderID).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.find_by_fulfillment", status.Error(codes.NotFound, "order not found"))
	}
	return docs[0].Data, nil
}

// List returns orders matching the filter ordered by most recent creation.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statuses := make([]string, 0, len(filter.Status))
	for _, s := range filter.Status {
		statuses = append(statuses, string(s))
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if artworkID := strings.TrimSpace(filter.ArtworkID); artworkID != "" {
			q = q.Where("artworkRef", "==", artworkID)
		}
		if len(statuses) == 1 {
			q = q.Where("status", "==", statuses[0])
		} else if len(statuses) > 1 {
			q = q.Where("status", "in", statuses)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}

		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Order, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, doc.Data)
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func encodeOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		SessionID:          strings.TrimSpace(order.SessionID),
		PaymentIntentID:    strings.TrimSpace(order.PaymentIntentID),
		OrderNumber:        strings.TrimSpace(order.OrderNumber),
		ArtworkRef:         strings.TrimSpace(order.ArtworkRef),
		ProductType:        string(order.ProductType),
		ProductSize:        strings.TrimSpace(order.ProductSize),
		PriceCents:         order.PriceCents,
		Currency:           strings.ToLower(strings.TrimSpace(order.Currency)),
		CustomerEmail:      strings.TrimSpace(order.CustomerEmail),
		CustomerName:       strings.TrimSpace(order.CustomerName),
		Status:             string(order.Status),
		FulfillmentOrderID: strings.TrimSpace(order.FulfillmentOrderID),
		FulfillmentStatus:  strings.TrimSpace(order.FulfillmentStatus),
		TrackingNumber:     strings.TrimSpace(order.TrackingNumber),
		TrackingURL:        strings.TrimSpace(order.TrackingURL),
		Metadata:           cloneMetadataMap(order.Metadata),
		CreatedAt:          order.CreatedAt.UTC(),
		UpdatedAt:          order.UpdatedAt.UTC(),
		PaidAt:             cloneTimePtr(order.PaidAt),
		ShippedAt:          cloneTimePtr(order.ShippedAt),
		DeliveredAt:        cloneTimePtr(order.DeliveredAt),
	}
}

func decodeOrderDocument(doc orderDocument) domain.Order {
	return domain.Order{
		ID:                 doc.ID,
		SessionID:          doc.SessionID,
		PaymentIntentID:    doc.PaymentIntentID,
		OrderNumber:        doc.OrderNumber,
		ArtworkRef:         doc.ArtworkRef,
		ProductType:        domain.ProductType(doc.ProductType),
		ProductSize:        doc.ProductSize,
		PriceCents:         doc.PriceCents,
		Currency:           doc.Currency,
		CustomerEmail:      doc.CustomerEmail,
		CustomerName:       doc.CustomerName,
		Status:             domain.OrderStatus(doc.Status),
		FulfillmentOrderID: doc.FulfillmentOrderID,
		FulfillmentStatus:  doc.FulfillmentStatus,
		TrackingNumber:     doc.TrackingNumber,
		TrackingURL:        doc.TrackingURL,
		Metadata:           cloneMetadataMap(doc.Metadata),
		CreatedAt:          doc.CreatedAt.UTC(),
		UpdatedAt:          doc.UpdatedAt.UTC(),
		PaidAt:             cloneTimePtr(doc.PaidAt),
		ShippedAt:          cloneTimePtr(doc.ShippedAt),
		DeliveredAt:        cloneTimePtr(doc.DeliveredAt),
	}
}

type orderDocument struct {
	ID                 string         `firestore:"-"`
	SessionID          string         `firestore:"sessionId"`
	PaymentIntentID    string         `firestore:"paymentIntentId,omitempty"`
	OrderNumber        string         `firestore:"orderNumber"`
	ArtworkRef         string         `firestore:"artworkRef,omitempty"`
	ProductType        string         `firestore:"productType"`
	ProductSize        string         `firestore:"productSize,omitempty"`
	PriceCents         int64          `firestore:"priceCents"`
	Currency           string         `firestore:"currency"`
	CustomerEmail      string         `firestore:"customerEmail"`
	CustomerName       string         `firestore:"customerName,omitempty"`
	Status             string         `firestore:"status"`
	FulfillmentOrderID string         `firestore:"fulfillmentOrderId,omitempty"`
	FulfillmentStatus  string         `firestore:"fulfillmentStatus,omitempty"`
	TrackingNumber     string         `firestore:"trackingNumber,omitempty"`
	TrackingURL        string         `firestore:"trackingUrl,omitempty"`
	Metadata           map[string]any `firestore:"metadata,omitempty"`
	CreatedAt          time.Time      `firestore:"createdAt"`
	UpdatedAt          time.Time      `firestore:"updatedAt"`
	PaidAt             *time.Time     `firestore:"paidAt,omitempty"`
	ShippedAt          *time.Time     `firestore:"shippedAt,omitempty"`
	DeliveredAt        *time.Time     `firestore:"deliveredAt,omitempty"`
}

type orderSessionDocument struct {
	OrderRef  string    `firestore:"orderRef"`
	CreatedAt time.Time `firestore:"createdAt"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

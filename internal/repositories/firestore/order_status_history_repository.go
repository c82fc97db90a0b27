package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/pawtrait-studio/api/internal/domain"
	pfirestore "github.com/pawtrait-studio/api/internal/platform/firestore"
	"github.com/pawtrait-studio/api/internal/repositories"
)

const orderStatusHistoryCollection = "orderStatusHistory"

// OrderStatusHistoryRepository stores the append-only order status audit trail.
type OrderStatusHistoryRepository struct {
	base *pfirestore.BaseRepository[domain.OrderStatusHistoryEntry]
}

// NewOrderStatusHistoryRepository constructs a Firestore-backed history repository.
func NewOrderStatusHistoryRepository(provider *pfirestore.Provider) (*OrderStatusHistoryRepository, error) {
	if provider == nil {
		return nil, errors.New("order status history repository: firestore provider is required")
	}

	encoder := func(ctx context.Context, value domain.OrderStatusHistoryEntry) (any, error) {
		return encodeHistoryDocument(value), nil
	}
	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.OrderStatusHistoryEntry, error) {
		var doc orderStatusHistoryDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.OrderStatusHistoryEntry{}, err
		}
		doc.ID = snap.Ref.ID
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = snap.CreateTime
		}
		return decodeHistoryDocument(doc), nil
	}

	base := pfirestore.NewBaseRepository[domain.OrderStatusHistoryEntry](provider, orderStatusHistoryCollection, encoder, decoder)
	return &OrderStatusHistoryRepository{base: base}, nil
}

// Append stores one audit entry. Entries are never updated afterwards.
func (r *OrderStatusHistoryRepository) Append(ctx context.Context, entry domain.OrderStatusHistoryEntry) error {
	if r == nil || r.base == nil {
		return errors.New("order status history repository not initialised")
	}
	entry.ID = strings.TrimSpace(entry.ID)
	if entry.ID == "" {
		return errors.New("order status history repository: id is required")
	}
	if strings.TrimSpace(entry.OrderRef) == "" {
		return errors.New("order status history repository: order ref is required")
	}

	docRef, err := r.base.DocumentRef(ctx, entry.ID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeHistoryDocument(entry)); err != nil {
		return pfirestore.WrapError("order_status_history.append", err)
	}
	return nil
}

// List returns the audit entries for an order in chronological order.
func (r *OrderStatusHistoryRepository) List(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order status history repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("order status history repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderRef", "==", orderID).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	entries := make([]domain.OrderStatusHistoryEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, doc.Data)
	}
	return entries, nil
}

func encodeHistoryDocument(entry domain.OrderStatusHistoryEntry) orderStatusHistoryDocument {
	return orderStatusHistoryDocument{
		OrderRef:  strings.TrimSpace(entry.OrderRef),
		Status:    string(entry.Status),
		Notes:     strings.TrimSpace(entry.Notes),
		CreatedAt: entry.CreatedAt.UTC(),
	}
}

func decodeHistoryDocument(doc orderStatusHistoryDocument) domain.OrderStatusHistoryEntry {
	return domain.OrderStatusHistoryEntry{
		ID:        doc.ID,
		OrderRef:  doc.OrderRef,
		Status:    domain.OrderStatus(doc.Status),
		Notes:     doc.Notes,
		CreatedAt: doc.CreatedAt.UTC(),
	}
}

type orderStatusHistoryDocument struct {
	ID        string    `firestore:"-"`
	OrderRef  string    `firestore:"orderRef"`
	Status    string    `firestore:"status"`
	Notes     string    `firestore:"notes,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

var _ repositories.OrderStatusHistoryRepository = (*OrderStatusHistoryRepository)(nil)

package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/pawtrait-studio/api/internal/platform/firestore"
	"github.com/pawtrait-studio/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the repositories.Registry
// contract so the DI container can wire services against a single dependency.
type Registry struct {
	provider *pfirestore.Provider

	artworks *ArtworkRepository
	reviews  *ReviewRepository
	orders   *OrderRepository
	history  *OrderStatusHistoryRepository
	counters *CounterRepository
}

// NewRegistry constructs all repositories bound to the shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	artworks, err := NewArtworkRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: build artwork repository: %w", err)
	}
	reviews, err := NewReviewRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: build review repository: %w", err)
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: build order repository: %w", err)
	}
	history, err := NewOrderStatusHistoryRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: build order status history repository: %w", err)
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: build counter repository: %w", err)
	}

	return &Registry{
		provider: provider,
		artworks: artworks,
		reviews:  reviews,
		orders:   orders,
		history:  history,
		counters: counters,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Artworks returns the artwork repository.
func (r *Registry) Artworks() repositories.ArtworkRepository { return r.artworks }

// Reviews returns the review repository.
func (r *Registry) Reviews() repositories.ReviewRepository { return r.reviews }

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// OrderStatusHistory returns the order status audit repository.
func (r *Registry) OrderStatusHistory() repositories.OrderStatusHistoryRepository {
	return r.history
}

// Counters returns the sequence counter repository.
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

// RunInTx executes fn as a grouped unit. Cross-document guarantees the services
// rely on (duplicate session inserts, counter increments, edit quotas) are
// enforced inside the individual repository operations, so grouping here is a
// sequential best-effort boundary rather than a Firestore transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction callback is required")
	}
	return fn(ctx)
}

var _ repositories.Registry = (*Registry)(nil)

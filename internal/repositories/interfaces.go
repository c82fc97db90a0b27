package repositories

import (
	"context"
	"time"

	domain "github.com/pawtrait-studio/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Artworks() ArtworkRepository
	Reviews() ReviewRepository
	Orders() OrderRepository
	OrderStatusHistory() OrderStatusHistoryRepository
	Counters() CounterRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ArtworkRepository persists artwork records and supports merge-patch mutation of
// nested image fields so independent step writers do not clobber each other.
type ArtworkRepository interface {
	Insert(ctx context.Context, artwork domain.Artwork) error
	FindByID(ctx context.Context, artworkID string) (domain.Artwork, error)
	FindByAccessToken(ctx context.Context, token string) (domain.Artwork, error)
	// Patch applies only the fields set on the patch, leaving siblings untouched.
	Patch(ctx context.Context, artworkID string, patch ArtworkPatch) (domain.Artwork, error)
	// IncrementEditRequests bumps the bounded edit counter atomically and returns the
	// new count. Implementations must refuse the increment once max is reached.
	IncrementEditRequests(ctx context.Context, artworkID string, max int, now time.Time) (int, error)
}

// ArtworkPatch carries the optional fields of a partial artwork update. Nil fields
// are left untouched in storage.
type ArtworkPatch struct {
	PetMomPhoto    *string
	PetPhoto       *string
	MonaLisaBase   *string
	ArtworkPreview *string
	ArtworkFullRes *string
	AppendStep     *domain.GenerationStepRecord
	GenerationStep *domain.GenerationStep
	UpscaleStatus  *domain.UpscaleStatus
	UpscaledAt     *time.Time
	FailureDetail  *string
	UpdatedAt      time.Time
}

// ReviewRepository stores review records and their resolution metadata.
type ReviewRepository interface {
	Insert(ctx context.Context, review domain.Review) (domain.Review, error)
	FindByID(ctx context.Context, reviewID string) (domain.Review, error)
	// FindPendingByArtworkAndType locates the open review of a given type for an
	// artwork, returning a not-found repository error when none is pending.
	FindPendingByArtworkAndType(ctx context.Context, artworkID string, reviewType domain.ReviewType) (domain.Review, error)
	List(ctx context.Context, filter ReviewListFilter) (domain.CursorPage[domain.Review], error)
	UpdateStatus(ctx context.Context, reviewID string, status domain.ReviewStatus, update ReviewResolutionUpdate) (domain.Review, error)
	// ReplaceImage swaps the review's working image, used by manual overrides.
	ReplaceImage(ctx context.Context, reviewID string, imageURL string, updatedAt time.Time) (domain.Review, error)
	AppendRegeneration(ctx context.Context, reviewID string, record domain.RegenerationRecord) (domain.Review, error)
}

// ReviewResolutionUpdate carries the operator metadata for a status transition.
type ReviewResolutionUpdate struct {
	ReviewedBy string
	ReviewedAt time.Time
	Notes      string
}

// ReviewListFilter controls admin review listings.
type ReviewListFilter struct {
	ArtworkID  string
	Status     []domain.ReviewStatus
	Types      []domain.ReviewType
	Pagination domain.Pagination
}

// OrderRepository persists order records. The payment session identifier is the
// natural key: Insert must fail with a conflict when an order for the same
// session already exists, making the existence-check-then-insert race safe.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindBySessionID(ctx context.Context, sessionID string) (domain.Order, error)
	FindByFulfillmentOrderID(ctx context.Context, fulfillmentOrderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderListFilter filters order listings for admin and reconciliation tooling.
type OrderListFilter struct {
	Status     []domain.OrderStatus
	ArtworkID  string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// OrderStatusHistoryRepository stores the append-only status audit trail.
type OrderStatusHistoryRepository interface {
	Append(ctx context.Context, entry domain.OrderStatusHistoryEntry) error
	List(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

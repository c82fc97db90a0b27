package services

import (
	"context"
	"time"

	domain "github.com/pawtrait-studio/api/internal/domain"
	"github.com/pawtrait-studio/api/internal/notifications"
	"github.com/pawtrait-studio/api/internal/repositories"
)

// ArtifactStore persists generated and uploaded images under durable URLs.
// Provider-hosted output URLs are not assumed long-lived, so every pipeline
// step copies its result into the store before recording it.
type ArtifactStore interface {
	PutBytes(ctx context.Context, object string, contentType string, payload []byte) (string, error)
	PutFromURL(ctx context.Context, sourceURL string, object string) (string, error)
	// CopyFromURL stages an already-stored artifact under a new object path
	// without re-downloading it when the source lives in the store's bucket.
	CopyFromURL(ctx context.Context, sourceURL string, object string) (string, error)
}

// Notifier sends the templated customer and operator emails. Delivery is best
// effort: services log failures and never roll back state because of them.
type Notifier interface {
	MasterpieceCreating(ctx context.Context, data notifications.CreatingData) error
	ArtworkCompleted(ctx context.Context, data notifications.CompletedData) error
	OrderConfirmation(ctx context.Context, data notifications.OrderConfirmationData) error
	OrderShipped(ctx context.Context, data notifications.ShippedData) error
	AdminReviewAlert(ctx context.Context, data notifications.AdminReviewData) error
}

// Upload carries one customer- or operator-provided file.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ArtworkEvent captures metadata for emitted artwork domain events.
type ArtworkEvent struct {
	Type       string
	ArtworkID  string
	ReviewID   string
	OccurredAt time.Time
	Metadata   map[string]any
}

// ArtworkEventPublisher publishes artwork domain events for downstream consumers.
type ArtworkEventPublisher interface {
	PublishArtworkEvent(ctx context.Context, event ArtworkEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// SubmitArtworkCommand carries the customer photo submission.
type SubmitArtworkCommand struct {
	CustomerName  string
	CustomerEmail string
	PetName       string
	PetMomPhoto   Upload
	PetPhoto      Upload
	Metadata      map[string]any
}

// RegenerateCommand re-runs the compositing step (and optionally the style
// transfer base) for a pending review with an operator-supplied prompt tweak.
type RegenerateCommand struct {
	ReviewID       string
	PromptTweak    string
	RegenerateBase bool
	RequestedBy    string
}

// ArtworkService orchestrates the multi-step generation pipeline and the
// artwork record's state machine.
type ArtworkService interface {
	Submit(ctx context.Context, cmd SubmitArtworkCommand) (domain.Artwork, error)
	GetArtwork(ctx context.Context, artworkID string) (domain.Artwork, error)
	GetByAccessToken(ctx context.Context, token string) (domain.Artwork, error)
	// RunStyleTransfer executes step 1 and advances pending -> monalisa_generation.
	RunStyleTransfer(ctx context.Context, artworkID string) (domain.Artwork, error)
	// RunSubjectCompositing executes step 2 and advances to completed, handing the
	// result to the review gate or notifying the customer directly.
	RunSubjectCompositing(ctx context.Context, artworkID string) (domain.Artwork, error)
	// ProcessSubmission drives both steps in order for one artwork.
	ProcessSubmission(ctx context.Context, artworkID string) (domain.Artwork, error)
	Regenerate(ctx context.Context, cmd RegenerateCommand) (domain.Review, error)
	// RequestUpscale is idempotent by check: a completed upscale returns the cached
	// result without another provider invocation.
	RequestUpscale(ctx context.Context, artworkID string) (domain.Artwork, error)
}

// OpenReviewCommand creates a pending review for an artwork.
type OpenReviewCommand struct {
	ArtworkID string
	Type      domain.ReviewType
	ImageURL  string
}

// ResolveReviewCommand carries the operator decision on a pending review.
type ResolveReviewCommand struct {
	ReviewID string
	Reviewer string
	Notes    string
}

// ManualOverrideCommand replaces the reviewed image with an operator upload
// and auto-approves the review.
type ManualOverrideCommand struct {
	ReviewID    string
	Reviewer    string
	Notes       string
	Replacement Upload
}

// RequestEditCommand is the customer-facing edit request.
type RequestEditCommand struct {
	ArtworkID string
	Text      string
}

// ReviewService is the human-review gate between generation and the customer.
type ReviewService interface {
	OpenReview(ctx context.Context, cmd OpenReviewCommand) (domain.Review, error)
	GetReview(ctx context.Context, reviewID string) (domain.Review, error)
	ListReviews(ctx context.Context, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error)
	Approve(ctx context.Context, cmd ResolveReviewCommand) (domain.Review, error)
	Reject(ctx context.Context, cmd ResolveReviewCommand) (domain.Review, error)
	ManualOverride(ctx context.Context, cmd ManualOverrideCommand) (domain.Review, error)
	RequestEdit(ctx context.Context, cmd RequestEditCommand) (domain.Review, error)
}

// CreateOrderFromPaymentCommand builds a local order from a paid checkout
// session. SessionID is the idempotency anchor.
type CreateOrderFromPaymentCommand struct {
	SessionID       string
	PaymentIntentID string
	ArtworkID       string
	ProductType     domain.ProductType
	ProductSize     string
	PriceCents      int64
	Currency        string
	CustomerEmail   string
	CustomerName    string
	Metadata        map[string]any
}

// UpdateFromFulfillmentCommand applies a fulfillment webhook transition. The
// caller maps the provider's status vocabulary to the local enum first.
type UpdateFromFulfillmentCommand struct {
	ProviderOrderID   string
	Status            domain.OrderStatus
	FulfillmentStatus string
	TrackingNumber    string
	TrackingURL       string
}

// OrderService is the authoritative order ledger.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetBySessionID(ctx context.Context, sessionID string) (domain.Order, error)
	ListOrders(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	// CreateFromPayment is idempotent under webhook redelivery: an existing order
	// for the session is returned unchanged.
	CreateFromPayment(ctx context.Context, cmd CreateOrderFromPaymentCommand) (domain.Order, error)
	UpdateFromFulfillment(ctx context.Context, cmd UpdateFromFulfillmentCommand) (domain.Order, error)
	// StartFulfillment submits the approved full-resolution artwork to the print
	// vendor and moves the order to processing.
	StartFulfillment(ctx context.Context, orderID string, artworkURL string) (domain.Order, error)
	StatusHistory(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error)
}

// ReconcileStatus tags the outcome of one session during a reconciliation run.
type ReconcileStatus string

const (
	// ReconcileExists means a local order already covered the session.
	ReconcileExists ReconcileStatus = "exists"
	// ReconcileNotPaid means the provider reports the session as unpaid.
	ReconcileNotPaid ReconcileStatus = "not_paid"
	// ReconcileNoMetadata means the session lacks the metadata needed to build an order.
	ReconcileNoMetadata ReconcileStatus = "no_metadata"
	// ReconcileReconciled means a missing order was created from provider data.
	ReconcileReconciled ReconcileStatus = "reconciled"
	// ReconcileError means the session could not be processed.
	ReconcileError ReconcileStatus = "error"
)

// ReconciliationResult reports what happened for one candidate session.
// Every branch is tagged so a run never silently does nothing.
type ReconciliationResult struct {
	SessionID string
	Status    ReconcileStatus
	OrderID   string
	Detail    string
}

// ReconcileCommand selects candidate sessions either explicitly or by window.
type ReconcileCommand struct {
	SessionIDs   []string
	CreatedAfter time.Time
	Limit        int
}

// ReconciliationService heals missing local orders from the payment provider's
// source of truth.
type ReconciliationService interface {
	ReconcileSessions(ctx context.Context, cmd ReconcileCommand) ([]ReconciliationResult, error)
}

package domain

import (
	"slices"
	"time"
)

// Pagination carries cursor-based pagination parameters for list queries.
type Pagination struct {
	PageSize  int
	PageToken string
}

// RangeQuery captures inclusive bounds for range filters.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage wraps a page of results plus the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// GenerationStep tracks where an artwork sits in the generation pipeline.
type GenerationStep string

const (
	// GenerationStepPending marks an artwork awaiting its first pipeline step.
	GenerationStepPending GenerationStep = "pending"
	// GenerationStepMonaLisa marks the portrait style transfer as completed.
	GenerationStepMonaLisa GenerationStep = "monalisa_generation"
	// GenerationStepPetIntegration marks the pet compositing step as in flight.
	GenerationStepPetIntegration GenerationStep = "pet_integration"
	// GenerationStepCompleted marks a finished artwork with a customer preview.
	GenerationStepCompleted GenerationStep = "completed"
	// GenerationStepFailed marks a terminally failed pipeline requiring operator action.
	GenerationStepFailed GenerationStep = "failed"
)

var generationStepTransitions = map[GenerationStep][]GenerationStep{
	GenerationStepPending:        {GenerationStepMonaLisa, GenerationStepFailed},
	GenerationStepMonaLisa:       {GenerationStepPetIntegration, GenerationStepFailed},
	GenerationStepPetIntegration: {GenerationStepCompleted, GenerationStepFailed},
}

// CanAdvanceGenerationStep reports whether the pipeline may move from current to target.
// Steps only ever move forward; completed and failed are terminal.
func CanAdvanceGenerationStep(current, target GenerationStep) bool {
	if current == target {
		return true
	}
	next, ok := generationStepTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

// UpscaleStatus is the independent sub-state of the high-resolution upscale pass.
type UpscaleStatus string

const (
	// UpscaleStatusNone means no upscale has been requested.
	UpscaleStatusNone UpscaleStatus = "none"
	// UpscaleStatusProcessing means an upscale invocation is in flight.
	UpscaleStatusProcessing UpscaleStatus = "processing"
	// UpscaleStatusCompleted means a full-resolution image is available.
	UpscaleStatusCompleted UpscaleStatus = "completed"
	// UpscaleStatusFailed means the last upscale attempt failed.
	UpscaleStatusFailed UpscaleStatus = "failed"
)

// SourceImages holds the customer-supplied inputs for an artwork.
type SourceImages struct {
	PetMomPhoto string
	PetPhoto    string
}

// GenerationStepRecord is one entry in the ordered log of pipeline outputs.
type GenerationStepRecord struct {
	Timestamp time.Time
	Step      GenerationStep
	ImageURL  string
}

// GeneratedImages collects the artifact URLs produced by the pipeline.
type GeneratedImages struct {
	MonaLisaBase   string
	ArtworkPreview string
	ArtworkFullRes string
	Steps          []GenerationStepRecord
}

// Artwork is a customer's in-progress or completed portrait project.
type Artwork struct {
	ID               string
	AccessToken      string
	TokenExpiresAt   time.Time
	CustomerName     string
	CustomerEmail    string
	SourceImages     SourceImages
	GeneratedImages  GeneratedImages
	GenerationStep   GenerationStep
	UpscaleStatus    UpscaleStatus
	UpscaledAt       *time.Time
	EditRequestCount int
	FailureDetail    string
	Metadata         map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TokenExpired reports whether the access token can no longer be used for retrieval.
func (a Artwork) TokenExpired(now time.Time) bool {
	if a.TokenExpiresAt.IsZero() {
		return false
	}
	return now.After(a.TokenExpiresAt)
}

// ReviewType distinguishes what an operator is being asked to look at.
type ReviewType string

const (
	// ReviewTypeArtworkProof gates the customer preview after generation.
	ReviewTypeArtworkProof ReviewType = "artwork_proof"
	// ReviewTypeHighresFile gates the full-resolution file before fulfillment.
	ReviewTypeHighresFile ReviewType = "highres_file"
	// ReviewTypeEditRequest is a customer-initiated change request.
	ReviewTypeEditRequest ReviewType = "edit_request"
)

// ValidReviewType reports whether t is one of the known review types.
func ValidReviewType(t ReviewType) bool {
	switch t {
	case ReviewTypeArtworkProof, ReviewTypeHighresFile, ReviewTypeEditRequest:
		return true
	}
	return false
}

// ReviewStatus is the moderation state of a review, terminal once resolved.
type ReviewStatus string

const (
	// ReviewStatusPending awaits an operator decision.
	ReviewStatusPending ReviewStatus = "pending"
	// ReviewStatusApproved releases the gated artifact to the customer.
	ReviewStatusApproved ReviewStatus = "approved"
	// ReviewStatusRejected blocks the artifact; follow-up is operator-driven.
	ReviewStatusRejected ReviewStatus = "rejected"
)

// RegenerationRecord is one append-only entry in a review's regeneration history.
type RegenerationRecord struct {
	Timestamp       time.Time
	ImageURL        string
	MonaLisaBaseURL string
	PromptTweak     string
	RegeneratedBase bool
}

// Review gates customer-visible completion behind human approval.
type Review struct {
	ID                  string
	ArtworkRef          string
	Type                ReviewType
	Status              ReviewStatus
	ImageURL            string
	CustomerName        string
	CustomerEmail       string
	SourceImages        *SourceImages
	EditRequestText     string
	RegenerationHistory []RegenerationRecord
	ReviewedBy          *string
	ReviewedAt          *time.Time
	Notes               string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// OrderStatus enumerates the local order lifecycle.
type OrderStatus string

const (
	// OrderStatusPending is a created but not yet paid order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid means payment has been confirmed.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusProcessing means fulfillment has accepted the order.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusPendingReview means the order awaits manual approval before fulfillment.
	OrderStatusPendingReview OrderStatus = "pending_review"
	// OrderStatusShipped means the fulfillment vendor dispatched the package.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered means the carrier confirmed delivery.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is a terminal cancellation.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded is a terminal refund.
	OrderStatusRefunded OrderStatus = "refunded"
)

// ValidOrderStatus reports whether s is one of the known order statuses.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusProcessing, OrderStatusPendingReview,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// ProductType enumerates the purchasable artwork formats.
type ProductType string

const (
	// ProductTypeDigital is a download-only purchase.
	ProductTypeDigital ProductType = "digital"
	// ProductTypeArtPrint is a physical paper print.
	ProductTypeArtPrint ProductType = "art_print"
	// ProductTypeFramedCanvas is a stretched and framed canvas print.
	ProductTypeFramedCanvas ProductType = "framed_canvas"
)

// Order is the authoritative local record of a paid transaction,
// keyed by the payment provider's checkout session identifier.
type Order struct {
	ID                 string
	SessionID          string
	PaymentIntentID    string
	OrderNumber        string
	ArtworkRef         string
	ProductType        ProductType
	ProductSize        string
	PriceCents         int64
	Currency           string
	CustomerEmail      string
	CustomerName       string
	Status             OrderStatus
	FulfillmentOrderID string
	FulfillmentStatus  string
	TrackingNumber     string
	TrackingURL        string
	Metadata           map[string]any
	CreatedAt          time.Time
	UpdatedAt          time.Time
	PaidAt             *time.Time
	ShippedAt          *time.Time
	DeliveredAt        *time.Time
}

// OrderStatusHistoryEntry is one append-only audit row per status transition.
type OrderStatusHistoryEntry struct {
	ID        string
	OrderRef  string
	Status    OrderStatus
	Notes     string
	CreatedAt time.Time
}

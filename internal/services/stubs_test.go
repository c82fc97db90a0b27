package services

import (
	"context"
	"fmt"
	"time"

	domain "github.com/pawtrait-studio/api/internal/domain"
	"github.com/pawtrait-studio/api/internal/fulfillment"
	"github.com/pawtrait-studio/api/internal/generation"
	"github.com/pawtrait-studio/api/internal/notifications"
	"github.com/pawtrait-studio/api/internal/payments"
	"github.com/pawtrait-studio/api/internal/repositories"
)

// repoError is a categorised repository failure for exercising error mapping.
type repoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoError) Error() string       { return e.msg }
func (e repoError) IsNotFound() bool    { return e.notFound }
func (e repoError) IsConflict() bool    { return e.conflict }
func (e repoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(msg string) error { return repoError{msg: msg, notFound: true} }
func conflictErr(msg string) error { return repoError{msg: msg, conflict: true} }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%03d", prefix, n)
	}
}

// applyArtworkPatch mirrors the repository's merge-patch semantics for stubs.
func applyArtworkPatch(artwork *domain.Artwork, patch repositories.ArtworkPatch) {
	if patch.PetMomPhoto != nil {
		artwork.SourceImages.PetMomPhoto = *patch.PetMomPhoto
	}
	if patch.PetPhoto != nil {
		artwork.SourceImages.PetPhoto = *patch.PetPhoto
	}
	if patch.MonaLisaBase != nil {
		artwork.GeneratedImages.MonaLisaBase = *patch.MonaLisaBase
	}
	if patch.ArtworkPreview != nil {
		artwork.GeneratedImages.ArtworkPreview = *patch.ArtworkPreview
	}
	if patch.ArtworkFullRes != nil {
		artwork.GeneratedImages.ArtworkFullRes = *patch.ArtworkFullRes
	}
	if patch.AppendStep != nil {
		artwork.GeneratedImages.Steps = append(artwork.GeneratedImages.Steps, *patch.AppendStep)
	}
	if patch.GenerationStep != nil {
		artwork.GenerationStep = *patch.GenerationStep
	}
	if patch.UpscaleStatus != nil {
		artwork.UpscaleStatus = *patch.UpscaleStatus
	}
	if patch.UpscaledAt != nil {
		artwork.UpscaledAt = patch.UpscaledAt
	}
	if patch.FailureDetail != nil {
		artwork.FailureDetail = *patch.FailureDetail
	}
	if !patch.UpdatedAt.IsZero() {
		artwork.UpdatedAt = patch.UpdatedAt
	}
}

type stubArtworkRepo struct {
	insertFunc    func(ctx context.Context, artwork domain.Artwork) error
	findByIDFunc  func(ctx context.Context, artworkID string) (domain.Artwork, error)
	findByTokFunc func(ctx context.Context, token string) (domain.Artwork, error)
	patchFunc     func(ctx context.Context, artworkID string, patch repositories.ArtworkPatch) (domain.Artwork, error)
	incrementFunc func(ctx context.Context, artworkID string, max int, now time.Time) (int, error)

	inserted []domain.Artwork
	patches  []repositories.ArtworkPatch
}

func (s *stubArtworkRepo) Insert(ctx context.Context, artwork domain.Artwork) error {
	s.inserted = append(s.inserted, artwork)
	if s.insertFunc != nil {
		return s.insertFunc(ctx, artwork)
	}
	return nil
}

func (s *stubArtworkRepo) FindByID(ctx context.Context, artworkID string) (domain.Artwork, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, artworkID)
	}
	return domain.Artwork{}, notFoundErr("artwork " + artworkID)
}

func (s *stubArtworkRepo) FindByAccessToken(ctx context.Context, token string) (domain.Artwork, error) {
	if s.findByTokFunc != nil {
		return s.findByTokFunc(ctx, token)
	}
	return domain.Artwork{}, notFoundErr("token " + token)
}

func (s *stubArtworkRepo) Patch(ctx context.Context, artworkID string, patch repositories.ArtworkPatch) (domain.Artwork, error) {
	s.patches = append(s.patches, patch)
	if s.patchFunc != nil {
		return s.patchFunc(ctx, artworkID, patch)
	}
	return domain.Artwork{ID: artworkID}, nil
}

func (s *stubArtworkRepo) IncrementEditRequests(ctx context.Context, artworkID string, max int, now time.Time) (int, error) {
	if s.incrementFunc != nil {
		return s.incrementFunc(ctx, artworkID, max, now)
	}
	return 1, nil
}

type stubReviewRepo struct {
	insertFunc       func(ctx context.Context, review domain.Review) (domain.Review, error)
	findByIDFunc     func(ctx context.Context, reviewID string) (domain.Review, error)
	findPendingFunc  func(ctx context.Context, artworkID string, reviewType domain.ReviewType) (domain.Review, error)
	listFunc         func(ctx context.Context, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error)
	updateStatusFunc func(ctx context.Context, reviewID string, status domain.ReviewStatus, update repositories.ReviewResolutionUpdate) (domain.Review, error)
	replaceImageFunc func(ctx context.Context, reviewID string, imageURL string, updatedAt time.Time) (domain.Review, error)
	appendRegenFunc  func(ctx context.Context, reviewID string, record domain.RegenerationRecord) (domain.Review, error)

	inserted      []domain.Review
	regenerations []domain.RegenerationRecord
	replacedWith  []string
}

func (s *stubReviewRepo) Insert(ctx context.Context, review domain.Review) (domain.Review, error) {
	s.inserted = append(s.inserted, review)
	if s.insertFunc != nil {
		return s.insertFunc(ctx, review)
	}
	return review, nil
}

func (s *stubReviewRepo) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, reviewID)
	}
	return domain.Review{}, notFoundErr("review " + reviewID)
}

func (s *stubReviewRepo) FindPendingByArtworkAndType(ctx context.Context, artworkID string, reviewType domain.ReviewType) (domain.Review, error) {
	if s.findPendingFunc != nil {
		return s.findPendingFunc(ctx, artworkID, reviewType)
	}
	return domain.Review{}, notFoundErr("pending review for " + artworkID)
}

func (s *stubReviewRepo) List(ctx context.Context, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[domain.Review]{}, nil
}

func (s *stubReviewRepo) UpdateStatus(ctx context.Context, reviewID string, status domain.ReviewStatus, update repositories.ReviewResolutionUpdate) (domain.Review, error) {
	if s.updateStatusFunc != nil {
		return s.updateStatusFunc(ctx, reviewID, status, update)
	}
	return domain.Review{ID: reviewID, Status: status}, nil
}

func (s *stubReviewRepo) ReplaceImage(ctx context.Context, reviewID string, imageURL string, updatedAt time.Time) (domain.Review, error) {
	s.replacedWith = append(s.replacedWith, imageURL)
	if s.replaceImageFunc != nil {
		return s.replaceImageFunc(ctx, reviewID, imageURL, updatedAt)
	}
	return domain.Review{ID: reviewID, ImageURL: imageURL}, nil
}

func (s *stubReviewRepo) AppendRegeneration(ctx context.Context, reviewID string, record domain.RegenerationRecord) (domain.Review, error) {
	s.regenerations = append(s.regenerations, record)
	if s.appendRegenFunc != nil {
		return s.appendRegenFunc(ctx, reviewID, record)
	}
	return domain.Review{ID: reviewID}, nil
}

type stubOrderRepo struct {
	insertFunc          func(ctx context.Context, order domain.Order) error
	updateFunc          func(ctx context.Context, order domain.Order) error
	findByIDFunc        func(ctx context.Context, orderID string) (domain.Order, error)
	findBySessionFunc   func(ctx context.Context, sessionID string) (domain.Order, error)
	findByProviderFunc  func(ctx context.Context, fulfillmentOrderID string) (domain.Order, error)
	listFunc            func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	sessionLookupCounts int

	inserted []domain.Order
	updated  []domain.Order
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	s.inserted = append(s.inserted, order)
	if s.insertFunc != nil {
		return s.insertFunc(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	s.updated = append(s.updated, order)
	if s.updateFunc != nil {
		return s.updateFunc(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, orderID)
	}
	return domain.Order{}, notFoundErr("order " + orderID)
}

func (s *stubOrderRepo) FindBySessionID(ctx context.Context, sessionID string) (domain.Order, error) {
	s.sessionLookupCounts++
	if s.findBySessionFunc != nil {
		return s.findBySessionFunc(ctx, sessionID)
	}
	return domain.Order{}, notFoundErr("session " + sessionID)
}

func (s *stubOrderRepo) FindByFulfillmentOrderID(ctx context.Context, fulfillmentOrderID string) (domain.Order, error) {
	if s.findByProviderFunc != nil {
		return s.findByProviderFunc(ctx, fulfillmentOrderID)
	}
	return domain.Order{}, notFoundErr("fulfillment order " + fulfillmentOrderID)
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

type stubHistoryRepo struct {
	appendFunc func(ctx context.Context, entry domain.OrderStatusHistoryEntry) error
	listFunc   func(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error)

	entries []domain.OrderStatusHistoryEntry
}

func (s *stubHistoryRepo) Append(ctx context.Context, entry domain.OrderStatusHistoryEntry) error {
	s.entries = append(s.entries, entry)
	if s.appendFunc != nil {
		return s.appendFunc(ctx, entry)
	}
	return nil
}

func (s *stubHistoryRepo) List(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, orderID)
	}
	return s.entries, nil
}

type stubCounterRepo struct {
	nextFunc func(ctx context.Context, counterID string, step int64) (int64, error)
	calls    int
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	s.calls++
	if s.nextFunc != nil {
		return s.nextFunc(ctx, counterID, step)
	}
	return int64(s.calls), nil
}

func (s *stubCounterRepo) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	return nil
}

type stubGenerationProvider struct {
	styleFunc   func(ctx context.Context, input generation.StyleTransferInput) (generation.Result, error)
	composeFunc func(ctx context.Context, input generation.CompositeInput) (generation.Result, error)
	upscaleFunc func(ctx context.Context, input generation.UpscaleInput) (generation.Result, error)

	styleCalls   int
	composeCalls int
	upscaleCalls int
}

func (s *stubGenerationProvider) StyleTransfer(ctx context.Context, input generation.StyleTransferInput) (generation.Result, error) {
	s.styleCalls++
	if s.styleFunc != nil {
		return s.styleFunc(ctx, input)
	}
	return generation.Result{ImageURL: "https://queue.example/style.png"}, nil
}

func (s *stubGenerationProvider) ComposePet(ctx context.Context, input generation.CompositeInput) (generation.Result, error) {
	s.composeCalls++
	if s.composeFunc != nil {
		return s.composeFunc(ctx, input)
	}
	return generation.Result{ImageURL: "https://queue.example/composite.png"}, nil
}

func (s *stubGenerationProvider) Upscale(ctx context.Context, input generation.UpscaleInput) (generation.Result, error) {
	s.upscaleCalls++
	if s.upscaleFunc != nil {
		return s.upscaleFunc(ctx, input)
	}
	return generation.Result{ImageURL: "https://queue.example/upscale.png"}, nil
}

type stubArtifactStore struct {
	putBytesFunc    func(ctx context.Context, object, contentType string, payload []byte) (string, error)
	putFromURLFunc  func(ctx context.Context, sourceURL, object string) (string, error)
	copyFromURLFunc func(ctx context.Context, sourceURL, object string) (string, error)

	storedObjects []string
	copiedFrom    []string
	fetched       []string
	serverCopies  []string
}

func (s *stubArtifactStore) PutBytes(ctx context.Context, object string, contentType string, payload []byte) (string, error) {
	s.storedObjects = append(s.storedObjects, object)
	if s.putBytesFunc != nil {
		return s.putBytesFunc(ctx, object, contentType, payload)
	}
	return "https://cdn.example/" + object, nil
}

func (s *stubArtifactStore) PutFromURL(ctx context.Context, sourceURL string, object string) (string, error) {
	s.storedObjects = append(s.storedObjects, object)
	s.copiedFrom = append(s.copiedFrom, sourceURL)
	s.fetched = append(s.fetched, sourceURL)
	if s.putFromURLFunc != nil {
		return s.putFromURLFunc(ctx, sourceURL, object)
	}
	return "https://cdn.example/" + object, nil
}

func (s *stubArtifactStore) CopyFromURL(ctx context.Context, sourceURL string, object string) (string, error) {
	s.storedObjects = append(s.storedObjects, object)
	s.copiedFrom = append(s.copiedFrom, sourceURL)
	s.serverCopies = append(s.serverCopies, sourceURL)
	if s.copyFromURLFunc != nil {
		return s.copyFromURLFunc(ctx, sourceURL, object)
	}
	return "https://cdn.example/" + object, nil
}

type stubNotifier struct {
	failWith error

	creating      []notifications.CreatingData
	completed     []notifications.CompletedData
	confirmations []notifications.OrderConfirmationData
	shipped       []notifications.ShippedData
	adminAlerts   []notifications.AdminReviewData
}

func (s *stubNotifier) MasterpieceCreating(ctx context.Context, data notifications.CreatingData) error {
	s.creating = append(s.creating, data)
	return s.failWith
}

func (s *stubNotifier) ArtworkCompleted(ctx context.Context, data notifications.CompletedData) error {
	s.completed = append(s.completed, data)
	return s.failWith
}

func (s *stubNotifier) OrderConfirmation(ctx context.Context, data notifications.OrderConfirmationData) error {
	s.confirmations = append(s.confirmations, data)
	return s.failWith
}

func (s *stubNotifier) OrderShipped(ctx context.Context, data notifications.ShippedData) error {
	s.shipped = append(s.shipped, data)
	return s.failWith
}

func (s *stubNotifier) AdminReviewAlert(ctx context.Context, data notifications.AdminReviewData) error {
	s.adminAlerts = append(s.adminAlerts, data)
	return s.failWith
}

type stubArtworkEvents struct {
	events []ArtworkEvent
}

func (s *stubArtworkEvents) PublishArtworkEvent(ctx context.Context, event ArtworkEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubOrderEvents struct {
	events []OrderEvent
}

func (s *stubOrderEvents) PublishOrderEvent(ctx context.Context, event OrderEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubReviewGate struct {
	openFunc func(ctx context.Context, cmd OpenReviewCommand) (domain.Review, error)
	opened   []OpenReviewCommand
}

func (s *stubReviewGate) OpenReview(ctx context.Context, cmd OpenReviewCommand) (domain.Review, error) {
	s.opened = append(s.opened, cmd)
	if s.openFunc != nil {
		return s.openFunc(ctx, cmd)
	}
	return domain.Review{ID: "rev_stub", ArtworkRef: cmd.ArtworkID, Type: cmd.Type, Status: domain.ReviewStatusPending}, nil
}

type stubFulfillmentStarter struct {
	startFunc func(ctx context.Context, orderID string, artworkURL string) (domain.Order, error)
	started   []string
	urls      []string
}

func (s *stubFulfillmentStarter) StartFulfillment(ctx context.Context, orderID string, artworkURL string) (domain.Order, error) {
	s.started = append(s.started, orderID)
	s.urls = append(s.urls, artworkURL)
	if s.startFunc != nil {
		return s.startFunc(ctx, orderID, artworkURL)
	}
	return domain.Order{ID: orderID, Status: domain.OrderStatusProcessing}, nil
}

type stubBridge struct {
	createFunc func(ctx context.Context, req fulfillment.OrderRequest) (fulfillment.ProviderOrder, error)
	requests   []fulfillment.OrderRequest
}

func (s *stubBridge) CreateOrder(ctx context.Context, req fulfillment.OrderRequest) (fulfillment.ProviderOrder, error) {
	s.requests = append(s.requests, req)
	if s.createFunc != nil {
		return s.createFunc(ctx, req)
	}
	return fulfillment.ProviderOrder{ID: "pfy_123", Status: "pending"}, nil
}

type stubPaymentsProvider struct {
	retrieveFunc func(ctx context.Context, sessionID string) (payments.CheckoutSessionDetails, error)
	listFunc     func(ctx context.Context, query payments.SessionListQuery) ([]payments.CheckoutSessionDetails, error)

	listQueries []payments.SessionListQuery
}

func (s *stubPaymentsProvider) RetrieveSession(ctx context.Context, sessionID string) (payments.CheckoutSessionDetails, error) {
	if s.retrieveFunc != nil {
		return s.retrieveFunc(ctx, sessionID)
	}
	return payments.CheckoutSessionDetails{}, payments.ErrSessionNotFound
}

func (s *stubPaymentsProvider) ListSessions(ctx context.Context, query payments.SessionListQuery) ([]payments.CheckoutSessionDetails, error) {
	s.listQueries = append(s.listQueries, query)
	if s.listFunc != nil {
		return s.listFunc(ctx, query)
	}
	return nil, nil
}

func (s *stubPaymentsProvider) ParseWebhookEvent(payload []byte, signature string) (payments.WebhookEvent, error) {
	return payments.WebhookEvent{}, payments.ErrInvalidWebhookSignature
}

type stubOrderCreator struct {
	createFunc func(ctx context.Context, cmd CreateOrderFromPaymentCommand) (domain.Order, error)
	commands   []CreateOrderFromPaymentCommand
}

func (s *stubOrderCreator) CreateFromPayment(ctx context.Context, cmd CreateOrderFromPaymentCommand) (domain.Order, error) {
	s.commands = append(s.commands, cmd)
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return domain.Order{ID: "ord_stub", SessionID: cmd.SessionID, Status: domain.OrderStatusPaid}, nil
}

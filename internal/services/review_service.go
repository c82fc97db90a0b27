package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/pawtrait-studio/api/internal/domain"
	"github.com/pawtrait-studio/api/internal/notifications"
	"github.com/pawtrait-studio/api/internal/platform/storage"
	"github.com/pawtrait-studio/api/internal/repositories"
)

const (
	reviewEventOpened        = "review.opened"
	reviewEventApproved      = "review.approved"
	reviewEventRejected      = "review.rejected"
	reviewEventEditRequested = "review.edit_requested"

	reviewIDPrefix          = "rev_"
	defaultEditRequestLimit = 2
)

var (
	// ErrReviewInvalidInput signals the caller provided invalid data.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewNotFound indicates the review could not be located.
	ErrReviewNotFound = errors.New("review: not found")
	// ErrReviewInvalidState indicates the review is not in a state allowing the operation.
	ErrReviewInvalidState = errors.New("review: invalid state")
	// ErrReviewConflict indicates a pending review of the same type already exists.
	ErrReviewConflict = errors.New("review: conflict")
	// ErrEditQuotaExceeded indicates the artwork's edit request allowance is used up.
	ErrEditQuotaExceeded = errors.New("review: edit request quota exceeded")
)

// FulfillmentStarter is the slice of the order ledger the gate calls once a
// high-resolution file clears review.
type FulfillmentStarter interface {
	StartFulfillment(ctx context.Context, orderID string, artworkURL string) (domain.Order, error)
}

// ReviewServiceDeps bundles collaborators required to construct the review service.
type ReviewServiceDeps struct {
	Reviews          repositories.ReviewRepository
	Artworks         repositories.ArtworkRepository
	Orders           repositories.OrderRepository
	Artifacts        ArtifactStore
	Fulfillment      FulfillmentStarter
	Notifier         Notifier
	Events           ArtworkEventPublisher
	EditRequestLimit int
	PublicBaseURL    string
	Clock            func() time.Time
	IDGenerator      func() string
	Logger           func(ctx context.Context, event string, fields map[string]any)
}

type reviewService struct {
	reviews       repositories.ReviewRepository
	artworks      repositories.ArtworkRepository
	orders        repositories.OrderRepository
	artifacts     ArtifactStore
	fulfillment   FulfillmentStarter
	notifier      Notifier
	events        ArtworkEventPublisher
	editLimit     int
	publicBaseURL string
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Artworks == nil {
		return nil, errors.New("review service: artwork repository is required")
	}

	editLimit := deps.EditRequestLimit
	if editLimit <= 0 {
		editLimit = defaultEditRequestLimit
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

	return &reviewService{
		reviews:       deps.Reviews,
		artworks:      deps.Artworks,
		orders:        deps.Orders,
		artifacts:     deps.Artifacts,
		fulfillment:   deps.Fulfillment,
		notifier:      deps.Notifier,
		events:        deps.Events,
		editLimit:     editLimit,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(deps.PublicBaseURL), "/"),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *reviewService) OpenReview(ctx context.Context, cmd OpenReviewCommand) (domain.Review, error) {
	artworkID := strings.TrimSpace(cmd.ArtworkID)
	if artworkID == "" {
		return domain.Review{}, fmt.Errorf("%w: artwork id is required", ErrReviewInvalidInput)
	}
	if !domain.ValidReviewType(cmd.Type) {
		return domain.Review{}, fmt.Errorf("%w: unknown review type %q", ErrReviewInvalidInput, cmd.Type)
	}
	if strings.TrimSpace(cmd.ImageURL) == "" {
		return domain.Review{}, fmt.Errorf("%w: image url is required", ErrReviewInvalidInput)
	}

	// One open review per artwork and type. A second request for the same gate
	// is a conflict, not a new review.
	existing, err := s.reviews.FindPendingByArtworkAndType(ctx, artworkID, cmd.Type)
	switch {
	case err == nil:
		return domain.Review{}, fmt.Errorf("%w: pending %s review %s already open for artwork %s", ErrReviewConflict, cmd.Type, existing.ID, artworkID)
	case !isRepoNotFound(err):
		return domain.Review{}, s.mapRepoError(err)
	}

	artwork, err := s.artworks.FindByID(ctx, artworkID)
	if err != nil {
		return domain.Review{}, s.mapArtworkRepoError(err)
	}

	now := s.clock()
	sources := artwork.SourceImages
	review := domain.Review{
		ID:            reviewIDPrefix + s.newID(),
		ArtworkRef:    artwork.ID,
		Type:          cmd.Type,
		Status:        domain.ReviewStatusPending,
		ImageURL:      strings.TrimSpace(cmd.ImageURL),
		CustomerName:  artwork.CustomerName,
		CustomerEmail: artwork.CustomerEmail,
		SourceImages:  &sources,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := s.reviews.Insert(ctx, review)
	if err != nil {
		return domain.Review{}, s.mapRepoError(err)
	}

	s.publishEvent(ctx, ArtworkEvent{
		Type:       reviewEventOpened,
		ArtworkID:  artwork.ID,
		ReviewID:   created.ID,
		OccurredAt: now,
		Metadata:   map[string]any{"reviewType": string(cmd.Type)},
	})

	s.alertOperators(ctx, created, artwork)

	return created, nil
}

func (s *reviewService) GetReview(ctx context.Context, reviewID string) (domain.Review, error) {
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return domain.Review{}, fmt.Errorf("%w: review id is required", ErrReviewInvalidInput)
	}
	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return domain.Review{}, s.mapRepoError(err)
	}
	return review, nil
}

func (s *reviewService) ListReviews(ctx context.Context, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error) {
	for _, reviewType := range filter.Types {
		if !domain.ValidReviewType(reviewType) {
			return domain.CursorPage[domain.Review]{}, fmt.Errorf("%w: unknown review type %q", ErrReviewInvalidInput, reviewType)
		}
	}

	page, err := s.reviews.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[domain.Review]{}, s.mapRepoError(err)
	}
	return page, nil
}

func (s *reviewService) Approve(ctx context.Context, cmd ResolveReviewCommand) (domain.Review, error) {
	review, err := s.pendingReview(ctx, cmd.ReviewID)
	if err != nil {
		return domain.Review{}, err
	}
	reviewer := strings.TrimSpace(cmd.Reviewer)
	if reviewer == "" {
		return domain.Review{}, fmt.Errorf("%w: reviewer is required", ErrReviewInvalidInput)
	}

	now := s.clock()
	approved, err := s.reviews.UpdateStatus(ctx, review.ID, domain.ReviewStatusApproved, repositories.ReviewResolutionUpdate{
		ReviewedBy: reviewer,
		ReviewedAt: now,
		Notes:      strings.TrimSpace(cmd.Notes),
	})
	if err != nil {
		return domain.Review{}, s.mapRepoError(err)
	}

	s.publishEvent(ctx, ArtworkEvent{
		Type:       reviewEventApproved,
		ArtworkID:  approved.ArtworkRef,
		ReviewID:   approved.ID,
		OccurredAt: now,
		Metadata:   map[string]any{"reviewType": string(approved.Type)},
	})

	s.applyApproval(ctx, approved)

	return approved, nil
}

func (s *reviewService) Reject(ctx context.Context, cmd ResolveReviewCommand) (domain.Review, error) {
	review, err := s.pendingReview(ctx, cmd.ReviewID)
	if err != nil {
		return domain.Review{}, err
	}
	reviewer := strings.TrimSpace(cmd.Reviewer)
	if reviewer == "" {
		return domain.Review{}, fmt.Errorf("%w: reviewer is required", ErrReviewInvalidInput)
	}

	now := s.clock()
	rejected, err := s.reviews.UpdateStatus(ctx, review.ID, domain.ReviewStatusRejected, repositories.ReviewResolutionUpdate{
		ReviewedBy: reviewer,
		ReviewedAt: now,
		Notes:      strings.TrimSpace(cmd.Notes),
	})
	if err != nil {
		return domain.Review{}, s.mapRepoError(err)
	}

	s.publishEvent(ctx, ArtworkEvent{
		Type:       reviewEventRejected,
		ArtworkID:  rejected.ArtworkRef,
		ReviewID:   rejected.ID,
		OccurredAt: now,
		Metadata:   map[string]any{"reviewType": string(rejected.Type)},
	})

	return rejected, nil
}

func (s *reviewService) ManualOverride(ctx context.Context, cmd ManualOverrideCommand) (domain.Review, error) {
	if s.artifacts == nil {
		return domain.Review{}, errors.New("review service: artifact store is required for manual overrides")
	}
	review, err := s.pendingReview(ctx, cmd.ReviewID)
	if err != nil {
		return domain.Review{}, err
	}
	reviewer := strings.TrimSpace(cmd.Reviewer)
	if reviewer == "" {
		return domain.Review{}, fmt.Errorf("%w: reviewer is required", ErrReviewInvalidInput)
	}
	if len(cmd.Replacement.Data) == 0 {
		return domain.Review{}, fmt.Errorf("%w: replacement image is required", ErrReviewInvalidInput)
	}

	fileName := strings.TrimSpace(cmd.Replacement.FileName)
	if fileName == "" {
		fileName = "override-" + strings.ToLower(s.newID()) + ".png"
	}
	object, err := storage.BuildObjectPath(storage.PurposeGenerationStep, storage.PathParams{
		ArtworkID: review.ArtworkRef,
		StepID:    "manual-override",
		FileName:  fileName,
	})
	if err != nil {
		return domain.Review{}, fmt.Errorf("%w: %v", ErrReviewInvalidInput, err)
	}
	contentType := cmd.Replacement.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	replacementURL, err := s.artifacts.PutBytes(ctx, object, contentType, cmd.Replacement.Data)
	if err != nil {
		return domain.Review{}, fmt.Errorf("review: store replacement image: %w", err)
	}

	now := s.clock()
	if _, err := s.reviews.ReplaceImage(ctx, review.ID, replacementURL, now); err != nil {
		return domain.Review{}, s.mapRepoError(err)
	}

	approved, err := s.reviews.UpdateStatus(ctx, review.ID, domain.ReviewStatusApproved, repositories.ReviewResolutionUpdate{
		ReviewedBy: reviewer,
		ReviewedAt: now,
		Notes:      strings.TrimSpace(cmd.Notes),
	})
	if err != nil {
		return domain.Review{}, s.mapRepoError(err)
	}

	s.publishEvent(ctx, ArtworkEvent{
		Type:       reviewEventApproved,
		ArtworkID:  approved.ArtworkRef,
		ReviewID:   approved.ID,
		OccurredAt: now,
		Metadata: map[string]any{
			"reviewType":     string(approved.Type),
			"manualOverride": true,
		},
	})

	s.applyApproval(ctx, approved)

	return approved, nil
}

func (s *reviewService) RequestEdit(ctx context.Context, cmd RequestEditCommand) (domain.Review, error) {
	artworkID := strings.TrimSpace(cmd.ArtworkID)
	if artworkID == "" {
		return domain.Review{}, fmt.Errorf("%w: artwork id is required", ErrReviewInvalidInput)
	}
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return domain.Review{}, fmt.Errorf("%w: edit request text is required", ErrReviewInvalidInput)
	}

	artwork, err := s.artworks.FindByID(ctx, artworkID)
	if err != nil {
		return domain.Review{}, s.mapArtworkRepoError(err)
	}
	if artwork.GenerationStep != domain.GenerationStepCompleted || artwork.GeneratedImages.ArtworkPreview == "" {
		return domain.Review{}, fmt.Errorf("%w: edits can only be requested for a completed artwork", ErrReviewInvalidState)
	}

	existing, err := s.reviews.FindPendingByArtworkAndType(ctx, artworkID, domain.ReviewTypeEditRequest)
	switch {
	case err == nil:
		return domain.Review{}, fmt.Errorf("%w: edit request %s is already pending for artwork %s", ErrReviewConflict, existing.ID, artworkID)
	case !isRepoNotFound(err):
		return domain.Review{}, s.mapRepoError(err)
	}

	now := s.clock()
	if _, err := s.artworks.IncrementEditRequests(ctx, artworkID, s.editLimit, now); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return domain.Review{}, fmt.Errorf("%w: artwork %s already used its %d edit requests", ErrEditQuotaExceeded, artworkID, s.editLimit)
		}
		return domain.Review{}, s.mapArtworkRepoError(err)
	}

	sources := artwork.SourceImages
	review := domain.Review{
		ID:              reviewIDPrefix + s.newID(),
		ArtworkRef:      artwork.ID,
		Type:            domain.ReviewTypeEditRequest,
		Status:          domain.ReviewStatusPending,
		ImageURL:        artwork.GeneratedImages.ArtworkPreview,
		CustomerName:    artwork.CustomerName,
		CustomerEmail:   artwork.CustomerEmail,
		SourceImages:    &sources,
		EditRequestText: text,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := s.reviews.Insert(ctx, review)
	if err != nil {
		return domain.Review{}, s.mapRepoError(err)
	}

	s.publishEvent(ctx, ArtworkEvent{
		Type:       reviewEventEditRequested,
		ArtworkID:  artwork.ID,
		ReviewID:   created.ID,
		OccurredAt: now,
	})

	s.alertOperators(ctx, created, artwork)

	return created, nil
}

// applyApproval performs the per-type side effects of an approved review. The
// review itself is already resolved; failures here are logged, not rolled back.
func (s *reviewService) applyApproval(ctx context.Context, review domain.Review) {
	switch review.Type {
	case domain.ReviewTypeArtworkProof, domain.ReviewTypeEditRequest:
		s.releasePreview(ctx, review)
	case domain.ReviewTypeHighresFile:
		s.startFulfillment(ctx, review)
	}
}

// releasePreview promotes the approved image to the artwork's canonical preview
// and tells the customer their portrait is ready.
func (s *reviewService) releasePreview(ctx context.Context, review domain.Review) {
	now := s.clock()
	preview := review.ImageURL
	artwork, err := s.artworks.Patch(ctx, review.ArtworkRef, repositories.ArtworkPatch{
		ArtworkPreview: &preview,
		UpdatedAt:      now,
	})
	if err != nil {
		s.logger(ctx, "review.release.patch.failed", map[string]any{
			"review":  review.ID,
			"artwork": review.ArtworkRef,
			"error":   err.Error(),
		})
		return
	}

	if s.notifier == nil {
		return
	}
	if err := s.notifier.ArtworkCompleted(ctx, notifications.CompletedData{
		CustomerName:  artwork.CustomerName,
		CustomerEmail: artwork.CustomerEmail,
		PetName:       metadataString(artwork.Metadata, "petName"),
		ArtworkURL:    s.artworkURL(artwork),
		ImageURL:      artwork.GeneratedImages.ArtworkPreview,
	}); err != nil {
		s.logger(ctx, "review.notify.completed.failed", map[string]any{
			"review":  review.ID,
			"artwork": artwork.ID,
			"error":   err.Error(),
		})
	}
}

// startFulfillment hands every order waiting on this artwork's high-res file to
// the fulfillment bridge.
func (s *reviewService) startFulfillment(ctx context.Context, review domain.Review) {
	if s.fulfillment == nil || s.orders == nil {
		s.logger(ctx, "review.fulfillment.skipped", map[string]any{
			"review": review.ID,
			"reason": "fulfillment not configured",
		})
		return
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		ArtworkID: review.ArtworkRef,
		Status:    []domain.OrderStatus{domain.OrderStatusPaid, domain.OrderStatusPendingReview},
	})
	if err != nil {
		s.logger(ctx, "review.fulfillment.list.failed", map[string]any{
			"review":  review.ID,
			"artwork": review.ArtworkRef,
			"error":   err.Error(),
		})
		return
	}

	for _, order := range page.Items {
		if _, err := s.fulfillment.StartFulfillment(ctx, order.ID, review.ImageURL); err != nil {
			s.logger(ctx, "review.fulfillment.start.failed", map[string]any{
				"review": review.ID,
				"order":  order.ID,
				"error":  err.Error(),
			})
		}
	}
}

func (s *reviewService) alertOperators(ctx context.Context, review domain.Review, artwork domain.Artwork) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.AdminReviewAlert(ctx, notifications.AdminReviewData{
		ReviewID:        review.ID,
		ReviewType:      string(review.Type),
		CustomerName:    artwork.CustomerName,
		CustomerEmail:   artwork.CustomerEmail,
		PetName:         metadataString(artwork.Metadata, "petName"),
		ImageURL:        review.ImageURL,
		EditRequestText: review.EditRequestText,
	}); err != nil {
		s.logger(ctx, "review.notify.admin.failed", map[string]any{
			"review": review.ID,
			"error":  err.Error(),
		})
	}
}

func (s *reviewService) pendingReview(ctx context.Context, reviewID string) (domain.Review, error) {
	review, err := s.GetReview(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	if review.Status != domain.ReviewStatusPending {
		return domain.Review{}, fmt.Errorf("%w: review %s is already %s", ErrReviewInvalidState, review.ID, review.Status)
	}
	return review, nil
}

func (s *reviewService) artworkURL(artwork domain.Artwork) string {
	if s.publicBaseURL == "" {
		return ""
	}
	return s.publicBaseURL + "/artwork/" + artwork.AccessToken
}

func (s *reviewService) publishEvent(ctx context.Context, event ArtworkEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishArtworkEvent(ctx, event); err != nil {
		s.logger(ctx, "review.event.publish.failed", map[string]any{
			"type":   event.Type,
			"review": event.ReviewID,
			"error":  err.Error(),
		})
	}
}

func (s *reviewService) mapRepoError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrReviewNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrReviewConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("review: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *reviewService) mapArtworkRepoError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrArtworkNotFound, err)
	}

	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

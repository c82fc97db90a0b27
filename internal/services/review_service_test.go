package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/pawtrait-studio/api/internal/domain"
	"github.com/pawtrait-studio/api/internal/repositories"
)

func pendingReviewFixture(reviewType domain.ReviewType) domain.Review {
	return domain.Review{
		ID:            "rev_01H",
		ArtworkRef:    "art_01H",
		Type:          reviewType,
		Status:        domain.ReviewStatusPending,
		ImageURL:      "https://cdn.example/candidate.png",
		CustomerName:  "Jamie Doe",
		CustomerEmail: "jamie@example.com",
	}
}

func TestOpenReviewCreatesPendingAndAlertsAdmin(t *testing.T) {
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	artwork := newArtworkFixture(now)
	artworks := statefulArtworkRepo(&artwork)
	reviews := &stubReviewRepo{}
	notifier := &stubNotifier{}
	events := &stubArtworkEvents{}

	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews:     reviews,
		Artworks:    artworks,
		Notifier:    notifier,
		Events:      events,
		Clock:       fixedClock(now),
		IDGenerator: sequentialIDs("ID"),
	})
	if err != nil {
		t.Fatalf("NewReviewService: %v", err)
	}

	review, err := svc.OpenReview(context.Background(), OpenReviewCommand{
		ArtworkID: artwork.ID,
		Type:      domain.ReviewTypeArtworkProof,
		ImageURL:  "https://cdn.example/preview.png",
	})
	if err != nil {
		t.Fatalf("OpenReview returned error: %v", err)
	}

	if !strings.HasPrefix(review.ID, "rev_") {
		t.Errorf("unexpected review id %q", review.ID)
	}
	if review.Status != domain.ReviewStatusPending {
		t.Errorf("expected pending review, got %s", review.Status)
	}
	if review.CustomerEmail != artwork.CustomerEmail {
		t.Errorf("expected customer snapshot, got %q", review.CustomerEmail)
	}
	if review.SourceImages == nil || review.SourceImages.PetPhoto != artwork.SourceImages.PetPhoto {
		t.Error("expected source image snapshot on review")
	}
	if len(notifier.adminAlerts) != 1 {
		t.Fatalf("expected admin alert, got %d", len(notifier.adminAlerts))
	}
	if notifier.adminAlerts[0].ReviewType != string(domain.ReviewTypeArtworkProof) {
		t.Errorf("unexpected alert type %q", notifier.adminAlerts[0].ReviewType)
	}
	if len(events.events) != 1 || events.events[0].Type != reviewEventOpened {
		t.Fatalf("expected opened event, got %#v", events.events)
	}
}

func TestOpenReviewRejectsDuplicatePending(t *testing.T) {
	reviews := &stubReviewRepo{
		findPendingFunc: func(ctx context.Context, artworkID string, reviewType domain.ReviewType) (domain.Review, error) {
			return pendingReviewFixture(reviewType), nil
		},
	}

	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews:  reviews,
		Artworks: &stubArtworkRepo{},
	})
	if err != nil {
		t.Fatalf("NewReviewService: %v", err)
	}

	_, err = svc.OpenReview(context.Background(), OpenReviewCommand{
		ArtworkID: "art_01H",
		Type:      domain.ReviewTypeArtworkProof,
		ImageURL:  "https://cdn.example/preview.png",
	})
	if !errors.Is(err, ErrReviewConflict) {
		t.Fatalf("expected ErrReviewConflict, got %v", err)
	}
	if len(reviews.inserted) != 0 {
		t.Errorf("no review must be inserted, got %d", len(reviews.inserted))
	}
}

func TestApproveArtworkProofReleasesPreview(t *testing.T) {
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	artwork := newArtworkFixture(now)
	artwork.GenerationStep = domain.GenerationStepCompleted
	artworks := statefulArtworkRepo(&artwork)
	notifier := &stubNotifier{}

	review := pendingReviewFixture(domain.ReviewTypeArtworkProof)
	reviews := &stubReviewRepo{
		findByIDFunc: func(ctx context.Context, reviewID string) (domain.Review, error) {
			return review, nil
		},
		updateStatusFunc: func(ctx context.Context, reviewID string, status domain.ReviewStatus, update repositories.ReviewResolutionUpdate) (domain.Review, error) {
			resolved := review
			resolved.Status = status
			resolved.ReviewedBy = &update.ReviewedBy
			resolved.ReviewedAt = &update.ReviewedAt
			resolved.Notes = update.Notes
			return resolved, nil
		},
	}

	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews:       reviews,
		Artworks:      artworks,
		Notifier:      notifier,
		PublicBaseURL: "https://pawtrait.example",
		Clock:         fixedClock(now),
	})
	if err != nil {
		t.Fatalf("NewReviewService: %v", err)
	}

	approved, err := svc.Approve(context.Background(), ResolveReviewCommand{
		ReviewID: review.ID,
		Reviewer: "ops@pawtrait.example",
		Notes:    "looks great",
	})
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}

	if approved.Status != domain.ReviewStatusApproved {
		t.Errorf("expected approved review, got %s", approved.Status)
	}
	if approved.ReviewedBy == nil || *approved.ReviewedBy != "ops@pawtrait.example" {
		t.Error("expected reviewer to be recorded")
	}
	if artwork.GeneratedImages.ArtworkPreview != review.ImageURL {
		t.Errorf("expected preview promoted to %q, got %q", review.ImageURL, artwork.GeneratedImages.ArtworkPreview)
	}
	if len(notifier.completed) != 1 {
		t.Fatalf("expected completion notification, got %d", len(notifier.completed))
	}
}

func TestApproveHighresStartsFulfillment(t *testing.T) {
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	artwork := newArtworkFixture(now)
	artworks := statefulArtworkRepo(&artwork)
	starter := &stubFulfillmentStarter{}

	review := pendingReviewFixture(domain.ReviewTypeHighresFile)
	review.ImageURL = "https://cdn.example/fullres.png"
	reviews := &stubReviewRepo{
		findByIDFunc: func(ctx context.Context, reviewID string) (domain.Review, error) {
			return review, nil
		},
		updateStatusFunc: func(ctx context.Context, reviewID string, status domain.ReviewStatus, update repositories.ReviewResolutionUpdate) (domain.Review, error) {
			resolved := review
			resolved.Status = status
			return resolved, nil
		},
	}
	orders := &stubOrderRepo{
		listFunc: func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			if filter.ArtworkID != review.ArtworkRef {
				t.Errorf("unexpected artwork filter %q", filter.ArtworkID)
			}
			return domain.CursorPage[domain.Order]{Items: []domain.Order{
				{ID: "ord_01H", Status: domain.OrderStatusPaid},
			}}, nil
		},
	}

	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews:     reviews,
		Artworks:    artworks,
		Orders:      orders,
		Fulfillment: starter,
		Clock:       fixedClock(now),
	})
	if err != nil {
		t.Fatalf("NewReviewService: %v", err)
	}

	if _, err := svc.Approve(context.Background(), ResolveReviewCommand{ReviewID: review.ID, Reviewer: "ops"}); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}

	if len(starter.started) != 1 || starter.started[0] != "ord_01H" {
		t.Fatalf("expected fulfillment start for ord_01H, got %#v", starter.started)
	}
	if starter.urls[0] != "https://cdn.example/fullres.png" {
		t.Errorf("unexpected fulfillment artwork url %q", starter.urls[0])
	}
	if len(artworks.patches) != 0 {
		t.Errorf("high-res approval must not patch the artwork preview, got %d patches", len(artworks.patches))
	}
}

func TestApproveRejectsResolvedReview(t *testing.T) {
	review := pendingReviewFixture(domain.ReviewTypeArtworkProof)
	review.Status = domain.ReviewStatusApproved
	reviews := &stubReviewRepo{
		findByIDFunc: func(ctx context.Context, reviewID string) (domain.Review, error) {
			return review, nil
		},
	}

	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews:  reviews,
		Artworks: &stubArtworkRepo{},
	})
	if err != nil {
		t.Fatalf("NewReviewService: %v", err)
	}

	if _, err := svc.Approve(context.Background(), ResolveReviewCommand{ReviewID: review.ID, Reviewer: "ops"}); !errors.Is(err, ErrReviewInvalidState) {
		t.Fatalf("expected ErrReviewInvalidState, got %v", err)
	}
}

func TestRejectRequiresReviewer(t *testing.T) {
	review := pendingReviewFixture(domain.ReviewTypeArtworkProof)
	reviews := &stubReviewRepo{
		findByIDFunc: func(ctx context.Context, reviewID string) (domain.Review, error) {
			return review, nil
		},
	}

	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews:  reviews,
		Artworks: &stubArtworkRepo{},
	})
	if err != nil {
		t.Fatalf("NewReviewService: %v", err)
	}

	if _, err := svc.Reject(context.Background(), ResolveReviewCommand{ReviewID: review.ID}); !errors.Is(err, ErrReviewInvalidInput) {
		t.Fatalf("expected ErrReviewInvalidInput, got %v", err)
	}
}

func TestManualOverrideStoresReplacementAndApproves(t *testing.T) {
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	artwork := newArtworkFixture(now)
	artwork.GenerationStep = domain.GenerationStepCompleted
	artworks := statefulArtworkRepo(&artwork)
	artifacts := &stubArtifactStore{}

	review := pendingReviewFixture(domain.ReviewTypeEditRequest)
	replaced := ""
	reviews := &stubReviewRepo{
		findByIDFunc: func(ctx context.Context, reviewID string) (domain.Review, error) {
			return review, nil
		},
		replaceImageFunc: func(ctx context.Context, reviewID string, imageURL string, updatedAt time.Time) (domain.Review, error) {
			replaced = imageURL
			updated := review
			updated.ImageURL = imageURL
			return updated, nil
		},
		updateStatusFunc: func(ctx context.Context, reviewID string, status domain.ReviewStatus, update repositories.ReviewResolutionUpdate) (domain.Review, error) {
			resolved := review
			resolved.Status = status
			resolved.ImageURL = replaced
			return resolved, nil
		},
	}

	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews:     reviews,
		Artworks:    artworks,
		Artifacts:   artifacts,
		Clock:       fixedClock(now),
		IDGenerator: sequentialIDs("ID"),
	})
	if err != nil {
		t.Fatalf("NewReviewService: %v", err)
	}

	approved, err := svc.ManualOverride(context.Background(), ManualOverrideCommand{
		ReviewID: review.ID,
		Reviewer: "ops@pawtrait.example",
		Replacement: Upload{
			FileName:    "fixed.png",
			ContentType: "image/png",
			Data:        []byte("png-bytes"),
		},
	})
	if err != nil {
		t.Fatalf("ManualOverride returned error: %v", err)
	}

	if approved.Status != domain.ReviewStatusApproved {
		t.Errorf("expected approved review, got %s", approved.Status)
	}
	if len(artifacts.storedObjects) != 1 || !strings.Contains(artifacts.storedObjects[0], "manual-override") {
		t.Fatalf("expected replacement stored under manual-override, got %#v", artifacts.storedObjects)
	}
	if replaced == "" || !strings.HasPrefix(replaced, "https://cdn.example/") {
		t.Errorf("expected review image replaced with stored url, got %q", replaced)
	}
	// Edit request approval promotes the replacement to the customer preview.
	if artwork.GeneratedImages.ArtworkPreview != replaced {
		t.Errorf("expected preview %q, got %q", replaced, artwork.GeneratedImages.ArtworkPreview)
	}
}

func TestRequestEditCreatesReviewAndCountsQuota(t *testing.T) {
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	artwork := newArtworkFixture(now)
	artwork.GenerationStep = domain.GenerationStepCompleted
	artwork.GeneratedImages.ArtworkPreview = "https://cdn.example/preview.png"

	incrementedMax := 0
	artworks := statefulArtworkRepo(&artwork)
	artworks.incrementFunc = func(ctx context.Context, artworkID string, max int, incNow time.Time) (int, error) {
		incrementedMax = max
		return 1, nil
	}
	reviews := &stubReviewRepo{}
	notifier := &stubNotifier{}

	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews:     reviews,
		Artworks:    artworks,
		Notifier:    notifier,
		Clock:       fixedClock(now),
		IDGenerator: sequentialIDs("ID"),
	})
	if err != nil {
		t.Fatalf("NewReviewService: %v", err)
	}

	review, err := svc.RequestEdit(context.Background(), RequestEditCommand{
		ArtworkID: artwork.ID,
		Text:      "please make the collar red",
	})
	if err != nil {
		t.Fatalf("RequestEdit returned error: %v", err)
	}

	if review.Type != domain.ReviewTypeEditRequest {
		t.Errorf("expected edit_request review, got %s", review.Type)
	}
	if review.EditRequestText != "please make the collar red" {
		t.Errorf("unexpected edit text %q", review.EditRequestText)
	}
	if review.ImageURL != artwork.GeneratedImages.ArtworkPreview {
		t.Errorf("expected review image to be the current preview, got %q", review.ImageURL)
	}
	if incrementedMax != defaultEditRequestLimit {
		t.Errorf("expected quota limit %d, got %d", defaultEditRequestLimit, incrementedMax)
	}
	if len(notifier.adminAlerts) != 1 || notifier.adminAlerts[0].EditRequestText == "" {
		t.Fatalf("expected admin alert with edit text, got %#v", notifier.adminAlerts)
	}
}

func TestRequestEditEnforcesQuota(t *testing.T) {
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	artwork := newArtworkFixture(now)
	artwork.GenerationStep = domain.GenerationStepCompleted
	artwork.GeneratedImages.ArtworkPreview = "https://cdn.example/preview.png"
	artwork.EditRequestCount = 2

	artworks := statefulArtworkRepo(&artwork)
	artworks.incrementFunc = func(ctx context.Context, artworkID string, max int, incNow time.Time) (int, error) {
		return 0, conflictErr("edit request limit reached")
	}
	reviews := &stubReviewRepo{}

	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews:  reviews,
		Artworks: artworks,
		Clock:    fixedClock(now),
	})
	if err != nil {
		t.Fatalf("NewReviewService: %v", err)
	}

	_, err = svc.RequestEdit(context.Background(), RequestEditCommand{
		ArtworkID: artwork.ID,
		Text:      "one more change",
	})
	if !errors.Is(err, ErrEditQuotaExceeded) {
		t.Fatalf("expected ErrEditQuotaExceeded, got %v", err)
	}
	if len(reviews.inserted) != 0 {
		t.Errorf("no review must be created past the quota, got %d", len(reviews.inserted))
	}
}

func TestRequestEditRejectsDuplicatePending(t *testing.T) {
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	artwork := newArtworkFixture(now)
	artwork.GenerationStep = domain.GenerationStepCompleted
	artwork.GeneratedImages.ArtworkPreview = "https://cdn.example/preview.png"

	artworks := statefulArtworkRepo(&artwork)
	reviews := &stubReviewRepo{
		findPendingFunc: func(ctx context.Context, artworkID string, reviewType domain.ReviewType) (domain.Review, error) {
			return pendingReviewFixture(domain.ReviewTypeEditRequest), nil
		},
	}

	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews:  reviews,
		Artworks: artworks,
		Clock:    fixedClock(now),
	})
	if err != nil {
		t.Fatalf("NewReviewService: %v", err)
	}

	if _, err := svc.RequestEdit(context.Background(), RequestEditCommand{ArtworkID: artwork.ID, Text: "change"}); !errors.Is(err, ErrReviewConflict) {
		t.Fatalf("expected ErrReviewConflict, got %v", err)
	}
}

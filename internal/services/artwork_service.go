package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/pawtrait-studio/api/internal/domain"
	"github.com/pawtrait-studio/api/internal/generation"
	"github.com/pawtrait-studio/api/internal/notifications"
	"github.com/pawtrait-studio/api/internal/platform/storage"
	"github.com/pawtrait-studio/api/internal/repositories"
)

const (
	artworkEventSubmitted        = "artwork.submitted"
	artworkEventStepCompleted    = "artwork.step.completed"
	artworkEventCompleted        = "artwork.completed"
	artworkEventFailed           = "artwork.failed"
	artworkEventRegenerated      = "artwork.regenerated"
	artworkEventUpscaleCompleted = "artwork.upscale.completed"

	artworkIDPrefix    = "art_"
	accessTokenPrefix  = "tok_"
	defaultTokenTTL    = 30 * 24 * time.Hour
	defaultUpscaleMult = 3
)

var (
	// ErrArtworkInvalidInput signals the caller provided invalid data.
	ErrArtworkInvalidInput = errors.New("artwork: invalid input")
	// ErrArtworkNotFound indicates the artwork could not be located.
	ErrArtworkNotFound = errors.New("artwork: not found")
	// ErrArtworkInvalidState indicates a generation-step guard was violated.
	ErrArtworkInvalidState = errors.New("artwork: invalid state")
	// ErrArtworkTokenExpired indicates the access token is no longer usable.
	ErrArtworkTokenExpired = errors.New("artwork: access token expired")
	// ErrGenerationFailed wraps provider failures with their detail attached.
	ErrGenerationFailed = errors.New("artwork: generation provider failed")
)

// ReviewOpener is the slice of the review gate the orchestrator hands
// completed artwork to.
type ReviewOpener interface {
	OpenReview(ctx context.Context, cmd OpenReviewCommand) (domain.Review, error)
}

// ArtworkServiceDeps bundles collaborators required to construct the artwork service.
type ArtworkServiceDeps struct {
	Artworks      repositories.ArtworkRepository
	Reviews       repositories.ReviewRepository
	Provider      generation.Provider
	Artifacts     ArtifactStore
	ReviewGate    ReviewOpener
	Notifier      Notifier
	Events        ArtworkEventPublisher
	ReviewEnabled bool
	TokenTTL      time.Duration
	UpscaleFactor int
	PublicBaseURL string
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type artworkService struct {
	artworks      repositories.ArtworkRepository
	reviews       repositories.ReviewRepository
	provider      generation.Provider
	artifacts     ArtifactStore
	reviewGate    ReviewOpener
	notifier      Notifier
	events        ArtworkEventPublisher
	reviewEnabled bool
	tokenTTL      time.Duration
	upscaleFactor int
	publicBaseURL string
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewArtworkService wires dependencies into a concrete ArtworkService implementation.
func NewArtworkService(deps ArtworkServiceDeps) (ArtworkService, error) {
	if deps.Artworks == nil {
		return nil, errors.New("artwork service: artwork repository is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("artwork service: generation provider is required")
	}
	if deps.Artifacts == nil {
		return nil, errors.New("artwork service: artifact store is required")
	}
	if deps.ReviewEnabled && deps.ReviewGate == nil {
		return nil, errors.New("artwork service: review gate is required when review is enabled")
	}

	tokenTTL := deps.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}

	upscaleFactor := deps.UpscaleFactor
	if upscaleFactor <= 0 {
		upscaleFactor = defaultUpscaleMult
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

	return &artworkService{
		artworks:      deps.Artworks,
		reviews:       deps.Reviews,
		provider:      deps.Provider,
		artifacts:     deps.Artifacts,
		reviewGate:    deps.ReviewGate,
		notifier:      deps.Notifier,
		events:        deps.Events,
		reviewEnabled: deps.ReviewEnabled,
		tokenTTL:      tokenTTL,
		upscaleFactor: upscaleFactor,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(deps.PublicBaseURL), "/"),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *artworkService) Submit(ctx context.Context, cmd SubmitArtworkCommand) (domain.Artwork, error) {
	email := strings.TrimSpace(cmd.CustomerEmail)
	if email == "" {
		return domain.Artwork{}, fmt.Errorf("%w: customer email is required", ErrArtworkInvalidInput)
	}
	if len(cmd.PetMomPhoto.Data) == 0 {
		return domain.Artwork{}, fmt.Errorf("%w: pet mom photo is required", ErrArtworkInvalidInput)
	}
	if len(cmd.PetPhoto.Data) == 0 {
		return domain.Artwork{}, fmt.Errorf("%w: pet photo is required", ErrArtworkInvalidInput)
	}

	now := s.clock()
	artworkID := artworkIDPrefix + s.newID()
	token := accessTokenPrefix + strings.ToLower(s.newID())

	momURL, err := s.storeSourceUpload(ctx, artworkID, cmd.PetMomPhoto, "pet-mom.jpg")
	if err != nil {
		return domain.Artwork{}, err
	}
	petURL, err := s.storeSourceUpload(ctx, artworkID, cmd.PetPhoto, "pet.jpg")
	if err != nil {
		return domain.Artwork{}, err
	}

	metadata := ensureMap(cloneMap(cmd.Metadata))
	if petName := strings.TrimSpace(cmd.PetName); petName != "" {
		metadata["petName"] = petName
	}

	artwork := domain.Artwork{
		ID:             artworkID,
		AccessToken:    token,
		TokenExpiresAt: now.Add(s.tokenTTL),
		CustomerName:   strings.TrimSpace(cmd.CustomerName),
		CustomerEmail:  email,
		SourceImages: domain.SourceImages{
			PetMomPhoto: momURL,
			PetPhoto:    petURL,
		},
		GenerationStep: domain.GenerationStepPending,
		UpscaleStatus:  domain.UpscaleStatusNone,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.artworks.Insert(ctx, artwork); err != nil {
		return domain.Artwork{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, ArtworkEvent{
		Type:       artworkEventSubmitted,
		ArtworkID:  artworkID,
		OccurredAt: now,
	})

	if s.notifier != nil {
		if err := s.notifier.MasterpieceCreating(ctx, notifications.CreatingData{
			CustomerName:  artwork.CustomerName,
			CustomerEmail: artwork.CustomerEmail,
			PetName:       strings.TrimSpace(cmd.PetName),
			ArtworkURL:    s.artworkURL(artwork),
		}); err != nil {
			s.logger(ctx, "artwork.notify.creating.failed", map[string]any{
				"artwork": artworkID,
				"error":   err.Error(),
			})
		}
	}

	return artwork, nil
}

func (s *artworkService) GetArtwork(ctx context.Context, artworkID string) (domain.Artwork, error) {
	artworkID = strings.TrimSpace(artworkID)
	if artworkID == "" {
		return domain.Artwork{}, fmt.Errorf("%w: artwork id is required", ErrArtworkInvalidInput)
	}
	artwork, err := s.artworks.FindByID(ctx, artworkID)
	if err != nil {
		return domain.Artwork{}, s.mapRepositoryError(err)
	}
	return artwork, nil
}

func (s *artworkService) GetByAccessToken(ctx context.Context, token string) (domain.Artwork, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Artwork{}, fmt.Errorf("%w: access token is required", ErrArtworkInvalidInput)
	}
	artwork, err := s.artworks.FindByAccessToken(ctx, token)
	if err != nil {
		return domain.Artwork{}, s.mapRepositoryError(err)
	}
	if artwork.TokenExpired(s.clock()) {
		return domain.Artwork{}, fmt.Errorf("%w: token for artwork %s", ErrArtworkTokenExpired, artwork.ID)
	}
	return artwork, nil
}

func (s *artworkService) RunStyleTransfer(ctx context.Context, artworkID string) (domain.Artwork, error) {
	artwork, err := s.GetArtwork(ctx, artworkID)
	if err != nil {
		return domain.Artwork{}, err
	}
	if !domain.CanAdvanceGenerationStep(artwork.GenerationStep, domain.GenerationStepMonaLisa) {
		return domain.Artwork{}, fmt.Errorf("%w: style transfer cannot run from step %s", ErrArtworkInvalidState, artwork.GenerationStep)
	}
	if artwork.SourceImages.PetMomPhoto == "" {
		return domain.Artwork{}, fmt.Errorf("%w: artwork has no pet mom photo", ErrArtworkInvalidState)
	}

	result, err := s.provider.StyleTransfer(ctx, generation.StyleTransferInput{
		PortraitURL: artwork.SourceImages.PetMomPhoto,
	})
	if err != nil {
		return domain.Artwork{}, s.failArtwork(ctx, artwork.ID, "style transfer", err)
	}

	durable, err := s.storeStepOutput(ctx, artwork.ID, domain.GenerationStepMonaLisa, result.ImageURL)
	if err != nil {
		return domain.Artwork{}, err
	}

	// A late provider response must not be applied over newer state.
	current, err := s.GetArtwork(ctx, artwork.ID)
	if err != nil {
		return domain.Artwork{}, err
	}
	if !domain.CanAdvanceGenerationStep(current.GenerationStep, domain.GenerationStepMonaLisa) {
		return domain.Artwork{}, fmt.Errorf("%w: discarding stale style transfer result for step %s", ErrArtworkInvalidState, current.GenerationStep)
	}

	now := s.clock()
	step := domain.GenerationStepMonaLisa
	updated, err := s.artworks.Patch(ctx, artwork.ID, repositories.ArtworkPatch{
		MonaLisaBase:   &durable,
		GenerationStep: &step,
		AppendStep: &domain.GenerationStepRecord{
			Timestamp: now,
			Step:      domain.GenerationStepMonaLisa,
			ImageURL:  durable,
		},
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Artwork{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, ArtworkEvent{
		Type:       artworkEventStepCompleted,
		ArtworkID:  artwork.ID,
		OccurredAt: now,
		Metadata:   map[string]any{"step": string(domain.GenerationStepMonaLisa)},
	})

	return updated, nil
}

func (s *artworkService) RunSubjectCompositing(ctx context.Context, artworkID string) (domain.Artwork, error) {
	artwork, err := s.GetArtwork(ctx, artworkID)
	if err != nil {
		return domain.Artwork{}, err
	}
	if !domain.CanAdvanceGenerationStep(artwork.GenerationStep, domain.GenerationStepPetIntegration) {
		return domain.Artwork{}, fmt.Errorf("%w: compositing cannot run from step %s", ErrArtworkInvalidState, artwork.GenerationStep)
	}
	if artwork.GeneratedImages.MonaLisaBase == "" {
		return domain.Artwork{}, fmt.Errorf("%w: style transfer output is not available", ErrArtworkInvalidState)
	}
	if artwork.SourceImages.PetPhoto == "" {
		return domain.Artwork{}, fmt.Errorf("%w: artwork has no pet photo", ErrArtworkInvalidState)
	}

	now := s.clock()
	inFlight := domain.GenerationStepPetIntegration
	if _, err := s.artworks.Patch(ctx, artwork.ID, repositories.ArtworkPatch{
		GenerationStep: &inFlight,
		UpdatedAt:      now,
	}); err != nil {
		return domain.Artwork{}, s.mapRepositoryError(err)
	}

	result, err := s.provider.ComposePet(ctx, generation.CompositeInput{
		BasePortraitURL: artwork.GeneratedImages.MonaLisaBase,
		PetURL:          artwork.SourceImages.PetPhoto,
	})
	if err != nil {
		return domain.Artwork{}, s.failArtwork(ctx, artwork.ID, "pet compositing", err)
	}

	durable, err := s.storePreview(ctx, artwork.ID, result.ImageURL)
	if err != nil {
		return domain.Artwork{}, err
	}

	now = s.clock()
	completed := domain.GenerationStepCompleted
	updated, err := s.artworks.Patch(ctx, artwork.ID, repositories.ArtworkPatch{
		ArtworkPreview: &durable,
		GenerationStep: &completed,
		AppendStep: &domain.GenerationStepRecord{
			Timestamp: now,
			Step:      domain.GenerationStepPetIntegration,
			ImageURL:  durable,
		},
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Artwork{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, ArtworkEvent{
		Type:       artworkEventCompleted,
		ArtworkID:  artwork.ID,
		OccurredAt: now,
	})

	s.handleCompletion(ctx, updated)

	return updated, nil
}

func (s *artworkService) ProcessSubmission(ctx context.Context, artworkID string) (domain.Artwork, error) {
	if _, err := s.RunStyleTransfer(ctx, artworkID); err != nil {
		return domain.Artwork{}, err
	}
	return s.RunSubjectCompositing(ctx, artworkID)
}

func (s *artworkService) Regenerate(ctx context.Context, cmd RegenerateCommand) (domain.Review, error) {
	if s.reviews == nil {
		return domain.Review{}, errors.New("artwork service: review repository is required for regeneration")
	}
	reviewID := strings.TrimSpace(cmd.ReviewID)
	if reviewID == "" {
		return domain.Review{}, fmt.Errorf("%w: review id is required", ErrArtworkInvalidInput)
	}

	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return domain.Review{}, s.mapReviewRepositoryError(err)
	}
	if review.Status != domain.ReviewStatusPending {
		return domain.Review{}, fmt.Errorf("%w: review %s is already %s", ErrArtworkInvalidState, reviewID, review.Status)
	}
	if review.Type == domain.ReviewTypeHighresFile {
		return domain.Review{}, fmt.Errorf("%w: high-res reviews cannot be regenerated", ErrArtworkInvalidState)
	}

	artwork, err := s.GetArtwork(ctx, review.ArtworkRef)
	if err != nil {
		return domain.Review{}, err
	}
	if artwork.SourceImages.PetPhoto == "" {
		return domain.Review{}, fmt.Errorf("%w: artwork has no pet photo", ErrArtworkInvalidState)
	}

	tweak := strings.TrimSpace(cmd.PromptTweak)
	base := artwork.GeneratedImages.MonaLisaBase

	if cmd.RegenerateBase {
		baseResult, err := s.provider.StyleTransfer(ctx, generation.StyleTransferInput{
			PortraitURL: artwork.SourceImages.PetMomPhoto,
			PromptTweak: tweak,
		})
		if err != nil {
			return domain.Review{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		}
		base, err = s.storeStepObject(ctx, artwork.ID, domain.GenerationStepMonaLisa, baseResult.ImageURL, "base-"+strings.ToLower(s.newID())+".png")
		if err != nil {
			return domain.Review{}, err
		}
	}
	if base == "" {
		return domain.Review{}, fmt.Errorf("%w: style transfer output is not available", ErrArtworkInvalidState)
	}

	result, err := s.provider.ComposePet(ctx, generation.CompositeInput{
		BasePortraitURL: base,
		PetURL:          artwork.SourceImages.PetPhoto,
		PromptTweak:     tweak,
	})
	if err != nil {
		return domain.Review{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	// Candidate output lives in the step log area until the operator approves;
	// the artwork's canonical images stay untouched.
	candidate, err := s.storeStepObject(ctx, artwork.ID, domain.GenerationStepPetIntegration, result.ImageURL, "regen-"+strings.ToLower(s.newID())+".png")
	if err != nil {
		return domain.Review{}, err
	}

	now := s.clock()
	if _, err := s.reviews.AppendRegeneration(ctx, reviewID, domain.RegenerationRecord{
		Timestamp:       now,
		ImageURL:        candidate,
		MonaLisaBaseURL: base,
		PromptTweak:     tweak,
		RegeneratedBase: cmd.RegenerateBase,
	}); err != nil {
		return domain.Review{}, s.mapReviewRepositoryError(err)
	}

	updated, err := s.reviews.ReplaceImage(ctx, reviewID, candidate, now)
	if err != nil {
		return domain.Review{}, s.mapReviewRepositoryError(err)
	}

	s.publishEvent(ctx, ArtworkEvent{
		Type:       artworkEventRegenerated,
		ArtworkID:  artwork.ID,
		ReviewID:   reviewID,
		OccurredAt: now,
		Metadata: map[string]any{
			"promptTweak":     tweak,
			"regeneratedBase": cmd.RegenerateBase,
		},
	})

	return updated, nil
}

func (s *artworkService) RequestUpscale(ctx context.Context, artworkID string) (domain.Artwork, error) {
	artwork, err := s.GetArtwork(ctx, artworkID)
	if err != nil {
		return domain.Artwork{}, err
	}
	if artwork.GenerationStep != domain.GenerationStepCompleted {
		return domain.Artwork{}, fmt.Errorf("%w: upscale requires a completed artwork", ErrArtworkInvalidState)
	}
	if artwork.GeneratedImages.ArtworkPreview == "" {
		return domain.Artwork{}, fmt.Errorf("%w: artwork has no preview to upscale", ErrArtworkInvalidState)
	}

	// Idempotent by check: completed work is returned as-is, an in-flight pass
	// is not restarted. Duplicate concurrent requests may still race past the
	// guard; that is tolerated as at-least-once.
	switch artwork.UpscaleStatus {
	case domain.UpscaleStatusCompleted:
		if artwork.GeneratedImages.ArtworkFullRes != "" {
			return artwork, nil
		}
	case domain.UpscaleStatusProcessing:
		return artwork, nil
	}

	now := s.clock()
	processing := domain.UpscaleStatusProcessing
	if _, err := s.artworks.Patch(ctx, artwork.ID, repositories.ArtworkPatch{
		UpscaleStatus: &processing,
		UpdatedAt:     now,
	}); err != nil {
		return domain.Artwork{}, s.mapRepositoryError(err)
	}

	result, err := s.provider.Upscale(ctx, generation.UpscaleInput{
		ImageURL: artwork.GeneratedImages.ArtworkPreview,
		Factor:   s.upscaleFactor,
	})
	if err != nil {
		failed := domain.UpscaleStatusFailed
		detail := err.Error()
		if _, patchErr := s.artworks.Patch(ctx, artwork.ID, repositories.ArtworkPatch{
			UpscaleStatus: &failed,
			FailureDetail: &detail,
			UpdatedAt:     s.clock(),
		}); patchErr != nil {
			s.logger(ctx, "artwork.upscale.mark_failed.error", map[string]any{
				"artwork": artwork.ID,
				"error":   patchErr.Error(),
			})
		}
		return domain.Artwork{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	object, err := storage.BuildObjectPath(storage.PurposeFullRes, storage.PathParams{
		ArtworkID: artwork.ID,
		FileName:  "artwork-fullres.png",
	})
	if err != nil {
		return domain.Artwork{}, fmt.Errorf("artwork: build full-res path: %w", err)
	}
	durable, err := s.artifacts.PutFromURL(ctx, result.ImageURL, object)
	if err != nil {
		return domain.Artwork{}, fmt.Errorf("artwork: persist full-res output: %w", err)
	}

	now = s.clock()
	completed := domain.UpscaleStatusCompleted
	updated, err := s.artworks.Patch(ctx, artwork.ID, repositories.ArtworkPatch{
		ArtworkFullRes: &durable,
		UpscaleStatus:  &completed,
		UpscaledAt:     &now,
		UpdatedAt:      now,
	})
	if err != nil {
		return domain.Artwork{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, ArtworkEvent{
		Type:       artworkEventUpscaleCompleted,
		ArtworkID:  artwork.ID,
		OccurredAt: now,
	})

	if s.reviewEnabled && s.reviewGate != nil {
		if _, err := s.reviewGate.OpenReview(ctx, OpenReviewCommand{
			ArtworkID: artwork.ID,
			Type:      domain.ReviewTypeHighresFile,
			ImageURL:  durable,
		}); err != nil {
			s.logger(ctx, "artwork.review.open.failed", map[string]any{
				"artwork": artwork.ID,
				"type":    string(domain.ReviewTypeHighresFile),
				"error":   err.Error(),
			})
		}
	}

	return updated, nil
}

// handleCompletion passes control to the review gate when enabled, otherwise
// notifies the customer directly. Both paths are best effort relative to the
// already-persisted completion.
func (s *artworkService) handleCompletion(ctx context.Context, artwork domain.Artwork) {
	if s.reviewEnabled && s.reviewGate != nil {
		if _, err := s.reviewGate.OpenReview(ctx, OpenReviewCommand{
			ArtworkID: artwork.ID,
			Type:      domain.ReviewTypeArtworkProof,
			ImageURL:  artwork.GeneratedImages.ArtworkPreview,
		}); err != nil {
			s.logger(ctx, "artwork.review.open.failed", map[string]any{
				"artwork": artwork.ID,
				"type":    string(domain.ReviewTypeArtworkProof),
				"error":   err.Error(),
			})
		}
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
		s.logger(ctx, "artwork.notify.completed.failed", map[string]any{
			"artwork": artwork.ID,
			"error":   err.Error(),
		})
	}
}

// failArtwork marks the artwork terminally failed with the provider detail and
// returns the wrapped provider error.
func (s *artworkService) failArtwork(ctx context.Context, artworkID string, stage string, cause error) error {
	now := s.clock()
	failed := domain.GenerationStepFailed
	detail := fmt.Sprintf("%s: %v", stage, cause)
	if _, err := s.artworks.Patch(ctx, artworkID, repositories.ArtworkPatch{
		GenerationStep: &failed,
		FailureDetail:  &detail,
		UpdatedAt:      now,
	}); err != nil {
		s.logger(ctx, "artwork.mark_failed.error", map[string]any{
			"artwork": artworkID,
			"error":   err.Error(),
		})
	}

	s.publishEvent(ctx, ArtworkEvent{
		Type:       artworkEventFailed,
		ArtworkID:  artworkID,
		OccurredAt: now,
		Metadata:   map[string]any{"detail": detail},
	})

	return fmt.Errorf("%w: %s: %v", ErrGenerationFailed, stage, cause)
}

func (s *artworkService) storeSourceUpload(ctx context.Context, artworkID string, upload Upload, fallbackName string) (string, error) {
	name := strings.TrimSpace(upload.FileName)
	if name == "" {
		name = fallbackName
	}
	object, err := storage.BuildObjectPath(storage.PurposeSourceUpload, storage.PathParams{
		ArtworkID: artworkID,
		FileName:  name,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArtworkInvalidInput, err)
	}
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	url, err := s.artifacts.PutBytes(ctx, object, contentType, upload.Data)
	if err != nil {
		return "", fmt.Errorf("artwork: store source upload: %w", err)
	}
	return url, nil
}

func (s *artworkService) storeStepOutput(ctx context.Context, artworkID string, step domain.GenerationStep, sourceURL string) (string, error) {
	return s.storeStepObject(ctx, artworkID, step, sourceURL, "output.png")
}

func (s *artworkService) storeStepObject(ctx context.Context, artworkID string, step domain.GenerationStep, sourceURL string, fileName string) (string, error) {
	object, err := storage.BuildObjectPath(storage.PurposeGenerationStep, storage.PathParams{
		ArtworkID: artworkID,
		StepID:    string(step),
		FileName:  fileName,
	})
	if err != nil {
		return "", fmt.Errorf("artwork: build step path: %w", err)
	}
	url, err := s.artifacts.PutFromURL(ctx, sourceURL, object)
	if err != nil {
		return "", fmt.Errorf("artwork: persist step output: %w", err)
	}
	return url, nil
}

func (s *artworkService) storePreview(ctx context.Context, artworkID string, sourceURL string) (string, error) {
	object, err := storage.BuildObjectPath(storage.PurposePreview, storage.PathParams{
		ArtworkID: artworkID,
		FileName:  "artwork.png",
	})
	if err != nil {
		return "", fmt.Errorf("artwork: build preview path: %w", err)
	}
	url, err := s.artifacts.PutFromURL(ctx, sourceURL, object)
	if err != nil {
		return "", fmt.Errorf("artwork: persist preview: %w", err)
	}
	return url, nil
}

func (s *artworkService) artworkURL(artwork domain.Artwork) string {
	if s.publicBaseURL == "" {
		return ""
	}
	return s.publicBaseURL + "/artwork/" + artwork.AccessToken
}

func (s *artworkService) publishEvent(ctx context.Context, event ArtworkEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishArtworkEvent(ctx, event); err != nil {
		s.logger(ctx, "artwork.event.publish.failed", map[string]any{
			"type":    event.Type,
			"artwork": event.ArtworkID,
			"error":   err.Error(),
		})
	}
}

func (s *artworkService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrArtworkNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrArtworkInvalidState, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("artwork: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *artworkService) mapReviewRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return fmt.Errorf("%w: %v", ErrReviewNotFound, err)
		}
	}

	return err
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	if value, ok := metadata[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

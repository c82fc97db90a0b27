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

const artworksCollection = "artworks"

// ArtworkRepository persists artwork records and their generation pipeline state.
type ArtworkRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.Artwork]
}

// NewArtworkRepository constructs a Firestore-backed artwork repository.
func NewArtworkRepository(provider *pfirestore.Provider) (*ArtworkRepository, error) {
	if provider == nil {
		return nil, errors.New("artwork repository: firestore provider is required")
	}

	encoder := func(ctx context.Context, value domain.Artwork) (any, error) {
		return encodeArtworkDocument(value), nil
	}
	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.Artwork, error) {
		var doc artworkDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Artwork{}, err
		}
		doc.ID = snap.Ref.ID
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = snap.CreateTime
		}
		if doc.UpdatedAt.IsZero() {
			doc.UpdatedAt = snap.UpdateTime
		}
		return decodeArtworkDocument(doc), nil
	}

	base := pfirestore.NewBaseRepository[domain.Artwork](provider, artworksCollection, encoder, decoder)
	return &ArtworkRepository{provider: provider, base: base}, nil
}

// Insert stores a new artwork document, failing when the identifier is taken.
func (r *ArtworkRepository) Insert(ctx context.Context, artwork domain.Artwork) error {
	if r == nil || r.base == nil {
		return errors.New("artwork repository not initialised")
	}
	artwork.ID = strings.TrimSpace(artwork.ID)
	if artwork.ID == "" {
		return errors.New("artwork repository: id is required")
	}

	docRef, err := r.base.DocumentRef(ctx, artwork.ID)
	if err != nil {
		return err
	}
	payload := encodeArtworkDocument(artwork)
	if _, err := docRef.Create(ctx, payload); err != nil {
		return pfirestore.WrapError("artworks.insert", err)
	}
	return nil
}

// FindByID loads an artwork by its identifier.
func (r *ArtworkRepository) FindByID(ctx context.Context, artworkID string) (domain.Artwork, error) {
	if r == nil || r.base == nil {
		return domain.Artwork{}, errors.New("artwork repository not initialised")
	}
	artworkID = strings.TrimSpace(artworkID)
	if artworkID == "" {
		return domain.Artwork{}, errors.New("artwork repository: id is required")
	}
	doc, err := r.base.Get(ctx, artworkID)
	if err != nil {
		return domain.Artwork{}, err
	}
	return doc.Data, nil
}

// FindByAccessToken locates the artwork bound to a customer access token.
func (r *ArtworkRepository) FindByAccessToken(ctx context.Context, token string) (domain.Artwork, error) {
	if r == nil || r.base == nil {
		return domain.Artwork{}, errors.New("artwork repository not initialised")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Artwork{}, errors.New("artwork repository: access token is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("accessToken", "==", token).Limit(1)
	})
	if err != nil {
		return domain.Artwork{}, err
	}
	if len(docs) == 0 {
		return domain.Artwork{}, pfirestore.WrapError("artworks.find_by_token", status.Error(codes.NotFound, "artwork not found"))
	}
	return docs[0].Data, nil
}

// Patch applies the set fields of the patch as field-path updates so concurrent
// writers of sibling image fields do not overwrite each other.
func (r *ArtworkRepository) Patch(ctx context.Context, artworkID string, patch repositories.ArtworkPatch) (domain.Artwork, error) {
	if r == nil || r.base == nil {
		return domain.Artwork{}, errors.New("artwork repository not initialised")
	}
	artworkID = strings.TrimSpace(artworkID)
	if artworkID == "" {
		return domain.Artwork{}, errors.New("artwork repository: id is required")
	}

	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	updates := []firestore.Update{{Path: "updatedAt", Value: updatedAt.UTC()}}

	if patch.PetMomPhoto != nil {
		updates = append(updates, firestore.Update{Path: "sourceImages.petMomPhoto", Value: *patch.PetMomPhoto})
	}
	if patch.PetPhoto != nil {
		updates = append(updates, firestore.Update{Path: "sourceImages.petPhoto", Value: *patch.PetPhoto})
	}
	if patch.MonaLisaBase != nil {
		updates = append(updates, firestore.Update{Path: "generatedImages.monalisaBase", Value: *patch.MonaLisaBase})
	}
	if patch.ArtworkPreview != nil {
		updates = append(updates, firestore.Update{Path: "generatedImages.artworkPreview", Value: *patch.ArtworkPreview})
	}
	if patch.ArtworkFullRes != nil {
		updates = append(updates, firestore.Update{Path: "generatedImages.artworkFullres", Value: *patch.ArtworkFullRes})
	}
	if patch.AppendStep != nil {
		record := encodeStepRecordDocument(*patch.AppendStep)
		updates = append(updates, firestore.Update{Path: "generatedImages.steps", Value: firestore.ArrayUnion(record)})
	}
	if patch.GenerationStep != nil {
		updates = append(updates, firestore.Update{Path: "generationStep", Value: string(*patch.GenerationStep)})
	}
	if patch.UpscaleStatus != nil {
		updates = append(updates, firestore.Update{Path: "upscaleStatus", Value: string(*patch.UpscaleStatus)})
	}
	if patch.UpscaledAt != nil {
		updates = append(updates, firestore.Update{Path: "upscaledAt", Value: patch.UpscaledAt.UTC()})
	}
	if patch.FailureDetail != nil {
		updates = append(updates, firestore.Update{Path: "failureDetail", Value: *patch.FailureDetail})
	}

	if _, err := r.base.Update(ctx, artworkID, updates); err != nil {
		return domain.Artwork{}, err
	}

	doc, err := r.base.Get(ctx, artworkID)
	if err != nil {
		return domain.Artwork{}, err
	}
	return doc.Data, nil
}

// IncrementEditRequests bumps the edit-request counter inside a transaction,
// refusing the increment once max has been reached.
func (r *ArtworkRepository) IncrementEditRequests(ctx context.Context, artworkID string, max int, now time.Time) (int, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("artwork repository not initialised")
	}
	artworkID = strings.TrimSpace(artworkID)
	if artworkID == "" {
		return 0, errors.New("artwork repository: id is required")
	}

	var newCount int
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, artworkID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var doc artworkDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore artworks decode %s: %w", artworkID, err)
		}
		if max > 0 && doc.EditRequestCount >= max {
			return status.Errorf(codes.FailedPrecondition, "artwork %s reached the edit request limit of %d", artworkID, max)
		}

		newCount = doc.EditRequestCount + 1
		return tx.Update(ref, []firestore.Update{
			{Path: "editRequestCount", Value: newCount},
			{Path: "updatedAt", Value: now.UTC()},
		})
	})
	if err != nil {
		return 0, pfirestore.WrapError("artworks.increment_edit_requests", err)
	}
	return newCount, nil
}

func encodeArtworkDocument(artwork domain.Artwork) artworkDocument {
	steps := make([]artworkStepRecordDocument, 0, len(artwork.GeneratedImages.Steps))
	for _, record := range artwork.GeneratedImages.Steps {
		steps = append(steps, encodeStepRecordDocument(record))
	}

	return artworkDocument{
		AccessToken:    strings.TrimSpace(artwork.AccessToken),
		TokenExpiresAt: artwork.TokenExpiresAt.UTC(),
		CustomerName:   strings.TrimSpace(artwork.CustomerName),
		CustomerEmail:  strings.TrimSpace(artwork.CustomerEmail),
		SourceImages: artworkSourceImagesDocument{
			PetMomPhoto: artwork.SourceImages.PetMomPhoto,
			PetPhoto:    artwork.SourceImages.PetPhoto,
		},
		GeneratedImages: artworkGeneratedImagesDocument{
			MonaLisaBase:   artwork.GeneratedImages.MonaLisaBase,
			ArtworkPreview: artwork.GeneratedImages.ArtworkPreview,
			ArtworkFullRes: artwork.GeneratedImages.ArtworkFullRes,
			Steps:          steps,
		},
		GenerationStep:   string(artwork.GenerationStep),
		UpscaleStatus:    string(artwork.UpscaleStatus),
		UpscaledAt:       cloneTimePtr(artwork.UpscaledAt),
		EditRequestCount: artwork.EditRequestCount,
		FailureDetail:    artwork.FailureDetail,
		Metadata:         cloneMetadataMap(artwork.Metadata),
		CreatedAt:        artwork.CreatedAt.UTC(),
		UpdatedAt:        artwork.UpdatedAt.UTC(),
	}
}

func encodeStepRecordDocument(record domain.GenerationStepRecord) artworkStepRecordDocument {
	return artworkStepRecordDocument{
		Timestamp: record.Timestamp.UTC(),
		Step:      string(record.Step),
		ImageURL:  record.ImageURL,
	}
}

func decodeArtworkDocument(doc artworkDocument) domain.Artwork {
	steps := make([]domain.GenerationStepRecord, 0, len(doc.GeneratedImages.Steps))
	for _, record := range doc.GeneratedImages.Steps {
		steps = append(steps, domain.GenerationStepRecord{
			Timestamp: record.Timestamp.UTC(),
			Step:      domain.GenerationStep(record.Step),
			ImageURL:  record.ImageURL,
		})
	}

	upscale := domain.UpscaleStatus(doc.UpscaleStatus)
	if doc.UpscaleStatus == "" {
		upscale = domain.UpscaleStatusNone
	}

	return domain.Artwork{
		ID:             doc.ID,
		AccessToken:    doc.AccessToken,
		TokenExpiresAt: doc.TokenExpiresAt.UTC(),
		CustomerName:   doc.CustomerName,
		CustomerEmail:  doc.CustomerEmail,
		SourceImages: domain.SourceImages{
			PetMomPhoto: doc.SourceImages.PetMomPhoto,
			PetPhoto:    doc.SourceImages.PetPhoto,
		},
		GeneratedImages: domain.GeneratedImages{
			MonaLisaBase:   doc.GeneratedImages.MonaLisaBase,
			ArtworkPreview: doc.GeneratedImages.ArtworkPreview,
			ArtworkFullRes: doc.GeneratedImages.ArtworkFullRes,
			Steps:          steps,
		},
		GenerationStep:   domain.GenerationStep(doc.GenerationStep),
		UpscaleStatus:    upscale,
		UpscaledAt:       cloneTimePtr(doc.UpscaledAt),
		EditRequestCount: doc.EditRequestCount,
		FailureDetail:    doc.FailureDetail,
		Metadata:         cloneMetadataMap(doc.Metadata),
		CreatedAt:        doc.CreatedAt.UTC(),
		UpdatedAt:        doc.UpdatedAt.UTC(),
	}
}

type artworkDocument struct {
	ID               string                         `firestore:"-"`
	AccessToken      string                         `firestore:"accessToken"`
	TokenExpiresAt   time.Time                      `firestore:"tokenExpiresAt"`
	CustomerName     string                         `firestore:"customerName"`
	CustomerEmail    string                         `firestore:"customerEmail"`
	SourceImages     artworkSourceImagesDocument    `firestore:"sourceImages"`
	GeneratedImages  artworkGeneratedImagesDocument `firestore:"generatedImages"`
	GenerationStep   string                         `firestore:"generationStep"`
	UpscaleStatus    string                         `firestore:"upscaleStatus,omitempty"`
	UpscaledAt       *time.Time                     `firestore:"upscaledAt,omitempty"`
	EditRequestCount int                            `firestore:"editRequestCount"`
	FailureDetail    string                         `firestore:"failureDetail,omitempty"`
	Metadata         map[string]any                 `firestore:"metadata,omitempty"`
	CreatedAt        time.Time                      `firestore:"createdAt"`
	UpdatedAt        time.Time                      `firestore:"updatedAt"`
}

type artworkSourceImagesDocument struct {
	PetMomPhoto string `firestore:"petMomPhoto"`
	PetPhoto    string `firestore:"petPhoto"`
}

type artworkGeneratedImagesDocument struct {
	MonaLisaBase   string                      `firestore:"monalisaBase,omitempty"`
	ArtworkPreview string                      `firestore:"artworkPreview,omitempty"`
	ArtworkFullRes string                      `firestore:"artworkFullres,omitempty"`
	Steps          []artworkStepRecordDocument `firestore:"steps,omitempty"`
}

type artworkStepRecordDocument struct {
	Timestamp time.Time `firestore:"timestamp"`
	Step      string    `firestore:"step"`
	ImageURL  string    `firestore:"imageUrl"`
}

func cloneMetadataMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	cloned := make(map[string]any, len(values))
	for key, value := range values {
		cloned[key] = value
	}
	return cloned
}

func cloneTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	cloned := value.UTC()
	return &cloned
}

var _ repositories.ArtworkRepository = (*ArtworkRepository)(nil)

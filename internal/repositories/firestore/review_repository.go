package firestore

import (
	"context"
	"encoding/base64"
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

const reviewsCollection = "reviews"

// ReviewRepository persists review records and their resolution metadata.
type ReviewRepository struct {
	base *pfirestore.BaseRepository[domain.Review]
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository: firestore provider is required")
	}

	encoder := func(ctx context.Context, value domain.Review) (any, error) {
		return encodeReviewDocument(value), nil
	}
	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.Review, error) {
		var doc reviewDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Review{}, err
		}
		doc.ID = snap.Ref.ID
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = snap.CreateTime
		}
		if doc.UpdatedAt.IsZero() {
			doc.UpdatedAt = snap.UpdateTime
		}
		return decodeReviewDocument(doc), nil
	}

	base := pfirestore.NewBaseRepository[domain.Review](provider, reviewsCollection, encoder, decoder)
	return &ReviewRepository{base: base}, nil
}

// Insert stores a new review document and returns the persisted record.
func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	review.ID = strings.TrimSpace(review.ID)
	if review.ID == "" {
		return domain.Review{}, errors.New("review repository: id is required")
	}

	docRef, err := r.base.DocumentRef(ctx, review.ID)
	if err != nil {
		return domain.Review{}, err
	}
	payload := encodeReviewDocument(review)
	if _, err := docRef.Create(ctx, payload); err != nil {
		return domain.Review{}, pfirestore.WrapError("reviews.insert", err)
	}
	return review, nil
}

// FindByID loads a review by its identifier.
func (r *ReviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return domain.Review{}, errors.New("review repository: id is required")
	}
	doc, err := r.base.Get(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	return doc.Data, nil
}

// FindPendingByArtworkAndType returns the open review of the given type for an artwork.
func (r *ReviewRepository) FindPendingByArtworkAndType(ctx context.Context, artworkID string, reviewType domain.ReviewType) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	artworkID = strings.TrimSpace(artworkID)
	if artworkID == "" {
		return domain.Review{}, errors.New("review repository: artwork id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("artworkRef", "==", artworkID).
			Where("type", "==", string(reviewType)).
			Where("status", "==", string(domain.ReviewStatusPending)).
			Limit(1)
	})
	if err != nil {
		return domain.Review{}, err
	}
	if len(docs) == 0 {
		return domain.Review{}, pfirestore.WrapError("reviews.find_pending", status.Error(codes.NotFound, "pending review not found"))
	}
	return docs[0].Data, nil
}

// List returns reviews matching the filter ordered by most recent creation.
func (r *ReviewRepository) List(ctx context.Context, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Review]{}, fmt.Errorf("review repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statuses := make([]string, 0, len(filter.Status))
	for _, s := range filter.Status {
		statuses = append(statuses, string(s))
	}
	types := make([]string, 0, len(filter.Types))
	for _, t := range filter.Types {
		types = append(types, string(t))
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if artworkID := strings.TrimSpace(filter.ArtworkID); artworkID != "" {
			q = q.Where("artworkRef", "==", artworkID)
		}
		if len(statuses) == 1 {
			q = q.Where("status", "==", statuses[0])
		} else if len(statuses) > 1 {
			q = q.Where("status", "in", statuses)
		}
		if len(types) == 1 {
			q = q.Where("type", "==", types[0])
		} else if len(types) > 1 {
			q = q.Where("type", "in", types)
		}

		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Review]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Review, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, doc.Data)
	}

	return domain.CursorPage[domain.Review]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// UpdateStatus records the operator decision on a review.
func (r *ReviewRepository) UpdateStatus(ctx context.Context, reviewID string, reviewStatus domain.ReviewStatus, update repositories.ReviewResolutionUpdate) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return domain.Review{}, errors.New("review repository: id is required")
	}

	reviewedAt := update.ReviewedAt
	if reviewedAt.IsZero() {
		reviewedAt = time.Now()
	}
	updates := []firestore.Update{
		{Path: "status", Value: string(reviewStatus)},
		{Path: "reviewedBy", Value: strings.TrimSpace(update.ReviewedBy)},
		{Path: "reviewedAt", Value: reviewedAt.UTC()},
		{Path: "updatedAt", Value: reviewedAt.UTC()},
	}
	if notes := strings.TrimSpace(update.Notes); notes != "" {
		updates = append(updates, firestore.Update{Path: "notes", Value: notes})
	}

	if _, err := r.base.Update(ctx, reviewID, updates); err != nil {
		return domain.Review{}, err
	}
	doc, err := r.base.Get(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	return doc.Data, nil
}

// ReplaceImage swaps the review's working image.
func (r *ReviewRepository) ReplaceImage(ctx context.Context, reviewID string, imageURL string, updatedAt time.Time) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return domain.Review{}, errors.New("review repository: id is required")
	}
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return domain.Review{}, errors.New("review repository: image url is required")
	}
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	updates := []firestore.Update{
		{Path: "imageUrl", Value: imageURL},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	}
	if _, err := r.base.Update(ctx, reviewID, updates); err != nil {
		return domain.Review{}, err
	}
	doc, err := r.base.Get(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	return doc.Data, nil
}

// AppendRegeneration adds an entry to the review's regeneration history.
func (r *ReviewRepository) AppendRegeneration(ctx context.Context, reviewID string, record domain.RegenerationRecord) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return domain.Review{}, errors.New("review repository: id is required")
	}

	encoded := encodeRegenerationDocument(record)
	updates := []firestore.Update{
		{Path: "regenerationHistory", Value: firestore.ArrayUnion(encoded)},
		{Path: "updatedAt", Value: record.Timestamp.UTC()},
	}
	if _, err := r.base.Update(ctx, reviewID, updates); err != nil {
		return domain.Review{}, err
	}
	doc, err := r.base.Get(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	return doc.Data, nil
}

func encodeReviewDocument(review domain.Review) reviewDocument {
	history := make([]reviewRegenerationDocument, 0, len(review.RegenerationHistory))
	for _, record := range review.RegenerationHistory {
		history = append(history, encodeRegenerationDocument(record))
	}

	var source *artworkSourceImagesDocument
	if review.SourceImages != nil {
		source = &artworkSourceImagesDocument{
			PetMomPhoto: review.SourceImages.PetMomPhoto,
			PetPhoto:    review.SourceImages.PetPhoto,
		}
	}

	var reviewedBy string
	if review.ReviewedBy != nil {
		reviewedBy = strings.TrimSpace(*review.ReviewedBy)
	}

	return reviewDocument{
		ArtworkRef:          strings.TrimSpace(review.ArtworkRef),
		Type:                string(review.Type),
		Status:              string(review.Status),
		ImageURL:            review.ImageURL,
		CustomerName:        strings.TrimSpace(review.CustomerName),
		CustomerEmail:       strings.TrimSpace(review.CustomerEmail),
		SourceImages:        source,
		EditRequestText:     review.EditRequestText,
		RegenerationHistory: history,
		ReviewedBy:          reviewedBy,
		ReviewedAt:          cloneTimePtr(review.ReviewedAt),
		Notes:               review.Notes,
		CreatedAt:           review.CreatedAt.UTC(),
		UpdatedAt:           review.UpdatedAt.UTC(),
	}
}

func encodeRegenerationDocument(record domain.RegenerationRecord) reviewRegenerationDocument {
	return reviewRegenerationDocument{
		Timestamp:       record.Timestamp.UTC(),
		ImageURL:        record.ImageURL,
		MonaLisaBaseURL: record.MonaLisaBaseURL,
		PromptTweak:     record.PromptTweak,
		RegeneratedBase: record.RegeneratedBase,
	}
}

func decodeReviewDocument(doc reviewDocument) domain.Review {
	history := make([]domain.RegenerationRecord, 0, len(doc.RegenerationHistory))
	for _, record := range doc.RegenerationHistory {
		history = append(history, domain.RegenerationRecord{
			Timestamp:       record.Timestamp.UTC(),
			ImageURL:        record.ImageURL,
			MonaLisaBaseURL: record.MonaLisaBaseURL,
			PromptTweak:     record.PromptTweak,
			RegeneratedBase: record.RegeneratedBase,
		})
	}

	var source *domain.SourceImages
	if doc.SourceImages != nil {
		source = &domain.SourceImages{
			PetMomPhoto: doc.SourceImages.PetMomPhoto,
			PetPhoto:    doc.SourceImages.PetPhoto,
		}
	}

	var reviewedBy *string
	if trimmed := strings.TrimSpace(doc.ReviewedBy); trimmed != "" {
		reviewedBy = &trimmed
	}

	return domain.Review{
		ID:                  doc.ID,
		ArtworkRef:          doc.ArtworkRef,
		Type:                domain.ReviewType(doc.Type),
		Status:              domain.ReviewStatus(doc.Status),
		ImageURL:            doc.ImageURL,
		CustomerName:        doc.CustomerName,
		CustomerEmail:       doc.CustomerEmail,
		SourceImages:        source,
		EditRequestText:     doc.EditRequestText,
		RegenerationHistory: history,
		ReviewedBy:          reviewedBy,
		ReviewedAt:          cloneTimePtr(doc.ReviewedAt),
		Notes:               doc.Notes,
		CreatedAt:           doc.CreatedAt.UTC(),
		UpdatedAt:           doc.UpdatedAt.UTC(),
	}
}

type reviewDocument struct {
	ID                  string                       `firestore:"-"`
	ArtworkRef          string                       `firestore:"artworkRef"`
	Type                string                       `firestore:"type"`
	Status              string                       `firestore:"status"`
	ImageURL            string                       `firestore:"imageUrl"`
	CustomerName        string                       `firestore:"customerName,omitempty"`
	CustomerEmail       string                       `firestore:"customerEmail,omitempty"`
	SourceImages        *artworkSourceImagesDocument `firestore:"sourceImages,omitempty"`
	EditRequestText     string                       `firestore:"editRequestText,omitempty"`
	RegenerationHistory []reviewRegenerationDocument `firestore:"regenerationHistory,omitempty"`
	ReviewedBy          string                       `firestore:"reviewedBy,omitempty"`
	ReviewedAt          *time.Time                   `firestore:"reviewedAt,omitempty"`
	Notes               string                       `firestore:"notes,omitempty"`
	CreatedAt           time.Time                    `firestore:"createdAt"`
	UpdatedAt           time.Time                    `firestore:"updatedAt"`
}

type reviewRegenerationDocument struct {
	Timestamp       time.Time `firestore:"timestamp"`
	ImageURL        string    `firestore:"imageUrl"`
	MonaLisaBaseURL string    `firestore:"monalisaBaseUrl,omitempty"`
	PromptTweak     string    `firestore:"promptTweak,omitempty"`
	RegeneratedBase bool      `firestore:"regeneratedBase"`
}

func encodeListToken(ts time.Time, docID string) string {
	payload := fmt.Sprintf("%s|%s", ts.UTC().Format(time.RFC3339Nano), docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeListToken(token string) (time.Time, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", errors.New("invalid token structure")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	if parts[1] == "" {
		return time.Time{}, "", errors.New("invalid token document id")
	}
	return ts, parts[1], nil
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)

package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	domain "github.com/pawtrait-studio/api/internal/domain"
	"github.com/pawtrait-studio/api/internal/platform/httpx"
	"github.com/pawtrait-studio/api/internal/services"
)

const (
	maxSubmissionBytes = 20 << 20
	maxUploadBytes     = 8 << 20
	maxEditTextLength  = 2000
)

// ArtworkHandlers serves the customer-facing artwork endpoints.
type ArtworkHandlers struct {
	artworks  services.ArtworkService
	reviews   services.ReviewService
	limiter   submissionLimiter
	sanitizer *bluemonday.Policy
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// ArtworkHandlersConfig wires the artwork handlers.
type ArtworkHandlersConfig struct {
	Artworks services.ArtworkService
	Reviews  services.ReviewService
	// Limiter bounds submissions per client address. Defaults to 5/min.
	Limiter submissionLimiter
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewArtworkHandlers validates dependencies and constructs the handlers.
func NewArtworkHandlers(cfg ArtworkHandlersConfig) (*ArtworkHandlers, error) {
	if cfg.Artworks == nil {
		return nil, errors.New("handlers: artwork service is required")
	}
	if cfg.Reviews == nil {
		return nil, errors.New("handlers: review service is required")
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = newWindowLimiter(5, time.Minute, nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &ArtworkHandlers{
		artworks:  cfg.Artworks,
		reviews:   cfg.Reviews,
		limiter:   limiter,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
	}, nil
}

// Routes registers the artwork endpoints on the router group.
func (h *ArtworkHandlers) Routes(r chi.Router) {
	r.Post("/", h.Submit)
	r.Get("/{artworkID}", h.Get)
	r.Get("/token/{accessToken}", h.GetByToken)
	r.Post("/{artworkID}/upscale", h.RequestUpscale)
	r.Post("/{artworkID}/edit-request", h.RequestEdit)
}

// Submit accepts the two customer photos and kicks off generation in the
// background. The response carries the access token the customer uses to
// follow their artwork.
func (h *ArtworkHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.limiter.Allow(clientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many submissions, slow down", http.StatusTooManyRequests))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSubmissionBytes)
	if err := r.ParseMultipartForm(maxSubmissionBytes); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected multipart form with photos", http.StatusBadRequest))
		return
	}

	petMom, err := readImageUpload(r, "petMomPhoto")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	pet, err := readImageUpload(r, "petPhoto")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.SubmitArtworkCommand{
		CustomerName:  h.sanitizeField(r.FormValue("customerName")),
		CustomerEmail: strings.TrimSpace(r.FormValue("customerEmail")),
		PetName:       h.sanitizeField(r.FormValue("petName")),
		PetMomPhoto:   petMom,
		PetPhoto:      pet,
	}

	artwork, err := h.artworks.Submit(ctx, cmd)
	if err != nil {
		h.writeArtworkError(ctx, w, err)
		return
	}

	// Generation outlives the request; detach from its cancellation.
	go func(artworkID string) {
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Minute)
		defer cancel()
		if _, err := h.artworks.ProcessSubmission(bg, artworkID); err != nil {
			h.logger(bg, "handlers.artworks.generation_failed", map[string]any{
				"artworkId": artworkID,
				"error":     err.Error(),
			})
		}
	}(artwork.ID)

	writeJSON(w, http.StatusAccepted, artworkResponseFrom(artwork))
}

// Get returns an artwork by its identifier.
func (h *ArtworkHandlers) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	artwork, err := h.artworks.GetArtwork(ctx, chi.URLParam(r, "artworkID"))
	if err != nil {
		h.writeArtworkError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, artworkResponseFrom(artwork))
}

// GetByToken resolves an artwork from the customer's access token.
func (h *ArtworkHandlers) GetByToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	artwork, err := h.artworks.GetByAccessToken(ctx, chi.URLParam(r, "accessToken"))
	if err != nil {
		h.writeArtworkError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, artworkResponseFrom(artwork))
}

// RequestUpscale triggers the full-resolution pass for a completed artwork.
func (h *ArtworkHandlers) RequestUpscale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	artwork, err := h.artworks.RequestUpscale(ctx, chi.URLParam(r, "artworkID"))
	if err != nil {
		h.writeArtworkError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, artworkResponseFrom(artwork))
}

type editRequestBody struct {
	Text string `json:"text"`
}

// RequestEdit files a customer edit request against a completed artwork.
func (h *ArtworkHandlers) RequestEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body editRequestBody
	if err := decodeJSONBody(w, r, &body); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	text := h.sanitizeField(body.Text)
	if len(text) > maxEditTextLength {
		text = text[:maxEditTextLength]
	}

	review, err := h.reviews.RequestEdit(ctx, services.RequestEditCommand{
		ArtworkID: chi.URLParam(r, "artworkID"),
		Text:      text,
	})
	if err != nil {
		h.writeReviewError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reviewResponseFrom(review))
}

func readImageUpload(r *http.Request, field string) (services.Upload, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return services.Upload{}, fmt.Errorf("file %q is required", field)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return services.Upload{}, fmt.Errorf("read file %q: %v", field, err)
	}
	if len(data) == 0 {
		return services.Upload{}, fmt.Errorf("file %q is empty", field)
	}
	if len(data) > maxUploadBytes {
		return services.Upload{}, fmt.Errorf("file %q exceeds the %d byte limit", field, maxUploadBytes)
	}

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return services.Upload{}, fmt.Errorf("file %q must be an image", field)
	}

	return services.Upload{
		FileName:    sanitizeFileName(header),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func (h *ArtworkHandlers) sanitizeField(value string) string {
	return strings.TrimSpace(h.sanitizer.Sanitize(value))
}

func (h *ArtworkHandlers) writeArtworkError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrArtworkNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("artwork_not_found", "artwork not found", http.StatusNotFound))
	case errors.Is(err, services.ErrArtworkTokenExpired):
		httpx.WriteError(ctx, w, httpx.NewError("token_expired", "access link has expired", http.StatusGone))
	case errors.Is(err, services.ErrArtworkInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrArtworkInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrGenerationFailed):
		httpx.WriteError(ctx, w, httpx.NewError("generation_failed", "artwork generation failed", http.StatusBadGateway))
	default:
		h.logger(ctx, "handlers.artworks.error", map[string]any{"error": err.Error()})
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "something went wrong", http.StatusInternalServerError))
	}
}

func (h *ArtworkHandlers) writeReviewError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrEditQuotaExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("edit_quota_exceeded", "edit request limit reached for this artwork", http.StatusConflict))
	case errors.Is(err, services.ErrReviewConflict):
		httpx.WriteError(ctx, w, httpx.NewError("edit_request_pending", "an edit request is already being processed", http.StatusConflict))
	case errors.Is(err, services.ErrArtworkNotFound), errors.Is(err, services.ErrReviewNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("artwork_not_found", "artwork not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReviewInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict))
	default:
		h.logger(ctx, "handlers.artworks.review_error", map[string]any{"error": err.Error()})
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "something went wrong", http.StatusInternalServerError))
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func sanitizeFileName(header *multipart.FileHeader) string {
	if header == nil {
		return ""
	}
	name := strings.TrimSpace(header.Filename)
	name = strings.ReplaceAll(name, "\\", "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

type generationStepEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Step      string    `json:"step"`
	ImageURL  string    `json:"imageUrl"`
}

type artworkResponse struct {
	ID               string                `json:"id"`
	AccessToken      string                `json:"accessToken,omitempty"`
	TokenExpiresAt   *time.Time            `json:"tokenExpiresAt,omitempty"`
	CustomerName     string                `json:"customerName"`
	PetName          string                `json:"petName,omitempty"`
	GenerationStep   string                `json:"generationStep"`
	UpscaleStatus    string                `json:"upscaleStatus"`
	UpscaledAt       *time.Time            `json:"upscaledAt,omitempty"`
	PreviewURL       string                `json:"previewUrl,omitempty"`
	FullResURL       string                `json:"fullResUrl,omitempty"`
	Steps            []generationStepEntry `json:"steps,omitempty"`
	EditRequestCount int                   `json:"editRequestCount"`
	FailureDetail    string                `json:"failureDetail,omitempty"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
}

func artworkResponseFrom(artwork domain.Artwork) artworkResponse {
	resp := artworkResponse{
		ID:               artwork.ID,
		AccessToken:      artwork.AccessToken,
		CustomerName:     artwork.CustomerName,
		GenerationStep:   string(artwork.GenerationStep),
		UpscaleStatus:    string(artwork.UpscaleStatus),
		UpscaledAt:       artwork.UpscaledAt,
		PreviewURL:       artwork.GeneratedImages.ArtworkPreview,
		FullResURL:       artwork.GeneratedImages.ArtworkFullRes,
		EditRequestCount: artwork.EditRequestCount,
		FailureDetail:    artwork.FailureDetail,
		CreatedAt:        artwork.CreatedAt,
		UpdatedAt:        artwork.UpdatedAt,
	}
	if !artwork.TokenExpiresAt.IsZero() {
		expires := artwork.TokenExpiresAt
		resp.TokenExpiresAt = &expires
	}
	if pet, ok := artwork.Metadata["petName"].(string); ok {
		resp.PetName = pet
	}
	for _, step := range artwork.GeneratedImages.Steps {
		resp.Steps = append(resp.Steps, generationStepEntry{
			Timestamp: step.Timestamp,
			Step:      string(step.Step),
			ImageURL:  step.ImageURL,
		})
	}
	return resp
}

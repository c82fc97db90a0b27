package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	domain "github.com/pawtrait-studio/api/internal/domain"
	"github.com/pawtrait-studio/api/internal/platform/auth"
	"github.com/pawtrait-studio/api/internal/platform/httpx"
	"github.com/pawtrait-studio/api/internal/repositories"
	"github.com/pawtrait-studio/api/internal/services"
)

// AdminHandlers serves the operator console: review moderation, order
// oversight, and the reconciliation trigger.
type AdminHandlers struct {
	reviews    services.ReviewService
	artworks   services.ArtworkService
	orders     services.OrderService
	reconciler services.ReconciliationService
	sanitizer  *bluemonday.Policy
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// AdminHandlersConfig wires the admin handlers.
type AdminHandlersConfig struct {
	Reviews    services.ReviewService
	Artworks   services.ArtworkService
	Orders     services.OrderService
	Reconciler services.ReconciliationService
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewAdminHandlers validates dependencies and constructs the handlers.
func NewAdminHandlers(cfg AdminHandlersConfig) (*AdminHandlers, error) {
	if cfg.Reviews == nil {
		return nil, errors.New("handlers: review service is required")
	}
	if cfg.Artworks == nil {
		return nil, errors.New("handlers: artwork service is required")
	}
	if cfg.Orders == nil {
		return nil, errors.New("handlers: order service is required")
	}
	if cfg.Reconciler == nil {
		return nil, errors.New("handlers: reconciliation service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &AdminHandlers{
		reviews:    cfg.Reviews,
		artworks:   cfg.Artworks,
		orders:     cfg.Orders,
		reconciler: cfg.Reconciler,
		sanitizer:  bluemonday.StrictPolicy(),
		logger:     logger,
	}, nil
}

// Routes registers the admin endpoints on the router group.
func (h *AdminHandlers) Routes(r chi.Router) {
	r.Route("/reviews", func(r chi.Router) {
		r.Get("/", h.ListReviews)
		r.Get("/{reviewID}", h.GetReview)
		r.Post("/{reviewID}/approve", h.ApproveReview)
		r.Post("/{reviewID}/reject", h.RejectReview)
		r.Post("/{reviewID}/regenerate", h.RegenerateReview)
		r.Post("/{reviewID}/override", h.OverrideReview)
	})
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Post("/{orderID}/fulfillment", h.StartFulfillment)
	})
	r.Post("/reconcile", h.Reconcile)
}

// ListReviews returns a filtered page of reviews for the moderation queue.
func (h *AdminHandlers) ListReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := repositories.ReviewListFilter{
		ArtworkID:  strings.TrimSpace(r.URL.Query().Get("artworkId")),
		Pagination: paginationFromQuery(r),
	}
	for _, raw := range r.URL.Query()["status"] {
		if raw = strings.TrimSpace(raw); raw != "" {
			filter.Status = append(filter.Status, domain.ReviewStatus(raw))
		}
	}
	for _, raw := range r.URL.Query()["type"] {
		if raw = strings.TrimSpace(raw); raw != "" {
			filter.Types = append(filter.Types, domain.ReviewType(raw))
		}
	}

	page, err := h.reviews.ListReviews(ctx, filter)
	if err != nil {
		h.writeReviewError(ctx, w, err)
		return
	}

	reviews := make([]reviewResponse, 0, len(page.Items))
	for _, review := range page.Items {
		reviews = append(reviews, reviewResponseFrom(review))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reviews":       reviews,
		"nextPageToken": page.NextPageToken,
	})
}

// GetReview returns a single review with its full context.
func (h *AdminHandlers) GetReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	review, err := h.reviews.GetReview(ctx, chi.URLParam(r, "reviewID"))
	if err != nil {
		h.writeReviewError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewResponseFrom(review))
}

type resolveReviewBody struct {
	Notes string `json:"notes"`
}

// ApproveReview resolves a pending review as approved.
func (h *AdminHandlers) ApproveReview(w http.ResponseWriter, r *http.Request) {
	h.resolveReview(w, r, h.reviews.Approve)
}

// RejectReview resolves a pending review as rejected.
func (h *AdminHandlers) RejectReview(w http.ResponseWriter, r *http.Request) {
	h.resolveReview(w, r, h.reviews.Reject)
}

func (h *AdminHandlers) resolveReview(w http.ResponseWriter, r *http.Request, resolve func(context.Context, services.ResolveReviewCommand) (domain.Review, error)) {
	ctx := r.Context()

	var body resolveReviewBody
	if r.ContentLength != 0 {
		if err := decodeJSONBody(w, r, &body); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
	}

	review, err := resolve(ctx, services.ResolveReviewCommand{
		ReviewID: chi.URLParam(r, "reviewID"),
		Reviewer: operatorSubject(ctx),
		Notes:    strings.TrimSpace(h.sanitizer.Sanitize(body.Notes)),
	})
	if err != nil {
		h.writeReviewError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewResponseFrom(review))
}

type regenerateBody struct {
	PromptTweak    string `json:"promptTweak"`
	RegenerateBase bool   `json:"regenerateBase"`
}

// RegenerateReview re-runs generation for a pending review with a prompt tweak.
func (h *AdminHandlers) RegenerateReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body regenerateBody
	if r.ContentLength != 0 {
		if err := decodeJSONBody(w, r, &body); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
	}

	review, err := h.artworks.Regenerate(ctx, services.RegenerateCommand{
		ReviewID:       chi.URLParam(r, "reviewID"),
		PromptTweak:    strings.TrimSpace(h.sanitizer.Sanitize(body.PromptTweak)),
		RegenerateBase: body.RegenerateBase,
		RequestedBy:    operatorSubject(ctx),
	})
	if err != nil {
		h.writeRegenerateError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewResponseFrom(review))
}

// OverrideReview replaces the reviewed image with an operator upload and
// approves the review in one step.
func (h *AdminHandlers) OverrideReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxSubmissionBytes)
	if err := r.ParseMultipartForm(maxSubmissionBytes); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected multipart form with a replacement image", http.StatusBadRequest))
		return
	}

	replacement, err := readImageUpload(r, "replacement")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	review, err := h.reviews.ManualOverride(ctx, services.ManualOverrideCommand{
		ReviewID:    chi.URLParam(r, "reviewID"),
		Reviewer:    operatorSubject(ctx),
		Notes:       strings.TrimSpace(h.sanitizer.Sanitize(r.FormValue("notes"))),
		Replacement: replacement,
	})
	if err != nil {
		h.writeReviewError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewResponseFrom(review))
}

// ListOrders returns a filtered page of orders for the operator console.
func (h *AdminHandlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := repositories.OrderListFilter{
		ArtworkID:  strings.TrimSpace(r.URL.Query().Get("artworkId")),
		Pagination: paginationFromQuery(r),
	}
	for _, raw := range r.URL.Query()["status"] {
		if raw = strings.TrimSpace(raw); raw != "" {
			filter.Status = append(filter.Status, domain.OrderStatus(raw))
		}
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	orders := make([]orderResponse, 0, len(page.Items))
	for _, order := range page.Items {
		orders = append(orders, orderResponseFrom(order))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orders":        orders,
		"nextPageToken": page.NextPageToken,
	})
}

// StartFulfillment manually submits an order to the print vendor using the
// artwork's approved full-resolution file. Used when the automatic handoff
// after high-res approval needs a retry.
func (h *AdminHandlers) StartFulfillment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := chi.URLParam(r, "orderID")

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	artwork, err := h.artworks.GetArtwork(ctx, order.ArtworkRef)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	if artwork.GeneratedImages.ArtworkFullRes == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", "artwork has no approved full-resolution file", http.StatusConflict))
		return
	}

	updated, err := h.orders.StartFulfillment(ctx, orderID, artwork.GeneratedImages.ArtworkFullRes)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponseFrom(updated))
}

type reconcileBody struct {
	SessionIDs   []string   `json:"sessionIds"`
	CreatedAfter *time.Time `json:"createdAfter"`
	Limit        int        `json:"limit"`
}

// Reconcile sweeps the payment provider for paid sessions with no local order.
func (h *AdminHandlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body reconcileBody
	if r.ContentLength != 0 {
		if err := decodeJSONBody(w, r, &body); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
	}

	cmd := services.ReconcileCommand{
		SessionIDs: body.SessionIDs,
		Limit:      body.Limit,
	}
	if body.CreatedAfter != nil {
		cmd.CreatedAfter = *body.CreatedAfter
	}

	results, err := h.reconciler.ReconcileSessions(ctx, cmd)
	if err != nil {
		if errors.Is(err, services.ErrReconcileInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		h.logger(ctx, "handlers.admin.reconcile_error", map[string]any{"error": err.Error()})
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "reconciliation failed", http.StatusInternalServerError))
		return
	}

	items := make([]reconcileResultEntry, 0, len(results))
	for _, result := range results {
		items = append(items, reconcileResultEntry{
			SessionID: result.SessionID,
			Status:    string(result.Status),
			OrderID:   result.OrderID,
			Detail:    result.Detail,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": items})
}

func (h *AdminHandlers) writeReviewError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrReviewNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("review_not_found", "review not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReviewConflict), errors.Is(err, services.ErrEditQuotaExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("review_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrReviewInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrReviewInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		h.logger(ctx, "handlers.admin.review_error", map[string]any{"error": err.Error()})
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "something went wrong", http.StatusInternalServerError))
	}
}

func (h *AdminHandlers) writeRegenerateError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrReviewNotFound), errors.Is(err, services.ErrArtworkNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("review_not_found", "review not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReviewInvalidState), errors.Is(err, services.ErrArtworkInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrReviewInvalidInput), errors.Is(err, services.ErrArtworkInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrGenerationFailed):
		httpx.WriteError(ctx, w, httpx.NewError("generation_failed", "regeneration failed", http.StatusBadGateway))
	default:
		h.logger(ctx, "handlers.admin.regenerate_error", map[string]any{"error": err.Error()})
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "something went wrong", http.StatusInternalServerError))
	}
}

func (h *AdminHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrArtworkNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		h.logger(ctx, "handlers.admin.order_error", map[string]any{"error": err.Error()})
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "something went wrong", http.StatusInternalServerError))
	}
}

func operatorSubject(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		return identity.Subject
	}
	return ""
}

type reconcileResultEntry struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	OrderID   string `json:"orderId,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

type regenerationEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	ImageURL        string    `json:"imageUrl"`
	PromptTweak     string    `json:"promptTweak,omitempty"`
	RegeneratedBase bool      `json:"regeneratedBase"`
}

type reviewResponse struct {
	ID              string              `json:"id"`
	ArtworkID       string              `json:"artworkId"`
	Type            string              `json:"type"`
	Status          string              `json:"status"`
	ImageURL        string              `json:"imageUrl"`
	CustomerName    string              `json:"customerName,omitempty"`
	CustomerEmail   string              `json:"customerEmail,omitempty"`
	EditRequestText string              `json:"editRequestText,omitempty"`
	Regenerations   []regenerationEntry `json:"regenerations,omitempty"`
	ReviewedBy      *string             `json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time          `json:"reviewedAt,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func reviewResponseFrom(review domain.Review) reviewResponse {
	resp := reviewResponse{
		ID:              review.ID,
		ArtworkID:       review.ArtworkRef,
		Type:            string(review.Type),
		Status:          string(review.Status),
		ImageURL:        review.ImageURL,
		CustomerName:    review.CustomerName,
		CustomerEmail:   review.CustomerEmail,
		EditRequestText: review.EditRequestText,
		ReviewedBy:      review.ReviewedBy,
		ReviewedAt:      review.ReviewedAt,
		Notes:           review.Notes,
		CreatedAt:       review.CreatedAt,
		UpdatedAt:       review.UpdatedAt,
	}
	for _, record := range review.RegenerationHistory {
		resp.Regenerations = append(resp.Regenerations, regenerationEntry{
			Timestamp:       record.Timestamp,
			ImageURL:        record.ImageURL,
			PromptTweak:     record.PromptTweak,
			RegeneratedBase: record.RegeneratedBase,
		})
	}
	return resp
}

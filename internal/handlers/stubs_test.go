package handlers

import (
	"context"

	domain "github.com/pawtrait-studio/api/internal/domain"
	"github.com/pawtrait-studio/api/internal/payments"
	"github.com/pawtrait-studio/api/internal/repositories"
	"github.com/pawtrait-studio/api/internal/services"
)

type stubArtworkService struct {
	submitFunc      func(ctx context.Context, cmd services.SubmitArtworkCommand) (domain.Artwork, error)
	getFunc         func(ctx context.Context, artworkID string) (domain.Artwork, error)
	getByTokenFunc  func(ctx context.Context, token string) (domain.Artwork, error)
	upscaleFunc     func(ctx context.Context, artworkID string) (domain.Artwork, error)
	regenerateFunc  func(ctx context.Context, cmd services.RegenerateCommand) (domain.Review, error)
	processFunc     func(ctx context.Context, artworkID string) (domain.Artwork, error)
	processed       chan string
	submitCommands  []services.SubmitArtworkCommand
	upscaleRequests []string
}

func (s *stubArtworkService) Submit(ctx context.Context, cmd services.SubmitArtworkCommand) (domain.Artwork, error) {
	s.submitCommands = append(s.submitCommands, cmd)
	if s.submitFunc != nil {
		return s.submitFunc(ctx, cmd)
	}
	return domain.Artwork{ID: "art_01H", AccessToken: "tok_01H"}, nil
}

func (s *stubArtworkService) GetArtwork(ctx context.Context, artworkID string) (domain.Artwork, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, artworkID)
	}
	return domain.Artwork{ID: artworkID}, nil
}

func (s *stubArtworkService) GetByAccessToken(ctx context.Context, token string) (domain.Artwork, error) {
	if s.getByTokenFunc != nil {
		return s.getByTokenFunc(ctx, token)
	}
	return domain.Artwork{ID: "art_01H", AccessToken: token}, nil
}

func (s *stubArtworkService) RunStyleTransfer(ctx context.Context, artworkID string) (domain.Artwork, error) {
	return domain.Artwork{ID: artworkID}, nil
}

func (s *stubArtworkService) RunSubjectCompositing(ctx context.Context, artworkID string) (domain.Artwork, error) {
	return domain.Artwork{ID: artworkID}, nil
}

func (s *stubArtworkService) ProcessSubmission(ctx context.Context, artworkID string) (domain.Artwork, error) {
	if s.processed != nil {
		s.processed <- artworkID
	}
	if s.processFunc != nil {
		return s.processFunc(ctx, artworkID)
	}
	return domain.Artwork{ID: artworkID}, nil
}

func (s *stubArtworkService) Regenerate(ctx context.Context, cmd services.RegenerateCommand) (domain.Review, error) {
	if s.regenerateFunc != nil {
		return s.regenerateFunc(ctx, cmd)
	}
	return domain.Review{ID: cmd.ReviewID, Status: domain.ReviewStatusPending}, nil
}

func (s *stubArtworkService) RequestUpscale(ctx context.Context, artworkID string) (domain.Artwork, error) {
	s.upscaleRequests = append(s.upscaleRequests, artworkID)
	if s.upscaleFunc != nil {
		return s.upscaleFunc(ctx, artworkID)
	}
	return domain.Artwork{ID: artworkID, UpscaleStatus: domain.UpscaleStatusCompleted}, nil
}

type stubReviewService struct {
	openFunc        func(ctx context.Context, cmd services.OpenReviewCommand) (domain.Review, error)
	getFunc         func(ctx context.Context, reviewID string) (domain.Review, error)
	listFunc        func(ctx context.Context, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error)
	approveFunc     func(ctx context.Context, cmd services.ResolveReviewCommand) (domain.Review, error)
	rejectFunc      func(ctx context.Context, cmd services.ResolveReviewCommand) (domain.Review, error)
	overrideFunc    func(ctx context.Context, cmd services.ManualOverrideCommand) (domain.Review, error)
	requestEditFunc func(ctx context.Context, cmd services.RequestEditCommand) (domain.Review, error)

	listFilters  []repositories.ReviewListFilter
	approvals    []services.ResolveReviewCommand
	rejections   []services.ResolveReviewCommand
	overrides    []services.ManualOverrideCommand
	editRequests []services.RequestEditCommand
}

func (s *stubReviewService) OpenReview(ctx context.Context, cmd services.OpenReviewCommand) (domain.Review, error) {
	if s.openFunc != nil {
		return s.openFunc(ctx, cmd)
	}
	return domain.Review{ID: "rev_01H", ArtworkRef: cmd.ArtworkID, Type: cmd.Type}, nil
}

func (s *stubReviewService) GetReview(ctx context.Context, reviewID string) (domain.Review, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, reviewID)
	}
	return domain.Review{ID: reviewID, Status: domain.ReviewStatusPending}, nil
}

func (s *stubReviewService) ListReviews(ctx context.Context, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error) {
	s.listFilters = append(s.listFilters, filter)
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[domain.Review]{}, nil
}

func (s *stubReviewService) Approve(ctx context.Context, cmd services.ResolveReviewCommand) (domain.Review, error) {
	s.approvals = append(s.approvals, cmd)
	if s.approveFunc != nil {
		return s.approveFunc(ctx, cmd)
	}
	return domain.Review{ID: cmd.ReviewID, Status: domain.ReviewStatusApproved}, nil
}

func (s *stubReviewService) Reject(ctx context.Context, cmd services.ResolveReviewCommand) (domain.Review, error) {
	s.rejections = append(s.rejections, cmd)
	if s.rejectFunc != nil {
		return s.rejectFunc(ctx, cmd)
	}
	return domain.Review{ID: cmd.ReviewID, Status: domain.ReviewStatusRejected}, nil
}

func (s *stubReviewService) ManualOverride(ctx context.Context, cmd services.ManualOverrideCommand) (domain.Review, error) {
	s.overrides = append(s.overrides, cmd)
	if s.overrideFunc != nil {
		return s.overrideFunc(ctx, cmd)
	}
	return domain.Review{ID: cmd.ReviewID, Status: domain.ReviewStatusApproved}, nil
}

func (s *stubReviewService) RequestEdit(ctx context.Context, cmd services.RequestEditCommand) (domain.Review, error) {
	s.editRequests = append(s.editRequests, cmd)
	if s.requestEditFunc != nil {
		return s.requestEditFunc(ctx, cmd)
	}
	return domain.Review{ID: "rev_edit", ArtworkRef: cmd.ArtworkID, Type: domain.ReviewTypeEditRequest}, nil
}

type stubOrderService struct {
	getFunc            func(ctx context.Context, orderID string) (domain.Order, error)
	getBySessionFunc   func(ctx context.Context, sessionID string) (domain.Order, error)
	listFunc           func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	createFunc         func(ctx context.Context, cmd services.CreateOrderFromPaymentCommand) (domain.Order, error)
	updateFunc         func(ctx context.Context, cmd services.UpdateFromFulfillmentCommand) (domain.Order, error)
	startFunc          func(ctx context.Context, orderID string, artworkURL string) (domain.Order, error)
	historyFunc        func(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error)
	createCommands     []services.CreateOrderFromPaymentCommand
	updateCommands     []services.UpdateFromFulfillmentCommand
	fulfillmentStarts  []string
	fulfillmentSources []string
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, orderID)
	}
	return domain.Order{ID: orderID}, nil
}

func (s *stubOrderService) GetBySessionID(ctx context.Context, sessionID string) (domain.Order, error) {
	if s.getBySessionFunc != nil {
		return s.getBySessionFunc(ctx, sessionID)
	}
	return domain.Order{ID: "ord_01H", SessionID: sessionID}, nil
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderService) CreateFromPayment(ctx context.Context, cmd services.CreateOrderFromPaymentCommand) (domain.Order, error) {
	s.createCommands = append(s.createCommands, cmd)
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return domain.Order{ID: "ord_01H", SessionID: cmd.SessionID, Status: domain.OrderStatusPaid}, nil
}

func (s *stubOrderService) UpdateFromFulfillment(ctx context.Context, cmd services.UpdateFromFulfillmentCommand) (domain.Order, error) {
	s.updateCommands = append(s.updateCommands, cmd)
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cmd)
	}
	return domain.Order{ID: "ord_01H", Status: cmd.Status}, nil
}

func (s *stubOrderService) StartFulfillment(ctx context.Context, orderID string, artworkURL string) (domain.Order, error) {
	s.fulfillmentStarts = append(s.fulfillmentStarts, orderID)
	s.fulfillmentSources = append(s.fulfillmentSources, artworkURL)
	if s.startFunc != nil {
		return s.startFunc(ctx, orderID, artworkURL)
	}
	return domain.Order{ID: orderID, Status: domain.OrderStatusProcessing}, nil
}

func (s *stubOrderService) StatusHistory(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error) {
	if s.historyFunc != nil {
		return s.historyFunc(ctx, orderID)
	}
	return nil, nil
}

type stubReconciliationService struct {
	reconcileFunc func(ctx context.Context, cmd services.ReconcileCommand) ([]services.ReconciliationResult, error)
	commands      []services.ReconcileCommand
}

func (s *stubReconciliationService) ReconcileSessions(ctx context.Context, cmd services.ReconcileCommand) ([]services.ReconciliationResult, error) {
	s.commands = append(s.commands, cmd)
	if s.reconcileFunc != nil {
		return s.reconcileFunc(ctx, cmd)
	}
	return nil, nil
}

type stubPaymentsGateway struct {
	parseFunc func(payload []byte, signature string) (payments.WebhookEvent, error)
}

func (s *stubPaymentsGateway) RetrieveSession(ctx context.Context, sessionID string) (payments.CheckoutSessionDetails, error) {
	return payments.CheckoutSessionDetails{SessionID: sessionID}, nil
}

func (s *stubPaymentsGateway) ListSessions(ctx context.Context, query payments.SessionListQuery) ([]payments.CheckoutSessionDetails, error) {
	return nil, nil
}

func (s *stubPaymentsGateway) ParseWebhookEvent(payload []byte, signature string) (payments.WebhookEvent, error) {
	if s.parseFunc != nil {
		return s.parseFunc(payload, signature)
	}
	return payments.WebhookEvent{}, payments.ErrInvalidWebhookSignature
}

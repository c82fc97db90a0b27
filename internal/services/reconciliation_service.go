package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/pawtrait-studio/api/internal/domain"
	"github.com/pawtrait-studio/api/internal/payments"
	"github.com/pawtrait-studio/api/internal/repositories"
)

const (
	defaultReconcileLimit = 50
	maxReconcileLimit     = 100
)

// ErrReconcileInvalidInput signals the caller provided invalid data.
var ErrReconcileInvalidInput = errors.New("reconcile: invalid input")

// Session metadata keys written at checkout time. An order cannot be rebuilt
// without at least the artwork reference and product selection.
const (
	sessionMetaArtworkID    = "artworkId"
	sessionMetaProductType  = "productType"
	sessionMetaProductSize  = "size"
	sessionMetaCustomerName = "customerName"
	sessionMetaPetName      = "petName"
)

// OrderCreator is the slice of the order ledger the reconciler drives.
type OrderCreator interface {
	CreateFromPayment(ctx context.Context, cmd CreateOrderFromPaymentCommand) (domain.Order, error)
}

// ReconciliationServiceDeps bundles collaborators required to construct the reconciler.
type ReconciliationServiceDeps struct {
	Orders   repositories.OrderRepository
	Payments payments.Provider
	Creator  OrderCreator
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type reconciliationService struct {
	orders   repositories.OrderRepository
	payments payments.Provider
	creator  OrderCreator
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewReconciliationService wires dependencies into a concrete ReconciliationService.
func NewReconciliationService(deps ReconciliationServiceDeps) (ReconciliationService, error) {
	if deps.Orders == nil {
		return nil, errors.New("reconciliation service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("reconciliation service: payment provider is required")
	}
	if deps.Creator == nil {
		return nil, errors.New("reconciliation service: order creator is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reconciliationService{
		orders:   deps.Orders,
		payments: deps.Payments,
		creator:  deps.Creator,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// ReconcileSessions walks the candidate sessions and creates any order the
// webhook path missed. Every session yields a tagged result; a failing session
// never aborts the rest of the run.
func (s *reconciliationService) ReconcileSessions(ctx context.Context, cmd ReconcileCommand) ([]ReconciliationResult, error) {
	candidates, err := s.candidateSessions(ctx, cmd)
	if err != nil {
		return nil, err
	}

	results := make([]ReconciliationResult, 0, len(candidates))
	for _, candidate := range candidates {
		results = append(results, s.reconcileOne(ctx, candidate))
	}

	s.logger(ctx, "reconcile.run.completed", map[string]any{
		"sessions": len(results),
		"created":  countResults(results, ReconcileReconciled),
		"errors":   countResults(results, ReconcileError),
	})

	return results, nil
}

// sessionCandidate pairs a session with the error that occurred while
// retrieving it, so failures stay inside the run as tagged results.
type sessionCandidate struct {
	session payments.CheckoutSessionDetails
	err     error
}

// candidateSessions resolves the explicit id list when given, otherwise sweeps
// the provider's recent sessions.
func (s *reconciliationService) candidateSessions(ctx context.Context, cmd ReconcileCommand) ([]sessionCandidate, error) {
	if len(cmd.SessionIDs) > 0 {
		candidates := make([]sessionCandidate, 0, len(cmd.SessionIDs))
		for _, sessionID := range cmd.SessionIDs {
			sessionID = strings.TrimSpace(sessionID)
			if sessionID == "" {
				return nil, fmt.Errorf("%w: empty session id", ErrReconcileInvalidInput)
			}
			session, err := s.payments.RetrieveSession(ctx, sessionID)
			if err != nil {
				candidates = append(candidates, sessionCandidate{
					session: payments.CheckoutSessionDetails{SessionID: sessionID},
					err:     err,
				})
				continue
			}
			candidates = append(candidates, sessionCandidate{session: session})
		}
		return candidates, nil
	}

	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	if limit > maxReconcileLimit {
		limit = maxReconcileLimit
	}
	createdAfter := cmd.CreatedAfter
	if createdAfter.IsZero() {
		createdAfter = s.clock().Add(-24 * time.Hour)
	}

	sessions, err := s.payments.ListSessions(ctx, payments.SessionListQuery{
		CreatedAfter: createdAfter,
		Limit:        limit,
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile: list sessions: %w", err)
	}

	candidates := make([]sessionCandidate, 0, len(sessions))
	for _, session := range sessions {
		candidates = append(candidates, sessionCandidate{session: session})
	}
	return candidates, nil
}

func (s *reconciliationService) reconcileOne(ctx context.Context, candidate sessionCandidate) ReconciliationResult {
	session := candidate.session
	if candidate.err != nil {
		return ReconciliationResult{
			SessionID: session.SessionID,
			Status:    ReconcileError,
			Detail:    candidate.err.Error(),
		}
	}

	existing, err := s.orders.FindBySessionID(ctx, session.SessionID)
	if err == nil {
		return ReconciliationResult{
			SessionID: session.SessionID,
			Status:    ReconcileExists,
			OrderID:   existing.ID,
		}
	}
	if !isRepoNotFound(err) {
		return ReconciliationResult{
			SessionID: session.SessionID,
			Status:    ReconcileError,
			Detail:    err.Error(),
		}
	}

	if !session.Paid() {
		return ReconciliationResult{
			SessionID: session.SessionID,
			Status:    ReconcileNotPaid,
			Detail:    string(session.PaymentStatus),
		}
	}

	artworkID := strings.TrimSpace(session.Metadata[sessionMetaArtworkID])
	productType := strings.TrimSpace(session.Metadata[sessionMetaProductType])
	if artworkID == "" || productType == "" {
		return ReconciliationResult{
			SessionID: session.SessionID,
			Status:    ReconcileNoMetadata,
			Detail:    "session metadata lacks artwork or product details",
		}
	}

	order, err := s.creator.CreateFromPayment(ctx, CreateOrderFromPaymentCommand{
		SessionID:       session.SessionID,
		PaymentIntentID: session.PaymentIntentID,
		ArtworkID:       artworkID,
		ProductType:     domain.ProductType(productType),
		ProductSize:     strings.TrimSpace(session.Metadata[sessionMetaProductSize]),
		PriceCents:      session.AmountTotal,
		Currency:        session.Currency,
		CustomerEmail:   session.CustomerEmail,
		CustomerName:    optionalString(session.CustomerName, session.Metadata[sessionMetaCustomerName]),
		Metadata: map[string]any{
			"petName":    session.Metadata[sessionMetaPetName],
			"reconciled": true,
		},
	})
	if err != nil {
		return ReconciliationResult{
			SessionID: session.SessionID,
			Status:    ReconcileError,
			Detail:    err.Error(),
		}
	}

	s.logger(ctx, "reconcile.order.created", map[string]any{
		"session": session.SessionID,
		"order":   order.ID,
	})

	return ReconciliationResult{
		SessionID: session.SessionID,
		Status:    ReconcileReconciled,
		OrderID:   order.ID,
	}
}

func countResults(results []ReconciliationResult, status ReconcileStatus) int {
	count := 0
	for _, result := range results {
		if result.Status == status {
			count++
		}
	}
	return count
}

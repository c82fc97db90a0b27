package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/pawtrait-studio/api/internal/fulfillment"
	"github.com/pawtrait-studio/api/internal/generation"
	"github.com/pawtrait-studio/api/internal/payments"
	"github.com/pawtrait-studio/api/internal/platform/config"
	"github.com/pawtrait-studio/api/internal/platform/jobs"
	"github.com/pawtrait-studio/api/internal/repositories"
	"github.com/pawtrait-studio/api/internal/services"
)

// Infrastructure carries the externally constructed clients the services
// depend on. Optional members (Fulfillment, Notifier, Events) may be nil;
// the affected behaviour degrades gracefully.
type Infrastructure struct {
	Artifacts   services.ArtifactStore
	Generation  generation.Provider
	Payments    payments.Provider
	Fulfillment fulfillment.Bridge
	Notifier    services.Notifier
	Events      *jobs.PubSubEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// Services bundles the service-layer contracts the handlers rely upon.
type Services struct {
	Artworks       services.ArtworkService
	Reviews        services.ReviewService
	Orders         services.OrderService
	Reconciliation services.ReconciliationService
}

// Container wires repositories, services, and shared infrastructure for
// runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer assembles the service graph. The order service is built first
// because the review gate hands approved high-res files to it, and the
// artwork pipeline in turn hands completed artworks to the review gate.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("di: repositories registry is required")
	}
	if infra.Artifacts == nil {
		return nil, errors.New("di: artifact store is required")
	}
	if infra.Generation == nil {
		return nil, errors.New("di: generation provider is required")
	}
	if infra.Payments == nil {
		return nil, errors.New("di: payments provider is required")
	}

	logger := infra.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	var artworkEvents services.ArtworkEventPublisher
	var orderEvents services.OrderEventPublisher
	if infra.Events != nil {
		artworkEvents = artworkEventAdapter{publisher: infra.Events}
		orderEvents = orderEventAdapter{publisher: infra.Events}
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:      reg.Orders(),
		History:     reg.OrderStatusHistory(),
		Counters:    reg.Counters(),
		Artifacts:   infra.Artifacts,
		Fulfillment: infra.Fulfillment,
		Notifier:    infra.Notifier,
		Events:      orderEvents,
		Tx:          reg,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("di: build order service: %w", err)
	}

	reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews:       reg.Reviews(),
		Artworks:      reg.Artworks(),
		Orders:        reg.Orders(),
		Artifacts:     infra.Artifacts,
		Fulfillment:   orderSvc,
		Notifier:      infra.Notifier,
		Events:        artworkEvents,
		PublicBaseURL: cfg.Storage.PublicURLBase,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("di: build review service: %w", err)
	}

	var reviewGate services.ReviewOpener
	if cfg.Features.RequireHumanReview {
		reviewGate = reviewSvc
	}

	artworkSvc, err := services.NewArtworkService(services.ArtworkServiceDeps{
		Artworks:      reg.Artworks(),
		Reviews:       reg.Reviews(),
		Provider:      infra.Generation,
		Artifacts:     infra.Artifacts,
		ReviewGate:    reviewGate,
		Notifier:      infra.Notifier,
		Events:        artworkEvents,
		ReviewEnabled: cfg.Features.RequireHumanReview,
		TokenTTL:      cfg.Security.TokenTTL,
		UpscaleFactor: cfg.Generation.UpscaleFactor,
		PublicBaseURL: cfg.Storage.PublicURLBase,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("di: build artwork service: %w", err)
	}

	reconcileSvc, err := services.NewReconciliationService(services.ReconciliationServiceDeps{
		Orders:   reg.Orders(),
		Payments: infra.Payments,
		Creator:  orderSvc,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("di: build reconciliation service: %w", err)
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services: Services{
			Artworks:       artworkSvc,
			Reviews:        reviewSvc,
			Orders:         orderSvc,
			Reconciliation: reconcileSvc,
		},
	}, nil
}

// Close releases repository resources.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

// artworkEventAdapter bridges the services event contract onto the Pub/Sub
// publisher, discarding the broker message id.
type artworkEventAdapter struct {
	publisher *jobs.PubSubEventPublisher
}

func (a artworkEventAdapter) PublishArtworkEvent(ctx context.Context, event services.ArtworkEvent) error {
	_, err := a.publisher.PublishArtworkEvent(ctx, jobs.Event{
		Type:       event.Type,
		ArtworkID:  event.ArtworkID,
		ReviewID:   event.ReviewID,
		OccurredAt: event.OccurredAt,
		Detail:     event.Metadata,
	})
	return err
}

type orderEventAdapter struct {
	publisher *jobs.PubSubEventPublisher
}

func (a orderEventAdapter) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	detail := make(map[string]any, len(event.Metadata)+3)
	for k, v := range event.Metadata {
		detail[k] = v
	}
	if event.OrderNumber != "" {
		detail["orderNumber"] = event.OrderNumber
	}
	if event.PreviousStatus != "" {
		detail["previousStatus"] = event.PreviousStatus
	}
	if event.CurrentStatus != "" {
		detail["currentStatus"] = event.CurrentStatus
	}
	_, err := a.publisher.PublishOrderEvent(ctx, jobs.Event{
		Type:       event.Type,
		OrderID:    event.OrderID,
		OccurredAt: event.OccurredAt,
		Detail:     detail,
	})
	return err
}

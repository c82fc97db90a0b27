package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/pawtrait-studio/api/internal/di"
	"github.com/pawtrait-studio/api/internal/fulfillment"
	"github.com/pawtrait-studio/api/internal/generation"
	"github.com/pawtrait-studio/api/internal/handlers"
	"github.com/pawtrait-studio/api/internal/notifications"
	"github.com/pawtrait-studio/api/internal/payments"
	"github.com/pawtrait-studio/api/internal/platform/auth"
	"github.com/pawtrait-studio/api/internal/platform/config"
	pfirestore "github.com/pawtrait-studio/api/internal/platform/firestore"
	"github.com/pawtrait-studio/api/internal/platform/idempotency"
	"github.com/pawtrait-studio/api/internal/platform/jobs"
	"github.com/pawtrait-studio/api/internal/platform/observability"
	"github.com/pawtrait-studio/api/internal/platform/secrets"
	platformstorage "github.com/pawtrait-studio/api/internal/platform/storage"
	firestoreRepo "github.com/pawtrait-studio/api/internal/repositories/firestore"
	"github.com/pawtrait-studio/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()

	artifacts, err := platformstorage.NewArtifactStore(storageClient, cfg.Storage.ArtifactsBucket, cfg.Storage.PublicURLBase)
	if err != nil {
		logger.Fatal("failed to initialise artifact store", zap.Error(err))
	}

	generationLogger := logger.Named("generation")
	generationClient, err := generation.NewClient(cfg.Generation.Endpoint, cfg.Generation.APIKey,
		generation.WithSubmitTimeout(cfg.Generation.SubmitTimeout),
		generation.WithPollInterval(cfg.Generation.PollInterval),
		generation.WithProgressHandler(func(requestID, status string) {
			generationLogger.Debug("queue status",
				zap.String("requestId", requestID),
				zap.String("status", status))
		}),
	)
	if err != nil {
		logger.Fatal("failed to initialise generation client", zap.Error(err))
	}

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        cfg.Stripe.APIKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Logger:        zapEventLogger(logger.Named("payments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe provider", zap.Error(err))
	}

	var printBridge fulfillment.Bridge
	if strings.TrimSpace(cfg.Fulfillment.APIKey) != "" {
		bridge, err := fulfillment.NewClient(cfg.Fulfillment.Endpoint, cfg.Fulfillment.APIKey, cfg.Fulfillment.ShopID,
			fulfillment.WithTimeout(cfg.Fulfillment.Timeout),
		)
		if err != nil {
			logger.Fatal("failed to initialise fulfillment client", zap.Error(err))
		}
		printBridge = bridge
	} else {
		logger.Warn("fulfillment api key not configured; physical orders cannot be submitted")
	}

	dispatcher, err := newNotifier(cfg.Notifications, logger.Named("notifications"))
	if err != nil {
		logger.Fatal("failed to initialise notification dispatcher", zap.Error(err))
	}
	var notifier services.Notifier
	if dispatcher != nil {
		notifier = dispatcher
	} else {
		logger.Warn("notification provider not configured; customer emails are disabled")
	}

	eventPublisher, pubsubClient, err := newEventPublisher(ctx, cfg.Pubsub)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.Infrastructure{
		Artifacts:   artifacts,
		Generation:  generationClient,
		Payments:    stripeProvider,
		Fulfillment: printBridge,
		Notifier:    notifier,
		Events:      eventPublisher,
		Logger:      zapEventLogger(logger.Named("services")),
	})
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	artworkHandlers, err := handlers.NewArtworkHandlers(handlers.ArtworkHandlersConfig{
		Artworks: container.Services.Artworks,
		Reviews:  container.Services.Reviews,
		Logger:   zapEventLogger(logger.Named("http")),
	})
	if err != nil {
		logger.Fatal("failed to initialise artwork handlers", zap.Error(err))
	}

	orderHandlers, err := handlers.NewOrderHandlers(container.Services.Orders, zapEventLogger(logger.Named("http")))
	if err != nil {
		logger.Fatal("failed to initialise order handlers", zap.Error(err))
	}

	adminHandlers, err := handlers.NewAdminHandlers(handlers.AdminHandlersConfig{
		Reviews:    container.Services.Reviews,
		Artworks:   container.Services.Artworks,
		Orders:     container.Services.Orders,
		Reconciler: container.Services.Reconciliation,
		Logger:     zapEventLogger(logger.Named("http")),
	})
	if err != nil {
		logger.Fatal("failed to initialise admin handlers", zap.Error(err))
	}

	webhookHandlers, err := handlers.NewWebhookHandlers(handlers.WebhookHandlersConfig{
		Payments:            stripeProvider,
		Orders:              container.Services.Orders,
		FulfillmentVerifier: fulfillmentVerifier(cfg, logger.Named("auth")),
		Logger:              zapEventLogger(logger.Named("http")),
	})
	if err != nil {
		logger.Fatal("failed to initialise webhook handlers", zap.Error(err))
	}

	idempotencyMiddleware := idempotency.Middleware(
		idempotency.NewFirestoreStore(firestoreClient),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	if strings.TrimSpace(cfg.Security.AdminAPIKey) == "" {
		logger.Warn("admin api key not configured; operator endpoints will reject all requests")
	}
	adminAuth := auth.NewStaticTokenAuthenticator(cfg.Security.AdminAPIKey)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(map[string]handlers.ReadinessProbe{
			"firestore": firestoreProbe(firestoreClient),
		})),
		handlers.WithArtworkRoutes(artworkHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithAdminMiddlewares(adminAuth.RequireOperator(), idempotencyMiddleware),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("pawtrait api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
	}
	if environment := strings.TrimSpace(env["API_SECURITY_ENVIRONMENT"]); environment != "" {
		opts = append(opts, secrets.WithEnvironment(environment))
	}
	if project := strings.TrimSpace(env["API_FIRESTORE_PROJECT_ID"]); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames marks every secret-manager reference found in the
// environment as mandatory, so a misconfigured deployment fails at boot
// instead of at first use.
func requiredSecretNames(env map[string]string) []string {
	fields := map[string]string{
		"API_STRIPE_API_KEY":             "Stripe.APIKey",
		"API_STRIPE_WEBHOOK_SECRET":      "Stripe.WebhookSecret",
		"API_GENERATION_API_KEY":         "Generation.APIKey",
		"API_FULFILLMENT_API_KEY":        "Fulfillment.APIKey",
		"API_FULFILLMENT_WEBHOOK_SECRET": "Fulfillment.WebhookSecret",
		"API_NOTIFY_API_KEY":             "Notifications.APIKey",
		"API_SECURITY_ADMIN_API_KEY":     "Security.AdminAPIKey",
	}

	var required []string
	for envKey, field := range fields {
		value := strings.TrimSpace(env[envKey])
		if strings.HasPrefix(value, "secret://") || strings.HasPrefix(value, "sm://") {
			required = append(required, field)
		}
	}
	return required
}

func newNotifier(cfg config.NotificationConfig, logger *zap.Logger) (*notifications.Dispatcher, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.FromAddress) == "" {
		return nil, nil
	}
	mailer, err := notifications.NewClient(cfg.Endpoint, cfg.APIKey, notifications.WithTimeout(cfg.Timeout))
	if err != nil {
		return nil, err
	}
	return notifications.NewDispatcher(notifications.DispatcherConfig{
		Mailer:      mailer,
		FromAddress: cfg.FromAddress,
		FromName:    cfg.FromName,
		AdminEmail:  cfg.AdminEmail,
		Logger:      zapEventLogger(logger),
	})
}

func newEventPublisher(ctx context.Context, cfg config.PubsubConfig) (*jobs.PubSubEventPublisher, *pubsub.Client, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	publisher, err := jobs.NewPubSubEventPublisher(client.Topic(cfg.ArtworkTopic), client.Topic(cfg.OrderTopic))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return publisher, client, nil
}

func fulfillmentVerifier(cfg config.Config, logger *zap.Logger) func(http.Handler) http.Handler {
	secret := strings.TrimSpace(cfg.Fulfillment.WebhookSecret)
	if secret == "" {
		logger.Warn("fulfillment webhook secret not configured; vendor callbacks are accepted unsigned")
	}
	verifier := auth.NewWebhookVerifier(secret,
		auth.WithWebhookHeader(cfg.Security.HMAC.SignatureHeader),
		auth.WithWebhookLogger(observability.NewPrintfAdapter(logger)),
	)
	return verifier.RequireSignature()
}

func firestoreProbe(client *firestore.Client) handlers.ReadinessProbe {
	return func(ctx context.Context) error {
		probeCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
		defer cancel()
		iter := client.Collections(probeCtx)
		if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
			return err
		}
		return nil
	}
}

func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info(event, zFields...)
	}
}

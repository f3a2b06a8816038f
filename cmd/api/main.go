package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/mathauscm/api-mybot/internal/domain"
	"github.com/mathauscm/api-mybot/internal/handlers"
	"github.com/mathauscm/api-mybot/internal/platform/auth"
	"github.com/mathauscm/api-mybot/internal/platform/config"
	pfirestore "github.com/mathauscm/api-mybot/internal/platform/firestore"
	"github.com/mathauscm/api-mybot/internal/platform/idempotency"
	"github.com/mathauscm/api-mybot/internal/platform/jobs"
	"github.com/mathauscm/api-mybot/internal/platform/observability"
	"github.com/mathauscm/api-mybot/internal/platform/requestctx"
	"github.com/mathauscm/api-mybot/internal/platform/secrets"
	"github.com/mathauscm/api-mybot/internal/repositories"
	firestoreRepo "github.com/mathauscm/api-mybot/internal/repositories/firestore"
	"github.com/mathauscm/api-mybot/internal/repositories/memory"
	"github.com/mathauscm/api-mybot/internal/services"
)

// stores groups the repositories selected by API_STORE_BACKEND.
type stores struct {
	orders   repositories.OrderRepository
	counters repositories.CounterRepository
	catalog  repositories.CatalogRepository
	tenants  repositories.TenantRepository
	check    repositories.DependencyCheck
	close    func(context.Context) error
}

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

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

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	events := observability.EventLogger(logger.Named("services"))

	backend, err := newStores(ctx, logger, cfg, envValues)
	if err != nil {
		logger.Fatal("failed to initialise store", zap.String("backend", string(cfg.Store.Backend)), zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := backend.close(closeCtx); err != nil {
			logger.Warn("store close error", zap.Error(err))
		}
	}()
	checks := []repositories.DependencyCheck{backend.check}

	var (
		sender   services.NotificationSender
		notifier *jobs.PubSubNotifier
	)
	if cfg.Notifications.Enabled && strings.TrimSpace(cfg.PubSub.NotificationsTopic) != "" {
		pubsubClient, topic, err := newNotificationTopic(ctx, cfg)
		if err != nil {
			logger.Fatal("failed to initialise pubsub topic", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		notifier, err = jobs.NewPubSubNotifier(topic)
		if err != nil {
			logger.Fatal("failed to initialise notifier", zap.Error(err))
		}
		sender = notifier
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", topic.ID())
				}
				return nil
			},
		})
	} else {
		logger.Info("notifications disabled; order events will not be published")
	}

	var dispatcher services.NotificationDispatcher
	if sender != nil {
		dispatcher, err = services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
			Sender:  sender,
			Timeout: cfg.Notifications.Timeout,
			Logger:  events,
		})
		if err != nil {
			logger.Fatal("failed to initialise notification dispatcher", zap.Error(err))
		}
	}

	counterService, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: backend.counters,
		Location:   cfg.Orders.Location,
	})
	if err != nil {
		logger.Fatal("failed to initialise counter service", zap.Error(err))
	}

	catalogLookup, err := services.NewCatalogLookup(backend.catalog)
	if err != nil {
		logger.Fatal("failed to initialise catalog lookup", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        backend.orders,
		Counters:      counterService,
		Catalog:       catalogLookup,
		Notifications: dispatcher,
		StoreTimeout:  cfg.Orders.StoreTimeout,
		NumberRetries: cfg.Orders.NumberRetries,
		Logger:        events,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	statisticsService, err := services.NewStatisticsService(services.StatisticsServiceDeps{
		Orders:       backend.orders,
		Catalog:      backend.catalog,
		Location:     cfg.Orders.Location,
		StoreTimeout: cfg.Orders.StoreTimeout,
		Logger:       events,
	})
	if err != nil {
		logger.Fatal("failed to initialise statistics service", zap.Error(err))
	}

	idempotencyStore, closeIdempotency, idempotencyCheck, err := newIdempotencyStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	defer closeIdempotency()
	if idempotencyCheck != nil {
		checks = append(checks, *idempotencyCheck)
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		idempotency.RunCleanup(cleanupCtx, idempotencyStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
	}()

	systemService, err := newSystemService(checks, buildInfo)
	if err != nil {
		logger.Fatal("failed to initialise system service", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)
	apiKeys := auth.NewAPIKeyAuthenticator(backend.tenants, cfg.Security.APIKeyHeader, cfg.Security.APIKeyPepper)

	projectID := traceProjectID(cfg)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(systemService),
		handlers.WithHealthBuildInfo(buildInfo),
	)
	publicOrders := handlers.NewPublicOrderHandlers(orderService,
		handlers.WithCreateOrderMiddlewares(idempotency.Middleware(
			idempotencyStore,
			idempotency.WithHeader(cfg.Idempotency.Header),
			idempotency.WithTTL(cfg.Idempotency.TTL),
		)),
	)
	adminOrders := handlers.NewAdminOrderHandlers(authenticator, orderService, statisticsService)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(projectID),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPublicMiddlewares(
			apiKeys.RequireAPIKey(),
			handlers.TenantRateLimit(cfg.Security.PublicRateLimit, cfg.Security.PublicRateWindow, nil),
		),
		handlers.WithPublicRoutes(publicOrders.Routes),
		handlers.WithAdminRoutes(adminOrders.Routes),
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
		serverLogger.Info("mybot api listening",
			zap.String("store", string(cfg.Store.Backend)),
			zap.String("idempotency", string(cfg.Idempotency.Backend)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if dispatcher != nil {
		if err := dispatcher.Drain(shutdownCtx); err != nil {
			logger.Warn("notifications still in flight at shutdown", zap.Error(err))
		}
		notifier.Stop()
	}
}

func newStores(ctx context.Context, logger *zap.Logger, cfg config.Config, env map[string]string) (stores, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendMemory:
		return newMemoryStores(logger, cfg, env), nil
	default:
		return newFirestoreStores(ctx, cfg)
	}
}

func newFirestoreStores(ctx context.Context, cfg config.Config) (stores, error) {
	var providerOpts []pfirestore.ProviderOption
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(file)))
	}
	provider := pfirestore.NewProvider(cfg.Firestore, providerOpts...)
	if _, err := provider.Client(ctx); err != nil {
		return stores{}, err
	}

	orders, err := firestoreRepo.NewOrderRepository(provider)
	if err != nil {
		return stores{}, err
	}
	counters, err := firestoreRepo.NewCounterRepository(provider)
	if err != nil {
		return stores{}, err
	}
	catalog, err := firestoreRepo.NewCatalogRepository(provider)
	if err != nil {
		return stores{}, err
	}
	tenants, err := firestoreRepo.NewTenantRepository(provider)
	if err != nil {
		return stores{}, err
	}
	return stores{
		orders:   orders,
		counters: counters,
		catalog:  catalog,
		tenants:  tenants,
		check: repositories.DependencyCheck{
			Name:     "firestore",
			Timeout:  1500 * time.Millisecond,
			Critical: true,
			Check:    provider.Ping,
		},
		close: provider.Close,
	}, nil
}

// newMemoryStores backs a single-process development server. API_DEV_TENANT_ID and
// API_DEV_TENANT_API_KEY seed the tenant the bot authenticates as.
func newMemoryStores(logger *zap.Logger, cfg config.Config, env map[string]string) stores {
	tenants := memory.NewTenantRepository()
	if tenant, ok := devTenantFromEnv(env, cfg.Security.APIKeyPepper, time.Now().UTC()); ok {
		tenants.Put(tenant)
		logger.Info("seeded development tenant", zap.String("tenantId", tenant.ID))
	} else {
		logger.Warn("memory store has no tenants; set API_DEV_TENANT_ID and API_DEV_TENANT_API_KEY")
	}
	return stores{
		orders:   memory.NewOrderRepository(),
		counters: memory.NewCounterRepository(),
		catalog:  memory.NewCatalogRepository(),
		tenants:  tenants,
		check: repositories.DependencyCheck{
			Name:     "store",
			Critical: true,
			Check:    func(ctx context.Context) error { return ctx.Err() },
		},
		close: func(context.Context) error { return nil },
	}
}

func devTenantFromEnv(env map[string]string, pepper string, now time.Time) (domain.Tenant, bool) {
	id := strings.TrimSpace(env["API_DEV_TENANT_ID"])
	key := strings.TrimSpace(env["API_DEV_TENANT_API_KEY"])
	if id == "" || key == "" {
		return domain.Tenant{}, false
	}
	name := strings.TrimSpace(env["API_DEV_TENANT_NAME"])
	if name == "" {
		name = id
	}
	return domain.Tenant{
		ID:           id,
		Name:         name,
		ContactPhone: strings.TrimSpace(env["API_DEV_TENANT_PHONE"]),
		Active:       true,
		APIKeyHash:   auth.HashAPIKey(pepper, key),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, true
}

func newNotificationTopic(ctx context.Context, cfg config.Config) (*pubsub.Client, *pubsub.Topic, error) {
	if host := strings.TrimSpace(cfg.PubSub.EmulatorHost); host != "" {
		if err := os.Setenv("PUBSUB_EMULATOR_HOST", host); err != nil {
			return nil, nil, fmt.Errorf("configure pubsub emulator: %w", err)
		}
	}
	projectID := strings.TrimSpace(cfg.PubSub.ProjectID)
	if projectID == "" {
		return nil, nil, errors.New("pubsub project id is required")
	}
	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return client, client.Topic(cfg.PubSub.NotificationsTopic), nil
}

func newIdempotencyStore(ctx context.Context, cfg config.Config) (idempotency.Store, func(), *repositories.DependencyCheck, error) {
	if cfg.Idempotency.Backend != config.IdempotencyBackendRedis {
		return idempotency.NewMemoryStore(), func() {}, nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	check := &repositories.DependencyCheck{
		Name:    "redis",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
	closeFn := func() { _ = client.Close() }
	return idempotency.NewRedisStore(client, cfg.Redis.KeyPrefix), closeFn, check, nil
}

func newSystemService(checks []repositories.DependencyCheck, build services.BuildInfo) (services.SystemService, error) {
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
		Build:            build,
	})
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRET_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists secrets that must resolve before the server starts. Local runs may
// leave the API key pepper empty; every deployed environment needs it.
func requiredSecretNames(env map[string]string) []string {
	environment := strings.ToLower(strings.TrimSpace(env["API_SECURITY_ENVIRONMENT"]))
	var required []string
	if environment != "" && environment != "local" && environment != "test" {
		required = append(required, "Security.APIKeyPepper")
	}
	if strings.EqualFold(strings.TrimSpace(env["API_IDEMPOTENCY_BACKEND"]), string(config.IdempotencyBackendRedis)) &&
		strings.TrimSpace(env["API_REDIS_PASSWORD"]) != "" {
		required = append(required, "Redis.Password")
	}
	sort.Strings(required)
	return required
}

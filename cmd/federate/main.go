package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/federate/pkg/config"
	"github.com/platinummonkey/federate/pkg/httputil"
	"github.com/platinummonkey/federate/pkg/idp/memory"
	"github.com/platinummonkey/federate/pkg/middleware"
	"github.com/platinummonkey/federate/pkg/observability"
	"github.com/platinummonkey/federate/pkg/session"
	"github.com/platinummonkey/federate/pkg/sso"
	"github.com/platinummonkey/federate/pkg/storage/postgres"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName).
		WithField("version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("federate exited with error")
		os.Exit(1)
	}
	logger.Info("federate stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	tp, err := observability.InitOTel(ctx, cfg.Observability.OTelConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		observability.ShutdownOTel(shutdownCtx, tp, logger)
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	providersFile, err := config.LoadProviders(cfg.Federation.ProvidersFile)
	if err != nil {
		return err
	}

	cm, err := postgres.NewConnectionManager(cfg.Database.ConnectionConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer cm.Close()
	cm.StartHealthCheckRoutine(ctx, cfg.Database.HealthCheckInterval)

	if err := postgres.RunMigrations(ctx, cm.Primary(), logger); err != nil {
		return err
	}

	store := postgres.NewStoreFromManager(cm)
	if err := seed(ctx, store, providersFile.Bootstrap, logger); err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = newRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	sessionStore, sweeper, err := newSessionStore(cfg, cm, redisClient, metrics, logger)
	if err != nil {
		return err
	}
	if sweeper != nil {
		sweeper.Start()
		defer func() { <-sweeper.Stop().Done() }()
	}

	idpHTTP := sso.NewHTTPClient(cfg.Federation.IdPTimeout)
	discoveryCtx, cancel := context.WithTimeout(ctx, cfg.Federation.DiscoveryTimeout)
	providerConfigs, err := sso.DiscoverEndpoints(discoveryCtx, providersFile.Providers, idpHTTP)
	cancel()
	if err != nil {
		return err
	}

	providers, err := sso.NewRegistry(providerConfigs)
	if err != nil {
		return fmt.Errorf("invalid provider configuration: %w", err)
	}
	logger.WithField("providers", providers.Len()).Info("provider registry loaded")

	lookup, err := memory.NewLookup(providersFile.Users)
	if err != nil {
		return fmt.Errorf("invalid users configuration: %w", err)
	}

	idp := sso.NewIdPClient(idpHTTP, metrics, logger)
	resolver := sso.NewGroupResolver(store, metrics, logger)
	memberships := sso.NewMembershipSynchronizer(store, store, cfg.Federation.DefaultRoleTTL, metrics, logger)
	provisioner := sso.NewUserProvisioner(store, resolver, memberships, metrics, logger)
	issuer := sso.NewSessionIssuer(sessionStore, store, cfg.Session.TTL)
	pipeline := sso.NewPipeline(sso.PipelineDeps{
		Registry:    providers,
		Exchanger:   idp,
		Fetcher:     idp,
		Provisioner: provisioner,
		Memberships: memberships,
		Sessions:    issuer,
		Metrics:     metrics,
		Logger:      logger,
	})

	router := mux.NewRouter()
	router.Use(
		middleware.RequestID(logger),
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
	)
	if cfg.Observability.MetricsEnabled {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}

	requireSession := middleware.SessionAuth(issuer, logger)
	sso.NewHandlers(providers, pipeline, issuer, cfg.Session.CookieOptions(), logger).
		RegisterRoutes(router, requireSession, newLoginLimiter(ctx, cfg.Federation, redisClient, logger))
	memory.NewHandlers(lookup).RegisterRoutes(router, requireSession)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, "federate"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(cm.Primary(), redisClient, version)
	if len(cfg.Database.ReplicaURLs) > 0 {
		checker.AddCheck("replicas", cm.HealthCheck)
	}
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(apiServer, "api", logger) })
	g.Go(func() error { return serve(healthServer, "health", logger) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), healthServer.Shutdown(shutdownCtx))
	})

	return g.Wait()
}

func serve(server *http.Server, name string, logger *observability.Logger) error {
	logger.WithField("addr", server.Addr).Infof("%s server listening", name)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

func newRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// newSessionStore picks Redis when configured. Postgres sessions need a
// sweeper since rows do not expire on their own.
func newSessionStore(cfg *config.Config, cm *postgres.ConnectionManager, redisClient *redis.Client, metrics *observability.Metrics, logger *observability.Logger) (session.Store, *session.Sweeper, error) {
	if redisClient != nil {
		logger.Info("sessions stored in redis")
		return session.NewRedisStore(redisClient), nil, nil
	}

	store := postgres.NewSessionStore(cm.Primary())
	sweeper := session.NewSweeper(store, metrics, logger)
	if err := sweeper.Schedule(cfg.Session.CleanupSchedule); err != nil {
		return nil, nil, err
	}
	logger.WithField("schedule", cfg.Session.CleanupSchedule).Info("sessions stored in postgres")
	return store, sweeper, nil
}

// newLoginLimiter returns nil when login rate limiting is disabled
func newLoginLimiter(ctx context.Context, cfg config.FederationConfig, redisClient *redis.Client, logger *observability.Logger) func(http.Handler) http.Handler {
	limit := cfg.RateLimitConfig()
	if limit == nil {
		return nil
	}
	if redisClient != nil {
		return middleware.RateLimit(middleware.NewRedisLimiter(redisClient, limit, "federate:login"), logger)
	}

	limiter := middleware.NewMemoryLimiter(limit)
	go func() {
		ticker := time.NewTicker(limit.WindowDuration * 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
	return middleware.RateLimit(limiter, logger)
}

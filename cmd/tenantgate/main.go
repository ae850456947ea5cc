package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tenantgate/pkg/api"
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/billing"
	"github.com/platinummonkey/tenantgate/pkg/config"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/orgs"
	"github.com/platinummonkey/tenantgate/pkg/profile"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/schema"
	"github.com/platinummonkey/tenantgate/pkg/storage"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const (
	roleCacheSize = 1024
	roleCacheTTL  = time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	db, err := openDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// Rate-limit counters live in Redis when configured, otherwise in process
	var redisClient *redis.Client
	var counters middleware.CounterStore
	var memoryCounters *middleware.MemoryCounterStore
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		if cfg.Redis.DB != 0 {
			opts.DB = cfg.Redis.DB
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		counters = middleware.NewRedisCounterStore(redisClient, "tenantgate:ratelimit")
		logger.Info("Using Redis rate-limit counters")
	} else {
		memoryCounters = middleware.NewMemoryCounterStore()
		counters = memoryCounters
		logger.Warn("Redis not configured, rate-limit counters are per process")
	}

	tracerProvider, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Failed to flush traces")
			}
		}()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	var (
		gateObserver      middleware.GateObserver
		rateLimitObserver middleware.RateLimitObserver
		decisionObserver  rbac.DecisionObserver
		metricsMiddleware func(http.Handler) http.Handler
	)
	if cfg.Observability.MetricsEnabled {
		gateObserver = metrics
		rateLimitObserver = metrics
		decisionObserver = metrics
		metricsMiddleware = metrics.HTTPMiddleware
	}

	if cfg.OIDC.IssuerURL == "" {
		return errors.New("an OIDC issuer is required (TENANTGATE_OIDC_ISSUER_URL)")
	}
	verifier, provider, err := auth.NewOIDCVerifier(ctx, cfg.OIDC.IssuerURL, cfg.OIDC.ClientID)
	if err != nil {
		return fmt.Errorf("failed to discover identity provider: %w", err)
	}
	signIn := auth.NewSignInFlow(auth.SignInConfig{
		OAuth2:             auth.NewOAuth2Config(provider, cfg.OIDC.ClientID, cfg.OIDC.ClientSecret, cfg.OIDC.RedirectURL),
		CookieName:         cfg.OIDC.CookieName,
		CookieSecure:       cfg.OIDC.CookieSecure,
		DefaultRedirectURL: cfg.Routes.DefaultRedirectURL,
		LoginURL:           cfg.Routes.LoginURL,
	}, verifier)

	resolver := orgs.NewResolver(cfg.Tenancy.Mode)
	orgService := orgs.NewPostgresService(db, resolver)
	billingService := billing.NewPostgresService(db)
	roles := rbac.NewCachedRoleStore(rbac.NewPostgresRoleStore(db), roleCacheSize, roleCacheTTL)
	authorizer := rbac.NewAuthorizer(rbac.NewRegistry(), roles, decisionObserver, logger)
	if violations := authorizer.Registry().HierarchyViolations(); len(violations) > 0 {
		logger.WithField("violations", len(violations)).Warn("System roles do not form a strict permission ladder")
	}

	health := observability.NewHealthChecker(db, redisClient, version)

	var files api.FileStore
	if cfg.Storage.Bucket != "" {
		store, err := storage.NewS3Store(ctx, storage.Config{
			Bucket:       cfg.Storage.Bucket,
			Region:       cfg.Storage.Region,
			Endpoint:     cfg.Storage.Endpoint,
			AccessKey:    cfg.Storage.AccessKey,
			SecretKey:    cfg.Storage.SecretKey,
			UsePathStyle: cfg.Storage.UsePathStyle,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize object storage: %w", err)
		}
		files = store
		health.AddCheck("object_storage", store.HealthCheck)
		logger.WithField("bucket", cfg.Storage.Bucket).Info("Object storage enabled")
	}

	var webhooks *billing.WebhookVerifier
	if cfg.Billing.WebhookSecret != "" {
		webhooks = billing.NewWebhookVerifier(cfg.Billing.WebhookSecret)
	} else {
		logger.Warn("Billing webhook secret not configured, webhooks are disabled")
	}

	rules := middleware.RouteRules{
		Public:             cfg.Routes.Public,
		Auth:               cfg.Routes.Auth,
		Admin:              cfg.Routes.Admin,
		API:                cfg.Routes.API,
		LoginURL:           cfg.Routes.LoginURL,
		DefaultRedirectURL: cfg.Routes.DefaultRedirectURL,
		UnauthorizedURL:    cfg.Routes.UnauthorizedURL,
	}
	limits := make(map[middleware.RouteClass]middleware.Limit, len(cfg.RateLimits))
	for class, limit := range cfg.RateLimits {
		limits[middleware.RouteClass(class)] = middleware.Limit{Requests: limit.Requests, Window: limit.Window}
	}

	server := api.NewServer(api.Config{
		Logger:      logger,
		Resolver:    resolver,
		Gate:        middleware.NewGate(rules, auth.NewSessionResolver(verifier, cfg.OIDC.CookieName), gateObserver),
		RateLimiter: middleware.NewRateLimitMiddleware(counters, limits, rules.Classify, rateLimitObserver, logger).TrustProxyHeaders(cfg.Server.TrustProxyHeaders),
		Quota:       middleware.NewQuotaMiddleware(billingService, resolver, logger),
		Metrics:     metricsMiddleware,
		Orgs:        orgService,
		Authorizer:  authorizer,
		Roles:       roles,
		Billing:     billingService,
		Webhooks:    webhooks,
		Profiles:    profile.NewPostgresStore(db),
		Files:       files,
		SignIn:      signIn,
		Version:     version,
		Tracing:     tracerProvider != nil,
	})

	scheduler, err := newScheduler(cfg.Billing, billingService, memoryCounters, logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, health)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler())
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		return listen(apiServer)
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		return listen(healthServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), healthServer.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server %s failed: %w", srv.Addr, err)
	}
	return nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger logrus.FieldLogger) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("a database is required (TENANTGATE_DATABASE_URL)")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.MigrateOnBoot {
		if err := schema.Apply(ctx, db, logger); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return db, nil
}

// Package observability provides logging, metrics, tracing, and health checks.
//
// # Logging
//
// The process logger is logrus; JSON in production, text for local development:
//
//	logger := observability.NewLogger("info", observability.FormatJSON, os.Stdout)
//
// Request-scoped entries are attached by httputil.LoggingMiddleware.
//
// # Metrics
//
// Prometheus metrics live on an explicit registry:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	router.Use(metrics.HTTPMiddleware)
//	healthMux.Handle("/metrics", metrics.Handler())
//
// Access-control metrics: gate decisions, rate-limit rejections, counter store
// errors, and permission evaluator outcomes.
//
// # Tracing
//
//	tp, err := observability.InitTracing(ctx, cfg, logger)
//	defer tp.Shutdown(ctx)
//
// # Health
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(healthMux, checker)
package observability

// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing and health probes for the federate service.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("provider", "github").Info("login started")
//
// Request-scoped loggers travel in the context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Warn("profile field missing")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.LoginsTotal.WithLabelValues("github", "success").Inc()
//
// # Tracing
//
// InitOTel installs a global tracer provider exporting over OTLP/gRPC. When
// disabled, otel's no-op provider stays in place and spans cost nothing.
//
// # Health
//
// HealthChecker serves /health/live and /health/ready, pinging Postgres and,
// when configured, Redis.
package observability

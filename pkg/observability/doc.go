// Package observability provides structured logging, health checks, and graceful shutdown.
//
// # Overview
//
// This package centralizes the operational infrastructure shared by the server
// binary: logrus logger construction, dependency health probes for the
// configured backends, panic recovery helpers and coordinated shutdown.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger("info", "json")
//	logger.WithField("entity", "users").Info("request handled")
//
// # Health Checks
//
// Configure health checker over the live backend connections:
//
//	checker := observability.NewHealthChecker(map[string]*sql.DB{
//		"postgres": pgDB,
//	}, redisClient)
//	status := checker.Check(ctx)
//
// Register probe endpoints:
//
//	observability.RegisterHealthRoutes(mux, checker)
//
// # Graceful Shutdown
//
// Block until a termination signal then drain:
//
//	sm := observability.NewShutdownManager(logger, httpServer, 30*time.Second)
//	sm.RegisterShutdownFunc(func(ctx context.Context) error { return db.Close() })
//	sm.WaitForShutdown()
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/repository: Prometheus operation metrics
package observability

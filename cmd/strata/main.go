package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/strata-dev/strata/pkg/config"
	"github.com/strata-dev/strata/pkg/driver"
	"github.com/strata-dev/strata/pkg/driver/memory"
	"github.com/strata-dev/strata/pkg/driver/postgres"
	remotedrv "github.com/strata-dev/strata/pkg/driver/remote"
	redisdrv "github.com/strata-dev/strata/pkg/driver/redis"
	"github.com/strata-dev/strata/pkg/driver/sqlite"
	"github.com/strata-dev/strata/pkg/observability"
	"github.com/strata-dev/strata/pkg/permission"
	"github.com/strata-dev/strata/pkg/policy"
	"github.com/strata-dev/strata/pkg/repository"
	"github.com/strata-dev/strata/pkg/schema"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)

	sch, err := schema.LoadFile(cfg.SchemaPath)
	if err != nil {
		log.WithError(err).WithField("path", cfg.SchemaPath).Fatal("Failed to load entity schema")
	}
	log.WithField("entities", len(sch.EntityNames())).Info("Entity schema loaded")

	reg, err := policy.LoadFile(cfg.PolicyPath)
	if err != nil {
		log.WithError(err).WithField("path", cfg.PolicyPath).Fatal("Failed to load policy registry")
	}
	store := policy.NewStore(reg)
	log.WithFields(logrus.Fields{
		"roles": len(reg.RoleNames()),
		"path":  cfg.PolicyPath,
	}).Info("Policy registry loaded")

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if cfg.PolicyWatch {
		watcher := policy.NewWatcher(store, cfg.PolicyPath, log)
		go func() {
			defer observability.RecoverPanic(log, "policy watcher")
			if err := watcher.Run(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("Policy watcher stopped")
			}
		}()
	}

	// Backend connections. The SQL handles and redis client are shared
	// with the health checker.
	drivers := map[string]driver.Driver{"memory": memory.New()}
	dbs := make(map[string]*sql.DB)
	var redisClient *redis.Client

	if cfg.Backends.SQLitePath != "" {
		db, err := openDB("sqlite3", cfg.Backends.SQLitePath)
		if err != nil {
			log.WithError(err).Fatal("Failed to open sqlite database")
		}
		dbs["sqlite"] = db
		drivers["sqlite"] = sqlite.NewWithDB(db)
		log.WithField("path", cfg.Backends.SQLitePath).Info("SQLite backend enabled")
	}

	if cfg.Backends.PostgresURL != "" {
		db, err := openDB("postgres", cfg.Backends.PostgresURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to postgres")
		}
		db.SetMaxOpenConns(cfg.Backends.PostgresMaxConns)
		dbs["postgres"] = db
		drivers["postgres"] = postgres.NewWithDB(db)
		log.Info("PostgreSQL backend enabled")
	}

	if cfg.Backends.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Backends.RedisAddr,
			Password: cfg.Backends.RedisPassword,
			DB:       cfg.Backends.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to redis")
		}
		drivers["redis"] = redisdrv.NewWithClient(redisClient, cfg.Backends.RedisKeyPrefix)
		log.WithField("addr", cfg.Backends.RedisAddr).Info("Redis backend enabled")
	}

	if cfg.Backends.RemoteURL != "" {
		drivers["remote"] = remotedrv.NewClient(cfg.Backends.RemoteURL, &http.Client{
			Timeout: cfg.Backends.RemoteTimeout,
		})
		log.WithField("url", cfg.Backends.RemoteURL).Info("Remote backend enabled")
	}

	var metrics *repository.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = repository.NewMetrics(prometheus.DefaultRegisterer)
	}

	engine := permission.NewEngine(store,
		permission.WithLogger(log),
		permission.WithCacheSize(cfg.PermissionCacheSize),
	)
	repo := repository.New(sch, drivers, engine,
		repository.WithLogger(log),
		repository.WithMetrics(metrics),
	)

	repoDriver := repo.Driver()
	handler := remotedrv.NewHandler(repoDriver, log)

	rootMux := http.NewServeMux()
	rootMux.Handle("/v1/", callerMiddleware(handler, cfg.Server.TrustBypassHeader))
	observability.RegisterHealthRoutes(rootMux, observability.NewHealthChecker(dbs, redisClient))
	if cfg.Observability.MetricsEnabled {
		rootMux.Handle("/metrics", promhttp.Handler())
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      rootMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		defer observability.RecoverPanic(log, "http server")
		log.WithField("addr", server.Addr).Info("Starting Strata data-access server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	sm := observability.NewShutdownManager(log, server, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		cancelWatch()
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return repoDriver.Close()
	})

	if err := sm.WaitForShutdown(); err != nil {
		log.WithError(err).Error("Shutdown finished with errors")
	}
}

func openDB(driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Package main is the entry point for the coedit core server. It wires
// the stores, engines, and operational HTTP endpoints together.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sellside/coedit/internal/authz"
	"github.com/sellside/coedit/internal/config"
	"github.com/sellside/coedit/internal/lock"
	"github.com/sellside/coedit/internal/notify"
	"github.com/sellside/coedit/internal/observability"
	"github.com/sellside/coedit/internal/record"
	"github.com/sellside/coedit/internal/version"
	"github.com/sellside/coedit/internal/workflow"
	"github.com/sellside/coedit/model"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	buildVersion = "dev"
	buildCommit  = "unknown"
)

func main() {
	os.Exit(run())
}

// stores bundles the persistence layer behind whichever driver config
// selected.
type stores struct {
	records     record.Store
	locks       lock.Store
	versions    version.Store
	transitions workflow.Store
	closer      func()
	health      map[string]observability.HealthChecker
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = buildVersion
	observability.Commit = buildCommit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "coedit-core", buildVersion)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	st, err := buildStores(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("store initialization failed", zap.Error(err))
		return 1
	}
	if st.closer != nil {
		defer st.closer()
	}

	authorizer, err := buildAuthorizer(cfg.Authz, logger)
	if err != nil {
		logger.Error("authorizer initialization failed", zap.Error(err))
		return 1
	}

	lockManager := lock.NewManager(st.locks, st.records, authorizer, logger, metrics, lock.Options{
		DefaultTTL: cfg.Lock.DefaultTTL,
		MaxTTL:     cfg.Lock.MaxTTL,
		SweepGrace: cfg.Lock.SweepGrace,
	})

	versionEngine := version.NewEngine(st.records, st.versions, logger, metrics, version.Options{
		MaxCreateRetries: cfg.Version.MaxCreateRetries,
		BackupOnRevert:   cfg.Version.BackupOnRevert,
	})

	dispatcher := notify.NewAsyncDispatcher(notify.NewLogNotifier(logger), cfg.Notify.QueueSize, metrics)
	defer dispatcher.Close()

	snapshotStatuses := make([]model.Status, 0, len(cfg.Workflow.SnapshotStatuses))
	for _, s := range cfg.Workflow.SnapshotStatuses {
		snapshotStatuses = append(snapshotStatuses, model.Status(s))
	}
	workflowEngine := workflow.NewEngine(
		st.records, st.transitions, versionEngine, lockManager,
		authorizer, dispatcher, logger, metrics,
		workflow.Options{SnapshotStatuses: snapshotStatuses},
	)
	// The engines are the library surface consumed in-process by the
	// embedding application; the daemon exposes only operational
	// endpoints around them.
	_ = workflowEngine

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	if cfg.Lock.SweepInterval > 0 {
		go runLockSweeper(bgCtx, lockManager, cfg.Lock.SweepInterval, logger)
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", observability.HandleHealth())
	mux.Handle("/readyz", observability.HandleReady(st.health))
	if cfg.Observability.Metrics.Enabled {
		path := cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, observability.Handler())
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", buildVersion),
		zap.String("commit", buildCommit),
		zap.String("store_driver", cfg.Store.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	bgCancel()

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildStores creates the persistence layer based on config.
func buildStores(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*stores, error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory stores")
		recordStore := record.NewMemoryStore()
		return &stores{
			records:     recordStore,
			locks:       lock.NewMemoryStore(),
			versions:    version.NewMemoryStore(),
			transitions: workflow.NewMemoryStore(recordStore),
			health:      map[string]observability.HealthChecker{},
		}, nil
	case "postgres", "":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, fmt.Errorf("store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("store: ping: %w", err)
		}

		recordStore := record.NewPgStore(pool)
		return &stores{
			records:     recordStore,
			locks:       lock.NewPgStore(pool),
			versions:    version.NewPgStore(pool),
			transitions: workflow.NewPgStore(pool),
			closer:      pool.Close,
			health: map[string]observability.HealthChecker{
				"store": recordStore,
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %q", cfg.Driver)
	}
}

// buildAuthorizer creates the authorization policy based on config. With
// no policy file configured everything is permitted, which is only
// acceptable for development.
func buildAuthorizer(cfg config.AuthzConfig, logger *zap.Logger) (model.Authorizer, error) {
	if cfg.PolicyFile == "" {
		logger.Warn("no authorization policy file configured, permitting all actions")
		return authz.AllowAll{}, nil
	}
	policy, err := authz.NewStaticPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("static policy: %w", err)
	}
	return policy, nil
}

// runLockSweeper periodically reclaims lapsed lock rows.
func runLockSweeper(ctx context.Context, manager *lock.Manager, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := manager.Sweep(ctx); err != nil {
				logger.Error("lock sweep failed", zap.Error(err))
			}
		}
	}
}

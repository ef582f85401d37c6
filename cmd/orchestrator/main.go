// Command orchestrator boots one replica of the job orchestrator: the poll
// loops that drive jobs through their lifecycle (manager) and the
// debug-only introspection surface (introspect). The submit/check surface
// (api.Surface) has no wire transport here — gRPC transport is an
// out-of-scope external collaborator; a deployment embeds api.Surface
// behind whatever transport it brings.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"orchestrator/auth"
	"orchestrator/cache"
	config "orchestrator/config"
	"orchestrator/crypter"
	"orchestrator/executor"
	"orchestrator/introspect"
	"orchestrator/manager"
	"orchestrator/processor"
	"orchestrator/replicache"
	"orchestrator/sqlcache"
)

var mainLogger = logrus.WithFields(logrus.Fields{"component": "cmd/orchestrator"})

func main() {
	cfg := config.OrchestratorConfig{}
	config.Read(&cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c, err := buildCache(ctx, cfg)
	if err != nil {
		mainLogger.WithError(err).Fatal("build cache backend")
	}

	issuer, err := auth.NewIssuer(cfg.AuthAESKey, cfg.AuthAESIv, config.Seconds(cfg.SessionTTLSeconds))
	if err != nil {
		mainLogger.WithError(err).Fatal("build auth issuer")
	}

	deps := processor.New(executor.NewFake(), newLoggingMetadata())

	mgr := manager.New(c, deps, issuer, managerConfig(cfg))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mgr.Run(ctx)
	}()

	if cfg.AdminBindAddress != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runAdminServer(ctx, cfg, c)
		}()
	}

	if cfg.BeaconBindAddress != "" && cfg.ReplicaID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runBeacon(ctx, cfg, c)
		}()
	}

	if cfg.DebugHTTPAddress != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runDebugHTTP(ctx, cfg, c)
		}()
	}

	mainLogger.WithField("replicaId", cfg.ReplicaID).Info("orchestrator started")
	<-ctx.Done()
	mainLogger.Info("shutdown signal received, draining in-flight work")
	wg.Wait()
	mainLogger.Info("orchestrator stopped")
}

// buildCache selects the Cache backend named by cfg.CacheBackend. memory
// is the default so a replica with no backend configured still starts.
func buildCache(ctx context.Context, cfg config.OrchestratorConfig) (cache.Cache, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		codec := cache.NewCodec(nil)
		return replicache.NewRedisCache(ctx, replicache.Config{Addr: cfg.RedisAddr}, codec)
	case config.CacheBackendMySQL:
		codec := cache.NewCodec(nil)
		return sqlcache.Open(sqlcache.Config{Addr: cfg.MySQLDSN}, codec)
	case config.CacheBackendMemory, "":
		return cache.NewMemCache(), nil
	default:
		mainLogger.WithField("cacheBackend", cfg.CacheBackend).Warn("unrecognized cache backend, falling back to memory")
		return cache.NewMemCache(), nil
	}
}

func managerConfig(cfg config.OrchestratorConfig) manager.Config {
	return manager.Config{
		CachePollInterval:       config.Seconds(cfg.CachePollIntervalSeconds),
		ExecutorPollInterval:    config.Seconds(cfg.ExecutorPollIntervalSeconds),
		CacheLease:              config.Seconds(cfg.CacheLeaseSeconds),
		ExecutorLease:           config.Seconds(cfg.ExecutorLeaseSeconds),
		MaxRunningJobs:          cfg.MaxRunningJobs,
		StartupDelay:            config.Seconds(cfg.StartupDelaySeconds),
		RetentionDelay:          config.Seconds(cfg.RetentionDelaySeconds),
		RetentionDelayOnFailure: config.Seconds(cfg.RetentionDelayOnFailureSeconds),
		RetryLimit:              cfg.RetryLimit,
		ProcessingTimeout:       config.Seconds(cfg.ProcessingTimeoutSeconds),
		WorkerPoolSize:          cfg.WorkerPoolSize,
	}
}

func runAdminServer(ctx context.Context, cfg config.OrchestratorConfig, c cache.Cache) {
	crypt, err := crypter.NewAes(cfg.AdminAESKey, cfg.AdminAESIv)
	if err != nil {
		mainLogger.WithError(err).Error("admin server disabled: bad AES key/iv")
		return
	}
	srv := introspect.NewAdminServer(c, crypt)
	if err := srv.Serve(ctx, cfg.AdminBindAddress); err != nil && ctx.Err() == nil {
		mainLogger.WithError(err).Error("admin server stopped")
	}
}

func runBeacon(ctx context.Context, cfg config.OrchestratorConfig, c cache.Cache) {
	interval := config.Seconds(cfg.BeaconIntervalSeconds)
	if interval <= 0 {
		interval = 5 * time.Second
	}
	b := introspect.NewBeacon(cfg.ReplicaID, c, cfg.BeaconPeers, interval)
	if err := b.Run(ctx, cfg.BeaconBindAddress); err != nil && ctx.Err() == nil {
		mainLogger.WithError(err).Error("beacon stopped")
	}
}

func runDebugHTTP(ctx context.Context, cfg config.OrchestratorConfig, c cache.Cache) {
	mux := http.NewServeMux()
	mux.Handle("/debug/cache", introspect.NewDebugHandler(c))
	srv := &http.Server{Addr: cfg.DebugHTTPAddress, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		mainLogger.WithError(err).Error("debug http server stopped")
	}
}

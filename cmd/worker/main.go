package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/devflow/devflow-api/config"
	"github.com/devflow/devflow-api/internal/bootstrap"
	"github.com/devflow/devflow-api/internal/handler/health"
	promHandler "github.com/devflow/devflow-api/internal/handler/prometheus"
	"github.com/devflow/devflow-api/internal/middleware"
	"github.com/devflow/devflow-api/internal/realtime"
	"github.com/devflow/devflow-api/internal/repository/postgres"
	internalWorker "github.com/devflow/devflow-api/internal/worker"
)

// healthPort serves liveness, readiness and metrics for the worker.
const healthPort = 8081

// The worker drains the notification outbox for API instances running
// with outbox.embedded=false. Pushes reach sockets through the Redis bus.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if !cfg.Redis.Enabled {
		log.Fatal().Msg("the standalone worker needs redis.enabled to reach API instances")
	}

	appLog := bootstrap.NewLogger(cfg.Log).WithFields(map[string]interface{}{"process": "worker"})
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		appLog.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()

	m, registry := bootstrap.NewMetrics(cfg.Monitoring)

	rt, err := bootstrap.NewRealtime(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal(err, "Failed to connect to Redis")
	}
	defer rt.Close()

	base := postgres.NewBaseRepository(db)
	repos, users := bootstrap.Repositories(base, cfg.Cache)
	publisher := realtime.NewPublisher(rt.Bus, rt.Presence, cfg.Redis.Channel)

	processor, err := bootstrap.NewOutboxProcessor(cfg, repos, users, publisher, appLog, m)
	if err != nil {
		appLog.Fatal(err, "Failed to set up outbox processor")
	}
	cleanup := internalWorker.NewOutboxCleanupWorker(repos.Outbox, cfg.Outbox.RetentionDays, cfg.Outbox.CleanupInterval, appLog, m)

	srv := healthServer(db.PingContext, rt, promHandler.New(registry, m))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error(err, "Health check server failed")
			stop()
		}
	}()

	go cleanup.Start(ctx)
	processor.Start(ctx)

	appLog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(err, "Health check server forced to shutdown")
	}
}

func healthServer(pingDB health.Check, rt *bootstrap.Realtime, prom *promHandler.Handler) *http.Server {
	engine := gin.New()
	engine.Use(middleware.Recovery())

	checks := map[string]health.Check{
		"database": pingDB,
		"redis":    func(ctx context.Context) error { return rt.Redis.Ping(ctx).Err() },
	}
	health.NewHandler(checks).RegisterRoutes(&engine.RouterGroup)
	engine.GET("/metrics", prom.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", healthPort),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

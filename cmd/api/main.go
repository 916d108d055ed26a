package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/devflow/devflow-api/config"
	"github.com/devflow/devflow-api/internal/bootstrap"
	"github.com/devflow/devflow-api/internal/handler/activity"
	"github.com/devflow/devflow-api/internal/handler/admin"
	"github.com/devflow/devflow-api/internal/handler/health"
	notificationHandler "github.com/devflow/devflow-api/internal/handler/notification"
	presenceHandler "github.com/devflow/devflow-api/internal/handler/presence"
	promHandler "github.com/devflow/devflow-api/internal/handler/prometheus"
	"github.com/devflow/devflow-api/internal/middleware"
	"github.com/devflow/devflow-api/internal/realtime"
	"github.com/devflow/devflow-api/internal/repository/postgres"
	"github.com/devflow/devflow-api/internal/router"
	"github.com/devflow/devflow-api/internal/service/notification"
	internalWorker "github.com/devflow/devflow-api/internal/worker"
	"github.com/devflow/devflow-api/pkg/auth"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := bootstrap.NewLogger(cfg.Log)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		appLog.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		appLog.Fatal(err, "failed to apply migrations")
	}

	m, registry := bootstrap.NewMetrics(cfg.Monitoring)

	rt, err := bootstrap.NewRealtime(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal(err, "failed to set up realtime backends")
	}
	defer rt.Close()

	// Initialize repositories
	base := postgres.NewBaseRepository(db)
	repos, users := bootstrap.Repositories(base, cfg.Cache)

	publisher := realtime.NewPublisher(rt.Bus, rt.Presence, cfg.Redis.Channel)

	// Delivery runs here unless a standalone worker owns the outbox.
	var waker notification.Waker
	if cfg.Outbox.Embedded {
		processor, err := bootstrap.NewOutboxProcessor(cfg, repos, users, publisher, appLog, m)
		if err != nil {
			appLog.Fatal(err, "failed to set up outbox processor")
		}
		waker = processor
		go processor.Start(ctx)

		cleanup := internalWorker.NewOutboxCleanupWorker(repos.Outbox, cfg.Outbox.RetentionDays, cfg.Outbox.CleanupInterval, appLog, m)
		go cleanup.Start(ctx)
	}

	notificationSvc := notification.NewService(repos, publisher, waker, appLog, m)

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer)
	gateway := realtime.NewGateway(realtime.Config{
		WriteWait:         cfg.Realtime.WriteWait,
		PongWait:          cfg.Realtime.PongWait,
		MaxMessageSize:    cfg.Realtime.MaxMessageSize,
		SendBuffer:        cfg.Realtime.SendBuffer,
		InboundRate:       cfg.Realtime.InboundRate,
		InboundBurst:      cfg.Realtime.InboundBurst,
		AllowedOrigins:    cfg.Realtime.AllowedOrigins,
		HeartbeatInterval: cfg.Presence.HeartbeatInterval,
	}, publisher, jwtSvc, repos.Users, notificationSvc, appLog, m)
	if err := gateway.Start(ctx); err != nil {
		appLog.Fatal(err, "failed to start realtime gateway")
	}

	// Initialize middleware
	adminIDs, err := cfg.Admin.IDs()
	if err != nil {
		appLog.Fatal(err, "invalid admin configuration")
	}
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc, adminIDs)

	// Initialize handlers
	checks := map[string]health.Check{"database": db.PingContext}
	if rt.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return rt.Redis.Ping(ctx).Err() }
	}
	handlers := router.Handlers{
		Health:        health.NewHandler(checks),
		Notifications: notificationHandler.NewHandler(notificationSvc, publisher, appLog),
		Activity:      activity.NewHandler(notificationSvc),
		Presence:      presenceHandler.NewHandler(publisher),
		Admin:         admin.NewHandler(notificationSvc),
		WebSocket:     gateway.ServeWS,
	}

	var prom *promHandler.Handler
	if cfg.Monitoring.PrometheusEnabled {
		prom = promHandler.New(registry, m)
	}

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	routerConfig := router.RouterConfig{
		CORS:         corsConfig,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		MetricsPath:  cfg.Monitoring.MetricsPath,
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = &middleware.RateLimiterConfig{
			Rate:  rate.Limit(cfg.RateLimit.RequestsPerSecond),
			Burst: cfg.RateLimit.Burst,
		}
	}

	r := router.NewRouter(authMiddleware, handlers, prom, routerConfig)
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		appLog.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	stop()
	appLog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(err, "server forced to shutdown")
	}

	appLog.Info("server exited properly")
}

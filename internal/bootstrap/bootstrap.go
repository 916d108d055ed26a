// Package bootstrap builds the components shared by the api and worker
// binaries from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/devflow/devflow-api/config"
	"github.com/devflow/devflow-api/internal/email"
	"github.com/devflow/devflow-api/internal/model"
	"github.com/devflow/devflow-api/internal/presence"
	"github.com/devflow/devflow-api/internal/realtime"
	"github.com/devflow/devflow-api/internal/repository"
	"github.com/devflow/devflow-api/internal/repository/cache"
	"github.com/devflow/devflow-api/internal/repository/postgres"
	"github.com/devflow/devflow-api/internal/service/notification"
	"github.com/devflow/devflow-api/pkg/logger"
	"github.com/devflow/devflow-api/pkg/messaging"
	"github.com/devflow/devflow-api/pkg/messaging/memory"
	"github.com/devflow/devflow-api/pkg/messaging/redis"
	"github.com/devflow/devflow-api/pkg/metrics"
	"github.com/devflow/devflow-api/pkg/worker"
)

// NewLogger builds the application logger and installs it as the global
// zerolog logger used by the HTTP middleware.
func NewLogger(cfg config.LogConfig) *logger.Logger {
	l := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Console:    cfg.Console,
		Output:     os.Stdout,
	})
	log.Logger = *l.Zerolog()
	return l
}

// NewMetrics registers application and runtime collectors on a fresh
// registry, which is also what /metrics serves.
func NewMetrics(cfg config.MonitoringConfig) (*metrics.Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewMetrics(reg, cfg.Namespace), reg
}

// Realtime is the bus and presence registry pair the publisher needs.
type Realtime struct {
	Bus      messaging.Broker
	Presence presence.Registry
	// Redis is nil when running single-instance. It is owned by Bus.
	Redis *goredis.Client
}

// Close shuts down the bus, and with it the Redis client.
func (r *Realtime) Close() {
	if err := r.Bus.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close message bus")
	}
}

// NewRealtime connects to Redis when enabled and otherwise falls back to
// process-local implementations. Redis mode always shares presence
// through Redis.
func NewRealtime(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Realtime, error) {
	if !cfg.Redis.Enabled {
		return &Realtime{
			Bus:      memory.NewBroker(),
			Presence: presence.NewMemoryRegistry(),
		}, nil
	}

	// Publishers on other processes must see the sockets held here.
	if cfg.Presence.Backend != "redis" {
		return nil, fmt.Errorf("redis.enabled requires presence.backend=redis, got %q", cfg.Presence.Backend)
	}

	client, err := redis.NewClient(ctx, cfg.Redis.ToBrokerConfig())
	if err != nil {
		return nil, err
	}

	return &Realtime{
		Bus:      redis.NewRedisBroker(client, log),
		Presence: presence.NewRedisRegistry(client, cfg.Presence.TTL),
		Redis:    client,
	}, nil
}

// Repositories opens the notification stores on db. The returned
// repositories read users uncached, since handshakes and notification
// writes must see deletions at once. The cached user repository serves
// delivery, where a stale display name or address is harmless.
func Repositories(base postgres.BaseRepository, cfg config.CacheConfig) (notification.Repositories, *cache.UserRepository) {
	users := postgres.NewUserRepository(base)
	cached := cache.NewUserRepository(users, cache.Config{
		TTL:             cfg.UserTTL,
		CleanupInterval: cfg.CleanupInterval,
	})
	return notification.Repositories{
		Tx:            &base,
		Notifications: postgres.NewNotificationRepository(base),
		Outbox:        postgres.NewOutboxRepository(base),
		Users:         users,
		Projects:      postgres.NewProjectRepository(base),
	}, cached
}

// NewMailer returns the SMTP sender, or a logging stand-in when SMTP is
// disabled.
func NewMailer(cfg config.SMTPConfig, log *logger.Logger) email.Sender {
	if !cfg.Enabled {
		return email.NewLogSender(log)
	}
	return email.NewSMTPSender(email.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	}, log)
}

// NewOutboxProcessor builds the delivery processor with the
// notification.created handler registered.
func NewOutboxProcessor(
	cfg *config.Config,
	repos notification.Repositories,
	users repository.UserRepository,
	publisher *realtime.Publisher,
	log *logger.Logger,
	m *metrics.Metrics,
) (*worker.OutboxProcessor, error) {
	templates, err := email.NewTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}

	deliverer := notification.NewDeliverer(
		publisher,
		users,
		NewMailer(cfg.SMTP, log),
		templates,
		cfg.SMTP.AppURL,
		log,
		m,
	)

	processor := worker.NewOutboxProcessor(repos.Outbox, cfg.Outbox.ToWorkerConfig(), log, m)
	processor.Register(model.EventNotificationCreated, deliverer)
	return processor, nil
}

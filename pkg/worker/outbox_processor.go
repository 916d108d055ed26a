package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/devflow/devflow-api/internal/model"
	"github.com/devflow/devflow-api/internal/repository"
	"github.com/devflow/devflow-api/pkg/logger"
	"github.com/devflow/devflow-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
}

// Handler delivers one outbox event. Events are attempted once: an error
// marks the event failed and it is not picked up again.
type Handler interface {
	Handle(ctx context.Context, event *model.OutboxEvent) error
}

type HandlerFunc func(ctx context.Context, event *model.OutboxEvent) error

func (f HandlerFunc) Handle(ctx context.Context, event *model.OutboxEvent) error {
	return f(ctx, event)
}

type OutboxProcessor struct {
	repo     repository.OutboxRepository
	handlers map[string]Handler
	config   OutboxProcessorConfig
	wake     chan struct{}
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	config OutboxProcessorConfig,
	log *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	// Config validation instead of defaults
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}

	return &OutboxProcessor{
		repo:     repo,
		handlers: make(map[string]Handler),
		config:   config,
		wake:     make(chan struct{}, 1),
		logger:   log.With("outbox"),
		metrics:  metrics,
	}
}

// Register binds a handler to an event type. Call before Start.
func (p *OutboxProcessor) Register(eventType string, h Handler) {
	p.handlers[eventType] = h
}

// Notify asks for a pass without waiting for the next tick. It never
// blocks; pending wake-ups coalesce.
func (p *OutboxProcessor) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
		case <-p.wake:
		}

		// Drain full batches before waiting again.
		for {
			n, err := p.ProcessOnce(ctx)
			if err != nil {
				p.logger.Error(err, "Failed to process events")
				break
			}
			if n < p.config.BatchSize || ctx.Err() != nil {
				break
			}
		}
	}
}

// ProcessOnce claims and handles one batch, returning its size.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.ClaimPending(ctx, p.config.BatchSize)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "error").Inc()
		return 0, fmt.Errorf("failed to claim pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "success").Inc()

	for _, event := range events {
		p.processEvent(ctx, event)
	}

	return len(events), nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) {
	if err := p.handle(ctx, event); err != nil {
		p.metrics.OutboxEventsFailed.Inc()
		p.logger.Error(err, "Failed to process event",
			"event_id", event.ID.String(),
			"event_type", event.EventType)

		if updateErr := p.repo.MarkFailed(ctx, event.ID, err.Error()); updateErr != nil {
			p.logger.Error(updateErr, "Failed to update event status", "event_id", event.ID.String())
		}
		return
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.MarkProcessed(ctx, event.ID); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
	}
}

func (p *OutboxProcessor) handle(ctx context.Context, event *model.OutboxEvent) (err error) {
	h, ok := p.handlers[event.EventType]
	if !ok {
		return fmt.Errorf("no handler for event type %q", event.EventType)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, event)
}

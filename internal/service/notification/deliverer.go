package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/devflow/devflow-api/internal/email"
	"github.com/devflow/devflow-api/internal/model"
	"github.com/devflow/devflow-api/internal/realtime"
	"github.com/devflow/devflow-api/internal/repository"
	"github.com/devflow/devflow-api/pkg/logger"
	"github.com/devflow/devflow-api/pkg/metrics"
)

// emailTypes are the notification types that also go out by email.
var emailTypes = map[model.NotificationType]struct{}{
	model.NotificationReviewReceived: {},
	model.NotificationProjectViewed:  {},
}

// Pusher sends an event to a user's live connections.
type Pusher interface {
	SendToUser(ctx context.Context, userID uuid.UUID, event string, payload interface{}) (bool, error)
}

// Deliverer handles notification.created outbox events: a realtime push
// and, for some types, an email. Nothing is retried.
type Deliverer struct {
	pusher    Pusher
	users     repository.UserRepository
	mailer    email.Sender
	templates *email.Templates
	appURL    string
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewDeliverer(
	pusher Pusher,
	users repository.UserRepository,
	mailer email.Sender,
	templates *email.Templates,
	appURL string,
	log *logger.Logger,
	m *metrics.Metrics,
) *Deliverer {
	return &Deliverer{
		pusher:    pusher,
		users:     users,
		mailer:    mailer,
		templates: templates,
		appURL:    strings.TrimRight(appURL, "/"),
		logger:    log.With("delivery"),
		metrics:   m,
	}
}

// Handle implements worker.Handler. A non-nil error marks the event failed.
func (d *Deliverer) Handle(ctx context.Context, event *model.OutboxEvent) error {
	var payload model.NotificationCreatedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", event.EventType, err)
	}

	pushErr := d.push(ctx, payload)
	emailErr := d.email(ctx, payload)
	return errors.Join(pushErr, emailErr)
}

func (d *Deliverer) push(ctx context.Context, p model.NotificationCreatedPayload) error {
	sent, err := d.pusher.SendToUser(ctx, p.RecipientID, realtime.EventNotificationNew, p.Notification)
	switch {
	case err != nil:
		d.metrics.DeliveryAttempts.WithLabelValues(metrics.ChannelPush, metrics.OutcomeFailed).Inc()
		d.logger.Error(err, "Failed to push notification",
			"notification_id", p.Notification.ID.String(),
			"user_id", p.RecipientID.String())
		return fmt.Errorf("push: %w", err)
	case sent:
		d.metrics.DeliveryAttempts.WithLabelValues(metrics.ChannelPush, metrics.OutcomeSent).Inc()
	default:
		d.metrics.DeliveryAttempts.WithLabelValues(metrics.ChannelPush, metrics.OutcomeSkipped).Inc()
	}
	return nil
}

func (d *Deliverer) email(ctx context.Context, p model.NotificationCreatedPayload) error {
	n := p.Notification
	if _, ok := emailTypes[n.Type]; !ok || d.mailer == nil || d.templates == nil || !d.templates.Has(n.Type) {
		return nil
	}

	user, err := d.users.GetSummary(ctx, p.RecipientID)
	if err != nil {
		d.metrics.DeliveryAttempts.WithLabelValues(metrics.ChannelEmail, metrics.OutcomeFailed).Inc()
		d.logger.Error(err, "Failed to resolve email recipient", "user_id", p.RecipientID.String())
		return fmt.Errorf("email: %w", err)
	}
	if user.Email == "" {
		d.metrics.DeliveryAttempts.WithLabelValues(metrics.ChannelEmail, metrics.OutcomeSkipped).Inc()
		d.logger.Warn("Recipient has no email address", "user_id", p.RecipientID.String())
		return nil
	}

	subject, body, err := d.templates.Render(n.Type, email.TemplateData{
		RecipientName: user.Name(),
		Title:         n.Title,
		Message:       n.Message,
		Link:          d.appURL + "/notifications",
	})
	if err != nil {
		d.metrics.DeliveryAttempts.WithLabelValues(metrics.ChannelEmail, metrics.OutcomeFailed).Inc()
		d.logger.Error(err, "Failed to render email", "type", string(n.Type))
		return fmt.Errorf("email: %w", err)
	}

	if err := d.mailer.Send(ctx, user.Email, subject, body); err != nil {
		d.metrics.DeliveryAttempts.WithLabelValues(metrics.ChannelEmail, metrics.OutcomeFailed).Inc()
		d.logger.Error(err, "Failed to send notification email",
			"notification_id", n.ID.String(),
			"user_id", p.RecipientID.String())
		return fmt.Errorf("email: %w", err)
	}
	d.metrics.DeliveryAttempts.WithLabelValues(metrics.ChannelEmail, metrics.OutcomeSent).Inc()
	return nil
}

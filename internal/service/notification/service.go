package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/devflow/devflow-api/internal/model"
	"github.com/devflow/devflow-api/internal/repository"
	apperrors "github.com/devflow/devflow-api/pkg/errors"
	"github.com/devflow/devflow-api/pkg/logger"
	"github.com/devflow/devflow-api/pkg/metrics"
)

var (
	ErrRecipientRequired = errors.New("recipient is required")
	ErrInvalidType       = errors.New("unknown notification type")
	ErrPayloadMismatch   = errors.New("payload does not match notification type")
	ErrRecipientNotFound = errors.New("recipient does not exist")
	ErrNotProjectAuthor  = errors.New("only the project author can change a review status")
)

// CreateInput describes one notification to persist and deliver.
type CreateInput struct {
	RecipientID   uuid.UUID
	Title         string
	Message       string
	Type          model.NotificationType
	Data          Payload
	ProjectID     *uuid.UUID
	ReviewID      *uuid.UUID
	TriggeredByID *uuid.UUID
}

type ListResult struct {
	Items    []*model.NotificationDetail
	Page     int
	PageSize int
	Total    int
}

// ReviewEvent identifies a review and the project it was left on.
// ActorID is the user reporting a status change and must be the project
// author.
type ReviewEvent struct {
	ReviewID   uuid.UUID
	ProjectID  uuid.UUID
	ReviewerID uuid.UUID
	ActorID    uuid.UUID
}

type Service interface {
	CreateNotification(ctx context.Context, in CreateInput) (*model.NotificationDetail, error)

	NotifyReviewReceived(ctx context.Context, ev ReviewEvent) (*model.NotificationDetail, error)
	NotifyReviewStatusChanged(ctx context.Context, ev ReviewEvent, approved bool) (*model.NotificationDetail, error)
	NotifyProfileViewed(ctx context.Context, profileUserID, viewerID uuid.UUID) (*model.NotificationDetail, error)
	NotifyProjectLiked(ctx context.Context, projectID, likerID uuid.UUID) (*model.NotificationDetail, error)
	NotifyProjectViewMilestone(ctx context.Context, projectID uuid.UUID, viewCount int) (*model.NotificationDetail, error)
	NotifyWelcome(ctx context.Context, userID uuid.UUID) (*model.NotificationDetail, error)
	NotifyAchievement(ctx context.Context, userID uuid.UUID, name, description string) (*model.NotificationDetail, error)
	AnnounceSystemUpdate(ctx context.Context, title, message string) error

	ListForUser(ctx context.Context, userID uuid.UUID, page, pageSize int) (*ListResult, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) (int64, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteNotification(ctx context.Context, id, userID uuid.UUID) (int64, error)
}

// Repositories groups the stores the service writes through.
type Repositories struct {
	Tx            repository.Transactor
	Notifications repository.NotificationRepository
	Outbox        repository.OutboxRepository
	Users         repository.UserRepository
	Projects      repository.ProjectRepository
}

// Broadcaster reaches every connected client.
type Broadcaster interface {
	BroadcastAll(ctx context.Context, event string, payload interface{}) error
}

// Waker is told when new outbox events are committed.
type Waker interface {
	Notify()
}

type service struct {
	repos       Repositories
	broadcaster Broadcaster
	waker       Waker
	logger      *logger.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewService wires the notification write path. waker may be nil when
// delivery runs in a separate process.
func NewService(repos Repositories, broadcaster Broadcaster, waker Waker, log *logger.Logger, m *metrics.Metrics) Service {
	return &service{
		repos:       repos,
		broadcaster: broadcaster,
		waker:       waker,
		logger:      log.With("notification"),
		metrics:     m,
		now:         time.Now,
	}
}

func (s *service) CreateNotification(ctx context.Context, in CreateInput) (*model.NotificationDetail, error) {
	if err := validate(in); err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}
	if _, err := s.repos.Users.GetSummary(ctx, in.RecipientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("recipient", ErrRecipientNotFound)
		}
		return nil, fmt.Errorf("failed to load recipient: %w", err)
	}

	n := &model.Notification{
		ID:            uuid.New(),
		UserID:        in.RecipientID,
		Title:         in.Title,
		Message:       in.Message,
		Type:          in.Type,
		ProjectID:     in.ProjectID,
		ReviewID:      in.ReviewID,
		TriggeredByID: in.TriggeredByID,
		CreatedAt:     s.now().UTC(),
	}
	if in.Data != nil {
		data, err := json.Marshal(in.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode notification data: %w", err)
		}
		n.Data = data
	}

	payload, err := json.Marshal(model.NotificationCreatedPayload{
		RecipientID:  n.UserID,
		Notification: n.Event(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode outbox payload: %w", err)
	}

	var detail *model.NotificationDetail
	err = s.repos.Tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.repos.Notifications.CreateTx(ctx, tx, n); err != nil {
			return fmt.Errorf("failed to create notification: %w", err)
		}
		event := &model.OutboxEvent{
			EventType: model.EventNotificationCreated,
			Payload:   payload,
		}
		if err := s.repos.Outbox.CreateTx(ctx, tx, event); err != nil {
			return fmt.Errorf("failed to create outbox event: %w", err)
		}
		var err error
		detail, err = s.repos.Notifications.GetDetailTx(ctx, tx, n.ID)
		if err != nil {
			return fmt.Errorf("failed to load notification: %w", err)
		}
		return nil
	})
	if err != nil {
		s.metrics.DatabaseOperations.WithLabelValues("create_notification", "error").Inc()
		return nil, err
	}
	s.metrics.DatabaseOperations.WithLabelValues("create_notification", "success").Inc()
	s.metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()

	if s.waker != nil {
		s.waker.Notify()
	}

	s.logger.Debug("notification created",
		"notification_id", n.ID.String(),
		"user_id", n.UserID.String(),
		"type", string(n.Type),
	)
	return detail, nil
}

func validate(in CreateInput) error {
	if in.RecipientID == uuid.Nil {
		return ErrRecipientRequired
	}
	if !in.Type.Valid() {
		return ErrInvalidType
	}
	if in.Data != nil && in.Data.NotificationType() != in.Type {
		return ErrPayloadMismatch
	}
	return nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, page, pageSize int) (*ListResult, error) {
	p := model.Pagination{Page: page, PageSize: pageSize}.Normalize()

	items, total, err := s.repos.Notifications.ListByUser(ctx, userID, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	if items == nil {
		items = []*model.NotificationDetail{}
	}
	return &ListResult{Items: items, Page: p.Page, PageSize: p.PageSize, Total: total}, nil
}

func (s *service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := s.repos.Notifications.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (s *service) MarkRead(ctx context.Context, id, userID uuid.UUID) (int64, error) {
	n, err := s.repos.Notifications.MarkRead(ctx, id, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return n, nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repos.Notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return n, nil
}

func (s *service) DeleteNotification(ctx context.Context, id, userID uuid.UUID) (int64, error) {
	n, err := s.repos.Notifications.Delete(ctx, id, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notification: %w", err)
	}
	return n, nil
}

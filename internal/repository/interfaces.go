package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/devflow/devflow-api/internal/model"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("record not found")

// All repository interfaces in one file
type (
	// Transactor runs fn in one database transaction. fn's error rolls
	// the transaction back.
	Transactor interface {
		WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
	}

	NotificationRepository interface {
		CreateTx(ctx context.Context, tx *sqlx.Tx, n *model.Notification) error
		GetDetailTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.NotificationDetail, error)
		GetDetail(ctx context.Context, id uuid.UUID) (*model.NotificationDetail, error)
		// ListByUser returns one page newest first plus the total row count.
		ListByUser(ctx context.Context, userID uuid.UUID, page model.Pagination) ([]*model.NotificationDetail, int, error)
		CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
		// MarkRead, MarkAllRead and Delete are owner scoped and report
		// the number of affected rows.
		MarkRead(ctx context.Context, id, userID uuid.UUID) (int64, error)
		MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
		Delete(ctx context.Context, id, userID uuid.UUID) (int64, error)
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		GetSummary(ctx context.Context, id uuid.UUID) (*model.UserSummary, error)
		TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	ProjectRepository interface {
		Create(ctx context.Context, project *model.ProjectSummary) error
		GetSummary(ctx context.Context, id uuid.UUID) (*model.ProjectSummary, error)
	}

	OutboxRepository interface {
		CreateTx(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error
		// ClaimPending moves up to limit pending events to processing and
		// returns them oldest first.
		ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)

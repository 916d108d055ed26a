package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/devflow/devflow-api/internal/model"
	"github.com/devflow/devflow-api/internal/repository"
)

const notificationDetailSelect = `
	SELECT
		n.id, n.user_id, n.title, n.message, n.type, n.data, n.is_read,
		n.project_id, n.review_id, n.triggered_by_id, n.created_at,
		u.username     AS recipient_username,
		u.display_name AS recipient_display_name,
		u.avatar_url   AS recipient_avatar_url,
		p.author_id    AS project_author_id,
		p.title        AS project_title,
		p.slug         AS project_slug,
		t.username     AS trigger_username,
		t.display_name AS trigger_display_name,
		t.avatar_url   AS trigger_avatar_url
	FROM notifications n
	LEFT JOIN users u ON u.id = n.user_id
	LEFT JOIN projects p ON p.id = n.project_id
	LEFT JOIN users t ON t.id = n.triggered_by_id
`

// notificationRow mirrors notificationDetailSelect. JSON data is stored
// as text, and joined columns are nullable.
type notificationRow struct {
	ID            uuid.UUID      `db:"id"`
	UserID        uuid.UUID      `db:"user_id"`
	Title         string         `db:"title"`
	Message       string         `db:"message"`
	Type          string         `db:"type"`
	Data          sql.NullString `db:"data"`
	IsRead        bool           `db:"is_read"`
	ProjectID     uuid.NullUUID  `db:"project_id"`
	ReviewID      uuid.NullUUID  `db:"review_id"`
	TriggeredByID uuid.NullUUID  `db:"triggered_by_id"`
	CreatedAt     time.Time      `db:"created_at"`

	RecipientUsername    sql.NullString `db:"recipient_username"`
	RecipientDisplayName sql.NullString `db:"recipient_display_name"`
	RecipientAvatarURL   sql.NullString `db:"recipient_avatar_url"`
	ProjectAuthorID      uuid.NullUUID  `db:"project_author_id"`
	ProjectTitle         sql.NullString `db:"project_title"`
	ProjectSlug          sql.NullString `db:"project_slug"`
	TriggerUsername      sql.NullString `db:"trigger_username"`
	TriggerDisplayName   sql.NullString `db:"trigger_display_name"`
	TriggerAvatarURL     sql.NullString `db:"trigger_avatar_url"`
}

func (row *notificationRow) toDetail() *model.NotificationDetail {
	d := &model.NotificationDetail{
		Notification: model.Notification{
			ID:            row.ID,
			UserID:        row.UserID,
			Title:         row.Title,
			Message:       row.Message,
			Type:          model.NotificationType(row.Type),
			Read:          row.IsRead,
			ProjectID:     nullUUID(row.ProjectID),
			ReviewID:      nullUUID(row.ReviewID),
			TriggeredByID: nullUUID(row.TriggeredByID),
			CreatedAt:     row.CreatedAt.UTC(),
		},
	}
	if row.Data.Valid && row.Data.String != "" {
		d.Data = json.RawMessage(row.Data.String)
	}

	if row.RecipientUsername.Valid {
		d.Recipient = &model.UserSummary{
			ID:          row.UserID,
			Username:    row.RecipientUsername.String,
			DisplayName: row.RecipientDisplayName.String,
			AvatarURL:   row.RecipientAvatarURL.String,
		}
	}
	if row.ProjectID.Valid && row.ProjectTitle.Valid {
		d.Project = &model.ProjectSummary{
			ID:       row.ProjectID.UUID,
			AuthorID: row.ProjectAuthorID.UUID,
			Title:    row.ProjectTitle.String,
			Slug:     row.ProjectSlug.String,
		}
	}
	if row.TriggeredByID.Valid && row.TriggerUsername.Valid {
		d.TriggeredBy = &model.UserSummary{
			ID:          row.TriggeredByID.UUID,
			Username:    row.TriggerUsername.String,
			DisplayName: row.TriggerDisplayName.String,
			AvatarURL:   row.TriggerAvatarURL.String,
		}
	}
	return d
}

func nullUUID(v uuid.NullUUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := v.UUID
	return &id
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, n *model.Notification) error {
	query := tx.Rebind(`
		INSERT INTO notifications (
			id, user_id, title, message, type, data, is_read,
			project_id, review_id, triggered_by_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.CreatedAt = n.CreatedAt.UTC()

	var data sql.NullString
	if len(n.Data) > 0 {
		data = sql.NullString{String: string(n.Data), Valid: true}
	}

	_, err := tx.ExecContext(ctx, query,
		n.ID,
		n.UserID,
		n.Title,
		n.Message,
		string(n.Type),
		data,
		n.Read,
		toNullUUID(n.ProjectID),
		toNullUUID(n.ReviewID),
		toNullUUID(n.TriggeredByID),
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) GetDetailTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.NotificationDetail, error) {
	return getDetail(ctx, tx, id)
}

func (r *notificationRepository) GetDetail(ctx context.Context, id uuid.UUID) (*model.NotificationDetail, error) {
	return getDetail(ctx, r.db, id)
}

func getDetail(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*model.NotificationDetail, error) {
	query := q.Rebind(notificationDetailSelect + ` WHERE n.id = ?`)

	var row notificationRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		return nil, fmt.Errorf("failed to get notification %s: %w", id, notFound(err))
	}
	return row.toDetail(), nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, page model.Pagination) ([]*model.NotificationDetail, int, error) {
	page = page.Normalize()

	var total int
	countQuery := r.db.Rebind(`SELECT COUNT(*) FROM notifications WHERE user_id = ?`)
	if err := r.db.GetContext(ctx, &total, countQuery, userID); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := r.db.Rebind(notificationDetailSelect + `
		WHERE n.user_id = ?
		ORDER BY n.created_at DESC, n.id DESC
		LIMIT ? OFFSET ?
	`)

	var rows []notificationRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, page.PageSize, page.Offset()); err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}

	items := make([]*model.NotificationDetail, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].toDetail())
	}
	return items, total, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	query := r.db.Rebind(`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = ?`)

	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, false); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) (int64, error) {
	query := r.db.Rebind(`UPDATE notifications SET is_read = ? WHERE id = ? AND user_id = ?`)
	return r.exec(ctx, "mark notification read", query, true, id, userID)
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := r.db.Rebind(`UPDATE notifications SET is_read = ? WHERE user_id = ? AND is_read = ?`)
	return r.exec(ctx, "mark all notifications read", query, true, userID, false)
}

func (r *notificationRepository) Delete(ctx context.Context, id, userID uuid.UUID) (int64, error) {
	query := r.db.Rebind(`DELETE FROM notifications WHERE id = ? AND user_id = ?`)
	return r.exec(ctx, "delete notification", query, id, userID)
}

func (r *notificationRepository) exec(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", op, err)
	}
	return affected, nil
}

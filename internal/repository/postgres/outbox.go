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

type outboxRow struct {
	ID           uuid.UUID      `db:"id"`
	EventType    string         `db:"event_type"`
	Payload      string         `db:"payload"`
	Status       string         `db:"status"`
	ErrorMessage sql.NullString `db:"error_message"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	ProcessedAt  sql.NullTime   `db:"processed_at"`
}

func (row *outboxRow) toModel() *model.OutboxEvent {
	e := &model.OutboxEvent{
		ID:        row.ID,
		EventType: row.EventType,
		Payload:   json.RawMessage(row.Payload),
		Status:    model.OutboxStatus(row.Status),
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	if row.ErrorMessage.Valid {
		msg := row.ErrorMessage.String
		e.ErrorMessage = &msg
	}
	if row.ProcessedAt.Valid {
		at := row.ProcessedAt.Time.UTC()
		e.ProcessedAt = &at
	}
	return e
}

type outboxRepository struct {
	BaseRepository
	now func() time.Time
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{BaseRepository: base, now: time.Now}
}

func (r *outboxRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if len(event.Payload) == 0 {
		return fmt.Errorf("event payload cannot be empty")
	}

	query := tx.Rebind(`
		INSERT INTO outbox_events (
			id, event_type, payload, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`)

	now := r.now().UTC()
	event.ID = uuid.New()
	event.Status = model.OutboxStatusPending
	event.CreatedAt = now
	event.UpdatedAt = now

	_, err := tx.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		string(event.Payload),
		string(event.Status),
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// ClaimPending flips a batch to processing in a single statement. A
// concurrent claimer re-checks status on the locked rows, so each event
// is handed out once.
func (r *outboxRepository) ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	claim := r.db.Rebind(`
		UPDATE outbox_events
		SET status = ?, updated_at = ?
		WHERE status = ?
		AND id IN (
			SELECT id FROM outbox_events
			WHERE status = ?
			ORDER BY created_at ASC
			LIMIT ?
		)
		RETURNING id
	`)

	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, claim,
		string(model.OutboxStatusProcessing),
		r.now().UTC(),
		string(model.OutboxStatusPending),
		string(model.OutboxStatusPending),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending events: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, event_type, payload, status, error_message, created_at, updated_at, processed_at
		FROM outbox_events
		WHERE id IN (?)
		ORDER BY created_at ASC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build claimed events query: %w", err)
	}

	var rows []outboxRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load claimed events: %w", err)
	}

	events := make([]*model.OutboxEvent, 0, len(rows))
	for i := range rows {
		events = append(events, rows[i].toModel())
	}
	return events, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	query := r.db.Rebind(`
		UPDATE outbox_events
		SET status = ?, processed_at = ?, updated_at = ?
		WHERE id = ?
	`)

	now := r.now().UTC()
	if _, err := r.db.ExecContext(ctx, query, string(model.OutboxStatusProcessed), now, now, id); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := r.db.Rebind(`
		UPDATE outbox_events
		SET status = ?, error_message = ?, processed_at = ?, updated_at = ?
		WHERE id = ?
	`)

	now := r.now().UTC()
	if _, err := r.db.ExecContext(ctx, query, string(model.OutboxStatusFailed), errorMessage, now, now, id); err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := r.db.Rebind(`
		DELETE FROM outbox_events
		WHERE status = ?
		AND processed_at < ?
	`)

	result, err := r.db.ExecContext(ctx, query, string(model.OutboxStatusProcessed), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return result.RowsAffected()
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/devflow/devflow-api/internal/model"
	"github.com/devflow/devflow-api/internal/repository"
)

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := r.db.Rebind(`
		INSERT INTO users (
			id, username, display_name, email, avatar_url, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`)

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.DisplayName,
		user.Email,
		user.AvatarURL,
		user.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) GetSummary(ctx context.Context, id uuid.UUID) (*model.UserSummary, error) {
	query := r.db.Rebind(`
		SELECT id, username, display_name, avatar_url, email
		FROM users
		WHERE id = ?
	`)

	var u model.UserSummary
	err := r.db.QueryRowxContext(ctx, query, id).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, notFound(err))
	}
	return &u, nil
}

func (r *userRepository) TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := r.db.Rebind(`UPDATE users SET last_active_at = ? WHERE id = ?`)

	if _, err := r.db.ExecContext(ctx, query, at.UTC(), id); err != nil {
		return fmt.Errorf("failed to update last_active_at: %w", err)
	}
	return nil
}

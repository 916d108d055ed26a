package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/devflow/devflow-api/internal/model"
	"github.com/devflow/devflow-api/internal/repository"
)

type projectRepository struct {
	BaseRepository
}

func NewProjectRepository(base BaseRepository) repository.ProjectRepository {
	return &projectRepository{base}
}

func (r *projectRepository) Create(ctx context.Context, project *model.ProjectSummary) error {
	query := r.db.Rebind(`
		INSERT INTO projects (id, author_id, title, slug, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)

	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}

	_, err := r.db.ExecContext(ctx, query,
		project.ID, project.AuthorID, project.Title, project.Slug, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *projectRepository) GetSummary(ctx context.Context, id uuid.UUID) (*model.ProjectSummary, error) {
	query := r.db.Rebind(`
		SELECT id, author_id, title, slug
		FROM projects
		WHERE id = ?
	`)

	var p model.ProjectSummary
	err := r.db.QueryRowxContext(ctx, query, id).Scan(&p.ID, &p.AuthorID, &p.Title, &p.Slug)
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", id, notFound(err))
	}
	return &p, nil
}

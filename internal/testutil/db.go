// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/devflow/devflow-api/internal/model"
	"github.com/devflow/devflow-api/internal/repository/postgres"
)

// NewTestDB opens an in-memory SQLite database with all migrations
// applied. It is closed when the test completes.
func NewTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:?_time_format=sqlite&_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if err := postgres.Migrate(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("migrating test db: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("closing test db: %v", err)
		}
	})

	return db
}

// CreateUser inserts a user with the given username and a matching email.
func CreateUser(t *testing.T, db *sqlx.DB, username string) *model.User {
	t.Helper()

	u := &model.User{
		Username:    username,
		DisplayName: username,
		Email:       username + "@example.com",
	}
	repo := postgres.NewUserRepository(postgres.NewBaseRepository(db))
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return u
}

// CreateProject inserts a project owned by author.
func CreateProject(t *testing.T, db *sqlx.DB, author *model.User, title string) *model.ProjectSummary {
	t.Helper()

	p := &model.ProjectSummary{AuthorID: author.ID, Title: title, Slug: title}
	repo := postgres.NewProjectRepository(postgres.NewBaseRepository(db))
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("creating project %s: %v", title, err)
	}
	return p
}

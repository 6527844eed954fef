// Package repository answers whether a project exists. Projects are owned by an external system;
// the hub only reads them (cmd/seed creates one for local development).
package repository

import (
	"context"
	"database/sql"
	"errors"

	"project-canvas-hub/internal/db"
)

// ErrDuplicate is returned by Create when the project id is already taken.
var ErrDuplicate = errors.New("project already exists")

// Repository defines the project lookups the hub needs.
type Repository interface {
	Exists(ctx context.Context, projectID string) (bool, error)
}

// SQLRepository implements Repository on the projects table.
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns a project repository that uses the given db.
func NewSQLRepository(database *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{db: database, dialect: dialect}
}

func (r *SQLRepository) Exists(ctx context.Context, projectID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind("SELECT 1 FROM projects WHERE id = ?"), projectID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create inserts a project row.
func (r *SQLRepository) Create(ctx context.Context, projectID, name string) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind("INSERT INTO projects (id, name) VALUES (?, ?)"), projectID, name)
	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

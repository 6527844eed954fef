package repository

import (
	"context"
	"database/sql"

	"project-canvas-hub/internal/audit/domain"
	"project-canvas-hub/internal/db"
)

// SQLRepository implements Repository on the audit_logs table.
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns an audit repository that uses the given db for persistence.
func NewSQLRepository(database *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{db: database, dialect: dialect}
}

func (r *SQLRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	var metadata any
	if a.Metadata != "" {
		metadata = a.Metadata
	}
	_, err := r.db.ExecContext(ctx,
		r.dialect.Rebind("INSERT INTO audit_logs (id, project_id, actor, action, resource, ip, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"),
		a.ID, a.ProjectID, a.Actor, a.Action, a.Resource, a.IP, metadata, r.dialect.Time(a.CreatedAt),
	)
	return err
}

func (r *SQLRepository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx,
		r.dialect.Rebind("SELECT id, project_id, actor, action, resource, ip, metadata, created_at FROM audit_logs WHERE project_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"),
		projectID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a        domain.AuditLog
			metadata sql.NullString
			ts       db.Timestamp
		)
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Actor, &a.Action, &a.Resource, &a.IP, &metadata, &ts); err != nil {
			return nil, err
		}
		a.Metadata = metadata.String
		a.CreatedAt = ts.Time
		out = append(out, &a)
	}
	return out, rows.Err()
}

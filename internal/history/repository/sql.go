package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"project-canvas-hub/internal/db"
	"project-canvas-hub/internal/history/domain"
)

// SQLRepository stores history in the canvas_history table of Postgres or SQLite.
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns a history repository that uses the given db for persistence.
func NewSQLRepository(database *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{db: database, dialect: dialect}
}

const entryColumns = "id, project_id, seq, snapshot, created_by, created_at"

// HighWaterMark returns MAX(seq) for the project, 0 when it has no history.
func (r *SQLRepository) HighWaterMark(ctx context.Context, projectID string) (int64, error) {
	var hwm sql.NullInt64
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind("SELECT MAX(seq) FROM canvas_history WHERE project_id = ?"), projectID).Scan(&hwm)
	if err != nil {
		return 0, err
	}
	return hwm.Int64, nil
}

// Insert writes e. The (project_id, seq) unique constraint turns a lost race into ErrConflict.
func (r *SQLRepository) Insert(ctx context.Context, e *domain.Entry) error {
	snap, err := json.Marshal(e.Snapshot.Normalize())
	if err != nil {
		return fmt.Errorf("history: encode snapshot: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		r.dialect.Rebind("INSERT INTO canvas_history ("+entryColumns+") VALUES (?, ?, ?, ?, ?, ?)"),
		e.ID, e.ProjectID, e.SequenceNumber, string(snap), e.CreatedBy, r.dialect.Time(e.CreatedAt),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// Latest returns the entry with the highest seq, or nil if the project has none.
// It returns an error only for database failures, not for missing rows.
func (r *SQLRepository) Latest(ctx context.Context, projectID string) (*domain.Entry, error) {
	row := r.db.QueryRowContext(ctx,
		r.dialect.Rebind("SELECT "+entryColumns+" FROM canvas_history WHERE project_id = ? ORDER BY seq DESC LIMIT 1"),
		projectID,
	)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// ListSince returns entries with seq > after in ascending seq order.
func (r *SQLRepository) ListSince(ctx context.Context, projectID string, after int64, limit int) ([]*domain.Entry, error) {
	q := "SELECT " + entryColumns + " FROM canvas_history WHERE project_id = ? AND seq > ? ORDER BY seq ASC"
	args := []any{projectID, after}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*domain.Entry, error) {
	var (
		e    domain.Entry
		snap []byte
		ts   db.Timestamp
	)
	if err := s.Scan(&e.ID, &e.ProjectID, &e.SequenceNumber, &snap, &e.CreatedBy, &ts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(snap, &e.Snapshot); err != nil {
		return nil, fmt.Errorf("history: decode snapshot seq %d: %w", e.SequenceNumber, err)
	}
	e.CreatedAt = ts.Time
	return &e, nil
}

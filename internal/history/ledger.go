// Package history is the append-only canvas history ledger. Every append for a project gets the next
// sequence number, starting at 1, with no gaps and no duplicates.
package history

import (
	"context"
	"errors"
	"log"
	"time"

	canvasdomain "project-canvas-hub/internal/canvas/domain"
	"project-canvas-hub/internal/history/domain"
	"project-canvas-hub/internal/history/repository"
	"project-canvas-hub/internal/telemetry/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "canvas-hub/history"

// DefaultMaxRetries bounds how often Append re-reads the high-water mark after another process won the race.
const DefaultMaxRetries = 5

// Ledger serializes appends per project inside this process with a keyed mutex and relies on the
// repository's (project_id, seq) uniqueness for writers in other processes.
type Ledger struct {
	repo       repository.Repository
	locks      *keyedMutex
	maxRetries int
	now        func() time.Time
}

// NewLedger returns a Ledger over repo. maxRetries < 0 falls back to DefaultMaxRetries.
func NewLedger(repo repository.Repository, maxRetries int) *Ledger {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Ledger{
		repo:       repo,
		locks:      newKeyedMutex(),
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// Append stores snapshot as the next entry for projectID and returns its sequence number.
// Storage failures are returned as *TransientStorageError; the returned sequence is then 0.
func (l *Ledger) Append(ctx context.Context, projectID string, snapshot canvasdomain.Snapshot, authorID string) (int64, error) {
	return l.AppendNotify(ctx, projectID, snapshot, authorID, nil)
}

// AppendNotify is Append with a commit hook. onCommit runs after the entry is stored and before the
// project's lock is released, so hooks for one project run in sequence order. It is not called on failure.
func (l *Ledger) AppendNotify(ctx context.Context, projectID string, snapshot canvasdomain.Snapshot, authorID string, onCommit func(ctx context.Context, seq int64)) (seq int64, err error) {
	ctx, span := startSpan(ctx, "history.Ledger.Append", projectID)
	defer func() { endSpan(span, err, attribute.Int64("sequence_number", seq)) }()

	unlock := l.locks.Lock(projectID)
	defer unlock()

	entry := &domain.Entry{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Snapshot:  snapshot.Clone(),
		CreatedBy: authorID,
	}
	for attempt := 0; ; attempt++ {
		hwm, err := l.repo.HighWaterMark(ctx, projectID)
		if err != nil {
			return 0, &TransientStorageError{ProjectID: projectID, Op: "read high-water mark", Err: err}
		}
		entry.SequenceNumber = hwm + 1
		entry.CreatedAt = l.now().UTC()
		err = l.repo.Insert(ctx, entry)
		if err == nil {
			metrics.LedgerAppends.WithLabelValues("ok").Inc()
			if onCommit != nil {
				onCommit(ctx, entry.SequenceNumber)
			}
			return entry.SequenceNumber, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			metrics.LedgerAppends.WithLabelValues("error").Inc()
			return 0, &TransientStorageError{ProjectID: projectID, Op: "insert", Err: err}
		}
		if attempt >= l.maxRetries {
			metrics.LedgerAppends.WithLabelValues("conflict").Inc()
			return 0, &TransientStorageError{ProjectID: projectID, Op: "insert", Err: ErrRetriesExhausted}
		}
		metrics.LedgerRetries.Inc()
		log.Printf("history: seq %d for project %s taken by another writer, retrying", entry.SequenceNumber, projectID)
	}
}

// Latest returns the newest entry for projectID, or nil if the project has no history.
func (l *Ledger) Latest(ctx context.Context, projectID string) (entry *domain.Entry, err error) {
	ctx, span := startSpan(ctx, "history.Ledger.Latest", projectID)
	defer func() { endSpan(span, err, attribute.Bool("found", entry != nil)) }()

	entry, err = l.repo.Latest(ctx, projectID)
	if err != nil {
		return nil, &TransientStorageError{ProjectID: projectID, Op: "latest", Err: err}
	}
	return entry, nil
}

// ListSince returns every entry with sequence number > after, ascending.
func (l *Ledger) ListSince(ctx context.Context, projectID string, after int64) ([]*domain.Entry, error) {
	return l.ListSinceLimit(ctx, projectID, after, 0)
}

// ListSinceLimit is ListSince capped at limit entries; limit <= 0 means no cap.
func (l *Ledger) ListSinceLimit(ctx context.Context, projectID string, after int64, limit int) (list []*domain.Entry, err error) {
	ctx, span := startSpan(ctx, "history.Ledger.ListSince", projectID)
	defer func() { endSpan(span, err, attribute.Int("result_count", len(list))) }()

	if after < 0 {
		after = 0
	}
	list, err = l.repo.ListSince(ctx, projectID, after, limit)
	if err != nil {
		return nil, &TransientStorageError{ProjectID: projectID, Op: "list", Err: err}
	}
	if list == nil {
		list = []*domain.Entry{}
	}
	return list, nil
}

func startSpan(ctx context.Context, name, projectID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("project_id", projectID)),
	)
}

func endSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attrs...)
	}
	span.End()
}

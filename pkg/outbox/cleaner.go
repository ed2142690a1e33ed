package outbox

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/xksnk/selfology-core/pkg/shared/errors"
)

// Cleaner prunes terminal outbox rows so the table doesn't grow unbounded.
// It runs no schedule of its own: each method is one pass that the caller
// invokes (the original system ran the cleanup daily).
type Cleaner struct {
	db *sqlx.DB
}

func NewCleaner(db *sqlx.DB) *Cleaner {
	return &Cleaner{db: db}
}

// CleanupPublished deletes PUBLISHED rows older than olderThanDays and
// returns how many were removed. Spec default: 7 days.
func (c *Cleaner) CleanupPublished(ctx context.Context, olderThanDays int) (int64, error) {
	res, err := c.db.ExecContext(ctx, c.db.Rebind(`
		DELETE FROM event_outbox
		WHERE status = $1 AND published_at < NOW() - ($2 || ' days')::interval
	`), StatusPublished, olderThanDays)
	if err != nil {
		return 0, errors.DatabaseError("cleanup published outbox rows", err)
	}
	return res.RowsAffected()
}

// CleanupFailed deletes FAILED rows older than olderThanDays. Spec
// default: 30 days — failed rows are kept longer for incident review.
func (c *Cleaner) CleanupFailed(ctx context.Context, olderThanDays int) (int64, error) {
	res, err := c.db.ExecContext(ctx, c.db.Rebind(`
		DELETE FROM event_outbox
		WHERE status = $1 AND created_at < NOW() - ($2 || ' days')::interval
	`), StatusFailed, olderThanDays)
	if err != nil {
		return 0, errors.DatabaseError("cleanup failed outbox rows", err)
	}
	return res.RowsAffected()
}

// FailedEvents returns up to limit FAILED rows, newest first, for manual
// recovery or debugging.
func (c *Cleaner) FailedEvents(ctx context.Context, limit int) ([]Row, error) {
	var rows []Row
	err := c.db.SelectContext(ctx, &rows, c.db.Rebind(`
		SELECT id, event_type, payload, status, retry_count, created_at, published_at, last_error, trace_id
		FROM event_outbox
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`), StatusFailed, limit)
	if err != nil {
		return nil, errors.DatabaseError("list failed outbox rows", err)
	}
	return rows, nil
}

// RetryFailed resets a FAILED row back to PENDING with retry_count cleared,
// for operator-triggered manual recovery.
func (c *Cleaner) RetryFailed(ctx context.Context, id int64) error {
	_, err := c.db.ExecContext(ctx, c.db.Rebind(`
		UPDATE event_outbox
		SET status = $1, retry_count = 0, last_error = NULL
		WHERE id = $2 AND status = $3
	`), StatusPending, id, StatusFailed)
	if err != nil {
		return errors.DatabaseError("retry failed outbox row", err)
	}
	return nil
}

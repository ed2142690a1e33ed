// Package outbox implements the transactional outbox (C5): publishing an
// event in the same database transaction as the business write that
// justifies it, so a rollback of one rolls back the other.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/xksnk/selfology-core/pkg/shared/errors"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

// Row mirrors the event_outbox table row.
type Row struct {
	ID          int64           `db:"id"`
	EventType   string          `db:"event_type"`
	Payload     json.RawMessage `db:"payload"`
	Status      Status          `db:"status"`
	RetryCount  int             `db:"retry_count"`
	CreatedAt   time.Time       `db:"created_at"`
	PublishedAt *time.Time      `db:"published_at"`
	LastError   *string         `db:"last_error"`
	TraceID     *string         `db:"trace_id"`
}

// Execer is satisfied by both *sqlx.DB and *sqlx.Tx, so Publish can be
// called either standalone or, as intended, inside a caller-held
// transaction.
type Execer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

const insertQuery = `
	INSERT INTO event_outbox (event_type, payload, status, retry_count, created_at, trace_id)
	VALUES ($1, $2, $3, 0, NOW(), $4)
	RETURNING id
`

// Publish inserts a PENDING outbox row in the caller's transaction. The
// row becomes visible to the relay only once the caller commits; a
// rollback leaves no trace, which is the entire point of the pattern.
func Publish(ctx context.Context, exec Execer, eventType string, payload interface{}, traceID string) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, errors.Validation("failed to marshal outbox payload", err)
	}

	var traceIDArg interface{}
	if traceID != "" {
		traceIDArg = traceID
	}

	query := exec.Rebind(insertQuery)
	var id int64
	if err := exec.GetContext(ctx, &id, query, eventType, body, StatusPending, traceIDArg); err != nil {
		return 0, errors.DatabaseError("insert outbox row", err)
	}
	return id, nil
}

// Item is one (event_type, payload) pair for PublishBatch.
type Item struct {
	EventType string
	Payload   interface{}
}

// PublishBatch inserts multiple PENDING rows in one transaction, returning
// their IDs in input order.
func PublishBatch(ctx context.Context, exec Execer, items []Item, traceID string) ([]int64, error) {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		id, err := Publish(ctx, exec, item.EventType, item.Payload, traceID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Package outboxrelay implements the outbox relay (C6): a background
// worker that drains PENDING rows from the transactional outbox and
// publishes them to the event bus, advancing each row to PUBLISHED or
// FAILED and growing retry_count on transient failure.
package outboxrelay

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/xksnk/selfology-core/pkg/events"
	"github.com/xksnk/selfology-core/pkg/outbox"
	"github.com/xksnk/selfology-core/pkg/shared/errors"
	"github.com/xksnk/selfology-core/pkg/shared/logging"
	"github.com/xksnk/selfology-core/pkg/shared/metrics"
)

// Publisher is the bus dependency the relay drains into — satisfied by
// *eventbus.Bus; declared locally so tests can substitute a double without
// importing Redis.
type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// Config controls batch size, poll cadence, and the retry ceiling before a
// row is given up on.
type Config struct {
	Schema         string
	BatchSize      int
	PollInterval   time.Duration
	MaxRetries     int
	RetryDelayBase float64 // seconds; backoff window is RetryDelayBase^retry_count
	// PriorityFor maps an event_type to a bus priority; defaults to NORMAL
	// for every event_type when nil.
	PriorityFor func(eventType string) events.Priority
}

func DefaultConfig() Config {
	return Config{
		Schema:         "selfology",
		BatchSize:      100,
		PollInterval:   time.Second,
		MaxRetries:     5,
		RetryDelayBase: 2.0,
	}
}

// Stats are cumulative counters across the relay's lifetime.
type Stats struct {
	EventsProcessed int64
	EventsFailed    int64
	TotalRetries    int64
	LastBatchTime   time.Duration
}

type Relay struct {
	db     *sqlx.DB
	bus    Publisher
	config Config
	log    *logrus.Logger

	mu      sync.Mutex
	stats   Stats
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func New(db *sqlx.DB, bus Publisher, config Config) *Relay {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}
	if config.RetryDelayBase <= 1.0 {
		config.RetryDelayBase = 2.0
	}
	if config.PriorityFor == nil {
		config.PriorityFor = func(string) events.Priority { return events.PriorityNormal }
	}
	return &Relay{db: db, bus: bus, config: config, log: logrus.StandardLogger()}
}

func (r *Relay) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Start launches the relay loop in a goroutine. Stop blocks until it
// exits.
func (r *Relay) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.loop(ctx)
}

func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	stop := r.stop
	done := r.done
	r.mu.Unlock()

	close(stop)
	<-done

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

func (r *Relay) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.runBatch(ctx)
		}
	}
}

// RunBatchForTest runs one fetch-and-process cycle synchronously, bypassing
// the poll ticker. Production callers should use Start/Stop; this exists so
// tests can assert on one batch deterministically.
func (r *Relay) RunBatchForTest(ctx context.Context) {
	r.runBatch(ctx)
}

// runBatch fetches and processes one eligible batch.
func (r *Relay) runBatch(ctx context.Context) {
	start := time.Now()

	rows, err := r.fetchEligible(ctx)
	if err != nil {
		r.log.WithFields(logging.NewFields().Component("outboxrelay").Error(err).ToLogrus()).
			Error("failed to fetch eligible outbox rows")
		return
	}

	for _, row := range rows {
		r.processRow(ctx, row)
	}

	r.mu.Lock()
	r.stats.LastBatchTime = time.Since(start)
	r.mu.Unlock()
	metrics.RecordRelayBatch(time.Since(start))
}

// fetchEligible locks a batch of PENDING rows with FOR UPDATE SKIP LOCKED,
// so relay instances running at the same time do not select the same row
// in overlapping fetches. The lock is held only for the fetch and released
// by the commit below, before any row is published; a second instance that
// fetches after that commit can select and publish the same still-PENDING
// row again.
func (r *Relay) fetchEligible(ctx context.Context) ([]outbox.Row, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.DatabaseError("begin outbox relay transaction", err)
	}
	defer tx.Rollback()

	var rows []outbox.Row
	query := tx.Rebind(`
		SELECT id, event_type, payload, status, retry_count, created_at, published_at, last_error, trace_id
		FROM event_outbox
		WHERE status = $1
		  AND retry_count < $2
		  AND (
		    retry_count = 0
		    OR created_at + (INTERVAL '1 second' * POWER($3, retry_count)) < NOW()
		  )
		ORDER BY created_at
		LIMIT $4
		FOR UPDATE SKIP LOCKED
	`)
	if err := tx.SelectContext(ctx, &rows, query, outbox.StatusPending, r.config.MaxRetries, r.config.RetryDelayBase, r.config.BatchSize); err != nil {
		return nil, errors.DatabaseError("select eligible outbox rows", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.DatabaseError("commit outbox relay fetch", err)
	}
	return rows, nil
}

func (r *Relay) processRow(ctx context.Context, row outbox.Row) {
	var payload map[string]interface{}
	if err := unmarshalPayload(row.Payload, &payload); err != nil {
		r.markFailed(ctx, row.ID, err)
		return
	}

	traceID := ""
	if row.TraceID != nil {
		traceID = *row.TraceID
	}

	env := events.New(row.EventType, 1, r.config.PriorityFor(row.EventType), traceID, payload)
	if err := r.bus.Publish(ctx, env); err != nil {
		r.onPublishFailure(ctx, row, err)
		return
	}

	if err := r.markPublished(ctx, row.ID); err != nil {
		r.log.WithFields(logging.EventFields("mark_published", row.EventType).Error(err).ToLogrus()).
			Error("outbox relay failed to mark row published")
		return
	}

	r.mu.Lock()
	r.stats.EventsProcessed++
	r.mu.Unlock()
	metrics.RecordRelayOutcome("published")
}

func (r *Relay) onPublishFailure(ctx context.Context, row outbox.Row, cause error) {
	newRetryCount := row.RetryCount + 1
	if newRetryCount >= r.config.MaxRetries {
		r.markFailed(ctx, row.ID, cause)
		r.mu.Lock()
		r.stats.EventsFailed++
		r.mu.Unlock()
		metrics.RecordRelayOutcome("failed")
		return
	}

	if err := r.incrementRetry(ctx, row.ID, cause); err != nil {
		r.log.WithFields(logging.EventFields("increment_retry", row.EventType).Error(err).ToLogrus()).
			Error("outbox relay failed to record retry")
	}
	r.mu.Lock()
	r.stats.TotalRetries++
	r.mu.Unlock()
	metrics.RecordRelayOutcome("retry")
}

func (r *Relay) markPublished(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE event_outbox SET status = $1, published_at = NOW() WHERE id = $2
	`), outbox.StatusPublished, id)
	if err != nil {
		return errors.DatabaseError("mark outbox row published", err)
	}
	return nil
}

func (r *Relay) markFailed(ctx context.Context, id int64, cause error) {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE event_outbox SET status = $1, retry_count = retry_count + 1, last_error = $2 WHERE id = $3
	`), outbox.StatusFailed, truncate(cause.Error(), 500), id)
	if err != nil {
		r.log.WithFields(logging.NewFields().Component("outboxrelay").Error(err).ToLogrus()).
			Error("failed to mark outbox row failed")
	}
}

func (r *Relay) incrementRetry(ctx context.Context, id int64, cause error) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE event_outbox SET retry_count = retry_count + 1, last_error = $1 WHERE id = $2
	`), truncate(cause.Error(), 500), id)
	if err != nil {
		return errors.DatabaseError("increment outbox retry_count", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

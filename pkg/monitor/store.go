package monitor

import (
	"context"
	"time"

	"github.com/xksnk/selfology-core/pkg/analysis"
)

// Store is the read side the monitor needs out of C14's repositories. It
// never writes except through IncrementRetry/SetLaneTerminal, which the
// auto-retry manager uses to persist retry bookkeeping.
type Store interface {
	RecentRecords(ctx context.Context, since time.Time) ([]analysis.Record, error)
	PendingCountByLane(ctx context.Context, lane string) (int, error)
	FailedLaneRows(ctx context.Context, lane string, maxRetries int) ([]analysis.Record, error)
	IncrementRetry(ctx context.Context, id int64) error
	SetLaneTerminal(ctx context.Context, id int64, lane string, status analysis.LaneStatus, lastErr error) error
}

// LaneWorker re-runs a single background lane for a record. Vectorizer
// and ProfileMerger already exist as the analysis package's follow-up job
// interfaces; the auto-retry manager is handed one worker func per lane.
type LaneWorker func(ctx context.Context, rec analysis.Record) error

// HealthPinger checks one external dependency for the health checker
// detector.
type HealthPinger interface {
	Ping(ctx context.Context) error
}

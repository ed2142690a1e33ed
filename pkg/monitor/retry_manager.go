package monitor

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/xksnk/selfology-core/pkg/analysis"
	sharederrors "github.com/xksnk/selfology-core/pkg/shared/errors"
	"github.com/xksnk/selfology-core/pkg/shared/metrics"
)

// RetryManagerConfig controls backoff and eligibility for the auto-retry
// loop.
type RetryManagerConfig struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryManagerConfig() RetryManagerConfig {
	return RetryManagerConfig{
		MaxRetries: 5,
		BaseDelay:  2 * time.Second,
		MaxDelay:   5 * time.Minute,
	}
}

// RetryManager re-invokes failed lane workers for eligible rows: retry
// count under the cap, enough elapsed time since the last attempt, and an
// error classified as recoverable.
type RetryManager struct {
	store   Store
	cfg     RetryManagerConfig
	workers map[string]LaneWorker // lane -> worker
	alerts  Sink
}

func NewRetryManager(store Store, cfg RetryManagerConfig, workers map[string]LaneWorker, alerts Sink) *RetryManager {
	return &RetryManager{store: store, cfg: cfg, workers: workers, alerts: alerts}
}

// RunOnce scans every configured lane for eligible failed rows and
// re-invokes the lane worker for each one.
func (m *RetryManager) RunOnce(ctx context.Context, now time.Time) error {
	for lane, worker := range m.workers {
		rows, err := m.store.FailedLaneRows(ctx, lane, m.cfg.MaxRetries)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if !m.eligible(r, now) {
				continue
			}
			m.retryOne(ctx, lane, worker, r)
		}
	}
	return nil
}

func (m *RetryManager) eligible(r analysis.Record, now time.Time) bool {
	if r.RetryCount >= m.cfg.MaxRetries {
		return false
	}
	if r.RetryCount == 0 {
		return true
	}
	delay := m.backoff(r.RetryCount)
	if r.LastRetryAt == nil {
		return true
	}
	return now.Sub(*r.LastRetryAt) >= delay
}

func (m *RetryManager) backoff(retryCount int) time.Duration {
	d := time.Duration(float64(m.cfg.BaseDelay) * math.Pow(2, float64(retryCount)))
	if d > m.cfg.MaxDelay {
		return m.cfg.MaxDelay
	}
	return d
}

func (m *RetryManager) retryOne(ctx context.Context, lane string, worker LaneWorker, r analysis.Record) {
	laneErr := laneError(r, lane)
	if laneErr != nil && !IsRecoverable(laneErr) {
		return
	}

	if err := m.store.IncrementRetry(ctx, r.ID); err != nil {
		return
	}

	err := worker(ctx, r)
	if err == nil {
		_ = m.store.SetLaneTerminal(ctx, r.ID, lane, analysis.LaneSuccess, nil)
		metrics.RecordAutoRetry(lane, "success")
		return
	}

	_ = m.store.SetLaneTerminal(ctx, r.ID, lane, analysis.LaneFailed, err)
	metrics.RecordAutoRetry(lane, "failed")
	if m.alerts != nil {
		m.alerts.Notify(Alert{
			Type:     "auto_retry_failed",
			Severity: SeverityWarning,
			Message:  lane + " retry failed for analysis " + itoa64(r.ID),
			Details:  map[string]interface{}{"lane": lane, "error": err.Error()},
			RecordID: r.ID,
			RaisedAt: time.Now().UTC(),
		})
	}
}

// recoverableMarkers / nonRecoverableMarkers mirror the spec's closed
// list: timeouts, connection errors, rate limits, and generic
// unavailability are recoverable; malformed payloads, auth failures, and
// invalid formats are not.
var recoverableMarkers = []string{"timeout", "connection reset", "connection refused", "rate limit", "429", "503", "unavailable"}
var nonRecoverableMarkers = []string{"malformed", "unauthorized", "invalid format", "401", "403", "400"}

func laneError(r analysis.Record, lane string) error {
	var msg *string
	if lane == "vectorization" {
		msg = r.VectorizationError
	} else {
		msg = r.DPUpdateError
	}
	if msg == nil {
		return nil
	}
	lowered := strings.ToLower(*msg)
	for _, marker := range nonRecoverableMarkers {
		if strings.Contains(lowered, marker) {
			return sharederrors.Permanent(*msg, nil)
		}
	}
	for _, marker := range recoverableMarkers {
		if strings.Contains(lowered, marker) {
			return sharederrors.Transient(*msg, nil)
		}
	}
	return sharederrors.Permanent(*msg, nil)
}

// IsRecoverable classifies an error as retryable using the same taxonomy
// the circuit breaker and retry primitives already apply: transient and
// capacity errors are recoverable, validation/permanent errors are not.
func IsRecoverable(err error) bool {
	kind := sharederrors.KindOf(err)
	return kind == sharederrors.KindTransient || kind == sharederrors.KindCapacity
}

func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits [20]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		digits[i] = '-'
	}
	return string(digits[i:])
}

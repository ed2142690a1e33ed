package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/xksnk/selfology-core/pkg/analysis"
)

// DetectorConfig carries the thresholds every detector is tuned by. The
// field comments name the environment switch each one corresponds to;
// nothing in this package reads the environment.
type DetectorConfig struct {
	StuckThreshold   time.Duration // STUCK_THRESHOLD_SEC
	SlowThresholdMS  int64         // SLOW_THRESHOLD_MS
	FailureThreshold float64       // FAILURE_THRESHOLD
	Window           time.Duration
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		StuckThreshold:   5 * time.Minute,
		SlowThresholdMS:  30_000,
		FailureThreshold: 0.2,
		Window:           15 * time.Minute,
	}
}

// StuckTaskAlerts finds records whose background work never finished and
// have aged past the stuck threshold.
func StuckTaskAlerts(records []analysis.Record, cfg DetectorConfig, now time.Time) []Alert {
	var alerts []Alert
	for _, r := range records {
		if r.BackgroundTaskCompleted {
			continue
		}
		age := now.Sub(r.CreatedAt)
		if age < cfg.StuckThreshold {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     "stuck_task",
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("analysis %d stuck for %.1f minutes", r.ID, age.Minutes()),
			Details:  map[string]interface{}{"minutes_stuck": age.Minutes()},
			RecordID: r.ID,
			RaisedAt: now,
		})
	}
	return alerts
}

// SlowPathAlerts finds records whose total background duration exceeded
// the slow threshold.
func SlowPathAlerts(records []analysis.Record, cfg DetectorConfig, now time.Time) []Alert {
	var alerts []Alert
	for _, r := range records {
		if r.BackgroundTaskDurationMS <= cfg.SlowThresholdMS {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     "slow_processing",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("analysis %d took %dms in the background", r.ID, r.BackgroundTaskDurationMS),
			Details:  map[string]interface{}{"duration_ms": r.BackgroundTaskDurationMS},
			RecordID: r.ID,
			RaisedAt: now,
		})
	}
	return alerts
}

// FailureRateAlerts raises high_failure_rate once any lane's success
// rate over the window drops under 1-FailureThreshold.
func FailureRateAlerts(snap Snapshot, cfg DetectorConfig, now time.Time) []Alert {
	var alerts []Alert
	floor := 1 - cfg.FailureThreshold
	for lane, rate := range snap.SuccessRate {
		if rate >= floor {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     "high_failure_rate",
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s success rate %.2f below floor %.2f", lane, rate, floor),
			Details:  map[string]interface{}{"lane": lane, "success_rate": rate},
			RaisedAt: now,
		})
	}
	return alerts
}

// HealthAlerts pings every registered dependency and raises
// service_unhealthy for any non-healthy response.
func HealthAlerts(ctx context.Context, deps map[string]HealthPinger, now time.Time) []Alert {
	var alerts []Alert
	for name, pinger := range deps {
		if err := pinger.Ping(ctx); err != nil {
			alerts = append(alerts, Alert{
				Type:     "service_unhealthy",
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("%s is unhealthy: %v", name, err),
				Details:  map[string]interface{}{"dependency": name},
				RaisedAt: now,
			})
		}
	}
	return alerts
}

package monitor

import (
	"context"
	"time"

	"github.com/xksnk/selfology-core/pkg/shared/metrics"
)

// RunnerConfig bundles the tick interval the monitor loop samples on.
type RunnerConfig struct {
	Interval time.Duration
}

func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{Interval: 30 * time.Second}
}

// Runner ties the collector and detectors to a sink, looping until its
// context is cancelled. It holds no DB transaction across a tick.
type Runner struct {
	store      Store
	collector  *Collector
	detectCfg  DetectorConfig
	deps       map[string]HealthPinger
	sink       Sink
	runnerCfg  RunnerConfig
}

func NewRunner(store Store, collector *Collector, detectCfg DetectorConfig, deps map[string]HealthPinger, sink Sink, runnerCfg RunnerConfig) *Runner {
	return &Runner{store: store, collector: collector, detectCfg: detectCfg, deps: deps, sink: sink, runnerCfg: runnerCfg}
}

// Run loops until ctx is cancelled, sampling metrics and running every
// detector once per tick.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.runnerCfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Tick(ctx, time.Now().UTC()); err != nil {
				continue
			}
		}
	}
}

// Tick runs one full detection pass: sample metrics, evaluate every
// detector, and fan out the resulting alerts.
func (r *Runner) Tick(ctx context.Context, now time.Time) error {
	records, err := r.store.RecentRecords(ctx, now.Add(-r.detectCfg.Window))
	if err != nil {
		return err
	}

	snap, err := r.collector.Sample(ctx, now)
	if err != nil {
		return err
	}
	for lane, depth := range snap.QueueDepth {
		metrics.RecordQueueDepth(lane, depth)
	}

	for _, a := range StuckTaskAlerts(records, r.detectCfg, now) {
		r.notify(a)
	}
	for _, a := range SlowPathAlerts(records, r.detectCfg, now) {
		r.notify(a)
	}
	for _, a := range FailureRateAlerts(snap, r.detectCfg, now) {
		r.notify(a)
	}
	for _, a := range HealthAlerts(ctx, r.deps, now) {
		r.notify(a)
	}
	return nil
}

func (r *Runner) notify(a Alert) {
	metrics.RecordAlert(a.Type, string(a.Severity))
	r.sink.Notify(a)
}

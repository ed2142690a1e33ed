package monitor

import (
	"context"
	"time"

	"github.com/xksnk/selfology-core/pkg/analysis"
)

// Snapshot is one sample the metric collector produces over a window.
type Snapshot struct {
	WindowStart       time.Time
	AverageLatencyMS  float64
	SuccessRate       map[string]float64 // lane -> success rate
	QueueDepth        map[string]int     // lane -> PENDING count
	ErrorCounts       map[string]int     // lane -> failed count in window
	SampleSize        int
}

// Collector samples recent AnalysisRecord rows to compute the metrics the
// detectors and any external dashboard consume.
type Collector struct {
	store  Store
	window time.Duration
}

func NewCollector(store Store, window time.Duration) *Collector {
	return &Collector{store: store, window: window}
}

// Sample computes average Phase-B latency, per-lane success rate, queue
// depth, and error counts over the trailing window.
func (c *Collector) Sample(ctx context.Context, now time.Time) (Snapshot, error) {
	since := now.Add(-c.window)
	records, err := c.store.RecentRecords(ctx, since)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		WindowStart: since,
		SuccessRate: make(map[string]float64),
		QueueDepth:  make(map[string]int),
		ErrorCounts: make(map[string]int),
		SampleSize:  len(records),
	}

	var totalLatency int64
	vecSuccess, vecTotal := 0, 0
	dpSuccess, dpTotal := 0, 0

	for _, r := range records {
		totalLatency += r.ProcessingTimeMS

		switch r.VectorizationStatus {
		case analysis.LaneSuccess:
			vecSuccess++
			vecTotal++
		case analysis.LaneFailed:
			vecTotal++
			snap.ErrorCounts["vectorization"]++
		case analysis.LanePending:
			snap.QueueDepth["vectorization"]++
		}

		switch r.DPUpdateStatus {
		case analysis.LaneSuccess:
			dpSuccess++
			dpTotal++
		case analysis.LaneFailed:
			dpTotal++
			snap.ErrorCounts["dp_update"]++
		case analysis.LanePending:
			snap.QueueDepth["dp_update"]++
		}
	}

	if len(records) > 0 {
		snap.AverageLatencyMS = float64(totalLatency) / float64(len(records))
	}
	snap.SuccessRate["vectorization"] = rate(vecSuccess, vecTotal)
	snap.SuccessRate["dp_update"] = rate(dpSuccess, dpTotal)

	return snap, nil
}

func rate(success, total int) float64 {
	if total == 0 {
		return 1.0
	}
	return float64(success) / float64(total)
}

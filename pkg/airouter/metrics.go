package airouter

import (
	"sync"
	"time"
)

// ModelMetrics are the cumulative per-model counters used for cost
// tracking and the health rollup in Metrics.ModelHealth.
type ModelMetrics struct {
	Successes     int64
	Failures      int64
	TotalLatency  time.Duration
	TotalCost     float64
	recentOutcome []bool // ring of the last few call outcomes, newest last
}

const recentWindow = 20

// Metrics tracks per-model cost, latency, and success-rate metrics for the
// router, and derives a HEALTHY/DEGRADED/UNHEALTHY rollup per model from
// recent success rate.
type Metrics struct {
	mu     sync.Mutex
	models map[string]*ModelMetrics
}

func NewMetrics() *Metrics {
	return &Metrics{models: make(map[string]*ModelMetrics)}
}

func (m *Metrics) entry(model string) *ModelMetrics {
	e, ok := m.models[model]
	if !ok {
		e = &ModelMetrics{}
		m.models[model] = e
	}
	return e
}

func (m *Metrics) RecordSuccess(model string, latency time.Duration, cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(model)
	e.Successes++
	e.TotalLatency += latency
	e.TotalCost += cost
	e.recentOutcome = pushRecent(e.recentOutcome, true)
}

func (m *Metrics) RecordFailure(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(model)
	e.Failures++
	e.recentOutcome = pushRecent(e.recentOutcome, false)
}

func pushRecent(outcomes []bool, ok bool) []bool {
	outcomes = append(outcomes, ok)
	if len(outcomes) > recentWindow {
		outcomes = outcomes[len(outcomes)-recentWindow:]
	}
	return outcomes
}

// Snapshot returns a copy of one model's cumulative counters.
func (m *Metrics) Snapshot(model string) ModelMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.models[model]; ok {
		return *e
	}
	return ModelMetrics{}
}

// ModelHealth reports a model's rollup from its recent call outcomes:
// UNHEALTHY below 50% recent success, DEGRADED below 90%, HEALTHY
// otherwise. A model with no calls yet is HEALTHY.
func (m *Metrics) ModelHealth(model string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.models[model]
	if !ok || len(e.recentOutcome) == 0 {
		return "healthy"
	}

	successes := 0
	for _, ok := range e.recentOutcome {
		if ok {
			successes++
		}
	}
	rate := float64(successes) / float64(len(e.recentOutcome))

	switch {
	case rate < 0.5:
		return "unhealthy"
	case rate < 0.9:
		return "degraded"
	default:
		return "healthy"
	}
}

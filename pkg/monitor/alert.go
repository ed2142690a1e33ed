// Package monitor implements the pipeline monitor (C13): a metric
// collector, a set of detectors watching AnalysisRecord rows for stuck,
// slow, and failing lanes, a fan-out alerting surface with a
// rate-limited, grouping Telegram-style callback, and an auto-retry
// manager that re-invokes recoverable lane failures.
package monitor

import "time"

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Alert is the value every detector produces and every sink consumes.
type Alert struct {
	Type      string
	Severity  Severity
	Message   string
	Details   map[string]interface{}
	UserID    string
	RecordID  int64
	RaisedAt  time.Time
}

// Sink is a registered alert callback. The Telegram-style alerter is one
// implementation; tests and other transports can supply others.
type Sink interface {
	Notify(a Alert)
}

// Fanout dispatches every alert to all registered sinks.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Notify(a Alert) {
	for _, s := range f.sinks {
		s.Notify(a)
	}
}

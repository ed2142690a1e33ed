// Package metrics exposes the core's Prometheus collectors: one set of
// package-level vectors per component (bus, relay, router, monitor),
// registered via promauto against the default registry, matching the
// teacher's pkg/metrics global-collector-plus-Record-helper convention.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// C4 event bus.
var (
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfology_events_published_total",
		Help: "Envelopes published to the bus, by priority lane.",
	}, []string{"priority"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfology_events_consumed_total",
		Help: "Envelopes handled by a consumer group, by outcome (ack/retry/fail).",
	}, []string{"group", "outcome"})

	EventsDLQTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfology_events_dlq_total",
		Help: "Envelopes routed to the DLQ stream, by reason.",
	}, []string{"reason"})
)

// RecordPublish increments the publish counter for one priority lane.
func RecordPublish(priority string) {
	EventsPublishedTotal.WithLabelValues(priority).Inc()
}

// RecordConsume increments the consume-outcome counter for one group.
func RecordConsume(group, outcome string) {
	EventsConsumedTotal.WithLabelValues(group, outcome).Inc()
}

// RecordDLQ increments the DLQ counter for one reason.
func RecordDLQ(reason string) {
	EventsDLQTotal.WithLabelValues(reason).Inc()
}

// C6 outbox relay.
var (
	OutboxRelayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfology_outbox_relayed_total",
		Help: "Outbox rows the relay resolved, by terminal outcome (published/retry/failed).",
	}, []string{"outcome"})

	OutboxRelayBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "selfology_outbox_relay_batch_duration_seconds",
		Help:    "Wall time to drain one relay batch.",
		Buckets: prometheus.DefBuckets,
	})
)

// RecordRelayOutcome increments the relay outcome counter.
func RecordRelayOutcome(outcome string) {
	OutboxRelayedTotal.WithLabelValues(outcome).Inc()
}

// RecordRelayBatch records one batch's wall-clock duration.
func RecordRelayBatch(d time.Duration) {
	OutboxRelayBatchDuration.Observe(d.Seconds())
}

// C7 base service runtime.
var ServiceHealth = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "selfology_service_health",
	Help: "Service health rollup: 0=unhealthy, 1=degraded, 2=healthy.",
}, []string{"service"})

// RecordHealth sets the health gauge for one service from its rollup string.
func RecordHealth(service, health string) {
	var v float64
	switch health {
	case "healthy":
		v = 2
	case "degraded":
		v = 1
	default:
		v = 0
	}
	ServiceHealth.WithLabelValues(service).Set(v)
}

// C8 AI router.
var (
	AIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfology_ai_requests_total",
		Help: "AI router calls, by model and outcome (success/failure).",
	}, []string{"model", "outcome"})

	AIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "selfology_ai_request_duration_seconds",
		Help:    "AI model call latency, by model.",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	AICostTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfology_ai_cost_total",
		Help: "Cumulative estimated cost, by model.",
	}, []string{"model"})
)

// RecordAICall records one model call's outcome, latency, and cost.
func RecordAICall(model, outcome string, latency time.Duration, cost float64) {
	AIRequestsTotal.WithLabelValues(model, outcome).Inc()
	AIRequestDuration.WithLabelValues(model).Observe(latency.Seconds())
	if cost > 0 {
		AICostTotal.WithLabelValues(model).Add(cost)
	}
}

// C2 circuit breakers, shared across every dependency kind.
var CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "selfology_circuit_breaker_state",
	Help: "Circuit breaker state: 0=closed, 1=half_open, 2=open.",
}, []string{"name"})

// RecordBreakerState sets the breaker-state gauge from its state string.
func RecordBreakerState(name, state string) {
	var v float64
	switch state {
	case "open":
		v = 2
	case "half_open":
		v = 1
	default:
		v = 0
	}
	CircuitBreakerState.WithLabelValues(name).Set(v)
}

// C13 pipeline monitor.
var (
	MonitorAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfology_monitor_alerts_total",
		Help: "Alerts raised by the pipeline monitor, by alert_type and severity.",
	}, []string{"alert_type", "severity"})

	MonitorQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "selfology_monitor_queue_depth",
		Help: "Pending row count per analysis lane.",
	}, []string{"lane"})

	MonitorAutoRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfology_monitor_auto_retries_total",
		Help: "Auto-retry attempts, by lane and outcome.",
	}, []string{"lane", "outcome"})
)

// RecordAlert increments the alert counter for one type/severity pair.
func RecordAlert(alertType, severity string) {
	MonitorAlertsTotal.WithLabelValues(alertType, severity).Inc()
}

// RecordQueueDepth sets the queue-depth gauge for one lane.
func RecordQueueDepth(lane string, depth int) {
	MonitorQueueDepth.WithLabelValues(lane).Set(float64(depth))
}

// RecordAutoRetry increments the auto-retry counter for one lane/outcome.
func RecordAutoRetry(lane, outcome string) {
	MonitorAutoRetriesTotal.WithLabelValues(lane, outcome).Inc()
}

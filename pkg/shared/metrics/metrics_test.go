package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPublish(t *testing.T) {
	initial := testutil.ToFloat64(EventsPublishedTotal.WithLabelValues("critical"))
	RecordPublish("critical")
	if got := testutil.ToFloat64(EventsPublishedTotal.WithLabelValues("critical")); got != initial+1 {
		t.Fatalf("EventsPublishedTotal = %v, want %v", got, initial+1)
	}
}

func TestRecordConsume(t *testing.T) {
	initial := testutil.ToFloat64(EventsConsumedTotal.WithLabelValues("analysis", "ack"))
	RecordConsume("analysis", "ack")
	if got := testutil.ToFloat64(EventsConsumedTotal.WithLabelValues("analysis", "ack")); got != initial+1 {
		t.Fatalf("EventsConsumedTotal = %v, want %v", got, initial+1)
	}
}

func TestRecordRelayOutcome(t *testing.T) {
	initial := testutil.ToFloat64(OutboxRelayedTotal.WithLabelValues("published"))
	RecordRelayOutcome("published")
	if got := testutil.ToFloat64(OutboxRelayedTotal.WithLabelValues("published")); got != initial+1 {
		t.Fatalf("OutboxRelayedTotal = %v, want %v", got, initial+1)
	}
}

func TestRecordHealth(t *testing.T) {
	RecordHealth("relay", "healthy")
	if got := testutil.ToFloat64(ServiceHealth.WithLabelValues("relay")); got != 2 {
		t.Fatalf("ServiceHealth = %v, want 2", got)
	}
	RecordHealth("relay", "degraded")
	if got := testutil.ToFloat64(ServiceHealth.WithLabelValues("relay")); got != 1 {
		t.Fatalf("ServiceHealth = %v, want 1", got)
	}
	RecordHealth("relay", "unhealthy")
	if got := testutil.ToFloat64(ServiceHealth.WithLabelValues("relay")); got != 0 {
		t.Fatalf("ServiceHealth = %v, want 0", got)
	}
}

func TestRecordAICall(t *testing.T) {
	initial := testutil.ToFloat64(AIRequestsTotal.WithLabelValues("gpt-4o-mini", "success"))
	RecordAICall("gpt-4o-mini", "success", 120*time.Millisecond, 0.002)
	if got := testutil.ToFloat64(AIRequestsTotal.WithLabelValues("gpt-4o-mini", "success")); got != initial+1 {
		t.Fatalf("AIRequestsTotal = %v, want %v", got, initial+1)
	}
}

func TestRecordBreakerState(t *testing.T) {
	RecordBreakerState("claude-frontier", "open")
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("claude-frontier")); got != 2 {
		t.Fatalf("CircuitBreakerState = %v, want 2", got)
	}
}

func TestRecordAlert(t *testing.T) {
	initial := testutil.ToFloat64(MonitorAlertsTotal.WithLabelValues("stuck_task", "critical"))
	RecordAlert("stuck_task", "critical")
	if got := testutil.ToFloat64(MonitorAlertsTotal.WithLabelValues("stuck_task", "critical")); got != initial+1 {
		t.Fatalf("MonitorAlertsTotal = %v, want %v", got, initial+1)
	}
}

func TestRecordQueueDepth(t *testing.T) {
	RecordQueueDepth("vectorization", 7)
	if got := testutil.ToFloat64(MonitorQueueDepth.WithLabelValues("vectorization")); got != 7 {
		t.Fatalf("MonitorQueueDepth = %v, want 7", got)
	}
}

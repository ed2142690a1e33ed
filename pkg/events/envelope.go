// Package events implements the canonical event envelope (C3): versioned
// JSON serialization with transparent zlib compression above a size
// threshold, and schema-version rejection for consumers that no longer
// understand an older payload shape.
package events

import (
	"time"

	"github.com/google/uuid"
)

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZlib Compression = "zlib"
)

// Envelope is the bit-level-stable wire format every event crosses the bus
// as. Payload is always a JSON object on the Go side; Compression only
// describes how the envelope was carried over the wire (see codec.go).
type Envelope struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	SchemaVersion int                    `json:"schema_version"`
	Priority      Priority               `json:"priority"`
	TraceID       string                 `json:"trace_id,omitempty"`
	ProducedAt    time.Time              `json:"produced_at"`
	Payload       map[string]interface{} `json:"payload"`
	Compression   Compression            `json:"compression"`
}

// New builds an envelope with a fresh event_id and produced_at set to now,
// uncompressed — Encode applies compression if the serialized size exceeds
// the codec's threshold.
func New(eventType string, schemaVersion int, priority Priority, traceID string, payload map[string]interface{}) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		SchemaVersion: schemaVersion,
		Priority:      priority,
		TraceID:       traceID,
		ProducedAt:    time.Now().UTC(),
		Payload:       payload,
		Compression:   CompressionNone,
	}
}

package events

import "github.com/xksnk/selfology-core/pkg/shared/errors"

// ReasonSchemaMismatch is the DLQ failure reason a consumer reports when an
// envelope's schema_version is not one it declares support for.
const ReasonSchemaMismatch = "schema_mismatch"

// SchemaRegistry tracks, per event_type, which schema_versions a consumer
// understands. Consumers declare their supported versions at construction
// and reject anything else to DLQ rather than guessing at an unknown shape.
type SchemaRegistry struct {
	supported map[string]map[int]bool
}

func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{supported: make(map[string]map[int]bool)}
}

// Declare registers the versions of eventType this consumer understands.
func (s *SchemaRegistry) Declare(eventType string, versions ...int) {
	set, ok := s.supported[eventType]
	if !ok {
		set = make(map[int]bool)
		s.supported[eventType] = set
	}
	for _, v := range versions {
		set[v] = true
	}
}

// Check returns nil if env's schema_version is declared supported for its
// event_type, or a validation error tagged with ReasonSchemaMismatch
// otherwise. An event_type with no declarations at all is treated as
// unconstrained (every version accepted) — most consumers only care about
// the event types they explicitly subscribe to.
func (s *SchemaRegistry) Check(env Envelope) error {
	set, declared := s.supported[env.EventType]
	if !declared {
		return nil
	}
	if set[env.SchemaVersion] {
		return nil
	}
	return errors.Validation(ReasonSchemaMismatch, nil)
}

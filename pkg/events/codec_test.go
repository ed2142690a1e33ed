package events_test

import (
	"strings"
	"testing"

	"github.com/xksnk/selfology-core/pkg/events"
	sharederrors "github.com/xksnk/selfology-core/pkg/shared/errors"
)

func TestEncodeDecodeRoundTrip_Uncompressed(t *testing.T) {
	codec := events.NewCodec()
	env := events.New("user.answer.submitted", 1, events.PriorityHigh, "trace-1", map[string]interface{}{
		"user_id": float64(123),
		"answer":  "short text",
	})

	data, err := codec.Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Compression != events.CompressionNone {
		t.Fatalf("expected no compression for small payload, got %s", got.Compression)
	}
	if got.EventID != env.EventID || got.EventType != env.EventType {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, env)
	}
	if got.Payload["user_id"] != float64(123) {
		t.Fatalf("payload mismatch: %+v", got.Payload)
	}
}

func TestEncodeDecodeRoundTrip_Compressed(t *testing.T) {
	codec := &events.Codec{CompressionThreshold: 16}
	bigText := strings.Repeat("x", 500)
	env := events.New("context.story.created", 1, events.PriorityNormal, "", map[string]interface{}{
		"narrative": bigText,
	})

	data, err := codec.Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Compression != events.CompressionZlib {
		t.Fatalf("expected zlib compression above threshold, got %s", got.Compression)
	}
	if got.Payload["narrative"] != bigText {
		t.Fatalf("decompressed payload mismatch")
	}
}

func TestDecode_RejectsMalformedJSON(t *testing.T) {
	codec := events.NewCodec()
	_, err := codec.Decode([]byte("not json"))
	if err == nil {
		t.Fatal("expected error for malformed envelope")
	}
	if sharederrors.KindOf(err) != sharederrors.KindValidation {
		t.Fatalf("expected KindValidation, got %s", sharederrors.KindOf(err))
	}
}

func TestSchemaRegistry_RejectsUndeclaredVersion(t *testing.T) {
	registry := events.NewSchemaRegistry()
	registry.Declare("user.answer.submitted", 1, 2)

	ok := events.New("user.answer.submitted", 1, events.PriorityHigh, "", nil)
	if err := registry.Check(ok); err != nil {
		t.Fatalf("expected declared version to pass, got %v", err)
	}

	stale := events.New("user.answer.submitted", 3, events.PriorityHigh, "", nil)
	err := registry.Check(stale)
	if err == nil {
		t.Fatal("expected schema mismatch error")
	}
	if sharederrors.KindOf(err) != sharederrors.KindValidation {
		t.Fatalf("expected KindValidation, got %s", sharederrors.KindOf(err))
	}
	if !strings.Contains(err.Error(), events.ReasonSchemaMismatch) {
		t.Fatalf("expected reason %q in error, got %v", events.ReasonSchemaMismatch, err)
	}
}

func TestSchemaRegistry_UndeclaredEventTypeIsUnconstrained(t *testing.T) {
	registry := events.NewSchemaRegistry()
	env := events.New("system.heartbeat", 7, events.PriorityLow, "", nil)
	if err := registry.Check(env); err != nil {
		t.Fatalf("expected no constraint for undeclared event type, got %v", err)
	}
}

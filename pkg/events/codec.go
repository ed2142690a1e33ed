package events

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/xksnk/selfology-core/pkg/shared/errors"
)

// DefaultCompressionThreshold is the serialized payload size, in bytes,
// above which Encode switches to compression=zlib.
const DefaultCompressionThreshold = 4096

// wireEnvelope is the on-the-wire shape: payload is either a raw JSON
// object (compression=none) or a base64-wrapped zlib blob
// (compression=zlib), matching the envelope's bit-level-stable contract.
type wireEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	Priority      Priority        `json:"priority"`
	TraceID       string          `json:"trace_id,omitempty"`
	ProducedAt    string          `json:"produced_at"`
	Payload       json.RawMessage `json:"payload"`
	Compression   Compression     `json:"compression"`
}

type Codec struct {
	CompressionThreshold int
}

func NewCodec() *Codec {
	return &Codec{CompressionThreshold: DefaultCompressionThreshold}
}

// Encode serializes env to bytes, compressing the payload with zlib when
// its serialized size exceeds the codec's threshold.
func (c *Codec) Encode(env Envelope) ([]byte, error) {
	threshold := c.CompressionThreshold
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}

	payloadJSON, err := json.Marshal(env.Payload)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal event payload for %s", env.EventType)
	}

	wire := wireEnvelope{
		EventID:       env.EventID,
		EventType:     env.EventType,
		SchemaVersion: env.SchemaVersion,
		Priority:      env.Priority,
		TraceID:       env.TraceID,
		ProducedAt:    env.ProducedAt.Format(timeLayout),
		Compression:   CompressionNone,
	}

	if len(payloadJSON) > threshold {
		compressed, err := compress(payloadJSON)
		if err != nil {
			return nil, errors.Wrapf(err, "compress event payload for %s", env.EventType)
		}
		wire.Compression = CompressionZlib
		wire.Payload, err = json.Marshal(base64.StdEncoding.EncodeToString(compressed))
		if err != nil {
			return nil, errors.Wrapf(err, "encode compressed payload for %s", env.EventType)
		}
	} else {
		wire.Payload = payloadJSON
	}

	out, err := json.Marshal(wire)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal envelope for %s", env.EventType)
	}
	return out, nil
}

// Decode parses bytes back into an Envelope, transparently decompressing
// a zlib-compressed payload.
func (c *Codec) Decode(data []byte) (Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return Envelope{}, errors.Validation("invalid envelope: not valid JSON", err)
	}

	producedAt, err := parseTime(wire.ProducedAt)
	if err != nil {
		return Envelope{}, errors.Validation("invalid envelope: bad produced_at", err)
	}

	payload, err := decodePayload(wire)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		EventID:       wire.EventID,
		EventType:     wire.EventType,
		SchemaVersion: wire.SchemaVersion,
		Priority:      wire.Priority,
		TraceID:       wire.TraceID,
		ProducedAt:    producedAt,
		Payload:       payload,
		Compression:   wire.Compression,
	}, nil
}

func decodePayload(wire wireEnvelope) (map[string]interface{}, error) {
	switch wire.Compression {
	case CompressionZlib:
		var encoded string
		if err := json.Unmarshal(wire.Payload, &encoded); err != nil {
			return nil, errors.Validation("invalid envelope: compressed payload is not a base64 string", err)
		}
		compressed, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, errors.Validation("invalid envelope: bad base64 payload", err)
		}
		raw, err := decompress(compressed)
		if err != nil {
			return nil, errors.Validation("invalid envelope: corrupt zlib payload", err)
		}
		var payload map[string]interface{}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, errors.Validation("invalid envelope: decompressed payload is not a JSON object", err)
		}
		return payload, nil
	default:
		var payload map[string]interface{}
		if err := json.Unmarshal(wire.Payload, &payload); err != nil {
			return nil, errors.Validation("invalid envelope: payload is not a JSON object", err)
		}
		return payload, nil
	}
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

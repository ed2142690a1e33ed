// Package eventbus implements the domain event bus (C4): four
// priority-lane Redis Streams plus a dead-letter stream, a fail-fast
// publisher, and consumer groups with explicit ACK/RETRY/FAIL handling and
// pending-entry reclaim.
package eventbus

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/xksnk/selfology-core/pkg/events"
	"github.com/xksnk/selfology-core/pkg/shared/errors"
	"github.com/xksnk/selfology-core/pkg/shared/logging"
	"github.com/xksnk/selfology-core/pkg/shared/metrics"
)

// streamPrefix matches the original system's Redis key namespace.
const streamPrefix = "selfology:events:"

const DLQStream = streamPrefix + "dlq"

func streamFor(p events.Priority) string {
	switch p {
	case events.PriorityCritical:
		return streamPrefix + "critical"
	case events.PriorityHigh:
		return streamPrefix + "high"
	case events.PriorityLow:
		return streamPrefix + "low"
	default:
		return streamPrefix + "normal"
	}
}

// MaxPayloadBytes bounds an encoded envelope; publishing a larger one fails
// with PayloadTooLarge rather than silently degrading stream performance.
const MaxPayloadBytes = 1 << 20 // 1MiB

// Bus is the publisher side of the event bus. It is safe for concurrent
// use; construct one per process and share it.
type Bus struct {
	client *redis.Client
	codec  *events.Codec
	log    *logrus.Logger
}

func New(client *redis.Client) *Bus {
	return &Bus{client: client, codec: events.NewCodec(), log: logrus.StandardLogger()}
}

// WithLogger overrides the bus's logger, used by services that maintain
// their own configured logrus instance.
func (b *Bus) WithLogger(log *logrus.Logger) *Bus {
	b.log = log
	return b
}

// Publish appends env to its priority's stream. It either lands the
// envelope in the target stream or returns a Classified error describing
// why: TransportUnavailable (Redis unreachable), PayloadTooLarge (encoded
// size exceeds MaxPayloadBytes, checked after compression), or
// InvalidEnvelope (missing event_type).
func (b *Bus) Publish(ctx context.Context, env events.Envelope) error {
	if env.EventType == "" {
		return errors.Validation("envelope missing event_type", nil)
	}

	data, err := b.codec.Encode(env)
	if err != nil {
		return errors.Validation("envelope failed to encode", err)
	}
	if len(data) > MaxPayloadBytes {
		return errors.Validation("envelope exceeds max payload size after compression", nil)
	}

	stream := streamFor(env.Priority)
	_, err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"envelope": data},
	}).Result()
	if err != nil {
		b.log.WithFields(logging.EventFields("publish", env.EventType).Error(err).ToLogrus()).
			Error("failed to publish event")
		return errors.Transient("event bus transport unavailable", err)
	}
	metrics.RecordPublish(string(env.Priority))
	return nil
}

// PublishDLQ appends env directly to the dead-letter stream with a failure
// reason, used both by consumers that exhaust redeliveries and by the
// schema-mismatch rejection path.
func (b *Bus) PublishDLQ(ctx context.Context, env events.Envelope, reason string) error {
	data, err := b.codec.Encode(env)
	if err != nil {
		return errors.Validation("envelope failed to encode for DLQ", err)
	}
	_, err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DLQStream,
		Values: map[string]interface{}{"envelope": data, "reason": reason},
	}).Result()
	if err != nil {
		return errors.Transient("event bus transport unavailable", err)
	}
	metrics.RecordDLQ(reason)
	return nil
}

package eventbus

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/xksnk/selfology-core/pkg/events"
	"github.com/xksnk/selfology-core/pkg/shared/errors"
	"github.com/xksnk/selfology-core/pkg/shared/logging"
	"github.com/xksnk/selfology-core/pkg/shared/metrics"
)

// Outcome is a handler's verdict on one delivered envelope.
type Outcome int

const (
	ACK Outcome = iota
	RETRY
	FAIL
)

// Handler processes one envelope and reports how it should be resolved.
// Handlers must be idempotent keyed by EventID, since redelivery can hand
// the same envelope to a different consumer in the group.
type Handler func(ctx context.Context, env events.Envelope) Outcome

// ConsumerConfig controls one consumer's group membership and polling
// cadence.
type ConsumerConfig struct {
	Group            string
	Name             string
	Priorities       []events.Priority // streams this consumer reads; defaults to all four
	BatchSize        int64
	BlockFor         time.Duration
	ReclaimInterval  time.Duration
	ReclaimThreshold time.Duration // pending age before an entry is eligible for reclaim
	MaxRedeliveries  int64
	Schema           *events.SchemaRegistry // nil accepts every schema_version
}

func DefaultConsumerConfig(group, name string) ConsumerConfig {
	return ConsumerConfig{
		Group:            group,
		Name:             name,
		Priorities:       []events.Priority{events.PriorityCritical, events.PriorityHigh, events.PriorityNormal, events.PriorityLow},
		BatchSize:        10,
		BlockFor:         5 * time.Second,
		ReclaimInterval:  30 * time.Second,
		ReclaimThreshold: 60 * time.Second,
		MaxRedeliveries:  5,
	}
}

// Consumer reads one or more priority streams as a named member of a
// consumer group, with explicit ACK and periodic pending-entry reclaim.
type Consumer struct {
	client  *redis.Client
	codec   *events.Codec
	bus     *Bus
	config  ConsumerConfig
	handler Handler
	log     *logrus.Logger
}

func NewConsumer(client *redis.Client, bus *Bus, config ConsumerConfig, handler Handler) *Consumer {
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.BlockFor <= 0 {
		config.BlockFor = 5 * time.Second
	}
	if config.ReclaimInterval <= 0 {
		config.ReclaimInterval = 30 * time.Second
	}
	if config.ReclaimThreshold <= 0 {
		config.ReclaimThreshold = 60 * time.Second
	}
	if config.MaxRedeliveries <= 0 {
		config.MaxRedeliveries = 5
	}
	if len(config.Priorities) == 0 {
		config.Priorities = []events.Priority{events.PriorityCritical, events.PriorityHigh, events.PriorityNormal, events.PriorityLow}
	}
	return &Consumer{
		client:  client,
		codec:   events.NewCodec(),
		bus:     bus,
		config:  config,
		handler: handler,
		log:     logrus.StandardLogger(),
	}
}

func (c *Consumer) streams() []string {
	streams := make([]string, len(c.config.Priorities))
	for i, p := range c.config.Priorities {
		streams[i] = streamFor(p)
	}
	return streams
}

// EnsureGroups creates the consumer group on every stream this consumer
// reads, tolerating BUSYGROUP ("group already exists") errors.
func (c *Consumer) EnsureGroups(ctx context.Context) error {
	for _, stream := range c.streams() {
		err := c.client.XGroupCreateMkStream(ctx, stream, c.config.Group, "0").Err()
		if err != nil && !isBusyGroupErr(err) {
			return errors.Transient("failed to create consumer group", err)
		}
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// Run reads and dispatches envelopes until ctx is cancelled. It also runs
// the pending-entry reclaim sweep at ReclaimInterval on the same
// goroutine, between read cycles.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroups(ctx); err != nil {
		return err
	}

	lastReclaim := time.Now()
	streamArgs := make([]string, 0, len(c.streams())*2)
	for _, s := range c.streams() {
		streamArgs = append(streamArgs, s)
	}
	for range c.streams() {
		streamArgs = append(streamArgs, ">")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if time.Since(lastReclaim) >= c.config.ReclaimInterval {
			c.reclaim(ctx)
			lastReclaim = time.Now()
		}

		result, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.config.Group,
			Consumer: c.config.Name,
			Streams:  streamArgs,
			Count:    c.config.BatchSize,
			Block:    c.config.BlockFor,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			c.log.WithFields(logging.EventFields("consume", "").Error(err).ToLogrus()).
				Error("event bus read failed")
			continue
		}

		for _, stream := range result {
			for _, msg := range stream.Messages {
				c.dispatch(ctx, stream.Stream, msg)
			}
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, stream string, msg redis.XMessage) {
	raw, ok := msg.Values["envelope"].(string)
	if !ok {
		c.moveToDLQ(ctx, stream, msg, events.Envelope{}, "malformed_message")
		return
	}

	env, err := c.codec.Decode([]byte(raw))
	if err != nil {
		c.moveToDLQ(ctx, stream, msg, env, "decode_failed")
		return
	}

	if c.config.Schema != nil {
		if err := c.config.Schema.Check(env); err != nil {
			c.moveToDLQ(ctx, stream, msg, env, events.ReasonSchemaMismatch)
			return
		}
	}

	switch c.handler(ctx, env) {
	case ACK:
		c.client.XAck(ctx, stream, c.config.Group, msg.ID)
		metrics.RecordConsume(c.config.Group, "ack")
	case FAIL:
		c.moveToDLQ(ctx, stream, msg, env, "handler_failed")
		metrics.RecordConsume(c.config.Group, "fail")
	case RETRY:
		// leave unacked; the reclaim sweep redelivers it once past ReclaimThreshold
		metrics.RecordConsume(c.config.Group, "retry")
	}
}

func (c *Consumer) moveToDLQ(ctx context.Context, stream string, msg redis.XMessage, env events.Envelope, reason string) {
	if env.EventType != "" {
		if err := c.bus.PublishDLQ(ctx, env, reason); err != nil {
			c.log.WithFields(logging.EventFields("dlq", env.EventType).Error(err).ToLogrus()).
				Error("failed to move envelope to DLQ")
		}
	}
	c.client.XAck(ctx, stream, c.config.Group, msg.ID)
}

// reclaim scans each stream's pending-entries list and reassigns entries
// idle past ReclaimThreshold to this consumer, dispatching each claimed
// entry to the handler again, and moves ones that exceed MaxRedeliveries
// straight to DLQ.
func (c *Consumer) reclaim(ctx context.Context) {
	for _, stream := range c.streams() {
		pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: stream,
			Group:  c.config.Group,
			Start:  "-",
			End:    "+",
			Count:  100,
			Idle:   c.config.ReclaimThreshold,
		}).Result()
		if err != nil {
			continue
		}

		for _, p := range pending {
			if p.RetryCount > c.config.MaxRedeliveries {
				c.reclaimAndFail(ctx, stream, p.ID)
				continue
			}

			claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
				Stream:   stream,
				Group:    c.config.Group,
				Consumer: c.config.Name,
				MinIdle:  c.config.ReclaimThreshold,
				Messages: []string{p.ID},
			}).Result()
			if err != nil {
				c.log.WithFields(logging.EventFields("reclaim", "").Error(err).ToLogrus()).
					Warn("failed to reclaim pending entry")
				continue
			}
			for _, msg := range claimed {
				c.dispatch(ctx, stream, msg)
			}
		}
	}
}

func (c *Consumer) reclaimAndFail(ctx context.Context, stream, id string) {
	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    c.config.Group,
		Consumer: c.config.Name,
		MinIdle:  c.config.ReclaimThreshold,
		Messages: []string{id},
	}).Result()
	if err != nil || len(claimed) == 0 {
		return
	}

	msg := claimed[0]
	raw, ok := msg.Values["envelope"].(string)
	if !ok {
		c.client.XAck(ctx, stream, c.config.Group, id)
		return
	}
	env, err := c.codec.Decode([]byte(raw))
	if err != nil {
		c.client.XAck(ctx, stream, c.config.Group, id)
		return
	}
	c.moveToDLQ(ctx, stream, msg, env, "max_redeliveries_exceeded")
}

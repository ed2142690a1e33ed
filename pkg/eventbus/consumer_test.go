package eventbus_test

import (
	"context"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/xksnk/selfology-core/pkg/eventbus"
	"github.com/xksnk/selfology-core/pkg/events"
)

// Business Requirement: BR-REL-011 - consumer groups deliver at least once
// with explicit ACK, and failed handling routes to DLQ.
var _ = Describe("Consumer dispatch", func() {
	var (
		mr     *miniredis.Miniredis
		client *redis.Client
		bus    *eventbus.Bus
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		var err error
		mr, err = miniredis.Run()
		Expect(err).ToNot(HaveOccurred())
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		bus = eventbus.New(client)
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
		_ = client.Close()
		mr.Close()
	})

	It("delivers a published envelope and ACKs it on success", func() {
		env := events.New("user.answer.submitted", 1, events.PriorityNormal, "", map[string]interface{}{"k": "v"})
		Expect(bus.Publish(ctx, env)).To(Succeed())

		var mu sync.Mutex
		var received events.Envelope
		handled := make(chan struct{}, 1)

		config := eventbus.DefaultConsumerConfig("analysis_system", "worker-1")
		config.Priorities = []events.Priority{events.PriorityNormal}
		config.BlockFor = 50 * time.Millisecond

		consumer := eventbus.NewConsumer(client, bus, config, func(ctx context.Context, e events.Envelope) eventbus.Outcome {
			mu.Lock()
			received = e
			mu.Unlock()
			select {
			case handled <- struct{}{}:
			default:
			}
			return eventbus.ACK
		})

		runCtx, runCancel := context.WithTimeout(ctx, 2*time.Second)
		defer runCancel()
		go consumer.Run(runCtx)

		Eventually(handled, 2*time.Second).Should(Receive())

		mu.Lock()
		defer mu.Unlock()
		Expect(received.EventID).To(Equal(env.EventID))
	})

	It("moves an envelope to DLQ when the handler reports FAIL", func() {
		env := events.New("user.answer.submitted", 1, events.PriorityNormal, "", map[string]interface{}{"k": "v"})
		Expect(bus.Publish(ctx, env)).To(Succeed())

		config := eventbus.DefaultConsumerConfig("analysis_system", "worker-1")
		config.Priorities = []events.Priority{events.PriorityNormal}
		config.BlockFor = 50 * time.Millisecond

		consumer := eventbus.NewConsumer(client, bus, config, func(ctx context.Context, e events.Envelope) eventbus.Outcome {
			return eventbus.FAIL
		})

		runCtx, runCancel := context.WithTimeout(ctx, 2*time.Second)
		defer runCancel()
		go consumer.Run(runCtx)

		Eventually(func() (int64, error) {
			return client.XLen(ctx, "selfology:events:dlq").Result()
		}, 2*time.Second).Should(Equal(int64(1)))
	})
})

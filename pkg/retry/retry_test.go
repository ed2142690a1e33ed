package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xksnk/selfology-core/pkg/retry"
)

func TestRetry(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Retry Primitive Suite")
}

var errTransient = errors.New("transient failure")
var errPermanent = errors.New("permanent failure")

var _ = Describe("Retry with backoff", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	// Business Requirement: retry succeeds after transient failures within max_attempts.
	Context("BR-REL-001: successful retry", func() {
		It("retries until success and records attempt counts", func() {
			r := retry.New(retry.Config{
				MaxAttempts:     4,
				BaseDelay:       time.Millisecond,
				MaxDelay:        10 * time.Millisecond,
				ExponentialBase: 2.0,
				Jitter:          false,
			})

			calls := 0
			err := r.Do(ctx, func(ctx context.Context) error {
				calls++
				if calls < 3 {
					return errTransient
				}
				return nil
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(calls).To(Equal(3))
			Expect(r.Metrics().Successes).To(Equal(int64(1)))
			Expect(r.Metrics().TotalAttempts).To(Equal(int64(3)))
		})
	})

	// Business Requirement: BR-REL-002 - non-retryable errors propagate immediately.
	Context("BR-REL-002: non-retryable predicate", func() {
		It("does not retry when IsRetryable returns false", func() {
			r := retry.New(retry.Config{
				MaxAttempts: 5,
				BaseDelay:   time.Millisecond,
				MaxDelay:    10 * time.Millisecond,
				IsRetryable: func(err error) bool { return !errors.Is(err, errPermanent) },
			})

			calls := 0
			err := r.Do(ctx, func(ctx context.Context) error {
				calls++
				return errPermanent
			})

			Expect(err).To(Equal(errPermanent))
			Expect(calls).To(Equal(1))
		})
	})

	// Business Requirement: BR-REL-003 - exhaustion carries cause, attempts, elapsed.
	Context("BR-REL-003: exhaustion", func() {
		It("fails with an ExhaustedError carrying the last cause and attempt count", func() {
			r := retry.New(retry.Config{
				MaxAttempts:     3,
				BaseDelay:       time.Millisecond,
				MaxDelay:        5 * time.Millisecond,
				ExponentialBase: 2.0,
			})

			err := r.Do(ctx, func(ctx context.Context) error {
				return errTransient
			})

			Expect(err).To(HaveOccurred())
			var exhausted *retry.ExhaustedError
			Expect(errors.As(err, &exhausted)).To(BeTrue())
			Expect(exhausted.Attempts).To(Equal(3))
			Expect(exhausted.LastErr).To(Equal(errTransient))
			Expect(r.Metrics().Failures).To(Equal(int64(1)))
		})
	})

	// Testable property: retry delays form a non-decreasing sequence bounded by max_delay.
	Context("delay sequence", func() {
		It("never exceeds max_delay even with jitter", func() {
			cfg := retry.Config{
				MaxAttempts:     6,
				BaseDelay:       10 * time.Millisecond,
				MaxDelay:        30 * time.Millisecond,
				ExponentialBase: 2.0,
				Jitter:          true,
				MinDelay:        time.Millisecond,
			}
			r := retry.New(cfg)

			start := time.Now()
			_ = r.Do(ctx, func(ctx context.Context) error { return errTransient })
			elapsed := time.Since(start)

			// 5 delays capped at 30ms plus jitter headroom (50%) each: bound generously.
			Expect(elapsed).To(BeNumerically("<", 400*time.Millisecond))
		})
	})

	Context("context cancellation", func() {
		It("aborts immediately when ctx is already cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			r := retry.New(retry.DefaultConfig())
			calls := 0
			err := r.Do(cancelled, func(ctx context.Context) error {
				calls++
				return nil
			})

			Expect(err).To(HaveOccurred())
			Expect(calls).To(Equal(0))
		})
	})

	Context("one-off Do without a shared Retrier", func() {
		It("runs without a Retrier instance", func() {
			calls := 0
			err := retry.Do(ctx, retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, func(ctx context.Context) error {
				calls++
				return nil
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(calls).To(Equal(1))
		})
	})
})

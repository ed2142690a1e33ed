package coachcontext_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xksnk/selfology-core/pkg/coachcontext"
)

var _ = Describe("Periodic check-ins", func() {
	// Business Requirement: BR-CTX-002 - goals/barriers/values re-validate
	// on distinct cadences, or after enough sessions without validation.
	Context("BR-CTX-002: cadence by fact kind", func() {
		now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

		It("is not due before the goal interval elapses", func() {
			f := coachcontext.TrackedFact{Kind: coachcontext.FactGoal, LastValidatedAt: now.Add(-10 * 24 * time.Hour)}
			Expect(coachcontext.DueForCheckIn(f, now)).To(BeFalse())
		})

		It("is due once the goal interval elapses", func() {
			f := coachcontext.TrackedFact{Kind: coachcontext.FactGoal, LastValidatedAt: now.Add(-31 * 24 * time.Hour)}
			Expect(coachcontext.DueForCheckIn(f, now)).To(BeTrue())
		})

		It("uses a longer interval for barriers than goals", func() {
			f := coachcontext.TrackedFact{Kind: coachcontext.FactBarrier, LastValidatedAt: now.Add(-31 * 24 * time.Hour)}
			Expect(coachcontext.DueForCheckIn(f, now)).To(BeFalse())
		})

		It("uses the longest interval for values", func() {
			f := coachcontext.TrackedFact{Kind: coachcontext.FactValue, LastValidatedAt: now.Add(-89 * 24 * time.Hour)}
			Expect(coachcontext.DueForCheckIn(f, now)).To(BeFalse())
			f.LastValidatedAt = now.Add(-91 * 24 * time.Hour)
			Expect(coachcontext.DueForCheckIn(f, now)).To(BeTrue())
		})

		It("forces a check-in after enough sessions without validation regardless of elapsed time", func() {
			f := coachcontext.TrackedFact{Kind: coachcontext.FactValue, LastValidatedAt: now, SessionsSinceValidated: 10}
			Expect(coachcontext.DueForCheckIn(f, now)).To(BeTrue())
		})
	})

	Context("BR-CTX-003: applying outcomes", func() {
		now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

		It("resets the cadence clock on confirmation", func() {
			f := coachcontext.TrackedFact{Kind: coachcontext.FactGoal, LastValidatedAt: now.Add(-40 * 24 * time.Hour), SessionsSinceValidated: 5}
			updated := coachcontext.ApplyCheckIn(f, coachcontext.CheckInConfirmed, now)
			Expect(updated.LastValidatedAt).To(Equal(now))
			Expect(updated.SessionsSinceValidated).To(Equal(0))
		})

		It("leaves a stale fact due for immediate re-validation and flags it for a profile update", func() {
			f := coachcontext.TrackedFact{Kind: coachcontext.FactGoal, LastValidatedAt: now.Add(-40 * 24 * time.Hour)}
			updated := coachcontext.ApplyCheckIn(f, coachcontext.CheckInStale, now)
			Expect(coachcontext.DueForCheckIn(updated, now)).To(BeTrue())
			Expect(coachcontext.NeedsProfileUpdate(coachcontext.CheckInStale)).To(BeTrue())
		})
	})

	Context("BR-CTX-004: batch scan", func() {
		It("returns only the facts due as of now and advances session counters", func() {
			now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
			facts := []coachcontext.TrackedFact{
				{Kind: coachcontext.FactGoal, LastValidatedAt: now.Add(-31 * 24 * time.Hour)},
				{Kind: coachcontext.FactGoal, LastValidatedAt: now},
			}
			due := coachcontext.DueCheckIns(facts, now)
			Expect(due).To(HaveLen(1))
			Expect(facts[1].SessionsSinceValidated).To(Equal(1))
		})
	})
})

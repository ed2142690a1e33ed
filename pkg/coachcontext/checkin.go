package coachcontext

import "time"

// FactKind distinguishes the three validation cadences a profile fact can
// carry.
type FactKind string

const (
	FactGoal    FactKind = "goal"
	FactBarrier FactKind = "barrier"
	FactValue   FactKind = "value"
)

// Validation cadences, one per fact kind.
const (
	GoalValidationInterval    = 30 * 24 * time.Hour
	BarrierValidationInterval = 45 * 24 * time.Hour
	ValueValidationInterval   = 90 * 24 * time.Hour

	// SessionsWithoutValidationLimit forces a check-in regardless of
	// elapsed time once this many sessions have passed without one.
	SessionsWithoutValidationLimit = 10
)

func intervalFor(kind FactKind) time.Duration {
	switch kind {
	case FactGoal:
		return GoalValidationInterval
	case FactBarrier:
		return BarrierValidationInterval
	case FactValue:
		return ValueValidationInterval
	default:
		return GoalValidationInterval
	}
}

// TrackedFact is a single profile fact subject to periodic re-validation.
type TrackedFact struct {
	Kind                 FactKind
	Key                  string
	LastValidatedAt      time.Time
	SessionsSinceValidated int
}

// DueForCheckIn reports whether a fact has aged past its kind's interval,
// or accumulated enough sessions without validation, as of `now`.
func DueForCheckIn(f TrackedFact, now time.Time) bool {
	if f.SessionsSinceValidated >= SessionsWithoutValidationLimit {
		return true
	}
	return now.Sub(f.LastValidatedAt) >= intervalFor(f.Kind)
}

// CheckInOutcome is the result of asking the user to re-confirm a fact.
type CheckInOutcome string

const (
	CheckInConfirmed CheckInOutcome = "confirmed"
	CheckInStale     CheckInOutcome = "stale"
)

// ApplyCheckIn records the outcome of a re-validation prompt against a
// tracked fact. A confirmed outcome resets the cadence clock; a stale
// outcome leaves LastValidatedAt untouched so the fact is immediately
// due again and gets flagged for a profile update.
func ApplyCheckIn(f TrackedFact, outcome CheckInOutcome, now time.Time) TrackedFact {
	if outcome == CheckInConfirmed {
		f.LastValidatedAt = now
		f.SessionsSinceValidated = 0
		return f
	}
	return f
}

// NeedsProfileUpdate reports whether a stale check-in outcome should
// trigger a profile write.
func NeedsProfileUpdate(outcome CheckInOutcome) bool {
	return outcome == CheckInStale
}

// DueCheckIns filters a fact set down to the ones due as of `now`,
// advancing SessionsSinceValidated in place for every fact along the way
// (called once per completed coaching session).
func DueCheckIns(facts []TrackedFact, now time.Time) []TrackedFact {
	due := make([]TrackedFact, 0)
	for i := range facts {
		facts[i].SessionsSinceValidated++
		if DueForCheckIn(facts[i], now) {
			due = append(due, facts[i])
		}
	}
	return due
}

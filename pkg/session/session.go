// Package session implements the session/question coordinator (C10): one
// active onboarding session per user, block/cluster gating, resistance
// handling, and the question-selector collaboration contract.
package session

import (
	"strings"
	"time"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusAbandoned Status = "abandoned"
	StatusCompleted Status = "completed"
)

// Block is a question-catalog cluster stage. FOUNDATION must complete
// before any EXPLORATION block starts; INTEGRATION unlocks only once every
// EXPLORATION block is complete.
type Block string

const (
	BlockFoundation  Block = "foundation"
	BlockExploration Block = "exploration"
	BlockIntegration Block = "integration"
)

// Session is the onboarding_sessions row.
type Session struct {
	ID                string
	UserID            string
	StartedAt         time.Time
	CompletedAt       *time.Time
	Status            Status
	QuestionsAsked    int
	QuestionsAnswered int
	HeavyCount        int
	DomainsCovered    map[string]bool
	CurrentQuestionID string
	LastStrategy      string
}

func newSession(id, userID string) *Session {
	return &Session{
		ID:             id,
		UserID:         userID,
		StartedAt:      time.Now().UTC(),
		Status:         StatusActive,
		DomainsCovered: make(map[string]bool),
	}
}

// resistanceMarkers are short refusals or explicit skip requests; matched
// against a lowercased, trimmed answer.
var resistanceMarkers = []string{"skip", "no", "pass", "i'd rather not", "not now", "rather not say"}

// DetectsResistance reports whether answerText looks like a refusal: an
// explicit "skip" anywhere, or a very short dismissive reply.
func DetectsResistance(answerText string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(answerText))
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, "skip") {
		return true
	}
	if len(trimmed) <= 12 {
		for _, marker := range resistanceMarkers {
			if trimmed == marker {
				return true
			}
		}
	}
	return false
}

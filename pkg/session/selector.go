package session

import "context"

// SelectorRequest is everything the question selector (an external
// collaborator per spec.md §6) needs to choose the next question: the
// session state, a fatigue signal, the full cross-session answered-id set
// for this user, and the admin-flagged ids that must never be offered.
type SelectorRequest struct {
	Session       Session
	FatigueSignal float64 // 0..1, derived from questions_answered and heavy_count
	AnsweredIDs   map[string]bool
	FlaggedIDs    map[string]bool
	AllowedBlocks map[Block]bool
}

// SelectorDecision is the selector's answer: either a next question, or a
// signal that no more questions are available for the allowed blocks
// (which the coordinator treats as session completion).
type SelectorDecision struct {
	QuestionID string
	Block      Block
	Strategy   string
	Done       bool
}

// QuestionSelector is the "smart-mix" external collaborator. Implementers
// typically read the question catalog and apply weighting/novelty rules;
// the coordinator only enforces block gating and resistance handling
// around whatever the selector returns.
type QuestionSelector interface {
	SelectNext(ctx context.Context, req SelectorRequest) (SelectorDecision, error)
}

// fatigueSignal grows with questions answered and heavy (deep/sensitive)
// questions, capped at 1.0, matching the session's own counters rather
// than pulling in an external fatigue model.
func fatigueSignal(s Session) float64 {
	signal := float64(s.QuestionsAnswered)*0.03 + float64(s.HeavyCount)*0.08
	if signal > 1.0 {
		signal = 1.0
	}
	return signal
}

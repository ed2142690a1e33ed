package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xksnk/selfology-core/pkg/events"
	"github.com/xksnk/selfology-core/pkg/shared/errors"
)

// Bus is the narrow publish surface the coordinator needs.
type Bus interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// Store persists sessions and answers, and reports the cross-session
// catalog facts the coordinator needs for gating: which questions a user
// has already answered anywhere, which are admin-flagged, and whether a
// block has been completed.
type Store interface {
	ActiveSession(ctx context.Context, userID string) (*Session, error)
	AbandonActiveSessions(ctx context.Context, userID string) error
	SaveSession(ctx context.Context, s *Session) error
	RecordAnswer(ctx context.Context, sessionID, questionID, answerText string) error
	AnsweredQuestionIDs(ctx context.Context, userID string) (map[string]bool, error)
	FlaggedQuestionIDs(ctx context.Context) (map[string]bool, error)
	BlockComplete(ctx context.Context, userID string, block Block) (bool, error)
}

// Coordinator enforces one active session per user, block/cluster gating,
// and resistance handling around a pluggable QuestionSelector.
type Coordinator struct {
	store    Store
	selector QuestionSelector
	bus      Bus
}

func New(store Store, selector QuestionSelector, bus Bus) *Coordinator {
	return &Coordinator{store: store, selector: selector, bus: bus}
}

// StartSession abandons any prior ACTIVE session for the user and begins
// a new one.
func (c *Coordinator) StartSession(ctx context.Context, userID string) (*Session, error) {
	if err := c.store.AbandonActiveSessions(ctx, userID); err != nil {
		return nil, err
	}
	s := newSession(uuid.NewString(), userID)
	if err := c.store.SaveSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// allowedBlocks computes which blocks the selector may draw from: FOUNDATION
// is always allowed until complete; EXPLORATION unlocks once FOUNDATION is
// complete; INTEGRATION unlocks once every EXPLORATION block is complete.
func (c *Coordinator) allowedBlocks(ctx context.Context, userID string) (map[Block]bool, error) {
	foundationDone, err := c.store.BlockComplete(ctx, userID, BlockFoundation)
	if err != nil {
		return nil, err
	}
	explorationDone, err := c.store.BlockComplete(ctx, userID, BlockExploration)
	if err != nil {
		return nil, err
	}

	allowed := map[Block]bool{}
	if !foundationDone {
		allowed[BlockFoundation] = true
		return allowed, nil
	}
	allowed[BlockExploration] = true
	if explorationDone {
		allowed[BlockIntegration] = true
	}
	return allowed, nil
}

// RecordAnswer records the answer against the session, advances its
// counters, runs resistance handling, asks the selector for the next
// question under the current gating rules, and publishes
// question.selected or session.completed.
func (c *Coordinator) RecordAnswer(ctx context.Context, s *Session, questionID, answerText string, isHeavy bool, domain string, traceID string) (SelectorDecision, error) {
	if s.Status != StatusActive {
		return SelectorDecision{}, errors.Permanent("cannot record answer on a non-ACTIVE session", nil)
	}

	if err := c.store.RecordAnswer(ctx, s.ID, questionID, answerText); err != nil {
		return SelectorDecision{}, err
	}
	s.QuestionsAnswered++
	if isHeavy {
		s.HeavyCount++
	}
	if domain != "" {
		s.DomainsCovered[domain] = true
	}

	allowed, err := c.allowedBlocks(ctx, s.UserID)
	if err != nil {
		return SelectorDecision{}, err
	}

	// Resistance handling: offer an alternate EXPLORATION block, never
	// skipping FOUNDATION or INTEGRATION through this mechanism.
	if DetectsResistance(answerText) && allowed[BlockExploration] {
		allowed = map[Block]bool{BlockExploration: true}
	}

	answered, err := c.store.AnsweredQuestionIDs(ctx, s.UserID)
	if err != nil {
		return SelectorDecision{}, err
	}
	flagged, err := c.store.FlaggedQuestionIDs(ctx)
	if err != nil {
		return SelectorDecision{}, err
	}

	decision, err := c.selector.SelectNext(ctx, SelectorRequest{
		Session:       *s,
		FatigueSignal: fatigueSignal(*s),
		AnsweredIDs:   answered,
		FlaggedIDs:    flagged,
		AllowedBlocks: allowed,
	})
	if err != nil {
		return SelectorDecision{}, err
	}

	s.QuestionsAsked++
	s.CurrentQuestionID = decision.QuestionID
	s.LastStrategy = decision.Strategy

	if decision.Done {
		return c.completeSession(ctx, s, decision, traceID)
	}

	if err := c.store.SaveSession(ctx, s); err != nil {
		return SelectorDecision{}, err
	}

	env := events.New("question.selected", 1, events.PriorityNormal, traceID, map[string]interface{}{
		"user_id":     s.UserID,
		"session_id":  s.ID,
		"question_id": decision.QuestionID,
		"block":       decision.Block,
		"strategy":    decision.Strategy,
	})
	if err := c.bus.Publish(ctx, env); err != nil {
		return SelectorDecision{}, err
	}

	return decision, nil
}

func (c *Coordinator) completeSession(ctx context.Context, s *Session, decision SelectorDecision, traceID string) (SelectorDecision, error) {
	now := time.Now().UTC()
	s.Status = StatusCompleted
	s.CompletedAt = &now

	if err := c.store.SaveSession(ctx, s); err != nil {
		return SelectorDecision{}, err
	}

	env := events.New("session.completed", 1, events.PriorityNormal, traceID, map[string]interface{}{
		"user_id":            s.UserID,
		"session_id":         s.ID,
		"questions_answered": s.QuestionsAnswered,
		"domains_covered":    len(s.DomainsCovered),
	})
	if err := c.bus.Publish(ctx, env); err != nil {
		return SelectorDecision{}, err
	}

	return decision, nil
}

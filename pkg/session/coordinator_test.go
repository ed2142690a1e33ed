package session_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xksnk/selfology-core/pkg/events"
	"github.com/xksnk/selfology-core/pkg/session"
)

func TestSessionCoordinator(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Session Coordinator Suite")
}

type memStore struct {
	active         map[string]*session.Session
	blockComplete  map[session.Block]bool
	answered       map[string]bool
	flagged        map[string]bool
	abandonedCalls int
}

func newMemStore() *memStore {
	return &memStore{
		active:        make(map[string]*session.Session),
		blockComplete: make(map[session.Block]bool),
		answered:      make(map[string]bool),
		flagged:       make(map[string]bool),
	}
}

func (m *memStore) ActiveSession(ctx context.Context, userID string) (*session.Session, error) {
	return m.active[userID], nil
}

func (m *memStore) AbandonActiveSessions(ctx context.Context, userID string) error {
	m.abandonedCalls++
	delete(m.active, userID)
	return nil
}

func (m *memStore) SaveSession(ctx context.Context, s *session.Session) error {
	m.active[s.UserID] = s
	return nil
}

func (m *memStore) RecordAnswer(ctx context.Context, sessionID, questionID, answerText string) error {
	m.answered[questionID] = true
	return nil
}

func (m *memStore) AnsweredQuestionIDs(ctx context.Context, userID string) (map[string]bool, error) {
	return m.answered, nil
}

func (m *memStore) FlaggedQuestionIDs(ctx context.Context) (map[string]bool, error) {
	return m.flagged, nil
}

func (m *memStore) BlockComplete(ctx context.Context, userID string, block session.Block) (bool, error) {
	return m.blockComplete[block], nil
}

type stubSelector struct {
	decision session.SelectorDecision
	lastReq  session.SelectorRequest
}

func (s *stubSelector) SelectNext(ctx context.Context, req session.SelectorRequest) (session.SelectorDecision, error) {
	s.lastReq = req
	return s.decision, nil
}

type capturingBus struct {
	published []events.Envelope
}

func (b *capturingBus) Publish(ctx context.Context, env events.Envelope) error {
	b.published = append(b.published, env)
	return nil
}

var _ = Describe("Coordinator", func() {
	// Business Requirement: BR-SES-001 - one active session per user.
	Context("BR-SES-001: starting a session abandons any prior active one", func() {
		It("abandons the existing session before creating a new one", func() {
			store := newMemStore()
			selector := &stubSelector{}
			bus := &capturingBus{}
			coord := session.New(store, selector, bus)

			first, err := coord.StartSession(context.Background(), "user-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(first.Status).To(Equal(session.StatusActive))

			second, err := coord.StartSession(context.Background(), "user-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(store.abandonedCalls).To(Equal(2)) // called once per StartSession
			Expect(second.ID).ToNot(Equal(first.ID))
		})
	})

	Context("BR-SES-002: block gating", func() {
		It("only allows FOUNDATION before it is complete", func() {
			store := newMemStore()
			selector := &stubSelector{decision: session.SelectorDecision{QuestionID: "q2", Block: session.BlockFoundation}}
			bus := &capturingBus{}
			coord := session.New(store, selector, bus)

			s, _ := coord.StartSession(context.Background(), "user-2")
			_, err := coord.RecordAnswer(context.Background(), s, "q1", "a thoughtful answer", false, "values", "trace-1")
			Expect(err).ToNot(HaveOccurred())

			Expect(selector.lastReq.AllowedBlocks).To(HaveKey(session.BlockFoundation))
			Expect(selector.lastReq.AllowedBlocks).ToNot(HaveKey(session.BlockExploration))
		})

		It("unlocks INTEGRATION only once EXPLORATION is complete", func() {
			store := newMemStore()
			store.blockComplete[session.BlockFoundation] = true
			store.blockComplete[session.BlockExploration] = true
			selector := &stubSelector{decision: session.SelectorDecision{QuestionID: "qI", Block: session.BlockIntegration}}
			bus := &capturingBus{}
			coord := session.New(store, selector, bus)

			s, _ := coord.StartSession(context.Background(), "user-3")
			_, err := coord.RecordAnswer(context.Background(), s, "q1", "answer", false, "", "trace-2")
			Expect(err).ToNot(HaveOccurred())

			Expect(selector.lastReq.AllowedBlocks).To(HaveKey(session.BlockIntegration))
		})
	})

	Context("BR-SES-003: resistance handling", func() {
		It("restricts the selector to EXPLORATION on a resistance marker, once unlocked", func() {
			store := newMemStore()
			store.blockComplete[session.BlockFoundation] = true
			selector := &stubSelector{decision: session.SelectorDecision{QuestionID: "qAlt", Block: session.BlockExploration}}
			bus := &capturingBus{}
			coord := session.New(store, selector, bus)

			s, _ := coord.StartSession(context.Background(), "user-4")
			_, err := coord.RecordAnswer(context.Background(), s, "q1", "skip", false, "", "trace-3")
			Expect(err).ToNot(HaveOccurred())

			Expect(selector.lastReq.AllowedBlocks).To(HaveLen(1))
			Expect(selector.lastReq.AllowedBlocks).To(HaveKey(session.BlockExploration))
		})
	})

	Context("BR-SES-004: session completion", func() {
		It("publishes session.completed when the selector reports Done", func() {
			store := newMemStore()
			selector := &stubSelector{decision: session.SelectorDecision{Done: true}}
			bus := &capturingBus{}
			coord := session.New(store, selector, bus)

			s, _ := coord.StartSession(context.Background(), "user-5")
			_, err := coord.RecordAnswer(context.Background(), s, "q1", "answer", false, "", "trace-4")
			Expect(err).ToNot(HaveOccurred())

			Expect(s.Status).To(Equal(session.StatusCompleted))
			Expect(bus.published).To(HaveLen(1))
			Expect(bus.published[0].EventType).To(Equal("session.completed"))
		})
	})
})

var _ = Describe("DetectsResistance", func() {
	It("matches an explicit skip", func() {
		Expect(session.DetectsResistance("can we skip this one")).To(BeTrue())
	})

	It("matches a short dismissive reply", func() {
		Expect(session.DetectsResistance("no")).To(BeTrue())
	})

	It("does not match a substantive answer", func() {
		Expect(session.DetectsResistance("I think about this a lot, actually")).To(BeFalse())
	})
})

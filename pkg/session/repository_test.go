package session_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xksnk/selfology-core/pkg/session"
)

func TestSessionRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Session Repository Suite")
}

type fakeCatalog struct {
	byBlock map[session.Block][]string
}

func (c fakeCatalog) QuestionIDsForBlock(block session.Block) []string {
	return c.byBlock[block]
}

var _ = Describe("Repository", func() {
	var (
		db   *sqlx.DB
		mock sqlmock.Sqlmock
		ctx  context.Context
		repo *session.Repository
	)

	BeforeEach(func() {
		mockDB, mockSQL, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		db = sqlx.NewDb(mockDB, "postgres")
		mock = mockSQL
		ctx = context.Background()
		repo = session.NewRepository(db, fakeCatalog{byBlock: map[session.Block][]string{
			session.BlockFoundation: {"f-001", "f-002"},
		}})
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		db.Close()
	})

	It("returns nil when no active session exists", func() {
		mock.ExpectQuery(`SELECT .* FROM onboarding_sessions`).
			WithArgs("user-1", session.StatusActive).
			WillReturnError(sql.ErrNoRows)

		s, err := repo.ActiveSession(ctx, "user-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(s).To(BeNil())
	})

	It("abandons active sessions", func() {
		mock.ExpectExec(`UPDATE onboarding_sessions SET status`).
			WithArgs(session.StatusAbandoned, "user-1", session.StatusActive).
			WillReturnResult(sqlmock.NewResult(0, 1))

		Expect(repo.AbandonActiveSessions(ctx, "user-1")).To(Succeed())
	})

	It("reports BlockComplete true once every catalog id in the block is answered", func() {
		mock.ExpectQuery(`SELECT DISTINCT question_id FROM user_answers`).
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"question_id"}).AddRow("f-001").AddRow("f-002"))
		mock.ExpectQuery(`SELECT json_id FROM questions_metadata`).
			WillReturnRows(sqlmock.NewRows([]string{"json_id"}))

		done, err := repo.BlockComplete(ctx, "user-1", session.BlockFoundation)
		Expect(err).ToNot(HaveOccurred())
		Expect(done).To(BeTrue())
	})

	It("reports BlockComplete false when a catalog id is unanswered", func() {
		mock.ExpectQuery(`SELECT DISTINCT question_id FROM user_answers`).
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"question_id"}).AddRow("f-001"))
		mock.ExpectQuery(`SELECT json_id FROM questions_metadata`).
			WillReturnRows(sqlmock.NewRows([]string{"json_id"}))

		done, err := repo.BlockComplete(ctx, "user-1", session.BlockFoundation)
		Expect(err).ToNot(HaveOccurred())
		Expect(done).To(BeFalse())
	})

	It("treats a flagged question as excused from completion", func() {
		mock.ExpectQuery(`SELECT DISTINCT question_id FROM user_answers`).
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"question_id"}).AddRow("f-001"))
		mock.ExpectQuery(`SELECT json_id FROM questions_metadata`).
			WillReturnRows(sqlmock.NewRows([]string{"json_id"}).AddRow("f-002"))

		done, err := repo.BlockComplete(ctx, "user-1", session.BlockFoundation)
		Expect(err).ToNot(HaveOccurred())
		Expect(done).To(BeTrue())
	})

	It("records an answer against the session's user", func() {
		mock.ExpectExec(`INSERT INTO user_answers`).
			WithArgs("sess-1", "f-001", "my answer").
			WillReturnResult(sqlmock.NewResult(1, 1))

		Expect(repo.RecordAnswer(ctx, "sess-1", "f-001", "my answer")).To(Succeed())
	})

	It("upserts a session", func() {
		now := time.Now()
		mock.ExpectExec(`INSERT INTO onboarding_sessions`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		s := &session.Session{
			ID: "sess-1", UserID: "user-1", Status: session.StatusActive,
			StartedAt: now, DomainsCovered: map[string]bool{"values": true},
		}
		Expect(repo.SaveSession(ctx, s)).To(Succeed())
	})
})

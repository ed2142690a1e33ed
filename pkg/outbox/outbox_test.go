package outbox_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xksnk/selfology-core/pkg/outbox"
)

func TestOutbox(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Transactional Outbox Suite")
}

var _ = Describe("Publish", func() {
	var (
		db   *sqlx.DB
		mock sqlmock.Sqlmock
		ctx  context.Context
	)

	BeforeEach(func() {
		mockDB, mockSQL, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		db = sqlx.NewDb(mockDB, "postgres")
		mock = mockSQL
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		db.Close()
	})

	// Business Requirement: BR-REL-020 - outbox insert happens inside the
	// caller's transaction and is only visible after commit.
	Context("BR-REL-020: same-transaction insert", func() {
		It("inserts a PENDING row and returns its id", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(`INSERT INTO event_outbox`).
				WithArgs("user.answer.submitted", sqlmock.AnyArg(), outbox.StatusPending, "trace-1").
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
			mock.ExpectCommit()

			tx, err := db.Beginx()
			Expect(err).ToNot(HaveOccurred())

			id, err := outbox.Publish(ctx, tx, "user.answer.submitted", map[string]interface{}{"answer_id": 1}, "trace-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(id).To(Equal(int64(42)))

			Expect(tx.Commit()).To(Succeed())
		})

		It("propagates a rollback without having published anything", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(`INSERT INTO event_outbox`).
				WithArgs("user.answer.submitted", sqlmock.AnyArg(), outbox.StatusPending, sqlmock.AnyArg()).
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(43)))
			mock.ExpectRollback()

			tx, err := db.Beginx()
			Expect(err).ToNot(HaveOccurred())

			_, err = outbox.Publish(ctx, tx, "user.answer.submitted", map[string]interface{}{"answer_id": 2}, "")
			Expect(err).ToNot(HaveOccurred())

			Expect(tx.Rollback()).To(Succeed())
		})
	})

	Context("PublishBatch", func() {
		It("inserts every item in order and returns their ids", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(`INSERT INTO event_outbox`).
				WithArgs("a.event", sqlmock.AnyArg(), outbox.StatusPending, sqlmock.AnyArg()).
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
			mock.ExpectQuery(`INSERT INTO event_outbox`).
				WithArgs("b.event", sqlmock.AnyArg(), outbox.StatusPending, sqlmock.AnyArg()).
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
			mock.ExpectCommit()

			tx, err := db.Beginx()
			Expect(err).ToNot(HaveOccurred())

			ids, err := outbox.PublishBatch(ctx, tx, []outbox.Item{
				{EventType: "a.event", Payload: map[string]interface{}{"x": 1}},
				{EventType: "b.event", Payload: map[string]interface{}{"y": 2}},
			}, "")
			Expect(err).ToNot(HaveOccurred())
			Expect(ids).To(Equal([]int64{1, 2}))

			Expect(tx.Commit()).To(Succeed())
		})
	})
})

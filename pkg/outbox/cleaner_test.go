package outbox_test

import (
	"context"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xksnk/selfology-core/pkg/outbox"
)

var _ = Describe("Cleaner", func() {
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

	It("deletes published rows older than the retention window", func() {
		mock.ExpectExec(`DELETE FROM event_outbox`).
			WithArgs(outbox.StatusPublished, 7).
			WillReturnResult(sqlmock.NewResult(0, 3))

		cleaner := outbox.NewCleaner(db)
		n, err := cleaner.CleanupPublished(ctx, 7)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(int64(3)))
	})

	It("deletes failed rows older than the longer failed-retention window", func() {
		mock.ExpectExec(`DELETE FROM event_outbox`).
			WithArgs(outbox.StatusFailed, 30).
			WillReturnResult(sqlmock.NewResult(0, 1))

		cleaner := outbox.NewCleaner(db)
		n, err := cleaner.CleanupFailed(ctx, 30)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(int64(1)))
	})

	It("resets a failed row back to pending", func() {
		mock.ExpectExec(`UPDATE event_outbox`).
			WithArgs(outbox.StatusPending, int64(99), outbox.StatusFailed).
			WillReturnResult(sqlmock.NewResult(0, 1))

		cleaner := outbox.NewCleaner(db)
		Expect(cleaner.RetryFailed(ctx, 99)).To(Succeed())
	})
})

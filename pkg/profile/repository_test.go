package profile_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xksnk/selfology-core/pkg/profile"
)

func TestRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Profile Repository Suite")
}

var _ = Describe("Repository", func() {
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

	Describe("Load", func() {
		It("returns nil, nil when no row exists", func() {
			mock.ExpectQuery(`SELECT .* FROM digital_personality`).
				WithArgs("user-1").
				WillReturnError(sql.ErrNoRows)

			repo := profile.NewRepository(db)
			p, err := repo.Load(ctx, "user-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(p).To(BeNil())
		})

		It("unmarshals layer columns into profile items", func() {
			rows := sqlmock.NewRows([]string{
				"user_id", "big_five", "dynamic", "adaptive", "domain_specific",
				"goals", "values", "context", "total_answers_analyzed", "completeness_score",
				"applied_record_ids",
			}).AddRow(
				"user-1",
				[]byte(`{"openness":{"Status":"active","Priority":1,"Type":"","Attributes":{"value":0.7}}}`),
				[]byte(`{}`), []byte(`{}`), []byte(`{}`), []byte(`{}`), []byte(`{}`), []byte(`{}`),
				3, 0.42, []byte(`[7]`),
			)
			mock.ExpectQuery(`SELECT .* FROM digital_personality`).
				WithArgs("user-1").
				WillReturnRows(rows)

			repo := profile.NewRepository(db)
			p, err := repo.Load(ctx, "user-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(p).ToNot(BeNil())
			Expect(p.TotalAnswersAnalyzed).To(Equal(3))
			Expect(p.CompletenessScore).To(Equal(0.42))
			item, ok := p.Items[profile.ItemKey{Layer: "big_five", CategoryKey: "openness"}]
			Expect(ok).To(BeTrue())
			Expect(item.Attributes["value"]).To(Equal(0.7))
			Expect(p.AppliedRecordIDs[7]).To(BeTrue())
		})
	})

	Describe("Save", func() {
		It("upserts every layer column", func() {
			mock.ExpectExec(`INSERT INTO digital_personality`).
				WithArgs("user-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
					sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 1, 0.14, sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 1))

			p := profile.NewProfile("user-1")
			p.TotalAnswersAnalyzed = 1
			p.CompletenessScore = 0.14
			p.Items[profile.ItemKey{Layer: "big_five", CategoryKey: "openness"}] = profile.Item{
				Status: "active", Attributes: map[string]interface{}{"value": 0.7},
			}
			p.AppliedRecordIDs[7] = true

			repo := profile.NewRepository(db)
			Expect(repo.Save(ctx, p)).To(Succeed())
		})
	})
})

var _ = Describe("TraitHistoryRepository", func() {
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

	It("appends an entry", func() {
		mock.ExpectExec(`INSERT INTO trait_history`).
			WithArgs("user-1", "openness", 0.7, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		repo := profile.NewTraitHistoryRepository(db)
		err := repo.Append(ctx, profile.TraitHistoryEntry{
			UserID: "user-1", TraitName: "openness", Value: 0.7, RecordedAt: time.Now(),
		})
		Expect(err).ToNot(HaveOccurred())
	})

	It("returns recent values oldest-first", func() {
		rows := sqlmock.NewRows([]string{"value"}).AddRow(0.5).AddRow(0.6).AddRow(0.7)
		mock.ExpectQuery(`SELECT value FROM`).
			WithArgs("user-1", "openness", 10).
			WillReturnRows(rows)

		repo := profile.NewTraitHistoryRepository(db)
		values, err := repo.RecentValues(ctx, "user-1", "openness", 10)
		Expect(err).ToNot(HaveOccurred())
		Expect(values).To(Equal([]float64{0.5, 0.6, 0.7}))
	})
})

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/jmoiron/sqlx"

	"github.com/xksnk/selfology-core/pkg/shared/errors"
)

// BlockCatalog reports which catalog question ids belong to a block, so
// the repository can tell whether a user has answered every question in
// it. catalog.Catalog satisfies this without session importing catalog.
type BlockCatalog interface {
	QuestionIDsForBlock(block Block) []string
}

// sessionRow mirrors the onboarding_sessions table.
type sessionRow struct {
	ID                string          `db:"id"`
	UserID            string          `db:"user_id"`
	Status            string          `db:"status"`
	StartedAt         sql.NullTime    `db:"started_at"`
	CompletedAt       sql.NullTime    `db:"completed_at"`
	QuestionsAsked    int             `db:"questions_asked"`
	QuestionsAnswered int             `db:"questions_answered"`
	HeavyCount        int             `db:"heavy_count"`
	DomainsCovered    json.RawMessage `db:"domains_covered"`
	CurrentQuestionID sql.NullString  `db:"current_question_id"`
	LastStrategy      sql.NullString  `db:"last_strategy"`
}

func (r sessionRow) toSession() *Session {
	domains := make(map[string]bool)
	if len(r.DomainsCovered) > 0 {
		_ = json.Unmarshal(r.DomainsCovered, &domains)
	}
	s := &Session{
		ID:                r.ID,
		UserID:            r.UserID,
		Status:            Status(r.Status),
		QuestionsAsked:    r.QuestionsAsked,
		QuestionsAnswered: r.QuestionsAnswered,
		HeavyCount:        r.HeavyCount,
		DomainsCovered:    domains,
		CurrentQuestionID: r.CurrentQuestionID.String,
		LastStrategy:      r.LastStrategy.String,
	}
	if r.StartedAt.Valid {
		s.StartedAt = r.StartedAt.Time
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		s.CompletedAt = &t
	}
	return s
}

// Repository is the sqlx-backed Store, persisting sessions to
// onboarding_sessions, answers to user_answers, and reading admin flags
// from questions_metadata.
type Repository struct {
	db      *sqlx.DB
	catalog BlockCatalog
}

func NewRepository(db *sqlx.DB, catalog BlockCatalog) *Repository {
	return &Repository{db: db, catalog: catalog}
}

func (r *Repository) ActiveSession(ctx context.Context, userID string) (*Session, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT id, user_id, status, started_at, completed_at, questions_asked, questions_answered,
		       heavy_count, domains_covered, current_question_id, last_strategy
		FROM onboarding_sessions WHERE user_id = $1 AND status = $2
		ORDER BY started_at DESC LIMIT 1
	`), userID, StatusActive)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.DatabaseError("load active onboarding session", err)
	}
	return row.toSession(), nil
}

func (r *Repository) AbandonActiveSessions(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE onboarding_sessions SET status = $1 WHERE user_id = $2 AND status = $3
	`), StatusAbandoned, userID, StatusActive)
	if err != nil {
		return errors.DatabaseError("abandon active onboarding sessions", err)
	}
	return nil
}

func (r *Repository) SaveSession(ctx context.Context, s *Session) error {
	domains, err := json.Marshal(s.DomainsCovered)
	if err != nil {
		return errors.Validation("marshal domains_covered", err)
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO onboarding_sessions
			(id, user_id, status, started_at, completed_at, questions_asked, questions_answered,
			 heavy_count, domains_covered, current_question_id, last_strategy)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status               = EXCLUDED.status,
			completed_at         = EXCLUDED.completed_at,
			questions_asked      = EXCLUDED.questions_asked,
			questions_answered   = EXCLUDED.questions_answered,
			heavy_count          = EXCLUDED.heavy_count,
			domains_covered      = EXCLUDED.domains_covered,
			current_question_id  = EXCLUDED.current_question_id,
			last_strategy        = EXCLUDED.last_strategy
	`), s.ID, s.UserID, string(s.Status), s.StartedAt, s.CompletedAt, s.QuestionsAsked, s.QuestionsAnswered,
		s.HeavyCount, domains, nullableString(s.CurrentQuestionID), nullableString(s.LastStrategy))
	if err != nil {
		return errors.DatabaseError("upsert onboarding session", err)
	}
	return nil
}

func (r *Repository) RecordAnswer(ctx context.Context, sessionID, questionID, answerText string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO user_answers (user_id, session_id, question_id, answer_text, answered_at)
		SELECT user_id, $1, $2, $3, NOW() FROM onboarding_sessions WHERE id = $1
	`), sessionID, questionID, answerText)
	if err != nil {
		return errors.DatabaseError("insert user answer", err)
	}
	return nil
}

func (r *Repository) AnsweredQuestionIDs(ctx context.Context, userID string) (map[string]bool, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, r.db.Rebind(`
		SELECT DISTINCT question_id FROM user_answers WHERE user_id = $1
	`), userID)
	if err != nil {
		return nil, errors.DatabaseError("select answered question ids", err)
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (r *Repository) FlaggedQuestionIDs(ctx context.Context) (map[string]bool, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT json_id FROM questions_metadata WHERE is_flagged
	`)
	if err != nil {
		return nil, errors.DatabaseError("select flagged question ids", err)
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// BlockComplete reports whether the user has answered every catalog
// question tagged with this block, excluding any that are admin-flagged
// (flagged questions are never offered, so they can't block completion).
func (r *Repository) BlockComplete(ctx context.Context, userID string, block Block) (bool, error) {
	ids := r.catalog.QuestionIDsForBlock(block)
	if len(ids) == 0 {
		return false, nil
	}

	answered, err := r.AnsweredQuestionIDs(ctx, userID)
	if err != nil {
		return false, err
	}
	flagged, err := r.FlaggedQuestionIDs(ctx)
	if err != nil {
		return false, err
	}

	for _, id := range ids {
		if flagged[id] {
			continue
		}
		if !answered[id] {
			return false, nil
		}
	}
	return true, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

package analysis

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"github.com/xksnk/selfology-core/pkg/shared/errors"
)

// Repository persists AnalysisRecord rows and the two background-lane
// status updates.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const insertRecordQuery = `
	INSERT INTO answer_analysis (
		source_ref, source_kind, analysis_version, emotional_state, trait_scores,
		insights, router_hints, quality_score, confidence_score, model_used,
		processing_time_ms, raw_ai_response, special_situation, is_milestone,
		vectorization_status, dp_update_status, background_task_completed
	) VALUES (
		:source_ref, :source_kind, :analysis_version, :emotional_state, :trait_scores,
		:insights, :router_hints, :quality_score, :confidence_score, :model_used,
		:processing_time_ms, :raw_ai_response, :special_situation, :is_milestone,
		:vectorization_status, :dp_update_status, :background_task_completed
	) RETURNING id
`

// Insert stores a freshly-produced Record with both lanes PENDING and
// returns the assigned id.
func (r *Repository) Insert(ctx context.Context, rec *Record) (int64, error) {
	rec.VectorizationStatus = LanePending
	rec.DPUpdateStatus = LanePending
	rec.BackgroundTaskCompleted = false
	rec.TraitScoresRaw = mustMarshalTraitScores(rec.TraitScores)

	rows, err := r.db.NamedQueryContext(ctx, insertRecordQuery, rec)
	if err != nil {
		return 0, errors.DatabaseError("insert answer_analysis row", err)
	}
	defer rows.Close()

	var id int64
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return 0, errors.DatabaseError("scan inserted answer_analysis id", err)
		}
	}
	return id, nil
}

// UpdateLane advances one background lane (vectorization or dp_update) to
// a terminal status, recording an error message on failure and clearing
// it on success.
func (r *Repository) UpdateLane(ctx context.Context, id int64, lane string, status LaneStatus, lastErr error) error {
	var errMsg *string
	if lastErr != nil {
		msg := lastErr.Error()
		errMsg = &msg
	}

	var query string
	switch lane {
	case "vectorization":
		query = r.db.Rebind(`
			UPDATE answer_analysis
			SET vectorization_status = $1, vectorization_error = $2, vectorization_completed_at = NOW()
			WHERE id = $3
		`)
	case "dp_update":
		query = r.db.Rebind(`
			UPDATE answer_analysis
			SET dp_update_status = $1, dp_update_error = $2, dp_update_completed_at = NOW()
			WHERE id = $3
		`)
	default:
		return errors.Permanent("unknown analysis lane: "+lane, nil)
	}

	if _, err := r.db.ExecContext(ctx, query, status, errMsg, id); err != nil {
		return errors.DatabaseError("update analysis lane "+lane, err)
	}
	return nil
}

// MarkBackgroundComplete sets background_task_completed=true with the
// aggregate duration once both lanes have left PENDING.
func (r *Repository) MarkBackgroundComplete(ctx context.Context, id int64, durationMS int64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE answer_analysis SET background_task_completed = true, background_task_duration_ms = $1 WHERE id = $2
	`), durationMS, id)
	if err != nil {
		return errors.DatabaseError("mark analysis background task complete", err)
	}
	return nil
}

// IncrementRetry bumps retry_count and last_retry_at for the auto-retry
// manager (C13).
func (r *Repository) IncrementRetry(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE answer_analysis SET retry_count = retry_count + 1, last_retry_at = NOW() WHERE id = $1
	`), id)
	if err != nil {
		return errors.DatabaseError("increment analysis retry_count", err)
	}
	return nil
}

func mustMarshalTraitScores(scores TraitScores) []byte {
	data, err := json.Marshal(scores)
	if err != nil {
		return []byte(`{}`)
	}
	return data
}

package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/jmoiron/sqlx"

	"github.com/xksnk/selfology-core/pkg/shared/errors"
)

// layerItems is the on-disk shape of one digital_personality layer column:
// a map from category key to the serialized Item.
type layerItems map[string]Item

// row mirrors the digital_personality table.
type row struct {
	UserID               string  `db:"user_id"`
	BigFive              []byte  `db:"big_five"`
	Dynamic              []byte  `db:"dynamic"`
	Adaptive             []byte  `db:"adaptive"`
	DomainSpecific       []byte  `db:"domain_specific"`
	Goals                []byte  `db:"goals"`
	Values               []byte  `db:"values"`
	Context              []byte  `db:"context"`
	TotalAnswersAnalyzed int     `db:"total_answers_analyzed"`
	CompletenessScore    float64 `db:"completeness_score"`
	AppliedRecordIDs     []byte  `db:"applied_record_ids"`
}

// layerColumns lists the layers in table-column order, matching knownLayers
// in merge.go.
var layerColumns = []string{"big_five", "dynamic", "adaptive", "domain_specific", "goals", "values", "context"}

// Repository is the sqlx-backed ProfileStore, persisting a Profile's items
// as one JSONB column per layer in digital_personality.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Load reads a user's profile, returning (nil, nil) if the user has none
// yet — the merger treats that as "start a fresh profile".
func (r *Repository) Load(ctx context.Context, userID string) (*Profile, error) {
	var rr row
	err := r.db.GetContext(ctx, &rr, r.db.Rebind(`
		SELECT user_id, big_five, dynamic, adaptive, domain_specific, goals, values, context,
		       total_answers_analyzed, completeness_score, applied_record_ids
		FROM digital_personality WHERE user_id = $1
	`), userID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.DatabaseError("load digital_personality row", err)
	}

	p := NewProfile(userID)
	p.TotalAnswersAnalyzed = rr.TotalAnswersAnalyzed
	p.CompletenessScore = rr.CompletenessScore
	if len(rr.AppliedRecordIDs) > 0 {
		var ids []int64
		if err := json.Unmarshal(rr.AppliedRecordIDs, &ids); err != nil {
			return nil, errors.Validation("unmarshal applied_record_ids", err)
		}
		for _, id := range ids {
			p.AppliedRecordIDs[id] = true
		}
	}

	columns := map[string][]byte{
		"big_five":        rr.BigFive,
		"dynamic":         rr.Dynamic,
		"adaptive":        rr.Adaptive,
		"domain_specific": rr.DomainSpecific,
		"goals":           rr.Goals,
		"values":          rr.Values,
		"context":         rr.Context,
	}
	for _, layer := range layerColumns {
		raw := columns[layer]
		if len(raw) == 0 {
			continue
		}
		var items layerItems
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, errors.Validation("unmarshal "+layer+" layer", err)
		}
		for key, item := range items {
			p.Items[ItemKey{Layer: layer, CategoryKey: key}] = item
		}
	}
	return p, nil
}

// Save upserts a user's full profile in one statement, re-serializing every
// layer from the in-memory Items map.
func (r *Repository) Save(ctx context.Context, p *Profile) error {
	layers := make(map[string]layerItems, len(layerColumns))
	for _, layer := range layerColumns {
		layers[layer] = layerItems{}
	}
	for key, item := range p.Items {
		if layers[key.Layer] == nil {
			layers[key.Layer] = layerItems{}
		}
		layers[key.Layer][key.CategoryKey] = item
	}

	marshaled := make(map[string][]byte, len(layerColumns))
	for _, layer := range layerColumns {
		body, err := json.Marshal(layers[layer])
		if err != nil {
			return errors.Validation("marshal "+layer+" layer", err)
		}
		marshaled[layer] = body
	}

	ids := make([]int64, 0, len(p.AppliedRecordIDs))
	for id := range p.AppliedRecordIDs {
		ids = append(ids, id)
	}
	appliedIDs, err := json.Marshal(ids)
	if err != nil {
		return errors.Validation("marshal applied_record_ids", err)
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO digital_personality
			(user_id, big_five, dynamic, adaptive, domain_specific, goals, values, context,
			 total_answers_analyzed, completeness_score, applied_record_ids, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			big_five               = EXCLUDED.big_five,
			dynamic                = EXCLUDED.dynamic,
			adaptive               = EXCLUDED.adaptive,
			domain_specific        = EXCLUDED.domain_specific,
			goals                  = EXCLUDED.goals,
			values                 = EXCLUDED.values,
			context                = EXCLUDED.context,
			total_answers_analyzed = EXCLUDED.total_answers_analyzed,
			completeness_score     = EXCLUDED.completeness_score,
			applied_record_ids     = EXCLUDED.applied_record_ids,
			updated_at             = NOW()
	`), p.UserID,
		marshaled["big_five"], marshaled["dynamic"], marshaled["adaptive"], marshaled["domain_specific"],
		marshaled["goals"], marshaled["values"], marshaled["context"],
		p.TotalAnswersAnalyzed, p.CompletenessScore, appliedIDs)
	if err != nil {
		return errors.DatabaseError("upsert digital_personality row", err)
	}
	return nil
}

// TraitHistoryRepository is the sqlx-backed TraitHistoryStore, appending to
// and reading from trait_history.
type TraitHistoryRepository struct {
	db *sqlx.DB
}

func NewTraitHistoryRepository(db *sqlx.DB) *TraitHistoryRepository {
	return &TraitHistoryRepository{db: db}
}

func (r *TraitHistoryRepository) Append(ctx context.Context, entry TraitHistoryEntry) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO trait_history (user_id, trait_name, value, recorded_at)
		VALUES ($1, $2, $3, $4)
	`), entry.UserID, entry.TraitName, entry.Value, entry.RecordedAt)
	if err != nil {
		return errors.DatabaseError("insert trait_history row", err)
	}
	return nil
}

// RecentValues returns the last limit values for (userID, traitName),
// oldest first, matching EvolutionWriter's "most-recent-last" contract.
func (r *TraitHistoryRepository) RecentValues(ctx context.Context, userID, traitName string, limit int) ([]float64, error) {
	var values []float64
	err := r.db.SelectContext(ctx, &values, r.db.Rebind(`
		SELECT value FROM (
			SELECT value, recorded_at FROM trait_history
			WHERE user_id = $1 AND trait_name = $2
			ORDER BY recorded_at DESC
			LIMIT $3
		) recent ORDER BY recorded_at ASC
	`), userID, traitName, limit)
	if err != nil {
		return nil, errors.DatabaseError("select recent trait_history values", err)
	}
	return values, nil
}

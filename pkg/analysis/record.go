// Package analysis implements the two-phase analysis pipeline (C9): an
// instant best-effort pass and a deep authoritative pass that persists an
// AnalysisRecord, kicks off vectorization and profile-merge follow-up
// jobs, and publishes trait-extraction events.
package analysis

import (
	"encoding/json"
	"time"
)

type LaneStatus string

const (
	LanePending LaneStatus = "pending"
	LaneSuccess LaneStatus = "success"
	LaneFailed  LaneStatus = "failed"
)

type SpecialSituation string

const (
	SituationNone        SpecialSituation = "none"
	SituationCrisis      SpecialSituation = "crisis"
	SituationBreakthrough SpecialSituation = "breakthrough"
	SituationResistance  SpecialSituation = "resistance"
)

// TraitScores groups the four trait layers the deep phase fills in.
type TraitScores struct {
	BigFive        map[string]float64 `json:"big_five"`
	Dynamic        map[string]float64 `json:"dynamic"`
	Adaptive       map[string]float64 `json:"adaptive"`
	DomainSpecific map[string]float64 `json:"domain_specific"`
}

// Record is the AnalysisRecord row: the deep phase's authoritative output
// plus the two background-job status lanes.
type Record struct {
	ID                       int64            `db:"id" json:"id"`
	SourceRef                string           `db:"source_ref" json:"source_ref"`
	SourceKind               string           `db:"source_kind" json:"source_kind"` // "answer" | "context_story"
	AnalysisVersion          int              `db:"analysis_version" json:"analysis_version"`
	EmotionalState           string           `db:"emotional_state" json:"emotional_state"`
	TraitScores              TraitScores      `db:"-" json:"trait_scores"`
	TraitScoresRaw           json.RawMessage  `db:"trait_scores" json:"-"`
	Insights                 json.RawMessage  `db:"insights" json:"insights"`
	RouterHints              json.RawMessage  `db:"router_hints" json:"router_hints"`
	QualityScore             float64          `db:"quality_score" json:"quality_score"`
	ConfidenceScore          float64          `db:"confidence_score" json:"confidence_score"`
	ModelUsed                string           `db:"model_used" json:"model_used"`
	ProcessingTimeMS         int64            `db:"processing_time_ms" json:"processing_time_ms"`
	RawAIResponse            string           `db:"raw_ai_response" json:"raw_ai_response"`
	SpecialSituation         SpecialSituation `db:"special_situation" json:"special_situation"`
	IsMilestone              bool             `db:"is_milestone" json:"is_milestone"`
	VectorizationStatus      LaneStatus       `db:"vectorization_status" json:"vectorization_status"`
	VectorizationError       *string          `db:"vectorization_error" json:"vectorization_error,omitempty"`
	VectorizationCompletedAt *time.Time       `db:"vectorization_completed_at" json:"vectorization_completed_at,omitempty"`
	DPUpdateStatus           LaneStatus       `db:"dp_update_status" json:"dp_update_status"`
	DPUpdateError            *string          `db:"dp_update_error" json:"dp_update_error,omitempty"`
	DPUpdateCompletedAt      *time.Time       `db:"dp_update_completed_at" json:"dp_update_completed_at,omitempty"`
	RetryCount               int              `db:"retry_count" json:"retry_count"`
	LastRetryAt              *time.Time       `db:"last_retry_at" json:"last_retry_at,omitempty"`
	BackgroundTaskCompleted  bool             `db:"background_task_completed" json:"background_task_completed"`
	BackgroundTaskDurationMS int64            `db:"background_task_duration_ms" json:"background_task_duration_ms"`
	CreatedAt                time.Time        `db:"created_at" json:"created_at"`
}

// ExtractedTrait is one (name, value) pair pulled out of TraitScores for
// trait.extracted publication and C11's history append.
type ExtractedTrait struct {
	Name  string
	Value float64
}

// ExtractTraits flattens every scored trait across all four layers.
func (r Record) ExtractTraits() []ExtractedTrait {
	var out []ExtractedTrait
	for _, layer := range []map[string]float64{
		r.TraitScores.BigFive, r.TraitScores.Dynamic, r.TraitScores.Adaptive, r.TraitScores.DomainSpecific,
	} {
		for name, value := range layer {
			out = append(out, ExtractedTrait{Name: name, Value: value})
		}
	}
	return out
}

// lanesTerminal reports whether both background lanes have left PENDING.
func (r Record) lanesTerminal() bool {
	return r.VectorizationStatus != LanePending && r.DPUpdateStatus != LanePending
}

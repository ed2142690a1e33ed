package analysis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/xksnk/selfology-core/pkg/airouter"
	"github.com/xksnk/selfology-core/pkg/events"
	"github.com/xksnk/selfology-core/pkg/retry"
	"github.com/xksnk/selfology-core/pkg/shared/errors"
	"github.com/xksnk/selfology-core/pkg/shared/logging"
)

// Vectorizer computes and persists the embedding representation of a
// Record as the vectorization follow-up job.
type Vectorizer interface {
	Vectorize(ctx context.Context, rec Record) error
}

// ProfileMerger applies the profile merge (C11) as the dp_update
// follow-up job.
type ProfileMerger interface {
	Merge(ctx context.Context, userID string, rec Record) error
}

// deepModelOutput is the schema the deep model is expected to return;
// schema validation failure routes to the emergency handler.
type deepModelOutput struct {
	EmotionalState   string           `json:"emotional_state"`
	TraitScores      TraitScores      `json:"trait_scores"`
	Insights         json.RawMessage  `json:"insights"`
	RouterHints      json.RawMessage  `json:"router_hints"`
	QualityScore     float64          `json:"quality_score"`
	ConfidenceScore  float64          `json:"confidence_score"`
	SpecialSituation SpecialSituation `json:"special_situation"`
}

func (o deepModelOutput) valid() bool {
	return o.EmotionalState != "" && o.TraitScores.BigFive != nil
}

// RecordStore is the persistence surface the pipeline needs — satisfied by
// *Repository; declared as an interface so tests can substitute a double
// without a live database.
type RecordStore interface {
	Insert(ctx context.Context, rec *Record) (int64, error)
	UpdateLane(ctx context.Context, id int64, lane string, status LaneStatus, lastErr error) error
	MarkBackgroundComplete(ctx context.Context, id int64, durationMS int64) error
}

// Pipeline wires the instant phase, the deep phase, and the two
// background follow-up jobs together over one router/bus/repository set.
type Pipeline struct {
	Router     *airouter.Router
	Bus        Bus
	Repo       RecordStore
	Vectorizer Vectorizer
	Merger     ProfileMerger
	Retry      retry.Config
	Log        *logrus.Logger
}

func NewPipeline(router *airouter.Router, bus Bus, repo RecordStore, vec Vectorizer, merger ProfileMerger) *Pipeline {
	return &Pipeline{
		Router:     router,
		Bus:        bus,
		Repo:       repo,
		Vectorizer: vec,
		Merger:     merger,
		Retry:      retry.DefaultConfig(),
		Log:        logrus.StandardLogger(),
	}
}

// ProcessAnswer runs both phases for one incoming answer event. Phase A
// failures are swallowed (non-essential). In Phase B the router retries
// transient errors via C1 and skips candidates whose circuit breaker is
// open; a model failure or an output that fails schema validation yields
// an emergency record rather than an error. Only a failure to insert the
// record is returned to the caller; publish and follow-up-job failures are
// logged.
func (p *Pipeline) ProcessAnswer(ctx context.Context, userID, sourceRef, sourceKind, answerText, traceID string) error {
	go RunInstantPhase(context.Background(), p.Router, p.Bus, userID, sourceRef, answerText, traceID, p.Log)

	rec, err := p.runDeepPhase(ctx, sourceRef, sourceKind, answerText)
	if err != nil {
		return err
	}

	id, err := p.Repo.Insert(ctx, &rec)
	if err != nil {
		return err
	}
	rec.ID = id

	if err := p.Bus.Publish(ctx, events.New("analysis.completed", 1, events.PriorityNormal, traceID, analysisCompletedPayload(rec))); err != nil {
		p.Log.WithFields(logging.AnalysisFields("deep", sourceRef).Error(err).ToLogrus()).
			Error("failed to publish analysis.completed")
	}

	p.runFollowUpJobs(ctx, userID, rec)

	for _, trait := range rec.ExtractTraits() {
		env := events.New("trait.extracted", 1, events.PriorityNormal, traceID, map[string]interface{}{
			"user_id":     userID,
			"trait_name":  trait.Name,
			"value":       trait.Value,
			"analysis_id": rec.ID,
		})
		if err := p.Bus.Publish(ctx, env); err != nil {
			p.Log.WithFields(logging.AnalysisFields("deep", sourceRef).Error(err).ToLogrus()).
				Error("failed to publish trait.extracted")
		}
	}

	return nil
}

// RunDeepPhaseForTest exposes runDeepPhase for tests that want to exercise
// schema-validation and fallback-exhaustion behavior without a database.
func (p *Pipeline) RunDeepPhaseForTest(ctx context.Context, sourceRef, sourceKind, answerText string) (Record, error) {
	return p.runDeepPhase(ctx, sourceRef, sourceKind, answerText)
}

// runDeepPhase calls the frontier/mid-tier model, retrying transient
// failures, and falls back to the emergency handler if the model call
// fails or the model's output fails schema validation.
func (p *Pipeline) runDeepPhase(ctx context.Context, sourceRef, sourceKind, answerText string) (Record, error) {
	// The router itself already retries transient failures per candidate
	// (C1) and skips candidates whose breaker is open (C2); Phase B's own
	// contribution is the schema-validation fallback below.
	decision, raw, err := p.Router.Route(ctx, airouter.Request{
		Tier:      airouter.TierPro,
		Message:   answerText,
		ForceDeep: true,
	})
	if err != nil {
		rec := emergencyRecord(sourceRef, sourceKind, raw, err)
		return rec, nil
	}

	var output deepModelOutput
	if jsonErr := json.Unmarshal([]byte(raw), &output); jsonErr != nil || !output.valid() {
		rec := emergencyRecord(sourceRef, sourceKind, raw, errors.Validation("deep analysis output failed schema validation", jsonErr))
		return rec, nil
	}

	return Record{
		SourceRef:        sourceRef,
		SourceKind:       sourceKind,
		AnalysisVersion:  1,
		EmotionalState:   output.EmotionalState,
		TraitScores:      output.TraitScores,
		Insights:         output.Insights,
		RouterHints:      output.RouterHints,
		QualityScore:     output.QualityScore,
		ConfidenceScore:  output.ConfidenceScore,
		ModelUsed:        decision.Model,
		RawAIResponse:    raw,
		SpecialSituation: output.SpecialSituation,
	}, nil
}

// emergencyRecord builds a minimal well-formed record so downstream
// consumers never crash on a failed deep pass. The emergency_handler
// insights marker and ModelUsed flag the fallback. When the model returned
// output that failed validation, the router has already recorded that call
// as a success in its metrics; building this record does not change that.
func emergencyRecord(sourceRef, sourceKind, raw string, cause error) Record {
	note := "emergency_handler"
	if cause != nil {
		note += ": " + cause.Error()
	}
	return Record{
		SourceRef:       sourceRef,
		SourceKind:      sourceKind,
		AnalysisVersion: 1,
		EmotionalState:  "unknown",
		TraitScores:     TraitScores{},
		Insights:        json.RawMessage(`{"emergency_handler":true}`),
		RouterHints:     json.RawMessage(`{}`),
		ModelUsed:       "emergency_handler",
		RawAIResponse:   raw,
		SpecialSituation: SituationNone,
	}
}

// runFollowUpJobs runs the vectorization and profile-merge jobs in
// parallel, updating each lane's status, and marks the record's
// background task complete once both have left PENDING.
func (p *Pipeline) runFollowUpJobs(ctx context.Context, userID string, rec Record) {
	start := time.Now()
	var g errgroup.Group

	g.Go(func() error {
		err := p.Vectorizer.Vectorize(ctx, rec)
		status := LaneSuccess
		if err != nil {
			status = LaneFailed
			p.Log.WithFields(logging.AnalysisFields("vectorization", rec.SourceRef).Error(err).ToLogrus()).
				Error("vectorization follow-up job failed")
		}
		if updErr := p.Repo.UpdateLane(ctx, rec.ID, "vectorization", status, err); updErr != nil {
			p.Log.WithFields(logging.AnalysisFields("vectorization", rec.SourceRef).Error(updErr).ToLogrus()).
				Error("failed to persist vectorization lane status")
		}
		return nil
	})

	g.Go(func() error {
		err := p.Merger.Merge(ctx, userID, rec)
		status := LaneSuccess
		if err != nil {
			status = LaneFailed
			p.Log.WithFields(logging.AnalysisFields("dp_update", rec.SourceRef).Error(err).ToLogrus()).
				Error("profile merge follow-up job failed")
		}
		if updErr := p.Repo.UpdateLane(ctx, rec.ID, "dp_update", status, err); updErr != nil {
			p.Log.WithFields(logging.AnalysisFields("dp_update", rec.SourceRef).Error(updErr).ToLogrus()).
				Error("failed to persist dp_update lane status")
		}
		return nil
	})

	_ = g.Wait()

	if err := p.Repo.MarkBackgroundComplete(ctx, rec.ID, time.Since(start).Milliseconds()); err != nil {
		p.Log.WithFields(logging.AnalysisFields("background", rec.SourceRef).Error(err).ToLogrus()).
			Error("failed to mark analysis background task complete")
	}
}

func analysisCompletedPayload(rec Record) map[string]interface{} {
	return map[string]interface{}{
		"analysis_id":       rec.ID,
		"source_ref":        rec.SourceRef,
		"special_situation": rec.SpecialSituation,
		"quality_score":     rec.QualityScore,
	}
}

package analysis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xksnk/selfology-core/pkg/airouter"
	"github.com/xksnk/selfology-core/pkg/events"
	"github.com/xksnk/selfology-core/pkg/shared/logging"
)

const instantBudget = 500 * time.Millisecond

// InstantResult is the non-essential quick response published on
// analysis.instant.completed.
type InstantResult struct {
	QuickEmotional string `json:"quick_emotional"`
	ReflectiveLine string `json:"reflective_line"`
}

// Bus is the narrow publish surface the pipeline needs — satisfied by
// *eventbus.Bus.
type Bus interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// RunInstantPhase calls the fast model for a minimal emotional tag and a
// short reflective line, and publishes analysis.instant.completed as soon
// as the call returns. Any failure here is swallowed — Phase A is
// non-essential and must never block Phase B.
func RunInstantPhase(ctx context.Context, router *airouter.Router, bus Bus, userID, sourceRef, answerText, traceID string, log *logrus.Logger) {
	start := time.Now()
	instantCtx, cancel := context.WithTimeout(ctx, instantBudget)
	defer cancel()

	_, text, err := router.Route(instantCtx, airouter.Request{
		Tier:        airouter.TierFree,
		Message:     answerText,
		ForceDaily:  true, // instant phase never needs the frontier model
	})
	if err != nil {
		log.WithFields(logging.AnalysisFields("instant", sourceRef).Error(err).ToLogrus()).
			Warn("instant analysis phase failed, proceeding to deep phase")
		return
	}

	result := parseInstantResult(text)
	payload, err := toPayload(result)
	if err != nil {
		log.WithFields(logging.AnalysisFields("instant", sourceRef).Error(err).ToLogrus()).
			Warn("instant analysis result could not be serialized")
		return
	}
	payload["user_id"] = userID
	payload["source_ref"] = sourceRef
	payload["latency_ms"] = time.Since(start).Milliseconds()

	env := events.New("analysis.instant.completed", 1, events.PriorityHigh, traceID, payload)
	if err := bus.Publish(ctx, env); err != nil {
		log.WithFields(logging.AnalysisFields("instant", sourceRef).Error(err).ToLogrus()).
			Warn("failed to publish analysis.instant.completed")
	}
}

// parseInstantResult tolerates a model that doesn't return clean JSON by
// falling back to a neutral tag — Phase A must never error the pipeline.
func parseInstantResult(text string) InstantResult {
	var result InstantResult
	if err := json.Unmarshal([]byte(text), &result); err != nil || result.QuickEmotional == "" {
		return InstantResult{QuickEmotional: "neutral", ReflectiveLine: text}
	}
	return result
}

func toPayload(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

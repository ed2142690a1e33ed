// Package profile implements the profile & trait-evolution writer (C11):
// trait history tracking with significant-change detection and pattern
// tagging, and the deep-merge of analysis output into a user's
// PersonalityProfile.
package profile

import (
	"context"
	"time"

	"github.com/xksnk/selfology-core/pkg/events"
	"github.com/xksnk/selfology-core/pkg/shared/mathstats"
)

// TraitHistoryEntry is one trait_history row.
type TraitHistoryEntry struct {
	UserID     string
	TraitName  string
	Value      float64
	RecordedAt time.Time
}

// Pattern is the rolling-window tag computed over a trait's recent
// history. Tags are advisory signals, not stored state.
type Pattern string

const (
	PatternIncreasing Pattern = "increasing"
	PatternDecreasing Pattern = "decreasing"
	PatternOscillating Pattern = "oscillating"
	PatternStable     Pattern = "stable"
)

// EvolutionConfig controls the significance threshold and pattern-window
// parameters.
type EvolutionConfig struct {
	SignificanceThreshold float64 // absolute delta that triggers trait.evolution.detected
	WindowSize            int     // last N entries considered for pattern tagging
	SlopeThreshold        float64 // minimum |slope| to call INCREASING/DECREASING
	SignChangeThreshold   int     // minimum sign changes to call OSCILLATING
	VarianceFloor         float64 // variance below this is STABLE
}

func DefaultEvolutionConfig() EvolutionConfig {
	return EvolutionConfig{
		SignificanceThreshold: 0.15,
		WindowSize:            10,
		SlopeThreshold:        0.02,
		SignChangeThreshold:   3,
		VarianceFloor:         0.01,
	}
}

// TraitHistoryStore persists entries and reports a trait's recent values
// for the current user, most-recent-last.
type TraitHistoryStore interface {
	Append(ctx context.Context, entry TraitHistoryEntry) error
	RecentValues(ctx context.Context, userID, traitName string, limit int) ([]float64, error)
}

// Bus is the narrow publish surface this writer needs.
type Bus interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// EvolutionWriter handles trait.extracted: appends history, detects a
// significant change against the most recent prior value, and tags a
// rolling-window pattern.
type EvolutionWriter struct {
	store  TraitHistoryStore
	bus    Bus
	config EvolutionConfig
}

func NewEvolutionWriter(store TraitHistoryStore, bus Bus, config EvolutionConfig) *EvolutionWriter {
	return &EvolutionWriter{store: store, bus: bus, config: config}
}

// OnTraitExtracted appends the new value to history, computes the change
// magnitude against the prior value, and — only for changes crossing the
// significance threshold — publishes trait.evolution.detected with both
// values, the delta, and a pattern tag.
func (w *EvolutionWriter) OnTraitExtracted(ctx context.Context, userID, traitName string, newValue float64, analysisID int64, traceID string) error {
	prior, err := w.store.RecentValues(ctx, userID, traitName, w.config.WindowSize)
	if err != nil {
		return err
	}

	if err := w.store.Append(ctx, TraitHistoryEntry{
		UserID:     userID,
		TraitName:  traitName,
		Value:      newValue,
		RecordedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	if len(prior) == 0 {
		return nil
	}

	previous := prior[len(prior)-1]
	delta := newValue - previous
	if abs(delta) < w.config.SignificanceThreshold {
		return nil
	}

	window := append(append([]float64{}, prior...), newValue)
	pattern := w.taggedPattern(window)

	env := events.New("trait.evolution.detected", 1, events.PriorityNormal, traceID, map[string]interface{}{
		"user_id":     userID,
		"trait_name":  traitName,
		"old_value":   previous,
		"new_value":   newValue,
		"delta":       delta,
		"pattern":     pattern,
		"analysis_id": analysisID,
	})
	return w.bus.Publish(ctx, env)
}

// taggedPattern classifies a trait's rolling window into the closed
// INCREASING/DECREASING/OSCILLATING/STABLE set.
func (w *EvolutionWriter) taggedPattern(window []float64) Pattern {
	if len(window) > w.config.WindowSize {
		window = window[len(window)-w.config.WindowSize:]
	}

	variance := mathstats.Variance(window)
	if variance < w.config.VarianceFloor {
		return PatternStable
	}

	if mathstats.SignChanges(window) >= w.config.SignChangeThreshold {
		return PatternOscillating
	}

	slope := mathstats.Slope(window)
	switch {
	case slope >= w.config.SlopeThreshold:
		return PatternIncreasing
	case slope <= -w.config.SlopeThreshold:
		return PatternDecreasing
	default:
		return PatternStable
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

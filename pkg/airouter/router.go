// Package airouter implements the AI Router (C8): complexity inference,
// tier-aware model selection, a per-model fallback chain gated by circuit
// breakers, and retry-wrapped transient-error handling over whichever LLM
// client a model resolves to.
package airouter

import (
	"context"
	"strings"
	"time"

	"github.com/xksnk/selfology-core/pkg/circuitbreaker"
	"github.com/xksnk/selfology-core/pkg/retry"
	"github.com/xksnk/selfology-core/pkg/shared/errors"
	"github.com/xksnk/selfology-core/pkg/shared/metrics"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

type Complexity string

const (
	ComplexitySimple Complexity = "simple"
	ComplexityDaily  Complexity = "daily"
	ComplexityDeep   Complexity = "deep"
)

// Model names mirror the original system's three-tier model mix (a cheap
// fast model, a capable mid-tier model, and a frontier model).
const (
	ModelCheapSmall = "cheap-small"
	ModelMid        = "mid"
	ModelFrontier   = "frontier"
)

// selectionTable maps (complexity, tier-is-paid) to a model. Free-tier
// requests are downgraded one rung from what a paid tier would get.
var selectionTable = map[Complexity]struct {
	Paid       string
	Free       string
	Downgraded bool // whether the Free entry counts as a downgrade
}{
	ComplexitySimple: {Paid: ModelCheapSmall, Free: ModelCheapSmall, Downgraded: false},
	ComplexityDaily:  {Paid: ModelMid, Free: ModelCheapSmall, Downgraded: true},
	ComplexityDeep:   {Paid: ModelFrontier, Free: ModelMid, Downgraded: true},
}

// fallbackChains lists, for each primary model, the ordered candidates to
// try if the primary's circuit breaker is OPEN.
var fallbackChains = map[string][]string{
	ModelCheapSmall: {ModelCheapSmall, ModelMid},
	ModelMid:        {ModelMid, ModelFrontier, ModelCheapSmall},
	ModelFrontier:   {ModelFrontier, ModelMid},
}

// Request is the router's input.
type Request struct {
	Tier           Tier
	TaskDescription string
	Message        string
	ForceDeep      bool // context override, e.g. onboarding
	ForceDaily     bool // context override, e.g. check-in
}

// Decision is the router's output.
type Decision struct {
	Model         string
	Reasoning     string
	EstimatedCost float64
	Complexity    Complexity
	Downgraded    bool
}

// ErrNoModelAvailable is returned when every candidate in a fallback chain
// has an OPEN circuit breaker. Route also returns it when every candidate
// fails for any other reason.
var ErrNoModelAvailable = errors.Capacity("no model available: every candidate breaker is open", 0)

// Client is the LLM call surface a model resolves to — implemented by an
// Anthropic-backed client and a langchaingo-backed client for alternate
// providers (see client_anthropic.go / client_langchain.go).
type Client interface {
	Complete(ctx context.Context, model, prompt string) (Completion, error)
}

type Completion struct {
	Text           string
	InputTokens    int
	OutputTokens   int
	EstimatedCost  float64
}

// ModelCosts gives a rough per-1K-token cost used for EstimatedCost when a
// provider doesn't report usage.
var ModelCosts = map[string]float64{
	ModelCheapSmall: 0.0005,
	ModelMid:        0.005,
	ModelFrontier:   0.03,
}

// Router ties model selection, fallback, circuit breakers, and retry
// together into a single Route call.
type Router struct {
	client   Client
	breakers *circuitbreaker.Registry
	retry    retry.Config
	metrics  *Metrics
}

func New(client Client, breakers *circuitbreaker.Registry) *Router {
	cfg := retry.DefaultConfig()
	// Only timeouts, resets, and 5xx/429 upstream failures are worth
	// retrying here; a breaker-open capacity error or a validation error
	// should fall straight through to the next fallback candidate.
	cfg.IsRetryable = func(err error) bool {
		return errors.KindOf(err) == errors.KindTransient
	}
	return &Router{
		client:   client,
		breakers: breakers,
		retry:    cfg,
		metrics:  NewMetrics(),
	}
}

func (r *Router) Metrics() *Metrics { return r.metrics }

// InferComplexity classifies a request per spec.md §4.8's ordered rule
// list: deep markers, then simple markers, then daily markers, then a
// length-based default, with context overrides taking final precedence.
func InferComplexity(req Request) Complexity {
	text := strings.ToLower(req.TaskDescription + " " + req.Message)

	if req.ForceDeep {
		return ComplexityDeep
	}
	if req.ForceDaily {
		return ComplexityDaily
	}

	if containsAny(text, "deep analysis", "psychological", "onboarding", "deep-assessment", "deep assessment") || len(text) > 300 {
		return ComplexityDeep
	}
	if containsAny(text, "validate", "classify") || len(text) < 50 {
		return ComplexitySimple
	}
	if containsAny(text, "chat", "mood", "coaching", "coach") {
		return ComplexityDaily
	}

	switch {
	case len(text) < 50:
		return ComplexitySimple
	case len(text) > 300:
		return ComplexityDeep
	default:
		return ComplexityDaily
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// SelectModel resolves a complexity + tier into a primary model and
// whether that choice is a downgrade from what a paid tier would receive.
func SelectModel(complexity Complexity, tier Tier) (model string, downgraded bool) {
	entry := selectionTable[complexity]
	if tier == TierFree {
		return entry.Free, entry.Downgraded
	}
	return entry.Paid, false
}

// Route selects a model, walks its fallback chain against the circuit
// breaker registry, and calls the first available candidate with retry
// over transient errors.
func (r *Router) Route(ctx context.Context, req Request) (Decision, string, error) {
	complexity := InferComplexity(req)
	primary, downgraded := SelectModel(complexity, req.Tier)
	chain := fallbackChains[primary]
	if len(chain) == 0 {
		chain = []string{primary}
	}

	decision := Decision{
		Model:      primary,
		Reasoning:  "selected " + primary + " for " + string(complexity) + " complexity at tier " + string(req.Tier),
		Complexity: complexity,
		Downgraded: downgraded,
	}

	for _, candidate := range chain {
		breaker := r.breakers.GetOrCreate(circuitbreaker.DefaultConfig(candidate))
		start := time.Now()

		var result Completion
		err := retry.Do(ctx, r.retry, func(ctx context.Context) error {
			return breaker.Call(func() error {
				var callErr error
				result, callErr = r.client.Complete(ctx, candidate, req.Message)
				return callErr
			})
		})

		if err == nil {
			elapsed := time.Since(start)
			r.metrics.RecordSuccess(candidate, elapsed, result.EstimatedCost)
			metrics.RecordAICall(candidate, "success", elapsed, result.EstimatedCost)
			decision.Model = candidate
			decision.EstimatedCost = result.EstimatedCost
			return decision, result.Text, nil
		}

		r.metrics.RecordFailure(candidate)
		metrics.RecordAICall(candidate, "failure", time.Since(start), 0)
		if errors.KindOf(err) == errors.KindCapacity {
			continue // breaker OPEN; try next candidate
		}
		// any other terminal error from this candidate: still try the
		// remaining fallbacks rather than failing the whole request.
	}

	return decision, "", ErrNoModelAvailable
}

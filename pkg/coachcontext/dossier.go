// Package coachcontext implements the coach context assembler (C12): a
// cached Dossier built from a user's PersonalityProfile via the AI
// Router with a deterministic fallback, correction-marker detection, and
// a periodic check-in scheduler.
package coachcontext

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sort"
	"time"

	"github.com/xksnk/selfology-core/pkg/airouter"
	"github.com/xksnk/selfology-core/pkg/profile"
)

// Dossier is the assembled context handed to the coach.
type Dossier struct {
	UserID      string
	Who         string
	TopGoals    []string
	TopBarriers []string
	TraitSummary map[string]float64
	GeneratedBy string // "ai" | "top_n_fallback"
	GeneratedAt time.Time
}

// AnswerSummary is one recent answer fed to the assembler as supporting
// context.
type AnswerSummary struct {
	QuestionID string
	Text       string
}

// DossierCache stores the assembled dossier, keyed by user id, for reuse
// until C11 invalidates it on a profile write.
type DossierCache interface {
	Get(ctx context.Context, userID string) (*Dossier, bool, error)
	Set(ctx context.Context, userID string, d Dossier) error
	Invalidate(ctx context.Context, userID string) error
}

// Assembler builds and caches Dossiers.
type Assembler struct {
	router *airouter.Router
	cache  DossierCache
}

func NewAssembler(router *airouter.Router, cache DossierCache) *Assembler {
	return &Assembler{router: router, cache: cache}
}

// Invalidate satisfies profile.DossierInvalidator, so C11 can drop the
// cached dossier on every PersonalityProfile write.
func (a *Assembler) Invalidate(ctx context.Context, userID string) error {
	return a.cache.Invalidate(ctx, userID)
}

// Assemble returns the cached dossier if present, otherwise builds one
// from the profile and recent answers — via the AI Router when a model is
// available, falling back to a deterministic top-N extractor otherwise —
// and caches the result.
func (a *Assembler) Assemble(ctx context.Context, p *profile.Profile, recent []AnswerSummary, traitSummary map[string]float64) (Dossier, error) {
	if cached, ok, err := a.cache.Get(ctx, p.UserID); err != nil {
		return Dossier{}, err
	} else if ok {
		return *cached, nil
	}

	d, err := a.assembleViaRouter(ctx, p, recent, traitSummary)
	if err != nil {
		d = topNFallback(p, traitSummary)
	}

	if err := a.cache.Set(ctx, p.UserID, d); err != nil {
		return Dossier{}, err
	}
	return d, nil
}

type routerDossierOutput struct {
	Who         string   `json:"who"`
	TopGoals    []string `json:"top_goals"`
	TopBarriers []string `json:"top_barriers"`
}

func (a *Assembler) assembleViaRouter(ctx context.Context, p *profile.Profile, recent []AnswerSummary, traitSummary map[string]float64) (Dossier, error) {
	prompt := dossierPrompt(p, recent)

	_, text, err := a.router.Route(ctx, airouter.Request{
		Tier:      airouter.TierPro,
		Message:   prompt,
		ForceDaily: true,
	})
	if err != nil {
		return Dossier{}, err
	}

	var out routerDossierOutput
	if jsonErr := json.Unmarshal([]byte(text), &out); jsonErr != nil {
		return Dossier{}, jsonErr
	}
	if out.Who == "" {
		return Dossier{}, stderrors.New("dossier response has no who summary")
	}

	return Dossier{
		UserID:       p.UserID,
		Who:          out.Who,
		TopGoals:     out.TopGoals,
		TopBarriers:  out.TopBarriers,
		TraitSummary: traitSummary,
		GeneratedBy:  "ai",
		GeneratedAt:  time.Now().UTC(),
	}, nil
}

// topNFallback picks the highest-priority goals/barriers directly out of
// the profile and synthesizes a minimal `who` line from identity items,
// with no model call at all.
func topNFallback(p *profile.Profile, traitSummary map[string]float64) Dossier {
	goals := topItems(p, "goals", 3)
	barriers := topItems(p, "barriers", 3)

	who := "A user with " + itoa(len(p.Items)) + " tracked profile items"
	if identity, ok := p.Items[profile.ItemKey{Layer: "context", CategoryKey: "identity"}]; ok {
		if text, ok := identity.Attributes["text"].(string); ok && text != "" {
			who = text
		}
	}

	return Dossier{
		UserID:       p.UserID,
		Who:          who,
		TopGoals:     goals,
		TopBarriers:  barriers,
		TraitSummary: traitSummary,
		GeneratedBy:  "top_n_fallback",
		GeneratedAt:  time.Now().UTC(),
	}
}

func topItems(p *profile.Profile, layer string, n int) []string {
	type scored struct {
		key      string
		priority int
	}
	var items []scored
	for key, item := range p.Items {
		if key.Layer != layer || item.Status == "inactive" {
			continue
		}
		text, _ := item.Attributes["text"].(string)
		if text == "" {
			text = key.CategoryKey
		}
		items = append(items, scored{key: text, priority: item.Priority})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].priority > items[j].priority })

	if len(items) > n {
		items = items[:n]
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.key)
	}
	return out
}

func dossierPrompt(p *profile.Profile, recent []AnswerSummary) string {
	prompt := "Summarize this user's coaching context.\n"
	for _, a := range recent {
		prompt += "- " + a.Text + "\n"
	}
	return prompt
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := [20]byte{}
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

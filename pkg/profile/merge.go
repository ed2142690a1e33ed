package profile

import (
	"context"

	"github.com/xksnk/selfology-core/pkg/analysis"
)

// ItemKey identifies one profile item by (layer, category-key), e.g.
// (goals, goal_text).
type ItemKey struct {
	Layer       string
	CategoryKey string
}

// Item is one entry in a PersonalityProfile layer.
type Item struct {
	Status     string // "active" | "inactive"
	Priority   int
	Type       string // a specificity tag; a non-empty, longer Type is "more specific"
	Attributes map[string]interface{}
}

// Profile is the PersonalityProfile: a set of items keyed by (layer,
// category-key), plus the two rollup counters spec.md §4.11 names.
type Profile struct {
	UserID               string
	Items                map[ItemKey]Item
	TotalAnswersAnalyzed int
	CompletenessScore    float64
	// AppliedRecordIDs tracks which AnalysisRecord ids have already been
	// merged, so a redelivered record (the bus is at-least-once) is a
	// no-op on the second ApplyRecord call instead of double-counting.
	AppliedRecordIDs map[int64]bool
}

func NewProfile(userID string) *Profile {
	return &Profile{UserID: userID, Items: make(map[ItemKey]Item), AppliedRecordIDs: make(map[int64]bool)}
}

// knownLayers is the closed set of layers completeness is computed over;
// mirrors TraitScores' four layers plus goals/values/context layers an
// analysis record's extracted content can target.
var knownLayers = []string{"big_five", "dynamic", "adaptive", "domain_specific", "goals", "values", "context"}

// ApplyRecord deep-merges one accepted analysis record's layered items
// into the profile, keyed by recordID. A record whose id has already been
// applied is a no-op: the bus delivers at-least-once, so the same
// analysis.completed event can reach the merge path twice, and spec.md
// §3/§8 both require merging the same record twice to leave the profile
// unchanged.
func (p *Profile) ApplyRecord(recordID int64, itemsByKey map[ItemKey]Item) {
	if p.AppliedRecordIDs == nil {
		p.AppliedRecordIDs = make(map[int64]bool)
	}
	if p.AppliedRecordIDs[recordID] {
		return
	}

	for key, incoming := range itemsByKey {
		existing, ok := p.Items[key]
		if !ok {
			p.Items[key] = incoming
			continue
		}
		p.Items[key] = mergeItem(existing, incoming)
	}

	p.AppliedRecordIDs[recordID] = true
	p.TotalAnswersAnalyzed++
	p.CompletenessScore = p.computeCompleteness()
}

// mergeItem applies spec.md §4.11's conflict rules: the newer record wins
// unless the older carries a higher priority or a more specific type, in
// which case attributes merge field-wise; an inactive status in the new
// record always overrides a prior active one.
func mergeItem(older, newer Item) Item {
	if newer.Status == "inactive" {
		merged := newer
		merged.Attributes = mergeAttributes(older.Attributes, newer.Attributes, favorNewer(older, newer))
		return merged
	}

	favorOlder := !favorNewer(older, newer)
	merged := Item{
		Status:   newer.Status,
		Priority: maxInt(older.Priority, newer.Priority),
		Type:     pickType(older, newer),
	}
	merged.Attributes = mergeAttributes(older.Attributes, newer.Attributes, !favorOlder)
	return merged
}

// favorNewer reports whether the newer record wins a plain conflict: true
// unless the older record has strictly higher priority or a strictly more
// specific type.
func favorNewer(older, newer Item) bool {
	if older.Priority > newer.Priority {
		return false
	}
	if moreSpecific(older.Type, newer.Type) {
		return false
	}
	return true
}

func moreSpecific(olderType, newerType string) bool {
	return len(olderType) > len(newerType)
}

func pickType(older, newer Item) string {
	if favorNewer(older, newer) {
		if newer.Type != "" {
			return newer.Type
		}
		return older.Type
	}
	if older.Type != "" {
		return older.Type
	}
	return newer.Type
}

// mergeAttributes merges two attribute maps field-wise. When preferNewer
// is true, a key present in both maps takes the newer value; otherwise it
// keeps the older value. Keys present in only one map always survive.
func mergeAttributes(older, newer map[string]interface{}, preferNewer bool) map[string]interface{} {
	merged := make(map[string]interface{}, len(older)+len(newer))
	for k, v := range older {
		merged[k] = v
	}
	for k, v := range newer {
		if _, conflict := older[k]; conflict && !preferNewer {
			continue
		}
		merged[k] = v
	}
	return merged
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// computeCompleteness is a deterministic function of which known layers
// have at least one active item: the fraction of covered layers.
func (p *Profile) computeCompleteness() float64 {
	covered := make(map[string]bool)
	for key, item := range p.Items {
		if item.Status != "inactive" {
			covered[key.Layer] = true
		}
	}
	count := 0
	for _, layer := range knownLayers {
		if covered[layer] {
			count++
		}
	}
	return float64(count) / float64(len(knownLayers))
}

// ProfileStore persists and loads a user's Profile for the merger and for
// C12's dossier assembly.
type ProfileStore interface {
	Load(ctx context.Context, userID string) (*Profile, error)
	Save(ctx context.Context, p *Profile) error
}

// DossierInvalidator is notified on every profile write so C12's cached
// dossier for the user is dropped.
type DossierInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// Merger wires ProfileStore + DossierInvalidator together as the
// dp_update follow-up job's ProfileMerger (the analysis package's
// interface of the same name).
type Merger struct {
	store       ProfileStore
	invalidator DossierInvalidator
}

func NewMerger(store ProfileStore, invalidator DossierInvalidator) *Merger {
	return &Merger{store: store, invalidator: invalidator}
}

// Merge satisfies the analysis package's ProfileMerger interface: it
// loads the user's profile, applies the record's extracted items, saves,
// and invalidates the cached dossier.
func (m *Merger) Merge(ctx context.Context, userID string, rec analysis.Record) error {
	p, err := m.store.Load(ctx, userID)
	if err != nil {
		return err
	}
	if p == nil {
		p = NewProfile(userID)
	}

	p.ApplyRecord(rec.ID, itemsFromRecord(rec))

	if err := m.store.Save(ctx, p); err != nil {
		return err
	}
	return m.invalidator.Invalidate(ctx, userID)
}

// itemsFromRecord projects an analysis record's trait scores into profile
// items, one per scored trait, keyed by (layer, trait name).
func itemsFromRecord(rec analysis.Record) map[ItemKey]Item {
	items := make(map[ItemKey]Item)
	add := func(layer string, scores map[string]float64) {
		for name, value := range scores {
			items[ItemKey{Layer: layer, CategoryKey: name}] = Item{
				Status:     "active",
				Attributes: map[string]interface{}{"value": value},
			}
		}
	}
	add("big_five", rec.TraitScores.BigFive)
	add("dynamic", rec.TraitScores.Dynamic)
	add("adaptive", rec.TraitScores.Adaptive)
	add("domain_specific", rec.TraitScores.DomainSpecific)
	return items
}

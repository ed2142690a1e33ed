// Package catalog is a reference implementation of the question-catalog
// collaborator spec.md §6 treats as external: a static, read-only fixture
// of (id, domain, depth_level, energy) questions plus a "smart-mix"
// QuestionSelector stub over it. Production deployments are expected to
// swap this for the real catalog/cluster router; this package exists so
// the coordinator is runnable end to end against a closed fixture.
package catalog

import (
	"context"
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/xksnk/selfology-core/pkg/session"
)

// Question is one questions_metadata-shaped catalog entry. DepthLevel
// doubles as the session Block it belongs to.
type Question struct {
	JSONID     string `yaml:"json_id"`
	Domain     string `yaml:"domain"`
	DepthLevel string `yaml:"depth_level"`
	Energy     string `yaml:"energy"`
}

// Catalog is a static, in-memory question set loaded once at startup.
type Catalog struct {
	questions []Question
	byBlock   map[session.Block][]Question
}

//go:embed questions.yaml
var defaultFixture embed.FS

// LoadDefault parses the fixture shipped alongside this package.
func LoadDefault() (*Catalog, error) {
	body, err := defaultFixture.ReadFile("questions.yaml")
	if err != nil {
		return nil, fmt.Errorf("read default question catalog: %w", err)
	}
	return Load(body)
}

// Load parses a YAML document of the form `questions: [...]Question`.
func Load(body []byte) (*Catalog, error) {
	var doc struct {
		Questions []Question `yaml:"questions"`
	}
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse question catalog: %w", err)
	}

	c := &Catalog{questions: doc.Questions, byBlock: make(map[session.Block][]Question)}
	for _, q := range doc.Questions {
		block := session.Block(q.DepthLevel)
		c.byBlock[block] = append(c.byBlock[block], q)
	}
	return c, nil
}

// QuestionIDsForBlock returns every catalog question id tagged with the
// given block/depth level.
func (c *Catalog) QuestionIDsForBlock(block session.Block) []string {
	qs := c.byBlock[block]
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.JSONID
	}
	return ids
}

// Get returns the catalog entry for a question id.
func (c *Catalog) Get(id string) (Question, bool) {
	for _, q := range c.questions {
		if q.JSONID == id {
			return q, true
		}
	}
	return Question{}, false
}

// StaticSelector is a reference QuestionSelector: it walks the catalog in
// fixture order, picks the first question in an allowed block that hasn't
// been answered or flagged, and signals Done once nothing is left. A real
// "smart-mix" selector would weight by novelty, domain coverage, and
// fatigue instead of taking the first match.
type StaticSelector struct {
	catalog *Catalog
}

func NewStaticSelector(catalog *Catalog) *StaticSelector {
	return &StaticSelector{catalog: catalog}
}

func (s *StaticSelector) SelectNext(_ context.Context, req session.SelectorRequest) (session.SelectorDecision, error) {
	for _, q := range s.catalog.questions {
		block := session.Block(q.DepthLevel)
		if !req.AllowedBlocks[block] {
			continue
		}
		if req.AnsweredIDs[q.JSONID] || req.FlaggedIDs[q.JSONID] {
			continue
		}
		strategy := "standard"
		if req.FatigueSignal > 0.6 {
			strategy = "light"
		}
		return session.SelectorDecision{QuestionID: q.JSONID, Block: block, Strategy: strategy}, nil
	}
	return session.SelectorDecision{Done: true}, nil
}

package vector

import (
	"context"

	"github.com/xksnk/selfology-core/pkg/analysis"
)

// DefaultModel names the embedding model recorded alongside every stored
// vector, so a future re-embedding migration can tell which rows are stale.
const DefaultModel = "text-embedding-default"

// Vectorizer adapts an Embedder+Store pair to analysis.Vectorizer, the
// interface C9's deep phase calls as its vectorization follow-up job.
type Vectorizer struct {
	embedder Embedder
	store    Store
}

func NewVectorizer(embedder Embedder, store Store) *Vectorizer {
	return &Vectorizer{embedder: embedder, store: store}
}

// Vectorize embeds the record's raw AI response text — the richest
// available text field on a Record — and upserts the resulting vector
// keyed by the record's id.
func (v *Vectorizer) Vectorize(ctx context.Context, rec analysis.Record) error {
	text := rec.RawAIResponse
	if text == "" {
		text = string(rec.Insights)
	}

	embedding, err := v.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	return v.store.Upsert(ctx, Record{
		RecordID:  rec.ID,
		SourceRef: rec.SourceRef,
		Embedding: embedding,
		Model:     DefaultModel,
	})
}

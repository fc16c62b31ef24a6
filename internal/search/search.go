// Package search maintains an in-memory full-text index over ingested
// signals so operators can find past communications without replaying the
// pipeline.
package search

import (
	"fmt"

	"github.com/blevesearch/bleve"

	"orgpulse/internal/pipeline"
)

// signalDoc is the indexed projection of a signal.
type signalDoc struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Source  string `json:"source"`
	Content string `json:"content"`
}

// Hit is one search result.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Index is a memory-only bleve index keyed by signal id. Safe for
// concurrent use (bleve indexes are internally synchronised).
type Index struct {
	idx bleve.Index
}

func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("search: create index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// Add indexes one signal. Indexing the same id twice replaces the document.
func (i *Index) Add(sig pipeline.Signal) error {
	return i.idx.Index(sig.ID, signalDoc{
		Type:    sig.Type,
		Title:   sig.Title,
		Source:  sig.Source,
		Content: sig.Content,
	})
}

// AddAll indexes a batch, used to warm the index from the store at boot.
func (i *Index) AddAll(signals []pipeline.Signal) error {
	batch := i.idx.NewBatch()
	for _, sig := range signals {
		if err := batch.Index(sig.ID, signalDoc{
			Type:    sig.Type,
			Title:   sig.Title,
			Source:  sig.Source,
			Content: sig.Content,
		}); err != nil {
			return err
		}
	}
	return i.idx.Batch(batch)
}

// Search runs a query-string search and returns up to limit hits ordered by
// relevance.
func (i *Index) Search(q string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(q), limit, 0, false)
	res, err := i.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

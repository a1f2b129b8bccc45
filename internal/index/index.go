// Package index maintains a full-text index over research findings so the
// API can search intelligence across initiatives.
package index

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/aquaregiaswarm-blip/scout/internal/agent/core"
)

// Document is the indexed shape of one finding.
type Document struct {
	ID           string  `json:"id"`
	InitiativeID string  `json:"initiative_id"`
	Category     string  `json:"category"`
	Summary      string  `json:"summary"`
	Details      string  `json:"details"`
	SourceURL    string  `json:"source_url"`
	Confidence   float64 `json:"confidence"`
}

// Hit is one search result with its relevance score.
type Hit struct {
	Document
	Score float64 `json:"score"`
}

// FindingIndex wraps a bleve index over finding documents. It implements
// core.FindingIndexer.
type FindingIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	docs  map[string]Document
}

// Open opens or creates an index at path; an empty path keeps the index
// in memory.
func Open(path string) (*FindingIndex, error) {
	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(bleve.NewIndexMapping())
	} else {
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, bleve.NewIndexMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open finding index: %w", err)
	}
	return &FindingIndex{index: idx, docs: make(map[string]Document)}, nil
}

// IndexFinding adds one persisted finding to the index.
func (fi *FindingIndex) IndexFinding(rec core.FindingRecord) error {
	doc := Document{
		ID:           rec.ID,
		InitiativeID: rec.InitiativeID,
		Category:     string(rec.Finding.Category),
		Summary:      rec.Finding.Summary,
		Details:      rec.Finding.Details,
		SourceURL:    rec.Finding.SourceURL,
		Confidence:   rec.Finding.Confidence,
	}

	fi.mu.Lock()
	defer fi.mu.Unlock()
	fi.docs[doc.ID] = doc
	if err := fi.index.Index(doc.ID, doc); err != nil {
		return fmt.Errorf("index finding %s: %w", doc.ID, err)
	}
	return nil
}

// Search runs a query-string search and returns up to limit hits.
func (fi *FindingIndex) Search(q string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}
	query := bleve.NewQueryStringQuery(q)
	searchReq := bleve.NewSearchRequestOptions(query, limit, 0, false)

	fi.mu.RLock()
	defer fi.mu.RUnlock()
	res, err := fi.index.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("search findings: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		doc, ok := fi.docs[h.ID]
		if !ok {
			continue
		}
		hits = append(hits, Hit{Document: doc, Score: h.Score})
	}
	return hits, nil
}

// Close releases the underlying index.
func (fi *FindingIndex) Close() error {
	return fi.index.Close()
}

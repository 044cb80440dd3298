// Package search implements semantic retrieval: a per-project searcher
// that prefilters candidates with spatial range scans and re-ranks them by
// exact cosine similarity, and a cross-project searcher that fuses ranked
// results from every active project into one list.
package search

import (
	"context"
	"errors"
	"sort"

	"github.com/orneryd/yggdrasil/pkg/federation"
	"github.com/orneryd/yggdrasil/pkg/spatial"
	"github.com/orneryd/yggdrasil/pkg/storage"
	"github.com/orneryd/yggdrasil/pkg/vector"
)

// Errors returned by search.
var (
	ErrEmptyQuery = errors.New("search: empty query vector")
	ErrBadLimit   = errors.New("search: limit must be positive")
)

// DefaultOverscan is how many candidates per requested result the
// prefilter tries to collect before re-ranking. Z-order keys approximate
// distance, so the range scan must over-fetch for the exact cosine pass to
// have enough to choose from.
const DefaultOverscan = 4

// Result is one scored hit from a single project.
type Result struct {
	Node       *storage.Node
	Similarity float64
}

// ProjectSearcher runs spatial-prefiltered cosine search within one
// federation of project indexes.
type ProjectSearcher struct {
	nodes    *storage.NodeStore
	fed      *federation.Manager
	radii    []spatial.Key128
	overscan int
}

// NewProjectSearcher creates a searcher over the federation's indexes.
// radii nil uses spatial.DefaultRadii; overscan <= 0 uses DefaultOverscan.
func NewProjectSearcher(nodes *storage.NodeStore, fed *federation.Manager,
	radii []spatial.Key128, overscan int) *ProjectSearcher {

	if len(radii) == 0 {
		radii = spatial.DefaultRadii()
	}
	if overscan <= 0 {
		overscan = DefaultOverscan
	}
	return &ProjectSearcher{nodes: nodes, fed: fed, radii: radii, overscan: overscan}
}

// Search returns the topK most similar embedded nodes in one project,
// ordered by similarity descending (ties broken by node ID ascending).
//
// When spatial params exist, candidates come from widening range scans
// around the query's key; the schedule stops at the first radius that
// yields enough candidates. When no params exist yet (cold start), every
// embedded node in the project is scanned directly — correct, just slower.
func (s *ProjectSearcher) Search(ctx context.Context, projectID string, query []float32, topK int) ([]Result, error) {
	if len(query) == 0 {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		return nil, ErrBadLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc := s.fed.Encoder()
	if enc == nil {
		return s.linearScan(projectID, query, topK)
	}

	center, err := enc.Encode(query)
	if err != nil {
		return nil, err
	}

	want := topK * s.overscan
	ix := s.fed.Index(projectID)

	var ids []storage.NodeID
	for _, radius := range s.radii {
		ids, err = ix.RangeScan(center, radius, want)
		if err != nil {
			return nil, err
		}
		if len(ids) >= want {
			break
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		node, err := s.nodes.Get(id)
		if errors.Is(err, storage.ErrNotFound) {
			continue // index entry outlived its node
		}
		if err != nil {
			return nil, err
		}
		if !node.HasEmbedding() {
			continue
		}
		results = append(results, Result{
			Node:       node,
			Similarity: float64(vector.CosineSimilarity(query, node.Embedding)),
		})
	}

	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// linearScan is the cold-start path: exact cosine over every embedded node.
func (s *ProjectSearcher) linearScan(projectID string, query []float32, topK int) ([]Result, error) {
	var results []Result
	err := s.nodes.ScanProject(projectID, func(node *storage.Node) bool {
		if node.HasEmbedding() {
			results = append(results, Result{
				Node:       node,
				Similarity: float64(vector.CosineSimilarity(query, node.Embedding)),
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// sortResults orders by similarity descending, node ID ascending on ties.
// The tie-break keeps result order deterministic across runs.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Node.ID < results[j].Node.ID
	})
}

package search

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orneryd/yggdrasil/pkg/federation"
	"github.com/orneryd/yggdrasil/pkg/storage"
)

// Fusion constants.
const (
	// SimilarityFloor drops weak matches before normalization so that one
	// project's garbage cannot be min-max stretched into top ranks.
	SimilarityFloor = 0.1

	// FreshnessBoostMax is the extra multiplier a project accessed right
	// now receives. The boost decays by half every FreshnessHalfLife, so
	// the final multiplier lives in [1.0, 1.0+FreshnessBoostMax].
	FreshnessBoostMax = 0.2

	// FreshnessHalfLife is the freshness decay half-life.
	FreshnessHalfLife = 30 * 24 * time.Hour

	// DefaultMaxConcurrent bounds how many project searches run at once.
	DefaultMaxConcurrent = 8
)

// FusedResult is one hit in a cross-project ranking.
type FusedResult struct {
	Node       *storage.Node
	ProjectID  string
	Similarity float64 // raw cosine within the project
	Normalized float64 // per-project min-max normalized similarity
	Weight     float64 // project ranking weight
	Freshness  float64 // project freshness boost, [1.0, 1.2]
	Score      float64 // Normalized * Weight * Freshness
}

// CrossSearcher fuses per-project rankings into one cross-project list.
//
// Raw cosine scores from different projects are not comparable: projects
// differ in embedding density and topical spread, so a 0.7 in one project
// can mean more than a 0.8 in another. Each project's scores are min-max
// normalized within its own result set before weights and freshness apply.
type CrossSearcher struct {
	registry      *federation.Registry
	fed           *federation.Manager
	projects      *ProjectSearcher
	maxConcurrent int
	now           func() time.Time
}

// NewCrossSearcher creates a cross-project searcher.
// maxConcurrent <= 0 uses DefaultMaxConcurrent.
func NewCrossSearcher(registry *federation.Registry, fed *federation.Manager,
	projects *ProjectSearcher, maxConcurrent int) *CrossSearcher {

	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &CrossSearcher{
		registry:      registry,
		fed:           fed,
		projects:      projects,
		maxConcurrent: maxConcurrent,
		now:           time.Now,
	}
}

// Search runs the query against every active project concurrently and
// returns the fused topK.
//
// A project whose index cannot be read is marked degraded, logged, and
// skipped; results from the remaining projects still come back. Only a
// query-level failure (bad query, context cancellation) fails the search.
func (c *CrossSearcher) Search(ctx context.Context, query []float32, topK int) ([]FusedResult, error) {
	if len(query) == 0 {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		return nil, ErrBadLimit
	}

	active, err := c.registry.Active()
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, nil
	}

	now := c.now().UTC()

	var mu sync.Mutex
	var fused []FusedResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrent)

	for _, project := range active {
		project := project
		if c.fed.IsDegraded(project.ID) {
			log.Printf("search: skipping degraded project %s", project.ID)
			continue
		}

		g.Go(func() error {
			results, err := c.projects.Search(gctx, project.ID, query, topK)
			if err != nil {
				if gctx.Err() != nil {
					return err // cancellation fails the whole search
				}
				c.fed.MarkDegraded(project.ID, fmt.Errorf("%w: %v", federation.ErrIndexCorrupt, err))
				log.Printf("search: project %s failed, skipping: %v", project.ID, err)
				return nil
			}

			scored := fuseProject(results, project, now)
			if len(scored) == 0 {
				return nil
			}
			mu.Lock()
			fused = append(fused, scored...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused = dedupeByNode(fused)
	sortFused(fused)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused, nil
}

// FreshnessBoost returns the multiplier for a project last accessed at the
// given time: 1.0 + FreshnessBoostMax * 2^(-age/halfLife). A zero access
// time means the project was never touched and gets no boost.
func FreshnessBoost(lastAccessed, now time.Time) float64 {
	if lastAccessed.IsZero() {
		return 1.0
	}
	age := now.Sub(lastAccessed)
	if age < 0 {
		age = 0
	}
	decay := math.Exp(-math.Ln2 * age.Hours() / FreshnessHalfLife.Hours())
	return 1.0 + FreshnessBoostMax*decay
}

// fuseProject applies the floor, per-project normalization, project weight,
// and freshness boost to one project's ranked results.
func fuseProject(results []Result, project *storage.Project, now time.Time) []FusedResult {
	kept := results[:0:0]
	for _, r := range results {
		if r.Similarity >= SimilarityFloor {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil
	}

	minSim, maxSim := kept[0].Similarity, kept[0].Similarity
	for _, r := range kept[1:] {
		if r.Similarity < minSim {
			minSim = r.Similarity
		}
		if r.Similarity > maxSim {
			maxSim = r.Similarity
		}
	}

	weight := storage.ClampWeight(project.Weight)
	boost := FreshnessBoost(project.LastAccessedAt, now)
	span := maxSim - minSim

	out := make([]FusedResult, 0, len(kept))
	for _, r := range kept {
		// A single result or a constant-score set normalizes to 1.0;
		// dividing by a zero span is the alternative.
		norm := 1.0
		if span > 0 {
			norm = (r.Similarity - minSim) / span
		}
		out = append(out, FusedResult{
			Node:       r.Node,
			ProjectID:  project.ID,
			Similarity: r.Similarity,
			Normalized: norm,
			Weight:     weight,
			Freshness:  boost,
			Score:      norm * weight * boost,
		})
	}
	return out
}

// dedupeByNode keeps the highest-scoring occurrence of each node.
func dedupeByNode(results []FusedResult) []FusedResult {
	seen := make(map[storage.NodeID]int, len(results))
	out := results[:0]
	for _, r := range results {
		if i, ok := seen[r.Node.ID]; ok {
			if r.Score > out[i].Score {
				out[i] = r
			}
			continue
		}
		seen[r.Node.ID] = len(out)
		out = append(out, r)
	}
	return out
}

// sortFused orders by fused score descending, then node ID ascending.
func sortFused(results []FusedResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Node.ID < results[j].Node.ID
	})
}

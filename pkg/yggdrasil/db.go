// Package yggdrasil is the embedding-facing facade of the engine: one DB
// handle wiring storage, the spatial federation, search, link suggestion,
// and the interaction memory together according to a config.Config.
package yggdrasil

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/orneryd/yggdrasil/pkg/config"
	"github.com/orneryd/yggdrasil/pkg/decay"
	"github.com/orneryd/yggdrasil/pkg/embed"
	"github.com/orneryd/yggdrasil/pkg/federation"
	"github.com/orneryd/yggdrasil/pkg/linker"
	"github.com/orneryd/yggdrasil/pkg/search"
	"github.com/orneryd/yggdrasil/pkg/storage"
	"github.com/orneryd/yggdrasil/pkg/suggest"
)

// ErrClosed is returned by operations on a closed DB.
var ErrClosed = errors.New("yggdrasil: database closed")

// DB is the top-level engine handle. Safe for concurrent use.
type DB struct {
	cfg *config.Config

	store storage.Store

	nodes        *storage.NodeStore
	links        *storage.LinkStore
	interactions *storage.InteractionStore

	registry *federation.Registry
	fed      *federation.Manager

	provider embed.Provider // configured provider, used directly for queries
	scoring  embed.Provider // fallback-wrapped provider for scoring paths

	projectSearch *search.ProjectSearcher
	crossSearch   *search.CrossSearcher
	linker        *linker.Linker
	memory        *decay.MemoryScorer
	suggester     *suggest.Suggester

	closed atomic.Bool
}

// Open builds a DB from config: storage backend, provider, federation,
// and all engine services.
func Open(cfg *config.Config) (*DB, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var store storage.Store
	switch cfg.Storage.Backend {
	case "memory":
		store = storage.NewMemoryStore()
	default:
		s, err := storage.NewBadgerStoreWithOptions(storage.BadgerOptions{
			DataDir:    cfg.Storage.DataDir,
			SyncWrites: cfg.Storage.SyncWrites,
		})
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		store = s
	}

	db, err := open(cfg, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return db, nil
}

// OpenInMemory builds a DB on the in-memory store, for tests and
// ephemeral use.
func OpenInMemory(cfg *config.Config) (*DB, error) {
	if cfg == nil {
		cfg = config.Default()
		cfg.Storage.Backend = "memory"
	}
	return open(cfg, storage.NewMemoryStore())
}

func open(cfg *config.Config, store storage.Store) (*DB, error) {
	nodes := storage.NewNodeStore(store, cfg.Storage.NodeCacheSize)
	links := storage.NewLinkStore(store)
	interactions := storage.NewInteractionStore(store)
	projects := storage.NewProjectStore(store)
	spatialKeys := storage.NewSpatialStore(store)
	params := storage.NewParamsStore(store)

	fed, err := federation.NewManager(nodes, spatialKeys, params, federation.Config{
		ReducedDims:   cfg.Index.ReducedDims,
		Bits:          cfg.Index.Bits,
		MinSampleSize: cfg.Index.MinSampleSize,
		StaleFraction: cfg.Index.StaleFraction,
	})
	if err != nil {
		return nil, err
	}

	fallback := embed.NewFallback(cfg.Embedding.Dimensions)
	var provider embed.Provider = fallback
	if cfg.Embedding.Provider == "http" {
		httpProvider, err := embed.NewHTTPProvider(embed.HTTPConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     cfg.Embedding.APIKey,
			EmbedModel: cfg.Embedding.EmbedModel,
			GenModel:   cfg.Embedding.GenModel,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
		})
		if err != nil {
			return nil, err
		}
		provider = httpProvider
	}
	scoring := embed.NewWithFallback(provider, fallback, cfg.Embedding.Timeout)

	registry := federation.NewRegistry(projects)
	projectSearch := search.NewProjectSearcher(nodes, fed, nil, cfg.Search.Overscan)
	crossSearch := search.NewCrossSearcher(registry, fed, projectSearch, cfg.Search.MaxConcurrent)
	lk := linker.New(links, nodes, nil)
	memory := decay.NewMemoryScorer(interactions, decay.MemoryConfig{
		Alpha:           cfg.Memory.Alpha,
		Beta:            cfg.Memory.Beta,
		HalfLife:        cfg.Memory.HalfLife,
		MaxInteractions: cfg.Memory.MaxInteractions,
	})
	suggester := suggest.New(nodes, projectSearch, lk, memory, scoring, suggest.Config{
		SemanticThreshold: cfg.Suggest.SemanticThreshold,
		ContextWindow:     cfg.Suggest.ContextWindow,
	})

	return &DB{
		cfg:           cfg,
		store:         store,
		nodes:         nodes,
		links:         links,
		interactions:  interactions,
		registry:      registry,
		fed:           fed,
		provider:      provider,
		scoring:       scoring,
		projectSearch: projectSearch,
		crossSearch:   crossSearch,
		linker:        lk,
		memory:        memory,
		suggester:     suggester,
	}, nil
}

// Close releases the storage backend. Further calls return ErrClosed.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	return db.store.Close()
}

func (db *DB) check() error {
	if db.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Registry exposes project metadata management.
func (db *DB) Registry() *federation.Registry {
	return db.registry
}

// Federation exposes index and params management.
func (db *DB) Federation() *federation.Manager {
	return db.fed
}

// Linker exposes direct link operations.
func (db *DB) Linker() *linker.Linker {
	return db.linker
}

// Nodes exposes direct node access.
func (db *DB) Nodes() *storage.NodeStore {
	return db.nodes
}

// IndexNode embeds (when needed) and indexes one node in its project.
// A node arriving with an embedding keeps it; a node with text but no
// embedding is embedded through the scoring provider, so indexing never
// fails on a provider outage — the node just gets fallback geometry until
// reindexed.
func (db *DB) IndexNode(ctx context.Context, node *storage.Node) error {
	if err := db.check(); err != nil {
		return err
	}
	if node == nil {
		return storage.ErrInvalidData
	}
	if node.ID == "" {
		node.ID = storage.NodeID(uuid.NewString())
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}

	if !node.HasEmbedding() {
		if text := nodeEmbedText(node); text != "" {
			vec, err := db.scoring.Embed(ctx, text)
			if err != nil {
				return err
			}
			node.Embedding = vec
		}
	}

	if err := db.fed.UpdateProjectNodes(ctx, node.ProjectID, []*storage.Node{node}); err != nil {
		return err
	}

	count, err := db.nodes.CountProject(node.ProjectID)
	if err != nil {
		return err
	}
	if err := db.registry.SetNodeCount(node.ProjectID, count); err != nil &&
		!errors.Is(err, federation.ErrProjectNotFound) {
		return err
	}

	if db.fed.Encoder() == nil {
		// Cold start: try deriving params once enough embeddings exist.
		return db.tryBootstrapParams(ctx, node.ProjectID)
	}
	return nil
}

func (db *DB) tryBootstrapParams(ctx context.Context, projectID string) error {
	var sample []*storage.Node
	err := db.nodes.ScanProject(projectID, func(n *storage.Node) bool {
		if n.HasEmbedding() {
			sample = append(sample, n)
		}
		return true
	})
	if err != nil {
		return err
	}
	return db.fed.AddProjectIndex(ctx, projectID, sample, false)
}

// RemoveNode deletes a node, its index entry, and its outgoing links.
func (db *DB) RemoveNode(projectID string, id storage.NodeID) error {
	if err := db.check(); err != nil {
		return err
	}
	if err := db.fed.RemoveNode(projectID, id); err != nil {
		return err
	}
	outgoing, err := db.links.Outgoing(id)
	if err != nil {
		return err
	}
	for _, link := range outgoing {
		if err := db.links.Delete(link.ID); err != nil {
			return err
		}
	}
	return db.nodes.Delete(id)
}

// Search embeds the query and runs the cross-project fused search.
//
// The query embedding uses the configured provider directly, not the
// fallback wrapper: a silently degraded query would rank real nodes
// against a hash-derived vector and return confidently wrong results, so
// total provider failure fails the search instead.
func (db *DB) Search(ctx context.Context, query string, topK int) ([]search.FusedResult, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	vec, err := db.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return db.crossSearch.Search(ctx, vec, topK)
}

// SearchProject embeds the query and searches one project.
func (db *DB) SearchProject(ctx context.Context, projectID, query string, topK int) ([]search.Result, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	vec, err := db.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if err := db.registry.Touch(projectID); err != nil &&
		!errors.Is(err, federation.ErrProjectNotFound) {
		return nil, err
	}
	return db.projectSearch.Search(ctx, projectID, vec, topK)
}

// SearchVector runs the cross-project search against an already-embedded
// query vector.
func (db *DB) SearchVector(ctx context.Context, query []float32, topK int) ([]search.FusedResult, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	return db.crossSearch.Search(ctx, query, topK)
}

// SuggestLinks proposes up to topK typed links for a node.
func (db *DB) SuggestLinks(ctx context.Context, nodeID storage.NodeID, topK int) ([]suggest.Suggestion, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	return db.suggester.Suggest(ctx, nodeID, topK)
}

// CreateLink validates and persists a link. See linker.CreateLink for
// cycle semantics.
func (db *DB) CreateLink(p linker.CreateParams) (*linker.CreateResult, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	return db.linker.CreateLink(p)
}

// UpdateLink mutates a link through the history-appending path.
func (db *DB) UpdateLink(id string, p linker.UpdateParams) (*storage.Link, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	return db.linker.UpdateLink(id, p)
}

// RecordInteraction appends to the interaction log. Interactions carrying
// text are embedded through the scoring provider so they can participate
// in contextual scoring; embedding failure downgrades to recency-only.
func (db *DB) RecordInteraction(ctx context.Context, in *storage.Interaction, text string) error {
	if err := db.check(); err != nil {
		return err
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.At.IsZero() {
		in.At = time.Now().UTC()
	}
	if len(in.Embedding) == 0 && text != "" {
		vec, err := db.scoring.Embed(ctx, text)
		if err != nil {
			log.Printf("yggdrasil: interaction %s left unembedded: %v", in.ID, err)
		} else {
			in.Embedding = vec
		}
	}
	return db.interactions.Append(in)
}

// RecentInteractions returns the newest interactions, newest first.
func (db *DB) RecentInteractions(limit int) ([]*storage.Interaction, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	return db.interactions.Recent(limit)
}

// ContextScores ranks recent interactions against a query text.
func (db *DB) ContextScores(ctx context.Context, query string, topK int) ([]decay.ScoredInteraction, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	var vec []float32
	if query != "" {
		v, err := db.scoring.Embed(ctx, query)
		if err != nil {
			return nil, err
		}
		vec = v
	}
	return db.memory.Rank(ctx, vec, topK)
}

// PurgeInteractions deletes interactions older than the given age and
// returns how many were removed. Age zero purges the whole log.
func (db *DB) PurgeInteractions(olderThan time.Duration) (int, error) {
	if err := db.check(); err != nil {
		return 0, err
	}
	return db.memory.Purge(olderThan)
}

// ReindexProject recomputes shared quantization params across the whole
// federation and re-keys every project. Expensive and stop-the-world per
// index; callers decide when staleness justifies it.
func (db *DB) ReindexProject(ctx context.Context) error {
	if err := db.check(); err != nil {
		return err
	}
	return db.fed.RecomputeParams(ctx)
}

// Stats is a point-in-time snapshot of engine state.
type Stats struct {
	Projects      int
	Interactions  int64
	ParamsVersion int
	ParamsStale   bool
	CacheHits     int64
	CacheMisses   int64
	Degraded      []string
}

// Stats gathers engine counters.
func (db *DB) Stats() (*Stats, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	projects, err := db.registry.All()
	if err != nil {
		return nil, err
	}
	interactions, err := db.interactions.Count()
	if err != nil {
		return nil, err
	}
	hits, misses := db.nodes.CacheStats()

	var degraded []string
	for id := range db.fed.Degraded() {
		degraded = append(degraded, id)
	}

	return &Stats{
		Projects:      len(projects),
		Interactions:  interactions,
		ParamsVersion: db.fed.ParamsVersion(),
		ParamsStale:   db.fed.ParamsStale(),
		CacheHits:     hits,
		CacheMisses:   misses,
		Degraded:      degraded,
	}, nil
}

func nodeEmbedText(n *storage.Node) string {
	if n.Title != "" && n.Text != "" {
		return n.Title + "\n" + n.Text
	}
	if n.Title != "" {
		return n.Title
	}
	return n.Text
}

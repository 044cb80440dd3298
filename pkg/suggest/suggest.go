// Package suggest proposes typed links for a node: candidate discovery via
// the project searcher, staged multi-signal filtering, relation labeling
// through the generation provider, and final confidence scoring through
// the linker.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/orneryd/yggdrasil/pkg/decay"
	"github.com/orneryd/yggdrasil/pkg/embed"
	"github.com/orneryd/yggdrasil/pkg/linker"
	"github.com/orneryd/yggdrasil/pkg/search"
	"github.com/orneryd/yggdrasil/pkg/storage"
	"github.com/orneryd/yggdrasil/pkg/vector"
)

// Errors returned by the suggester.
var (
	ErrNoEmbedding = errors.New("suggest: source node has no embedding")
)

// Config tunes the suggestion pipeline.
type Config struct {
	// SemanticThreshold is the minimum cosine similarity a candidate needs
	// to survive the preliminary filter.
	SemanticThreshold float64

	// PrefilterFactor and KeepFactor scale topK into the candidate pool
	// sizes of the two stages: fetch PrefilterFactor*topK from the index,
	// keep KeepFactor*topK after preliminary scoring for labeling.
	PrefilterFactor int
	KeepFactor      int

	// Preliminary-score weights, applied before the provider is consulted.
	PrelimSemantic   float64
	PrelimLexical    float64
	PrelimContextual float64

	// ContextWindow is how many recent interactions feed the contextual
	// signal.
	ContextWindow int
}

// DefaultConfig returns the standard pipeline tuning.
func DefaultConfig() Config {
	return Config{
		SemanticThreshold: 0.78,
		PrefilterFactor:   3,
		KeepFactor:        2,
		PrelimSemantic:    0.6,
		PrelimLexical:     0.2,
		PrelimContextual:  0.2,
		ContextWindow:     50,
	}
}

// Suggestion is one proposed link.
type Suggestion struct {
	TargetID   storage.NodeID
	Target     *storage.Node
	Type       storage.RelationType
	Confidence float64
	Signals    linker.Signals
	Rationale  string
}

// Suggester runs the link suggestion pipeline for one federation.
type Suggester struct {
	nodes     *storage.NodeStore
	searcher  *search.ProjectSearcher
	linker    *linker.Linker
	memory    *decay.MemoryScorer
	generator embed.Generator
	config    Config
}

// New creates a suggester. Zero-valued config fields fall back to
// DefaultConfig. generator may be the fallback provider; labeling then
// degrades to the deterministic relation picker with a zero AI signal.
func New(nodes *storage.NodeStore, searcher *search.ProjectSearcher, lk *linker.Linker,
	memory *decay.MemoryScorer, generator embed.Generator, config Config) *Suggester {

	def := DefaultConfig()
	if config.SemanticThreshold <= 0 {
		config.SemanticThreshold = def.SemanticThreshold
	}
	if config.PrefilterFactor <= 0 {
		config.PrefilterFactor = def.PrefilterFactor
	}
	if config.KeepFactor <= 0 {
		config.KeepFactor = def.KeepFactor
	}
	if config.PrelimSemantic == 0 && config.PrelimLexical == 0 && config.PrelimContextual == 0 {
		config.PrelimSemantic = def.PrelimSemantic
		config.PrelimLexical = def.PrelimLexical
		config.PrelimContextual = def.PrelimContextual
	}
	if config.ContextWindow <= 0 {
		config.ContextWindow = def.ContextWindow
	}
	return &Suggester{
		nodes:     nodes,
		searcher:  searcher,
		linker:    lk,
		memory:    memory,
		generator: generator,
		config:    config,
	}
}

type candidate struct {
	node    *storage.Node
	signals linker.Signals
	prelim  float64
}

// Suggest proposes up to topK links for the given node.
//
// Pipeline: spatial search over the node's project for PrefilterFactor*topK
// neighbors, preliminary scoring (semantic + lexical + contextual) with the
// semantic threshold applied, keep the top KeepFactor*topK, label each
// survivor's relation through the generator, then final confidence through
// the linker's scorer and cut to topK.
func (s *Suggester) Suggest(ctx context.Context, nodeID storage.NodeID, topK int) ([]Suggestion, error) {
	if topK <= 0 {
		return nil, search.ErrBadLimit
	}

	source, err := s.nodes.Get(nodeID)
	if err != nil {
		return nil, err
	}
	if !source.HasEmbedding() {
		return nil, fmt.Errorf("%w: node %s", ErrNoEmbedding, nodeID)
	}

	results, err := s.searcher.Search(ctx, source.ProjectID, source.Embedding, s.config.PrefilterFactor*topK)
	if err != nil {
		return nil, err
	}

	recentVecs, err := s.contextEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []candidate
	for _, r := range results {
		if r.Node.ID == source.ID {
			continue
		}
		if r.Similarity < s.config.SemanticThreshold {
			continue
		}
		sig := linker.Signals{
			Semantic:   r.Similarity,
			Lexical:    linker.TrigramJaccard(nodeText(source), nodeText(r.Node)),
			Contextual: contextualSignal(r.Node, recentVecs),
		}
		candidates = append(candidates, candidate{
			node:    r.Node,
			signals: sig,
			prelim: s.config.PrelimSemantic*sig.Semantic +
				s.config.PrelimLexical*sig.Lexical +
				s.config.PrelimContextual*sig.Contextual,
		})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].prelim != candidates[j].prelim {
			return candidates[i].prelim > candidates[j].prelim
		}
		return candidates[i].node.ID < candidates[j].node.ID
	})
	if keep := s.config.KeepFactor * topK; len(candidates) > keep {
		candidates = candidates[:keep]
	}

	scorer := s.linker.Scorer()
	suggestions := make([]Suggestion, 0, len(candidates))
	for _, c := range candidates {
		relType, aiConf := s.label(ctx, source, c.node)
		c.signals.AI = aiConf

		suggestions = append(suggestions, Suggestion{
			TargetID:   c.node.ID,
			Target:     c.node,
			Type:       relType,
			Confidence: scorer.Confidence(c.signals),
			Signals:    c.signals,
			Rationale:  rationale(relType, c.signals),
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].TargetID < suggestions[j].TargetID
	})
	if len(suggestions) > topK {
		suggestions = suggestions[:topK]
	}
	return suggestions, nil
}

// contextEmbeddings gathers embeddings from the recent interaction window.
func (s *Suggester) contextEmbeddings(ctx context.Context) ([][]float32, error) {
	if s.memory == nil {
		return nil, nil
	}
	recent, err := s.memory.Rank(ctx, nil, s.config.ContextWindow)
	if err != nil {
		return nil, err
	}
	var out [][]float32
	for _, r := range recent {
		if len(r.Interaction.Embedding) > 0 {
			out = append(out, r.Interaction.Embedding)
		}
	}
	return out, nil
}

// contextualSignal is the candidate's best similarity to anything the user
// touched recently. No recent context means a zero signal.
func contextualSignal(node *storage.Node, context [][]float32) float64 {
	if !node.HasEmbedding() {
		return 0
	}
	best := 0.0
	for _, emb := range context {
		if sim := float64(vector.CosineSimilarity(node.Embedding, emb)); sim > best {
			best = sim
		}
	}
	return best
}

const labelPromptFormat = `Classify the relationship from the first note to the second.
Answer with exactly one line: <relation> <confidence>
where <relation> is one of: related, references, elaborates, contradicts, follows, part_of
and <confidence> is a number between 0 and 1.

First note:
%s

Second note:
%s
`

// label asks the generator for a relation type and label confidence. Any
// provider failure or unparseable answer degrades to the deterministic
// relation pick with a zero AI signal — suggestion quality drops, the
// pipeline never stalls on the provider.
func (s *Suggester) label(ctx context.Context, source, target *storage.Node) (storage.RelationType, float64) {
	if s.generator == nil {
		return fallbackRelation(source.ID, target.ID), 0
	}

	prompt := fmt.Sprintf(labelPromptFormat, excerpt(nodeText(source)), excerpt(nodeText(target)))
	answer, err := s.generator.Generate(ctx, prompt, embed.GenerateOptions{MaxTokens: 16})
	if err != nil {
		log.Printf("suggest: labeling %s->%s failed: %v", source.ID, target.ID, err)
		return fallbackRelation(source.ID, target.ID), 0
	}

	relType, conf, ok := parseLabel(answer)
	if !ok {
		return fallbackRelation(source.ID, target.ID), 0
	}
	return relType, conf
}

// parseLabel extracts "<relation> <confidence>" from a provider answer.
// The fallback provider's digest answers never parse, which is what makes
// its AI signal zero.
func parseLabel(answer string) (storage.RelationType, float64, bool) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(answer)))
	if len(fields) == 0 {
		return "", 0, false
	}
	relType := storage.RelationType(fields[0])
	if !storage.ValidRelationType(relType) {
		return "", 0, false
	}
	conf := 0.0
	if len(fields) > 1 {
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || v < 0 || v > 1 {
			return relType, 0, true
		}
		conf = v
	}
	return relType, conf, true
}

// fallbackRelation picks a relation deterministically from the pair of IDs
// so repeated suggestion runs propose the same type for the same pair.
func fallbackRelation(source, target storage.NodeID) storage.RelationType {
	taxonomy := []storage.RelationType{
		storage.RelationRelated,
		storage.RelationReferences,
		storage.RelationElaborates,
		storage.RelationFollows,
	}
	var h uint32 = 2166136261
	for _, c := range []byte(string(source) + "|" + string(target)) {
		h ^= uint32(c)
		h *= 16777619
	}
	return taxonomy[h%uint32(len(taxonomy))]
}

func rationale(relType storage.RelationType, sig linker.Signals) string {
	parts := []string{fmt.Sprintf("semantic %.2f", sig.Semantic)}
	if sig.Lexical > 0 {
		parts = append(parts, fmt.Sprintf("lexical %.2f", sig.Lexical))
	}
	if sig.Contextual > 0 {
		parts = append(parts, fmt.Sprintf("contextual %.2f", sig.Contextual))
	}
	if sig.AI > 0 {
		parts = append(parts, fmt.Sprintf("label %.2f", sig.AI))
	}
	return fmt.Sprintf("%s (%s)", relType, strings.Join(parts, ", "))
}

func nodeText(n *storage.Node) string {
	if n.Title != "" && n.Text != "" {
		return n.Title + "\n" + n.Text
	}
	if n.Title != "" {
		return n.Title
	}
	return n.Text
}

// excerpt bounds prompt size; long notes contribute their head.
func excerpt(s string) string {
	const max = 800
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

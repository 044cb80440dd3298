package storage

import (
	"fmt"
	"time"
)

// NodeID identifies a node in the knowledge tree.
type NodeID string

// Node is a fragment of the knowledge tree.
//
// Node lifecycle is owned by external collaborators (import pipeline,
// editor); this core reads nodes, derives SpatialKey from Embedding, and
// queries them. A node without an embedding stays in the tree but is
// excluded from spatial search.
//
// Invariant: SpatialKey is recomputed whenever Embedding changes. The
// federation layer enforces this on every index update.
type Node struct {
	ID         NodeID    `json:"id"`
	ProjectID  string    `json:"project_id"`
	Title      string    `json:"title,omitempty"`
	Text       string    `json:"text,omitempty"`
	Embedding  []float32 `json:"embedding,omitempty"`
	SpatialKey string    `json:"spatial_key,omitempty"` // fixed-width hex, empty until embedded
	ParentID   NodeID    `json:"parent_id,omitempty"`
	ChildIDs   []NodeID  `json:"child_ids,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasEmbedding reports whether the node can participate in spatial search.
func (n *Node) HasEmbedding() bool {
	return n != nil && len(n.Embedding) > 0
}

// Project groups nodes into an independently indexed collection.
type Project struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Active         bool      `json:"active"` // included in cross-project search when true
	Weight         float64   `json:"weight"` // ranking weight, clamped to [0.1, 2.0]
	LastAccessedAt time.Time `json:"last_accessed_at"`
	NodeCount      int64     `json:"node_count"`
}

// Project weight bounds. Weights outside this range are clamped on write.
const (
	MinProjectWeight     = 0.1
	MaxProjectWeight     = 2.0
	DefaultProjectWeight = 1.0
)

// ClampWeight clamps a project weight into [MinProjectWeight, MaxProjectWeight].
// A zero weight (unset) becomes DefaultProjectWeight.
func ClampWeight(w float64) float64 {
	if w == 0 {
		return DefaultProjectWeight
	}
	if w < MinProjectWeight {
		return MinProjectWeight
	}
	if w > MaxProjectWeight {
		return MaxProjectWeight
	}
	return w
}

// RelationType is the closed taxonomy of typed links between nodes.
type RelationType string

const (
	// RelationRelated is the default, weakest relation.
	RelationRelated RelationType = "related"
	// RelationReferences marks an explicit mention of the target.
	RelationReferences RelationType = "references"
	// RelationElaborates marks the source expanding on the target.
	RelationElaborates RelationType = "elaborates"
	// RelationContradicts marks conflicting content.
	RelationContradicts RelationType = "contradicts"
	// RelationFollows marks a temporal or logical successor.
	RelationFollows RelationType = "follows"
	// RelationPartOf marks a compositional relationship.
	RelationPartOf RelationType = "part_of"
)

// ValidRelationType reports whether t is in the closed taxonomy.
func ValidRelationType(t RelationType) bool {
	switch t {
	case RelationRelated, RelationReferences, RelationElaborates,
		RelationContradicts, RelationFollows, RelationPartOf:
		return true
	}
	return false
}

// NormalizeRelationType maps arbitrary labels onto the taxonomy, defaulting
// unknown labels to RelationRelated. Used for untrusted labels coming back
// from the generation provider; the strict write path rejects unknown types
// instead.
func NormalizeRelationType(label string) RelationType {
	t := RelationType(label)
	if ValidRelationType(t) {
		return t
	}
	return RelationRelated
}

// Provenance records how a link came to exist.
type Provenance struct {
	Method string    `json:"method"` // "manual", "suggested", "imported"
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
}

// LinkEvent is one entry in a link's append-only change history.
type LinkEvent struct {
	At    time.Time `json:"at"`
	Field string    `json:"field"`
	From  string    `json:"from,omitempty"`
	To    string    `json:"to"`
}

// MaxLinkHistory caps the append-only history on a link. When the cap is
// reached the oldest entry is evicted. Unbounded growth would make every
// link read slower over time on busy graphs.
const MaxLinkHistory = 64

// Link is a typed directed relationship between two nodes.
//
// Invariants enforced by the linker (and re-checked on persist):
//   - SourceID != TargetID
//   - Confidence in [0, 1]
//   - Type in the closed taxonomy
//   - mutations append to History; direct field overwrite without a
//     history entry is not a supported mutation path
type Link struct {
	ID         string       `json:"id"`
	ProjectID  string       `json:"project_id"`
	SourceID   NodeID       `json:"source_id"`
	TargetID   NodeID       `json:"target_id"`
	Type       RelationType `json:"type"`
	Confidence float64      `json:"confidence"`
	Active     bool         `json:"active"`
	Provenance Provenance   `json:"provenance"`
	History    []LinkEvent  `json:"history,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// AppendHistory records a change event, evicting the oldest entry once
// MaxLinkHistory is reached.
func (l *Link) AppendHistory(ev LinkEvent) {
	if len(l.History) >= MaxLinkHistory {
		copy(l.History, l.History[1:])
		l.History = l.History[:len(l.History)-1]
	}
	l.History = append(l.History, ev)
}

// ActionType classifies a recorded interaction.
type ActionType string

const (
	ActionView    ActionType = "view"
	ActionSearch  ActionType = "search"
	ActionExpand  ActionType = "expand"
	ActionRewrite ActionType = "rewrite"
	ActionEdit    ActionType = "edit"
	ActionExport  ActionType = "export"
	ActionImport  ActionType = "import"
)

// ValidActionType reports whether a is a known interaction action.
func ValidActionType(a ActionType) bool {
	switch a {
	case ActionView, ActionSearch, ActionExpand, ActionRewrite,
		ActionEdit, ActionExport, ActionImport:
		return true
	}
	return false
}

// Interaction is one append-only entry in the interaction log.
//
// NodeID is empty for global actions (a search, an export). Embedding is
// optional; interactions without one participate in recency-only scoring.
type Interaction struct {
	ID        string            `json:"id"`
	NodeID    NodeID            `json:"node_id,omitempty"`
	Action    ActionType        `json:"action"`
	At        time.Time         `json:"at"`
	Embedding []float32         `json:"embedding,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Validate checks structural invariants before persistence.
func (i *Interaction) Validate() error {
	if i == nil {
		return ErrInvalidData
	}
	if !ValidActionType(i.Action) {
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidData, i.Action)
	}
	return nil
}

package linker

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orneryd/yggdrasil/pkg/storage"
)

// Errors returned by the linker.
var (
	// ErrValidation is the sentinel all ValidationErrors unwrap to.
	ErrValidation = errors.New("linker: validation failed")
	// ErrSelfLink rejects links from a node to itself. It unwraps to
	// ErrValidation like every other rejected link operation.
	ErrSelfLink = fmt.Errorf("%w: source and target are the same node", ErrValidation)
	// ErrLinkNotFound is returned when updating a link that does not exist.
	ErrLinkNotFound = errors.New("linker: link not found")
)

// MaxCycleTraversal bounds how many links a cycle check will walk. On a
// graph dense enough to exceed it, the check gives up and reports no
// cycle; an unbounded walk could stall every link creation.
const MaxCycleTraversal = 50

// ValidationError describes a rejected link operation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("linker: invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrValidation) match any validation failure.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// CycleWarning reports that a created link closed a cycle. It is a value
// on the result, not an error: cycles are legal in the graph, the caller
// just gets told.
type CycleWarning struct {
	Path []storage.NodeID // walk from target back to source, when known
}

func (w *CycleWarning) String() string {
	return fmt.Sprintf("link closes a cycle through %d nodes", len(w.Path))
}

// CreateParams are the inputs to CreateLink and UpsertLink.
type CreateParams struct {
	ProjectID  string
	SourceID   storage.NodeID
	TargetID   storage.NodeID
	Type       storage.RelationType
	Confidence float64
	Provenance storage.Provenance

	// Force creates the link even when it would close a cycle. The cycle
	// is still reported in the result's Warning.
	Force bool
}

// CreateResult is the outcome of a link creation.
type CreateResult struct {
	Link    *storage.Link
	Warning *CycleWarning // non-nil when the link closes a cycle
	Created bool          // false when UpsertLink updated an existing link
}

// Linker validates and persists links.
type Linker struct {
	links  *storage.LinkStore
	nodes  *storage.NodeStore
	scorer *Scorer
	now    func() time.Time
}

// New creates a linker. scorer nil uses DefaultWeights.
func New(links *storage.LinkStore, nodes *storage.NodeStore, scorer *Scorer) *Linker {
	if scorer == nil {
		scorer = NewScorer(DefaultWeights())
	}
	return &Linker{links: links, nodes: nodes, scorer: scorer, now: time.Now}
}

// Scorer returns the confidence scorer the linker was built with.
func (l *Linker) Scorer() *Scorer {
	return l.scorer
}

func (l *Linker) validate(p CreateParams) error {
	if p.SourceID == "" {
		return &ValidationError{Field: "source", Reason: "empty node ID"}
	}
	if p.TargetID == "" {
		return &ValidationError{Field: "target", Reason: "empty node ID"}
	}
	if p.SourceID == p.TargetID {
		return ErrSelfLink
	}
	if !storage.ValidRelationType(p.Type) {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown relation type %q", p.Type)}
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("%g outside [0, 1]", p.Confidence)}
	}
	if _, err := l.nodes.Get(p.SourceID); err != nil {
		return &ValidationError{Field: "source", Reason: fmt.Sprintf("node %s: %v", p.SourceID, err)}
	}
	if _, err := l.nodes.Get(p.TargetID); err != nil {
		return &ValidationError{Field: "target", Reason: fmt.Sprintf("node %s: %v", p.TargetID, err)}
	}
	return nil
}

// CreateLink validates and persists a new link.
//
// When the link would close a cycle and Force is false, nothing is
// persisted and the result carries only the warning (Link is nil, error
// is nil — a refused cycle is an answer, not a failure). With Force the
// link is created and the warning still returned.
func (l *Linker) CreateLink(p CreateParams) (*CreateResult, error) {
	if err := l.validate(p); err != nil {
		return nil, err
	}

	warning, err := l.WouldCreateCycle(p.SourceID, p.TargetID)
	if err != nil {
		return nil, err
	}
	if warning != nil && !p.Force {
		return &CreateResult{Warning: warning}, nil
	}

	now := l.now().UTC()
	if p.Provenance.At.IsZero() {
		p.Provenance.At = now
	}
	link := &storage.Link{
		ID:         uuid.NewString(),
		ProjectID:  p.ProjectID,
		SourceID:   p.SourceID,
		TargetID:   p.TargetID,
		Type:       p.Type,
		Confidence: p.Confidence,
		Active:     true,
		Provenance: p.Provenance,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	link.AppendHistory(storage.LinkEvent{At: now, Field: "created", To: string(p.Type)})

	if err := l.links.Put(link); err != nil {
		return nil, err
	}
	return &CreateResult{Link: link, Warning: warning, Created: true}, nil
}

// UpsertLink creates the link, or updates type and confidence on the
// existing link for the same source/target pair.
func (l *Linker) UpsertLink(p CreateParams) (*CreateResult, error) {
	if err := l.validate(p); err != nil {
		return nil, err
	}

	existing, err := l.links.FindBetween(p.SourceID, p.TargetID)
	if errors.Is(err, storage.ErrNotFound) {
		return l.CreateLink(p)
	}
	if err != nil {
		return nil, err
	}

	updated, err := l.UpdateLink(existing.ID, UpdateParams{
		Type:       &p.Type,
		Confidence: &p.Confidence,
	})
	if err != nil {
		return nil, err
	}
	return &CreateResult{Link: updated, Created: false}, nil
}

// UpdateParams are the mutable fields of a link. Nil means leave as is.
type UpdateParams struct {
	Type       *storage.RelationType
	Confidence *float64
	Active     *bool
}

// UpdateLink mutates a link, appending one history event per changed
// field. This is the only supported mutation path; history is how a
// suggested link's acceptance or correction stays auditable.
func (l *Linker) UpdateLink(id string, p UpdateParams) (*storage.Link, error) {
	link, err := l.links.Get(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	changed := false

	if p.Type != nil && *p.Type != link.Type {
		if !storage.ValidRelationType(*p.Type) {
			return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown relation type %q", *p.Type)}
		}
		link.AppendHistory(storage.LinkEvent{
			At: now, Field: "type", From: string(link.Type), To: string(*p.Type),
		})
		link.Type = *p.Type
		changed = true
	}
	if p.Confidence != nil && *p.Confidence != link.Confidence {
		if *p.Confidence < 0 || *p.Confidence > 1 {
			return nil, &ValidationError{Field: "confidence", Reason: fmt.Sprintf("%g outside [0, 1]", *p.Confidence)}
		}
		link.AppendHistory(storage.LinkEvent{
			At: now, Field: "confidence",
			From: fmt.Sprintf("%.4f", link.Confidence),
			To:   fmt.Sprintf("%.4f", *p.Confidence),
		})
		link.Confidence = *p.Confidence
		changed = true
	}
	if p.Active != nil && *p.Active != link.Active {
		link.AppendHistory(storage.LinkEvent{
			At: now, Field: "active",
			From: fmt.Sprintf("%t", link.Active),
			To:   fmt.Sprintf("%t", *p.Active),
		})
		link.Active = *p.Active
		changed = true
	}

	if !changed {
		return link, nil
	}
	link.UpdatedAt = now
	if err := l.links.Put(link); err != nil {
		return nil, err
	}
	return link, nil
}

// DeleteLink removes a link. Deleting an unknown link is a no-op.
func (l *Linker) DeleteLink(id string) error {
	return l.links.Delete(id)
}

// Get returns one link.
func (l *Linker) Get(id string) (*storage.Link, error) {
	link, err := l.links.Get(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrLinkNotFound
	}
	return link, err
}

// Outgoing returns the active links leaving a node.
func (l *Linker) Outgoing(source storage.NodeID) ([]*storage.Link, error) {
	all, err := l.links.Outgoing(source)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, link := range all {
		if link.Active {
			active = append(active, link)
		}
	}
	return active, nil
}

// WouldCreateCycle reports whether adding source->target closes a cycle:
// a BFS from target over active outgoing links that reaches source.
//
// The walk is capped at MaxCycleTraversal link traversals; past the cap it
// returns no cycle, trading completeness for bounded latency on dense
// graphs.
func (l *Linker) WouldCreateCycle(source, target storage.NodeID) (*CycleWarning, error) {
	if source == target {
		return &CycleWarning{Path: []storage.NodeID{source}}, nil
	}

	type step struct {
		node storage.NodeID
		path []storage.NodeID
	}

	visited := map[storage.NodeID]bool{target: true}
	queue := []step{{node: target, path: []storage.NodeID{target}}}
	traversed := 0

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		links, err := l.links.Outgoing(cur.node)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			if !link.Active {
				continue
			}
			traversed++
			if traversed > MaxCycleTraversal {
				return nil, nil
			}
			if link.TargetID == source {
				return &CycleWarning{Path: append(cur.path, source)}, nil
			}
			if visited[link.TargetID] {
				continue
			}
			visited[link.TargetID] = true
			path := make([]storage.NodeID, len(cur.path), len(cur.path)+1)
			copy(path, cur.path)
			queue = append(queue, step{node: link.TargetID, path: append(path, link.TargetID)})
		}
	}
	return nil, nil
}

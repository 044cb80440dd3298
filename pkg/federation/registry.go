// Package federation owns the per-project spatial indexes and the shared
// quantization parameters they are keyed under.
//
// One FederationManager holds one spatial.Index per project plus a single
// versioned quant.Params value. Adding or updating nodes derives their
// spatial keys under the current params; an explicit recompute bumps the
// params version and re-keys every project before scans resume.
package federation

import (
	"errors"
	"time"

	"github.com/orneryd/yggdrasil/pkg/storage"
)

// Errors returned by the federation layer.
var (
	ErrProjectNotFound = errors.New("federation: project not found")
	ErrIndexCorrupt    = errors.New("federation: project index corrupt")
	ErrNoEmbeddings    = errors.New("federation: no embeddings available to compute params")
)

// Registry tracks project metadata: id, active flag, ranking weight, and
// last-access time. It is a thin veneer over the ProjectStore that keeps
// weight clamping and access bookkeeping in one place.
type Registry struct {
	projects *storage.ProjectStore
}

// NewRegistry creates a registry over the given project store.
func NewRegistry(projects *storage.ProjectStore) *Registry {
	return &Registry{projects: projects}
}

// Register upserts a project. Zero weight becomes the default weight;
// out-of-range weights are clamped.
func (r *Registry) Register(p *storage.Project) error {
	if p != nil && p.LastAccessedAt.IsZero() {
		p.LastAccessedAt = time.Now().UTC()
	}
	return r.projects.Put(p)
}

// Get returns one project's metadata.
func (r *Registry) Get(id string) (*storage.Project, error) {
	p, err := r.projects.Get(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrProjectNotFound
	}
	return p, err
}

// All returns every registered project.
func (r *Registry) All() ([]*storage.Project, error) {
	return r.projects.All()
}

// Active returns the projects included in cross-project search.
func (r *Registry) Active() ([]*storage.Project, error) {
	return r.projects.Active()
}

// SetActive flips a project's active flag.
func (r *Registry) SetActive(id string, active bool) error {
	p, err := r.Get(id)
	if err != nil {
		return err
	}
	p.Active = active
	return r.projects.Put(p)
}

// SetWeight updates a project's ranking weight (clamped on write).
func (r *Registry) SetWeight(id string, weight float64) error {
	p, err := r.Get(id)
	if err != nil {
		return err
	}
	p.Weight = weight
	return r.projects.Put(p)
}

// Touch records an access to the project, feeding the freshness boost.
func (r *Registry) Touch(id string) error {
	err := r.projects.Touch(id, time.Now().UTC())
	if errors.Is(err, storage.ErrNotFound) {
		return ErrProjectNotFound
	}
	return err
}

// SetNodeCount updates the cached node count.
func (r *Registry) SetNodeCount(id string, count int64) error {
	err := r.projects.SetNodeCount(id, count)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrProjectNotFound
	}
	return err
}

// Remove deletes a project's metadata. Index teardown is the manager's job.
func (r *Registry) Remove(id string) error {
	return r.projects.Delete(id)
}

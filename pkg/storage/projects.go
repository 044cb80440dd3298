package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ProjectStore persists project metadata.
type ProjectStore struct {
	store Store
}

// NewProjectStore creates a ProjectStore over the given byte store.
func NewProjectStore(store Store) *ProjectStore {
	return &ProjectStore{store: store}
}

func projectKey(id string) []byte {
	return buildKey(prefixProject, id)
}

// Put upserts a project, clamping its weight into the valid range.
func (s *ProjectStore) Put(p *Project) error {
	if p == nil {
		return ErrInvalidData
	}
	if p.ID == "" {
		return ErrInvalidID
	}

	p.Weight = ClampWeight(p.Weight)

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding project %s: %w", p.ID, err)
	}
	return s.store.Set(projectKey(p.ID), data)
}

// Get retrieves a project by ID.
func (s *ProjectStore) Get(id string) (*Project, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	data, err := s.store.Get(projectKey(id))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding project %s: %w", id, err)
	}
	return &p, nil
}

// Delete removes a project record. Node cleanup is the caller's concern.
func (s *ProjectStore) Delete(id string) error {
	return s.store.Delete(projectKey(id))
}

// All returns every registered project, ordered by ID.
func (s *ProjectStore) All() ([]*Project, error) {
	start, end := prefixRange([]byte{prefixProject})

	var out []*Project
	var decodeErr error
	err := s.store.Scan(start, end, 0, func(_, value []byte) bool {
		var p Project
		if err := json.Unmarshal(value, &p); err != nil {
			decodeErr = fmt.Errorf("decoding project: %w", err)
			return false
		}
		out = append(out, &p)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

// Active returns every project with the active flag set.
func (s *ProjectStore) Active() ([]*Project, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, p := range all {
		if p.Active {
			active = append(active, p)
		}
	}
	return active, nil
}

// Touch updates a project's last-access time.
func (s *ProjectStore) Touch(id string, at time.Time) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	p.LastAccessedAt = at
	return s.Put(p)
}

// SetNodeCount updates the cached node count for a project.
func (s *ProjectStore) SetNodeCount(id string, count int64) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	p.NodeCount = count
	return s.Put(p)
}

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

// LinkStore persists links and maintains two secondary indexes:
// outgoing-by-source (cycle checks walk this) and membership-by-project.
type LinkStore struct {
	store Store
}

// NewLinkStore creates a LinkStore over the given byte store.
func NewLinkStore(store Store) *LinkStore {
	return &LinkStore{store: store}
}

func linkKey(id string) []byte {
	return buildKey(prefixLink, id)
}

func linkSourceKey(source NodeID, id string) []byte {
	return buildKey(prefixLinkSource, string(source), id)
}

func linkProjectKey(projectID, id string) []byte {
	return buildKey(prefixLinkProject, projectID, id)
}

// Put upserts a link. Structural invariants (source != target, confidence
// in range, known relation type) are the linker's job; the store re-checks
// the self-link invariant as a last line of defense since a self-link in
// the outgoing index would make every cycle check on that node loop.
func (s *LinkStore) Put(link *Link) error {
	if link == nil {
		return ErrInvalidData
	}
	if link.ID == "" || link.SourceID == "" || link.TargetID == "" {
		return ErrInvalidID
	}
	if link.SourceID == link.TargetID {
		return fmt.Errorf("%w: link %s is a self-link", ErrInvalidData, link.ID)
	}

	// Source or project changes must drop stale index entries.
	if old, err := s.Get(link.ID); err == nil {
		if old.SourceID != link.SourceID {
			if err := s.store.Delete(linkSourceKey(old.SourceID, link.ID)); err != nil {
				return err
			}
		}
		if old.ProjectID != link.ProjectID {
			if err := s.store.Delete(linkProjectKey(old.ProjectID, link.ID)); err != nil {
				return err
			}
		}
	}

	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("encoding link %s: %w", link.ID, err)
	}
	if err := s.store.Set(linkKey(link.ID), data); err != nil {
		return err
	}
	if err := s.store.Set(linkSourceKey(link.SourceID, link.ID), nil); err != nil {
		return err
	}
	return s.store.Set(linkProjectKey(link.ProjectID, link.ID), nil)
}

// Get retrieves a link by ID.
func (s *LinkStore) Get(id string) (*Link, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	data, err := s.store.Get(linkKey(id))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var link Link
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, fmt.Errorf("decoding link %s: %w", id, err)
	}
	return &link, nil
}

// Delete removes a link and its index entries.
func (s *LinkStore) Delete(id string) error {
	link, err := s.Get(id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.store.Delete(linkSourceKey(link.SourceID, id)); err != nil {
		return err
	}
	if err := s.store.Delete(linkProjectKey(link.ProjectID, id)); err != nil {
		return err
	}
	return s.store.Delete(linkKey(id))
}

// Outgoing returns all links whose source is the given node.
func (s *LinkStore) Outgoing(source NodeID) ([]*Link, error) {
	start, end := prefixRange(buildKey(prefixLinkSource, string(source), ""))

	var ids []string
	err := s.store.Scan(start, end, 0, func(key, _ []byte) bool {
		ids = append(ids, string(key[len(start):]))
		return true
	})
	if err != nil {
		return nil, err
	}

	links := make([]*Link, 0, len(ids))
	for _, id := range ids {
		link, err := s.Get(id)
		if errors.Is(err, ErrNotFound) {
			continue // dangling index entry
		}
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

// ScanProject visits every link in a project until fn returns false.
func (s *LinkStore) ScanProject(projectID string, fn func(*Link) bool) error {
	start, end := prefixRange(buildKey(prefixLinkProject, projectID, ""))

	var ids []string
	err := s.store.Scan(start, end, 0, func(key, _ []byte) bool {
		ids = append(ids, string(key[len(start):]))
		return true
	})
	if err != nil {
		return err
	}

	for _, id := range ids {
		link, err := s.Get(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if !fn(link) {
			break
		}
	}
	return nil
}

// FindBetween returns the link from source to target if one exists.
// Used by upsert to avoid duplicate edges for the same pair.
func (s *LinkStore) FindBetween(source, target NodeID) (*Link, error) {
	links, err := s.Outgoing(source)
	if err != nil {
		return nil, err
	}
	for _, link := range links {
		if link.TargetID == target {
			return link, nil
		}
	}
	return nil, ErrNotFound
}

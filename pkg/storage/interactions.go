package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// InteractionStore persists the append-only interaction log.
//
// Keys embed an inverted creation timestamp, so an ascending scan returns
// interactions newest-first; Recent never sorts.
type InteractionStore struct {
	store Store
}

// NewInteractionStore creates an InteractionStore over the given byte store.
func NewInteractionStore(store Store) *InteractionStore {
	return &InteractionStore{store: store}
}

func interactionKey(at time.Time, id string) []byte {
	inv := invertedTimestamp(at)
	key := make([]byte, 0, 1+len(inv)+1+len(id))
	key = append(key, prefixInteraction)
	key = append(key, inv...)
	key = append(key, keySep)
	key = append(key, id...)
	return key
}

// Append persists a new interaction. The log is append-only: existing
// entries are never updated, only purged in bulk by age.
func (s *InteractionStore) Append(in *Interaction) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if in.ID == "" {
		return ErrInvalidID
	}
	if in.At.IsZero() {
		return fmt.Errorf("%w: interaction %s has no timestamp", ErrInvalidData, in.ID)
	}

	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding interaction %s: %w", in.ID, err)
	}
	return s.store.Set(interactionKey(in.At, in.ID), data)
}

// Recent returns up to limit interactions, newest first.
// limit <= 0 returns all interactions.
func (s *InteractionStore) Recent(limit int) ([]*Interaction, error) {
	start, end := prefixRange([]byte{prefixInteraction})

	var out []*Interaction
	var decodeErr error
	err := s.store.Scan(start, end, limit, func(_, value []byte) bool {
		var in Interaction
		if err := json.Unmarshal(value, &in); err != nil {
			decodeErr = fmt.Errorf("decoding interaction: %w", err)
			return false
		}
		out = append(out, &in)
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

// PurgeOlderThan deletes every interaction created at or before cutoff and
// returns the number removed.
//
// With inverted-timestamp keys everything at or before cutoff sits in one
// contiguous key range, so the scan touches only doomed entries.
func (s *InteractionStore) PurgeOlderThan(cutoff time.Time) (int, error) {
	start := make([]byte, 0, 9)
	start = append(start, prefixInteraction)
	start = append(start, invertedTimestamp(cutoff)...)
	_, end := prefixRange([]byte{prefixInteraction})

	var doomed [][]byte
	err := s.store.Scan(start, end, 0, func(key, _ []byte) bool {
		k := make([]byte, len(key))
		copy(k, key)
		doomed = append(doomed, k)
		return true
	})
	if err != nil {
		return 0, err
	}

	for _, key := range doomed {
		if err := s.store.Delete(key); err != nil {
			return 0, err
		}
	}
	return len(doomed), nil
}

// Count returns the total number of stored interactions.
func (s *InteractionStore) Count() (int64, error) {
	start, end := prefixRange([]byte{prefixInteraction})
	var count int64
	err := s.store.Scan(start, end, 0, func(_, _ []byte) bool {
		count++
		return true
	})
	return count, err
}

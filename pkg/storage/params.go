package storage

import "errors"

// ParamsStore persists quantization parameter blobs per federation.
// The blob format is owned by the federation layer; storage treats it as
// opaque bytes so the dependency points one way only.
type ParamsStore struct {
	store Store
}

// NewParamsStore creates a ParamsStore over the given byte store.
func NewParamsStore(store Store) *ParamsStore {
	return &ParamsStore{store: store}
}

func paramsKey(federationID string) []byte {
	return buildKey(prefixParams, federationID)
}

// Put stores the parameter blob for a federation.
func (s *ParamsStore) Put(federationID string, data []byte) error {
	if federationID == "" {
		return ErrInvalidID
	}
	return s.store.Set(paramsKey(federationID), data)
}

// Get returns the parameter blob for a federation, or ErrNotFound.
func (s *ParamsStore) Get(federationID string) ([]byte, error) {
	data, err := s.store.Get(paramsKey(federationID))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

// Delete removes the parameter blob for a federation.
func (s *ParamsStore) Delete(federationID string) error {
	return s.store.Delete(paramsKey(federationID))
}

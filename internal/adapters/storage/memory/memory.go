// Package memory provides a process-local BlobStore.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// Store keeps blobs in a map. The zero value is not usable; call New.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New creates an empty Store.
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Get returns a copy of the blob stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.blobs[key]
	if !ok {
		return nil, false, nil
	}

	return slices.Clone(v), true, nil
}

// Set stores a copy of value under key.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs[key] = slices.Clone(value)

	return nil
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.blobs))
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return "blobstore-memory"
}

// Check implements ports.HealthChecker. A memory store is always healthy.
func (s *Store) Check(context.Context) error {
	return nil
}

// Close implements io.Closer.
func (s *Store) Close() error {
	return nil
}

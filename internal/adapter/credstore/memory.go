package credstore

import (
	"context"
	"sync"

	"agentmesh/internal/domain"
)

// MemoryStore is the default credential backend: a process-local map.
// Secrets do not survive a restart.
type MemoryStore struct {
	id string
	mu sync.RWMutex
	m  map[string]string
}

var _ domain.CredentialStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{id: domain.CredentialStoreMemory, m: make(map[string]string)}
}

func (s *MemoryStore) ID() string { return s.id }

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return "", domain.ErrCredentialNotFound
	}
	return v, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *MemoryStore) Has(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[key]
	return ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

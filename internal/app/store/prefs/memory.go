// internal/app/store/prefs/memory.go
package prefs

import (
	"context"
	"sync"
)

// MemoryStore is the in-process fallback used when Redis is not
// configured, and by tests.
type MemoryStore struct {
	mu     sync.RWMutex
	groups map[string]string
}

func NewMemory() *MemoryStore {
	return &MemoryStore{groups: make(map[string]string)}
}

func (s *MemoryStore) GroupID(_ context.Context, userID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.groups[userID]
	if !ok || id == "" {
		return "", false, nil
	}
	return id, true, nil
}

func (s *MemoryStore) SetGroupID(_ context.Context, userID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[userID] = groupID
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, userID)
	return nil
}

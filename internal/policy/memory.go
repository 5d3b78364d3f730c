package policy

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps role bindings in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	bindings map[string]map[string]Binding // group -> role -> binding
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{bindings: make(map[string]map[string]Binding)}
}

func (s *InMemoryStore) Upsert(ctx context.Context, b Binding) (Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.bindings[b.GroupID]
	if !ok {
		group = make(map[string]Binding)
		s.bindings[b.GroupID] = group
	}
	b.UpdatedAt = time.Now().UTC()
	group[b.RoleID] = b
	return b, nil
}

func (s *InMemoryStore) Remove(ctx context.Context, groupID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.bindings[groupID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := group[roleID]; !ok {
		return ErrNotFound
	}
	delete(group, roleID)
	return nil
}

func (s *InMemoryStore) List(ctx context.Context, groupID string) ([]Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group := s.bindings[groupID]
	res := make([]Binding, 0, len(group))
	for _, b := range group {
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].RoleID < res[j].RoleID })
	return res, nil
}

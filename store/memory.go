package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"mockyard/types"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[uuid.UUID]types.Project
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{projects: make(map[uuid.UUID]types.Project)}
}

func (s *MemoryStore) Create(_ context.Context, p *types.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.projects {
		if existing.Owner == p.Owner && existing.Name == p.Name {
			return fmt.Errorf("%w: %s/%s", types.ErrProjectExists, p.Owner, p.Name)
		}
	}
	if _, ok := s.projects[p.ID]; ok {
		return fmt.Errorf("%w: id %s", types.ErrProjectExists, p.ID)
	}
	s.projects[p.ID] = *p
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*types.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrProjectNotFound, id)
	}
	return &p, nil
}

func (s *MemoryStore) GetByName(_ context.Context, owner, name string) (*types.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.projects {
		if p.Owner == owner && p.Name == name {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", types.ErrProjectNotFound, owner, name)
}

func (s *MemoryStore) ListByOwner(_ context.Context, owner string) ([]types.Project, error) {
	return s.filter(func(p types.Project) bool { return p.Owner == owner }), nil
}

func (s *MemoryStore) List(_ context.Context) ([]types.Project, error) {
	return s.filter(func(types.Project) bool { return true }), nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return fmt.Errorf("%w: %s", types.ErrProjectNotFound, id)
	}
	delete(s.projects, id)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) filter(keep func(types.Project) bool) []types.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Project, 0, len(s.projects))
	for _, p := range s.projects {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

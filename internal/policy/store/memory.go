package store

import (
	"context"
	"sort"
	"sync"

	"zerotrust/internal/policy/models"
	"zerotrust/pkg/domain"
	"zerotrust/pkg/platform/sentinel"
)

// InMemory holds published policies. Policies are immutable so pointers are shared.
type InMemory struct {
	mu       sync.RWMutex
	policies map[domain.PolicyScopeID]*models.Policy
}

func NewInMemory() *InMemory {
	return &InMemory{policies: make(map[domain.PolicyScopeID]*models.Policy)}
}

func (s *InMemory) Create(_ context.Context, p *models.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[p.ScopeID]; ok {
		return sentinel.ErrConflict
	}
	s.policies[p.ScopeID] = p
	return nil
}

func (s *InMemory) FindByScope(_ context.Context, scope domain.PolicyScopeID) (*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[scope]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p, nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScopeID < out[j].ScopeID })
	return out, nil
}

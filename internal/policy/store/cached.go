package store

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	"zerotrust/internal/policy/models"
	"zerotrust/pkg/domain"
)

const (
	defaultCacheItems = 1024
	bufferItems       = 64
	counterMultiplier = 10
)

// Backend is the store a Cached wraps.
type Backend interface {
	Create(ctx context.Context, p *models.Policy) error
	FindByScope(ctx context.Context, scope domain.PolicyScopeID) (*models.Policy, error)
	List(ctx context.Context) ([]*models.Policy, error)
}

// Cached fronts a Backend with a ristretto cache. Published policies never
// change, so entries need no invalidation. Misses are not cached.
type Cached struct {
	backend Backend
	cache   *ristretto.Cache[string, *models.Policy]
}

// NewCached sizes the cache by item count using unit cost per policy.
func NewCached(backend Backend, maxItems int64) (*Cached, error) {
	if maxItems <= 0 {
		maxItems = defaultCacheItems
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, *models.Policy]{
		NumCounters:        maxItems * counterMultiplier,
		MaxCost:            maxItems,
		BufferItems:        bufferItems,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create policy cache: %w", err)
	}
	return &Cached{backend: backend, cache: c}, nil
}

func (s *Cached) Create(ctx context.Context, p *models.Policy) error {
	if err := s.backend.Create(ctx, p); err != nil {
		return err
	}
	s.cache.Set(string(p.ScopeID), p, 1)
	return nil
}

func (s *Cached) FindByScope(ctx context.Context, scope domain.PolicyScopeID) (*models.Policy, error) {
	if p, ok := s.cache.Get(string(scope)); ok {
		return p, nil
	}
	p, err := s.backend.FindByScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	s.cache.Set(string(scope), p, 1)
	return p, nil
}

func (s *Cached) List(ctx context.Context) ([]*models.Policy, error) {
	return s.backend.List(ctx)
}

// Wait blocks until pending cache writes are applied.
func (s *Cached) Wait() {
	s.cache.Wait()
}

func (s *Cached) Close() {
	s.cache.Close()
}

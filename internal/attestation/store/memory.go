package store

import (
	"context"
	"sync"
	"time"

	"zerotrust/internal/attestation/models"
	"zerotrust/pkg/domain"
	"zerotrust/pkg/platform/sentinel"
)

// InMemory keeps commitments in a map. Returned values are copies.
type InMemory struct {
	mu          sync.RWMutex
	commitments map[domain.CommitmentID]models.Commitment
}

func NewInMemory() *InMemory {
	return &InMemory{commitments: make(map[domain.CommitmentID]models.Commitment)}
}

func (s *InMemory) Create(_ context.Context, c *models.Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.commitments[c.ID]; ok {
		return sentinel.ErrConflict
	}
	s.commitments[c.ID] = clone(c)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.CommitmentID) (*models.Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.commitments[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := clone(&c)
	return &out, nil
}

// Revoke sets revoked_at once. An already revoked commitment is returned unchanged
// together with sentinel.ErrInvalidState.
func (s *InMemory) Revoke(_ context.Context, id domain.CommitmentID, at time.Time, reason string) (*models.Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commitments[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if c.IsRevoked() {
		out := clone(&c)
		return &out, sentinel.ErrInvalidState
	}
	if err := c.Revoke(at, reason); err != nil {
		return nil, err
	}
	s.commitments[id] = c
	out := clone(&c)
	return &out, nil
}

func clone(c *models.Commitment) models.Commitment {
	out := *c
	out.AttributeDigest = append([]byte(nil), c.AttributeDigest...)
	if c.RevokedAt != nil {
		t := *c.RevokedAt
		out.RevokedAt = &t
	}
	return out
}

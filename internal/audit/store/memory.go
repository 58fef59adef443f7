package store

import (
	"context"
	"sync"

	"zerotrust/internal/audit"
	"zerotrust/pkg/platform/sentinel"
)

// InMemory holds the chain in a slice indexed by sequence number.
type InMemory struct {
	mu      sync.RWMutex
	records []*audit.Record
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Last(_ context.Context) (*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.records[len(s.records)-1]), nil
}

func (s *InMemory) Insert(_ context.Context, r *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Seq != uint64(len(s.records)) {
		return sentinel.ErrConflict
	}
	s.records = append(s.records, clone(r))
	return nil
}

func (s *InMemory) Range(_ context.Context, from, to uint64) ([]*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := uint64(len(s.records))
	if from >= n || from > to {
		return nil, nil
	}
	if to >= n {
		to = n - 1
	}
	out := make([]*audit.Record, 0, to-from+1)
	for _, r := range s.records[from : to+1] {
		out = append(out, clone(r))
	}
	return out, nil
}

func clone(r *audit.Record) *audit.Record {
	c := *r
	c.PrevHash = append([]byte(nil), r.PrevHash...)
	c.RecordHash = append([]byte(nil), r.RecordHash...)
	return &c
}

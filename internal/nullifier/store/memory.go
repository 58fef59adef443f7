package store

import (
	"context"
	"sync"
	"time"

	"zerotrust/pkg/domain"
)

// InMemory uses sync.Map so inserts of different values never contend on a
// shared lock, while LoadOrStore keeps a single value's insert atomic.
type InMemory struct {
	values sync.Map
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Insert(_ context.Context, value domain.NullifierValue, at time.Time) (bool, error) {
	_, loaded := s.values.LoadOrStore(value, at)
	return !loaded, nil
}

// RegisteredAt reports when value was consumed.
func (s *InMemory) RegisteredAt(value domain.NullifierValue) (time.Time, bool) {
	v, ok := s.values.Load(value)
	if !ok {
		return time.Time{}, false
	}
	return v.(time.Time), true
}

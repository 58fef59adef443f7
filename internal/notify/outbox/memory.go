package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"zerotrust/internal/notify"
	"zerotrust/pkg/platform/sentinel"
)

type entry struct {
	event       notify.Event
	publishedAt *time.Time
	lastError   string
}

// InMemory keeps events in insertion order.
type InMemory struct {
	mu      sync.Mutex
	entries []*entry
	byID    map[uuid.UUID]*entry
}

func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[uuid.UUID]*entry)}
}

func (s *InMemory) Enqueue(_ context.Context, e *notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[e.ID]; ok {
		return sentinel.ErrConflict
	}
	en := &entry{event: *e}
	s.entries = append(s.entries, en)
	s.byID[e.ID] = en
	return nil
}

func (s *InMemory) Pending(_ context.Context, limit, maxAttempts int) ([]*notify.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*notify.Event
	for _, en := range s.entries {
		if len(out) >= limit {
			break
		}
		if en.publishedAt != nil || en.event.Attempts >= maxAttempts {
			continue
		}
		e := en.event
		out = append(out, &e)
	}
	return out, nil
}

func (s *InMemory) MarkPublished(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	en, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	en.publishedAt = &at
	return nil
}

func (s *InMemory) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	en, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	en.event.Attempts++
	en.lastError = reason
	return nil
}

// Events returns every stored event, published or not.
func (s *InMemory) Events() []notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.Event, 0, len(s.entries))
	for _, en := range s.entries {
		out = append(out, en.event)
	}
	return out
}

package audit

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for unit tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, copyEntry(entry))
	return nil
}

func (s *MemoryStore) ListByRequest(_ context.Context, deletionRequestID uuid.UUID, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Entry
	for _, e := range s.entries {
		if e.DeletionRequestID == deletionRequestID {
			out = append(out, copyEntry(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListBetween(_ context.Context, from, to time.Time) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Entry
	for _, e := range s.entries {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			out = append(out, copyEntry(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) CountByActionSince(_ context.Context, action Action, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, e := range s.entries {
		if e.Action == action && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CountByIPSince(_ context.Context, ip string, action Action, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, e := range s.entries {
		if e.Action == action && e.IPAddress == ip && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ActionBreakdown(_ context.Context, from, to time.Time) (map[Action]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Action]int)
	for _, e := range s.entries {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			out[e.Action]++
		}
	}
	return out, nil
}

// Tamper mutates a stored entry in place. Only integrity-verification tests
// use it; the Store interface deliberately has no equivalent.
func (s *MemoryStore) Tamper(id uuid.UUID, mutate func(*Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id {
			mutate(e)
			return true
		}
	}
	return false
}

func copyEntry(e *Entry) *Entry {
	cp := *e
	if e.Metadata != nil {
		cp.Metadata = maps.Clone(e.Metadata)
	}
	return &cp
}

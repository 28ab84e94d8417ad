package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"erasure/pkg/platform/sentinel"
)

// AlertStore persists triggered alerts. The memory store is process-local;
// deployments that need alerts to survive restarts configure the Redis store.
type AlertStore interface {
	Save(ctx context.Context, alert *Alert) error
	Get(ctx context.Context, id string) (*Alert, error)
	// ListActive returns unresolved alerts in no particular order.
	ListActive(ctx context.Context) ([]*Alert, error)
	// ListSince returns all alerts triggered at or after since.
	ListSince(ctx context.Context, since time.Time) ([]*Alert, error)
}

// SortAlerts orders alerts for triage: severity first, most recent first
// within a severity.
func SortAlerts(alerts []*Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if d := alerts[i].Severity.Rank() - alerts[j].Severity.Rank(); d != 0 {
			return d > 0
		}
		return alerts[i].TriggeredAt.After(alerts[j].TriggeredAt)
	})
}

// MemoryAlertStore is the default in-process AlertStore.
type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts map[string]*Alert
}

func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{alerts: make(map[string]*Alert)}
}

func (s *MemoryAlertStore) Save(_ context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *alert
	s.alerts[alert.ID] = &cp
	return nil
}

func (s *MemoryAlertStore) Get(_ context.Context, id string) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.alerts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *alert
	return &cp, nil
}

func (s *MemoryAlertStore) ListActive(_ context.Context) ([]*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Alert
	for _, alert := range s.alerts {
		if !alert.Resolved {
			cp := *alert
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryAlertStore) ListSince(_ context.Context, since time.Time) ([]*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Alert
	for _, alert := range s.alerts {
		if !alert.TriggeredAt.Before(since) {
			cp := *alert
			out = append(out, &cp)
		}
	}
	return out, nil
}

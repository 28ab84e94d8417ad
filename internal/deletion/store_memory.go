package deletion

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"erasure/pkg/platform/sentinel"
)

// MemoryStore is an in-memory Store for unit tests and local runs. It
// mirrors the Postgres store's behaviour, including the single-active-request
// constraint and precondition-guarded transitions.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]*Request
	records  []AnonymizationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[uuid.UUID]*Request)}
}

func (s *MemoryStore) Create(_ context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.requests {
		if existing.UserID == req.UserID && existing.Status.Active() {
			return sentinel.ErrConflict
		}
	}
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *MemoryStore) GetActiveByUser(_ context.Context, userID uuid.UUID) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, req := range s.requests {
		if req.UserID == userID && req.Status.Active() {
			cp := *req
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) GetByParentToken(_ context.Context, token string) (*Request, error) {
	return s.findBy(func(r *Request) bool {
		return token != "" && r.ParentConfirmationToken == token
	})
}

func (s *MemoryStore) GetByFinalToken(_ context.Context, token string) (*Request, error) {
	return s.findBy(func(r *Request) bool {
		return token != "" && r.FinalConfirmationToken == token
	})
}

func (s *MemoryStore) findBy(match func(*Request) bool) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, req := range s.requests {
		if match(req) {
			cp := *req
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) Transition(_ context.Context, id uuid.UUID, from Status, update Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if req.Status != from {
		return sentinel.ErrInvalidState
	}
	req.Status = update.Status
	if update.ClearParentToken {
		req.ParentConfirmationToken = ""
	}
	if update.ClearFinalToken {
		req.FinalConfirmationToken = ""
	}
	if update.SetParentalConsentVerified {
		req.ParentalConsentVerified = true
	}
	if update.SoftDeletedAt != nil {
		t := *update.SoftDeletedAt
		req.SoftDeletedAt = &t
	}
	if update.RecoveryDeadline != nil {
		t := *update.RecoveryDeadline
		req.RecoveryDeadline = &t
	}
	if update.HardDeletedAt != nil {
		t := *update.HardDeletedAt
		req.HardDeletedAt = &t
	}
	if update.Context != nil {
		req.Context = *update.Context
	}
	req.UpdatedAt = update.UpdatedAt
	return nil
}

func (s *MemoryStore) AppendAnonymizationRecords(_ context.Context, records []AnonymizationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

func (s *MemoryStore) ListRecoveryExpired(_ context.Context, now time.Time) ([]*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Request
	for _, req := range s.requests {
		if req.Status == StatusSoftDeleted && req.RecoveryDeadline != nil && req.RecoveryDeadline.Before(now) {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CountCreatedBetween(_ context.Context, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, req := range s.requests {
		if !req.CreatedAt.Before(from) && req.CreatedAt.Before(to) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) StatusBreakdown(_ context.Context, from, to time.Time) (map[Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Status]int)
	for _, req := range s.requests {
		if !req.CreatedAt.Before(from) && req.CreatedAt.Before(to) {
			out[req.Status]++
		}
	}
	return out, nil
}

func (s *MemoryStore) ListCreatedBetween(_ context.Context, from, to time.Time) ([]*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Request
	for _, req := range s.requests {
		if !req.CreatedAt.Before(from) && req.CreatedAt.Before(to) {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// AnonymizationRecords exposes stored records to tests.
func (s *MemoryStore) AnonymizationRecords() []AnonymizationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]AnonymizationRecord(nil), s.records...)
}

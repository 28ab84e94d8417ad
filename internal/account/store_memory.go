package account

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"erasure/pkg/platform/sentinel"
)

// MemoryStore is an in-memory Store used by unit tests and local runs. It
// mirrors the Postgres store's behaviour, including not-found sentinels.
type MemoryStore struct {
	mu sync.RWMutex

	users             map[uuid.UUID]*User
	profiles          map[uuid.UUID]*Profile
	volunteerProfiles map[uuid.UUID]*VolunteerProfile
	orders            map[uuid.UUID][]*Order
	stories           []*Story
	donations         map[uuid.UUID][]*RecurringDonation
	activeClasses     map[uuid.UUID]int
	sessionCount      map[uuid.UUID]int
	oauthCount        map[uuid.UUID]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:             make(map[uuid.UUID]*User),
		profiles:          make(map[uuid.UUID]*Profile),
		volunteerProfiles: make(map[uuid.UUID]*VolunteerProfile),
		orders:            make(map[uuid.UUID][]*Order),
		donations:         make(map[uuid.UUID][]*RecurringDonation),
		activeClasses:     make(map[uuid.UUID]int),
		sessionCount:      make(map[uuid.UUID]int),
		oauthCount:        make(map[uuid.UUID]int),
	}
}

// Seed helpers for tests.

func (s *MemoryStore) PutUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

func (s *MemoryStore) PutProfile(p *Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.profiles[p.UserID] = &cp
}

func (s *MemoryStore) PutVolunteerProfile(v *VolunteerProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.volunteerProfiles[v.UserID] = &cp
}

func (s *MemoryStore) PutOrder(o *Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orders[o.UserID] = append(s.orders[o.UserID], &cp)
}

func (s *MemoryStore) PutStory(st *Story) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.stories = append(s.stories, &cp)
}

func (s *MemoryStore) PutRecurringDonation(d *RecurringDonation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.donations[d.UserID] = append(s.donations[d.UserID], &cp)
}

func (s *MemoryStore) SetActiveClasses(teacherID uuid.UUID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeClasses[teacherID] = n
}

func (s *MemoryStore) SetSessionCount(userID uuid.UUID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionCount[userID] = n
}

// Inspection helpers for tests.

func (s *MemoryStore) OrdersOf(userID uuid.UUID) []*Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Order, 0, len(s.orders[userID]))
	for _, o := range s.orders[userID] {
		cp := *o
		out = append(out, &cp)
	}
	return out
}

func (s *MemoryStore) Stories() []*Story {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Story, 0, len(s.stories))
	for _, st := range s.stories {
		cp := *st
		out = append(out, &cp)
	}
	return out
}

// Store implementation.

func (s *MemoryStore) FindUser(_ context.Context, userID uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) FindProfile(_ context.Context, userID uuid.UUID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) FindVolunteerProfile(_ context.Context, userID uuid.UUID) (*VolunteerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.volunteerProfiles[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *MemoryStore) CountOrdersByStatus(_ context.Context, userID uuid.UUID, statuses []OrderStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, o := range s.orders[userID] {
		for _, st := range statuses {
			if o.Status == st {
				count++
				break
			}
		}
	}
	return count, nil
}

func (s *MemoryStore) CountActiveRecurringDonations(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, d := range s.donations[userID] {
		if d.Active {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CountActiveClasses(_ context.Context, teacherID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeClasses[teacherID], nil
}

func (s *MemoryStore) MarkDeleted(_ context.Context, userID, deletionRequestID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	t := at
	id := deletionRequestID
	u.DeletedAt = &t
	u.DeletionRequestID = &id
	return nil
}

func (s *MemoryStore) ClearDeleted(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.DeletedAt = nil
	u.DeletionRequestID = nil
	return nil
}

func (s *MemoryStore) DeleteProfile(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, userID)
	return nil
}

func (s *MemoryStore) DeleteSessions(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionCount[userID] = 0
	return nil
}

func (s *MemoryStore) DeleteOAuthAccounts(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oauthCount[userID] = 0
	return nil
}

func (s *MemoryStore) AnonymizeOrders(_ context.Context, userID uuid.UUID, email, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, o := range s.orders[userID] {
		o.CustomerEmail = email
		o.CustomerName = name
		count++
	}
	return count, nil
}

func (s *MemoryStore) AnonymizeStories(_ context.Context, userID uuid.UUID, authorName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, st := range s.stories {
		if st.AuthorID != nil && *st.AuthorID == userID {
			st.AuthorID = nil
			st.AuthorName = authorName
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) GeneralizeVolunteerProfile(_ context.Context, userID uuid.UUID, bio string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.volunteerProfiles[userID]
	if !ok {
		return 0, nil
	}
	v.Bio = bio
	v.Skills = nil
	v.Languages = nil
	return 1, nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.users, userID)
	return nil
}

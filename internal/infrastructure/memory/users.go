// Package memory holds mutex-guarded stores with the same conditional-write
// semantics as the postgres repositories. Used by tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
	"github.com/ErlanBelekov/birthday-campaign/internal/window"
	"github.com/google/uuid"
)

type UserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*domain.User)}
}

// Add stores a copy of u in the idle state, assigning an ID when empty.
func (s *UserStore) Add(u domain.User) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CycleState == "" {
		u.CycleState = domain.CycleIdle
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	u.Preferences = slices.Clone(u.Preferences)
	s.users[u.ID] = &u
	return clone(&u)
}

// SetBirthdate changes a user's anniversary without touching the cycle.
func (s *UserStore) SetBirthdate(id string, birthdate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Birthdate = birthdate
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *UserStore) FindByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return clone(u), nil
}

func (s *UserStore) ListInWindow(_ context.Context, w window.Window) ([]*domain.User, error) {
	return s.filter(func(u *domain.User) bool { return w.Contains(u.Birthdate) }), nil
}

func (s *UserStore) ListNotified(_ context.Context) ([]*domain.User, error) {
	return s.filter(func(u *domain.User) bool { return u.CycleState == domain.CycleNotified }), nil
}

func (s *UserStore) MarkNotified(_ context.Context, id string) error {
	return s.transition(id, domain.CycleIdle, domain.CycleNotified, domain.ErrAlreadyNotified)
}

func (s *UserStore) MarkIdle(_ context.Context, id string) error {
	return s.transition(id, domain.CycleNotified, domain.CycleIdle, domain.ErrNotNotified)
}

func (s *UserStore) transition(id string, from, to domain.CycleState, conflict error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	if u.CycleState != from {
		return conflict
	}
	now := time.Now().UTC()
	u.CycleState = to
	u.CycleChangedAt = &now
	u.UpdatedAt = now
	return nil
}

func (s *UserStore) filter(keep func(*domain.User) bool) []*domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.User
	for _, u := range s.users {
		if keep(u) {
			out = append(out, clone(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clone(u *domain.User) *domain.User {
	c := *u
	c.Preferences = slices.Clone(u.Preferences)
	if u.CycleChangedAt != nil {
		t := *u.CycleChangedAt
		c.CycleChangedAt = &t
	}
	return &c
}

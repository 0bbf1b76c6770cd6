package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
	"github.com/google/uuid"
)

type DiscountStore struct {
	mu        sync.Mutex
	discounts []*domain.Discount
	codes     map[string]struct{}
}

func NewDiscountStore() *DiscountStore {
	return &DiscountStore{codes: make(map[string]struct{})}
}

// Insert stores d as-is, bypassing the one-active-per-user check.
// Tests use it to build states the conditional writes would refuse.
func (s *DiscountStore) Insert(d domain.Discount) *domain.Discount {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.IssuedAt.IsZero() {
		d.IssuedAt = time.Now().UTC()
	}
	s.discounts = append(s.discounts, &d)
	s.codes[d.Code] = struct{}{}
	c := d
	return &c
}

// All returns a snapshot of every discount belonging to userID.
func (s *DiscountStore) All(userID string) []*domain.Discount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.match(func(d *domain.Discount) bool { return d.UserID == userID })
}

func (s *DiscountStore) FindActive(_ context.Context, userID string) (*domain.Discount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.active(userID)
	switch len(active) {
	case 0:
		return nil, domain.ErrNoActiveDiscount
	case 1:
		return active[0], nil
	default:
		return nil, fmt.Errorf("user %s has %d active discounts: %w", userID, len(active), domain.ErrInvariantViolation)
	}
}

func (s *DiscountStore) CreateActive(_ context.Context, userID, code string) (*domain.Discount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.active(userID)) > 0 {
		return nil, domain.ErrActiveDiscountTaken
	}
	if _, taken := s.codes[code]; taken {
		return nil, domain.ErrDuplicateCode
	}

	d := &domain.Discount{
		ID:       uuid.NewString(),
		UserID:   userID,
		Code:     code,
		IssuedAt: time.Now().UTC(),
	}
	s.discounts = append(s.discounts, d)
	s.codes[code] = struct{}{}
	c := *d
	return &c, nil
}

func (s *DiscountStore) Redeem(_ context.Context, userID, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.discounts {
		if d.UserID == userID && d.Code == code && d.Active() {
			now := time.Now().UTC()
			d.Used = true
			d.UsedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (s *DiscountStore) ExpireActive(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	now := time.Now().UTC()
	for _, d := range s.discounts {
		if d.UserID == userID && d.Active() {
			d.IsExpired = true
			d.ExpiredAt = &now
			n++
		}
	}
	return n, nil
}

func (s *DiscountStore) ListActive(_ context.Context, userID string) ([]*domain.Discount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active(userID), nil
}

// active must be called with mu held.
func (s *DiscountStore) active(userID string) []*domain.Discount {
	return s.match(func(d *domain.Discount) bool { return d.UserID == userID && d.Active() })
}

func (s *DiscountStore) match(keep func(*domain.Discount) bool) []*domain.Discount {
	var out []*domain.Discount
	for _, d := range s.discounts {
		if keep(d) {
			c := *d
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out
}

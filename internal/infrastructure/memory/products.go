package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
	"github.com/google/uuid"
)

type ProductStore struct {
	mu       sync.Mutex
	products []domain.Product
}

func NewProductStore(products ...domain.Product) *ProductStore {
	s := &ProductStore{}
	for _, p := range products {
		s.Add(p)
	}
	return s
}

func (s *ProductStore) Add(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.products = append(s.products, p)
}

// TopRatedByCategories returns the best rated product per requested
// category, in request order. Ties go to the lexically smaller name.
func (s *ProductStore) TopRatedByCategories(_ context.Context, categories []string) ([]*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Product
	seen := make(map[string]bool, len(categories))
	for _, c := range categories {
		key := strings.ToLower(c)
		if seen[key] {
			continue
		}
		seen[key] = true

		var best *domain.Product
		for i := range s.products {
			p := &s.products[i]
			if strings.ToLower(p.Category) != key {
				continue
			}
			if best == nil || p.Rating > best.Rating || (p.Rating == best.Rating && p.Name < best.Name) {
				best = p
			}
		}
		if best != nil {
			c := *best
			out = append(out, &c)
		}
	}
	return out, nil
}

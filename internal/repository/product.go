package repository

import (
	"context"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
)

type ProductRepository interface {
	// TopRatedByCategories returns the best rated product of each category,
	// matching categories case-insensitively.
	TopRatedByCategories(ctx context.Context, categories []string) ([]*domain.Product, error)
}

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Create inserts a catalogue entry. Used by the seed command.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO products (name, category, rating) VALUES ($1, $2, $3)`,
		p.Name, p.Category, p.Rating,
	)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *ProductRepository) TopRatedByCategories(ctx context.Context, categories []string) ([]*domain.Product, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(categories))
	for i, c := range categories {
		lowered[i] = strings.ToLower(c)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (lower(category)) id, name, category, rating::float8
		FROM   products
		WHERE  lower(category) = ANY($1)
		ORDER BY lower(category), rating DESC, name`, lowered)
	if err != nil {
		return nil, fmt.Errorf("top rated products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Rating); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top rated products: %w", err)
	}
	return products, nil
}

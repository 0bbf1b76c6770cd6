package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const discountColumns = `id, user_id, code, used, is_expired, issued_at, used_at, expired_at`

type DiscountRepository struct {
	pool *pgxpool.Pool
}

func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

func (r *DiscountRepository) FindActive(ctx context.Context, userID string) (*domain.Discount, error) {
	// LIMIT 2 is enough to detect a broken one-active-per-user invariant.
	query := `
		SELECT ` + discountColumns + `
		FROM   discounts
		WHERE  user_id = $1 AND NOT used AND NOT is_expired
		ORDER BY issued_at DESC
		LIMIT 2`

	active, err := r.list(ctx, "find active discount", query, userID)
	if err != nil {
		return nil, err
	}
	switch len(active) {
	case 0:
		return nil, domain.ErrNoActiveDiscount
	case 1:
		return active[0], nil
	default:
		return nil, fmt.Errorf("user %s has %d active discounts: %w", userID, len(active), domain.ErrInvariantViolation)
	}
}

func (r *DiscountRepository) CreateActive(ctx context.Context, userID, code string) (*domain.Discount, error) {
	query := `
		INSERT INTO discounts (user_id, code)
		VALUES ($1, $2)
		RETURNING ` + discountColumns

	row := r.pool.QueryRow(ctx, query, userID, code)
	d, err := scanDiscount(row)
	if err != nil {
		if pgErr, ok := pgError(err); ok && pgErr.Code == codeUniqueViolation {
			switch pgErr.ConstraintName {
			case constraintActivePerUser:
				return nil, domain.ErrActiveDiscountTaken
			case constraintDiscountCode:
				return nil, domain.ErrDuplicateCode
			}
		}
		return nil, fmt.Errorf("create discount: %w", err)
	}
	return d, nil
}

func (r *DiscountRepository) Redeem(ctx context.Context, userID, code string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE discounts
		SET    used    = TRUE,
		       used_at = NOW()
		WHERE  user_id = $1
		  AND  code    = $2
		  AND  NOT used
		  AND  NOT is_expired`, userID, code)
	if err != nil {
		if isInvalidID(err) {
			return false, nil
		}
		return false, fmt.Errorf("redeem discount: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DiscountRepository) ExpireActive(ctx context.Context, userID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE discounts
		SET    is_expired = TRUE,
		       expired_at = NOW()
		WHERE  user_id = $1
		  AND  NOT used
		  AND  NOT is_expired`, userID)
	if err != nil {
		return 0, fmt.Errorf("expire discounts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *DiscountRepository) ListActive(ctx context.Context, userID string) ([]*domain.Discount, error) {
	query := `
		SELECT ` + discountColumns + `
		FROM   discounts
		WHERE  user_id = $1 AND NOT used AND NOT is_expired
		ORDER BY issued_at DESC`

	return r.list(ctx, "list active discounts", query, userID)
}

func (r *DiscountRepository) list(ctx context.Context, op, query string, args ...any) ([]*domain.Discount, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var discounts []*domain.Discount
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, err
		}
		discounts = append(discounts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return discounts, nil
}

func scanDiscount(row pgx.Row) (*domain.Discount, error) {
	var d domain.Discount
	err := row.Scan(
		&d.ID, &d.UserID, &d.Code, &d.Used, &d.IsExpired,
		&d.IssuedAt, &d.UsedAt, &d.ExpiredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDiscountNotFound
		}
		return nil, fmt.Errorf("scan discount: %w", err)
	}
	return &d, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
	"github.com/ErlanBelekov/birthday-campaign/internal/window"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, name, email, birthdate, preferences, cycle_state::text,
	cycle_changed_at, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts a user in the idle state. Used by the seed command.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (name, email, birthdate, preferences)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE
		SET    birthdate   = EXCLUDED.birthdate,
		       preferences = EXCLUDED.preferences,
		       updated_at  = NOW()
		RETURNING ` + userColumns

	prefs := u.Preferences
	if prefs == nil {
		prefs = []string{}
	}

	row := r.pool.QueryRow(ctx, query, u.Name, u.Email, u.Birthdate, prefs)
	return scanUser(row)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	u, err := scanUser(row)
	if err != nil && isInvalidID(err) {
		return nil, domain.ErrUserNotFound
	}
	return u, err
}

func (r *UserRepository) ListInWindow(ctx context.Context, w window.Window) ([]*domain.User, error) {
	// Same modulo predicate as window.Window.ContainsDay.
	query := `
		SELECT ` + userColumns + `
		FROM   users
		WHERE  ((anniversary_doy(birthdate) - $1 + 365) % 365) < $2
		ORDER BY id`

	return r.list(ctx, "list users in window", query, w.Start(), w.Days())
}

func (r *UserRepository) ListNotified(ctx context.Context) ([]*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM   users
		WHERE  cycle_state = 'notified'
		ORDER BY id`

	return r.list(ctx, "list notified users", query)
}

func (r *UserRepository) MarkNotified(ctx context.Context, id string) error {
	return r.transition(ctx, id, domain.CycleIdle, domain.CycleNotified, domain.ErrAlreadyNotified)
}

func (r *UserRepository) MarkIdle(ctx context.Context, id string) error {
	return r.transition(ctx, id, domain.CycleNotified, domain.CycleIdle, domain.ErrNotNotified)
}

// transition is a compare-and-set on cycle_state. When no row moves it
// tells a missing user apart from one in the wrong state.
func (r *UserRepository) transition(ctx context.Context, id string, from, to domain.CycleState, conflict error) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET    cycle_state      = $3::text::cycle_state,
		       cycle_changed_at = NOW(),
		       updated_at       = NOW()
		WHERE  id = $1 AND cycle_state = $2::text::cycle_state`, id, string(from), string(to))
	if err != nil {
		if isInvalidID(err) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("update cycle state: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return domain.ErrUserNotFound
	}
	return conflict
}

func (r *UserRepository) list(ctx context.Context, op, query string, args ...any) ([]*domain.User, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var state string
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Birthdate, &u.Preferences, &state,
		&u.CycleChangedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CycleState = domain.CycleState(state)
	return &u, nil
}

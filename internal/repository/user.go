package repository

import (
	"context"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
	"github.com/ErlanBelekov/birthday-campaign/internal/window"
)

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)

	// ListInWindow returns users whose anniversary falls inside w,
	// regardless of cycle state.
	ListInWindow(ctx context.Context, w window.Window) ([]*domain.User, error)

	// ListNotified returns every user currently in the Notified state.
	ListNotified(ctx context.Context) ([]*domain.User, error)

	// MarkNotified moves the user Idle -> Notified.
	// Returns domain.ErrAlreadyNotified when the user was not Idle.
	MarkNotified(ctx context.Context, id string) error

	// MarkIdle moves the user Notified -> Idle.
	// Returns domain.ErrNotNotified when the user was not Notified.
	MarkIdle(ctx context.Context, id string) error
}

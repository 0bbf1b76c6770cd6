package domain

import (
	"errors"
	"time"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrAlreadyNotified = errors.New("user already notified for this cycle")
	ErrNotNotified     = errors.New("user is not in a notified cycle")
)

// CycleState is where a user sits in the birthday cycle: Idle -> Notified -> Idle.
type CycleState string

const (
	CycleIdle     CycleState = "idle"
	CycleNotified CycleState = "notified"
)

type User struct {
	ID             string
	Name           string
	Email          string
	Birthdate      time.Time // only month and day matter
	Preferences    []string  // product categories
	CycleState     CycleState
	CycleChangedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NotificationSent and DiscountGenerated are both derived from CycleState,
// so the pair can never disagree.
func (u *User) NotificationSent() bool  { return u.CycleState == CycleNotified }
func (u *User) DiscountGenerated() bool { return u.CycleState == CycleNotified }

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateUser = errors.New("user already exists")
)

type UserRepository interface {
	GetByID(ctx context.Context, userID uint) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, user *User) error
}

// AlertRepository is the durable source of truth for alert status.
type AlertRepository interface {
	Find(ctx context.Context, filter AlertFilter) ([]Alert, error)
	FindByUserAndSymbol(ctx context.Context, userID uint, symbol string) (*Alert, error)
	GetByID(ctx context.Context, userID uint, alertID uint) (*Alert, error)
	ListByUser(ctx context.Context, userID uint, status AlertStatus, offset, limit int) ([]Alert, int64, error)
	Insert(ctx context.Context, alert *Alert) error
	// UpdateStatus moves an alert from one status to another and reports whether
	// the row was in the from status.
	UpdateStatus(ctx context.Context, alertID uint, from, to AlertStatus) (bool, error)
	// Revive moves a deleted alert back to created with a new threshold.
	Revive(ctx context.Context, alertID uint, threshold decimal.Decimal) (bool, error)
	// MarkTriggered transitions created alerts to triggered in one transaction
	// and returns the ids that actually changed.
	MarkTriggered(ctx context.Context, alertIDs []uint, at time.Time) ([]uint, error)
	// Delete removes the row and returns the status it had.
	Delete(ctx context.Context, userID uint, alertID uint) (AlertStatus, error)
	// ListActiveChannelKeys returns one channel key per created alert.
	ListActiveChannelKeys(ctx context.Context) ([]string, error)
}

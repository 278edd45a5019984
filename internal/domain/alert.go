package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrAlertExists = errors.New("alert already exists")

type AlertStatus string

const (
	AlertCreated   AlertStatus = "created"
	AlertDeleted   AlertStatus = "deleted"
	AlertTriggered AlertStatus = "triggered"
)

func ParseAlertStatus(value string) (AlertStatus, bool) {
	switch AlertStatus(strings.ToLower(strings.TrimSpace(value))) {
	case AlertCreated:
		return AlertCreated, true
	case AlertDeleted:
		return AlertDeleted, true
	case AlertTriggered:
		return AlertTriggered, true
	}
	return "", false
}

type Alert struct {
	ID          uint
	UserID      uint
	Symbol      string
	Threshold   decimal.Decimal
	Status      AlertStatus
	TriggeredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChannelKey is the feed stream the alert depends on.
func (a Alert) ChannelKey() string {
	return ChannelKey(a.Symbol)
}

// Matches reports whether price satisfies the alert's target.
func (a Alert) Matches(price decimal.Decimal) bool {
	return a.Status == AlertCreated && price.GreaterThanOrEqual(a.Threshold)
}

// AlertFilter selects alerts; nil fields are not applied.
type AlertFilter struct {
	UserID          *uint
	Status          *AlertStatus
	Symbol          *string
	ThresholdAtMost *decimal.Decimal
}

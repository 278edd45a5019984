package db

import (
	"time"

	"github.com/shopspring/decimal"
)

type userModel struct {
	ID             uint   `gorm:"primaryKey"`
	Username       string `gorm:"uniqueIndex;size:50;not null"`
	Email          string `gorm:"size:100;not null"`
	PasswordHash   string `gorm:"size:128;not null"`
	TelegramChatID *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (userModel) TableName() string { return "users" }

// One row per (user, symbol); deleted rows are revived instead of duplicated.
type alertModel struct {
	ID          uint            `gorm:"primaryKey"`
	UserID      uint            `gorm:"uniqueIndex:idx_alerts_user_symbol,priority:1;not null"`
	Symbol      string          `gorm:"uniqueIndex:idx_alerts_user_symbol,priority:2;index:idx_alerts_status_symbol,priority:2;size:20;not null"`
	Threshold   decimal.Decimal `gorm:"type:numeric(24,8);not null"`
	Status      string          `gorm:"index:idx_alerts_status_symbol,priority:1;size:20;not null;default:created"`
	TriggeredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (alertModel) TableName() string { return "alerts" }

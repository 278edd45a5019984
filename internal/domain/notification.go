package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type Recipient struct {
	UserID         uint
	Email          string
	TelegramChatID *int64
}

type Notification struct {
	AlertID   uint
	Symbol    string
	Threshold decimal.Decimal
	Price     decimal.Decimal
}

type NotificationSink interface {
	Notify(ctx context.Context, to Recipient, n Notification) error
}

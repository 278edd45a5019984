package domain

import "time"

type User struct {
	ID             uint
	Username       string
	Email          string
	PasswordHash   string
	TelegramChatID *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

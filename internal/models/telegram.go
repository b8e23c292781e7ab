package models

import "time"

// ProcessedUpdate is one Telegram update the relay has answered.
type ProcessedUpdate struct {
	ID        uint  `gorm:"primarykey"`
	UpdateID  int64 `gorm:"uniqueIndex"`
	ChatID    int64 `gorm:"index"`
	Username  string
	Text      string
	Outcome   string
	Delivered bool
	CreatedAt time.Time
}

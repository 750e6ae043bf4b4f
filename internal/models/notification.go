package models

import "time"

// Notification kinds.
const (
	NotificationStatusChange = "status_change"
	NotificationMessage      = "message"
)

// Notification is delivered to a single user.
type Notification struct {
	ID        uint       `gorm:"primaryKey"`
	UserID    uint       `gorm:"index;not null"`
	ReportID  *uint      `gorm:"index"`
	Kind      string     `gorm:"size:32;not null"`
	Title     string     `gorm:"size:255;not null"`
	Body      string     `gorm:"type:text"`
	ReadAt    *time.Time `gorm:"index"`
	CreatedAt time.Time  `gorm:"index"`

	User User `gorm:"constraint:OnDelete:CASCADE"`
}

package models

import "time"

// Session is a login session. The cookie carries "<ID>.<secret>"; only the
// SHA-256 of the secret is stored. Validity is measured from UpdatedAt.
type Session struct {
	ID           string    `gorm:"primaryKey;size:64"`
	UserID       uint      `gorm:"index;not null"`
	HashedSecret string    `gorm:"size:64;not null"`
	IPAddress    string    `gorm:"size:64"`
	UserAgent    string    `gorm:"size:255"`
	ExpiresAt    time.Time `gorm:"index;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time `gorm:"index"`

	User User `gorm:"constraint:OnDelete:CASCADE"`
}

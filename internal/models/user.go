package models

import "time"

// User represents a citizen, a municipal employee or an external maintainer.
type User struct {
	ID           uint    `gorm:"primaryKey"`
	Username     string  `gorm:"size:64;uniqueIndex;not null"`
	Email        string  `gorm:"size:255;uniqueIndex;not null"`
	FirstName    string  `gorm:"size:64"`
	LastName     string  `gorm:"size:64"`
	PasswordHash string  `gorm:"size:255;not null"`
	RoleID       uint    `gorm:"index;not null"`
	OfficeID     *uint   `gorm:"index"`
	Role         Role    `gorm:"constraint:OnDelete:RESTRICT"`
	Office       *Office `gorm:"constraint:OnDelete:SET NULL"`

	EmailVerified      bool   `gorm:"not null;default:false"`
	EmailNotifications bool   `gorm:"not null;default:true"`
	TelegramUsername   string `gorm:"size:64"`

	FailedLoginAttempts int        `gorm:"default:0"`
	LockedUntil         *time.Time `gorm:"index"`
	LastLoginAt         *time.Time
	LastLoginIP         string `gorm:"size:64"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sanitized returns a copy without the password hash.
func (u *User) Sanitized() *User {
	cp := *u
	cp.PasswordHash = ""
	return &cp
}

// HasRole reports whether the user's loaded role matches one of names.
func (u *User) HasRole(names ...string) bool {
	for _, n := range names {
		if u.Role.Name == n {
			return true
		}
	}
	return false
}

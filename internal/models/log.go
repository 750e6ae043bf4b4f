package models

import "time"

// AuditLog records authenticated mutations. Path and action are stored
// AES-GCM encrypted (base64) when an encryption key is configured.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    *uint     `gorm:"index"`
	Method    string    `gorm:"size:16"`
	PathEnc   string    `gorm:"size:1024"`
	ActionEnc string    `gorm:"size:4096"`
	Status    int       `gorm:"not null;default:0"`
	IP        string    `gorm:"size:64"`
	UserAgent string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"index"`
}

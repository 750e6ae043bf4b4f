package models

import "time"

// Comment is an internal note exchanged between staff on a report.
type Comment struct {
	ID        uint   `gorm:"primaryKey"`
	ReportID  uint   `gorm:"index;not null"`
	AuthorID  uint   `gorm:"index;not null"`
	Body      string `gorm:"type:text;not null"`
	CreatedAt time.Time

	Report Report `gorm:"constraint:OnDelete:CASCADE"`
	Author User   `gorm:"constraint:OnDelete:CASCADE"`
}

// Message is a public thread entry between the reporter and staff.
type Message struct {
	ID        uint   `gorm:"primaryKey"`
	ReportID  uint   `gorm:"index;not null"`
	AuthorID  uint   `gorm:"index;not null"`
	Body      string `gorm:"type:text;not null"`
	CreatedAt time.Time

	Report Report `gorm:"constraint:OnDelete:CASCADE"`
	Author User   `gorm:"constraint:OnDelete:CASCADE"`
}

package models

// Category of a report; each one is routed to a competent office.
type Category struct {
	ID       uint   `gorm:"primaryKey"`
	Name     string `gorm:"size:128;uniqueIndex;not null"`
	OfficeID uint   `gorm:"index;not null"`

	Office Office `gorm:"constraint:OnDelete:RESTRICT"`
}

package models

// Office is a municipal technical office or an external maintenance company.
type Office struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:128;uniqueIndex;not null"`
	Description string `gorm:"size:255"`
	IsExternal  bool   `gorm:"not null;default:false"`
}

package database

import (
	"fmt"

	"github.com/MontelAle/participium-sub001/internal/models"

	"gorm.io/gorm"
)

// AutoMigrate runs database schema migrations for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Role{},
		&models.Office{},
		&models.Category{},
		&models.User{},
		&models.Session{},
		&models.Report{},
		&models.Photo{},
		&models.Comment{},
		&models.Message{},
		&models.Notification{},
		&models.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

package database

import (
	"errors"
	"fmt"

	"github.com/MontelAle/participium-sub001/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultRoles are created on every start if missing.
var DefaultRoles = []models.Role{
	{Name: models.RoleCitizen, Label: "Citizen"},
	{Name: models.RoleAdmin, Label: "System Administrator", IsMunicipal: true},
	{Name: models.RolePROfficer, Label: "Municipal Public Relations Officer", IsMunicipal: true},
	{Name: models.RoleTechOfficer, Label: "Technical Office Staff", IsMunicipal: true},
	{Name: models.RoleExternalMaintainer, Label: "External Maintainer"},
}

// DefaultOffices maps each technical office to the categories it handles.
var DefaultOffices = []struct {
	Office     models.Office
	Categories []string
}{
	{models.Office{Name: "Water Office", Description: "Drinking water network"}, []string{"Water Supply - Drinking Water"}},
	{models.Office{Name: "Accessibility Office", Description: "Architectural barriers"}, []string{"Architectural Barriers"}},
	{models.Office{Name: "Sewer Office", Description: "Sewer and drainage"}, []string{"Sewer System"}},
	{models.Office{Name: "Lighting Office", Description: "Public lighting"}, []string{"Public Lighting"}},
	{models.Office{Name: "Waste Office", Description: "Waste collection"}, []string{"Waste"}},
	{models.Office{Name: "Mobility Office", Description: "Road signs and traffic lights"}, []string{"Road Signs and Traffic Lights"}},
	{models.Office{Name: "Public Works Office", Description: "Roads and urban furniture"}, []string{"Roads and Urban Furniture"}},
	{models.Office{Name: "Green Areas Office", Description: "Parks and playgrounds"}, []string{"Public Green Areas and Playgrounds"}},
	{models.Office{Name: "Organization Office", Description: "Everything else"}, []string{"Other"}},
	{models.Office{Name: "Lumen Maintenance", Description: "External lighting contractor", IsExternal: true}, nil},
	{models.Office{Name: "Strade Service", Description: "External road works contractor", IsExternal: true}, nil},
}

// Seed inserts the role and office/category taxonomy. It is idempotent.
func Seed(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, r := range DefaultRoles {
			role := r
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&role).Error; err != nil {
				return fmt.Errorf("seed role %s: %w", r.Name, err)
			}
		}

		for _, o := range DefaultOffices {
			var office models.Office
			if err := tx.Where(models.Office{Name: o.Office.Name}).
				Attrs(o.Office).
				FirstOrCreate(&office).Error; err != nil {
				return fmt.Errorf("seed office %s: %w", o.Office.Name, err)
			}
			for _, name := range o.Categories {
				var cat models.Category
				if err := tx.Where(models.Category{Name: name}).
					Attrs(models.Category{OfficeID: office.ID}).
					FirstOrCreate(&cat).Error; err != nil {
					return fmt.Errorf("seed category %s: %w", name, err)
				}
			}
		}
		return nil
	})
}

// RoleByName loads a role row.
func RoleByName(db *gorm.DB, name string) (*models.Role, error) {
	var role models.Role
	if err := db.Where("name = ?", name).First(&role).Error; err != nil {
		return nil, fmt.Errorf("role %s: %w", name, err)
	}
	return &role, nil
}

// ErrAdminExists is returned by EnsureAdmin when an administrator is already present.
var ErrAdminExists = errors.New("an administrator already exists")

// EnsureAdmin creates the first administrator account unless one exists.
func EnsureAdmin(db *gorm.DB, username, email, passwordHash string) (*models.User, error) {
	role, err := RoleByName(db, models.RoleAdmin)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := db.Model(&models.User{}).Where("role_id = ?", role.ID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("count admins: %w", err)
	}
	if count > 0 {
		return nil, ErrAdminExists
	}

	user := models.User{
		Username:      username,
		Email:         email,
		PasswordHash:  passwordHash,
		RoleID:        role.ID,
		EmailVerified: true,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	user.Role = *role
	return &user, nil
}

// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MontelAle/participium-sub001/internal/config"
	"github.com/MontelAle/participium-sub001/internal/database"
	"github.com/MontelAle/participium-sub001/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// OpenDB opens a private in-memory SQLite database, migrated and seeded.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Init(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1)),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })

	// one connection avoids shared-cache table locks between goroutines
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	if err := database.Seed(db); err != nil {
		t.Fatalf("seed test db: %v", err)
	}
	return db
}

// Password is the plaintext password of every user made by CreateUser.
const Password = "Password1"

var passwordHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()

// CreateUser inserts a verified user with the given role, optionally bound to an office.
func CreateUser(t *testing.T, db *gorm.DB, username, role string, officeID *uint) *models.User {
	t.Helper()
	r, err := database.RoleByName(db, role)
	if err != nil {
		t.Fatalf("role %s: %v", role, err)
	}
	u := &models.User{
		Username:      username,
		Email:         username + "@participium.test",
		FirstName:     strings.ToUpper(username[:1]) + username[1:],
		LastName:      "Rossi",
		PasswordHash:  passwordHash,
		RoleID:        r.ID,
		OfficeID:      officeID,
		EmailVerified: true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	u.Role = *r
	return u
}

// CategoryByName returns a seeded category with its office.
func CategoryByName(t *testing.T, db *gorm.DB, name string) *models.Category {
	t.Helper()
	var c models.Category
	if err := db.Preload("Office").Where("name = ?", name).First(&c).Error; err != nil {
		t.Fatalf("category %s: %v", name, err)
	}
	return &c
}

// OfficeByName returns a seeded office.
func OfficeByName(t *testing.T, db *gorm.DB, name string) *models.Office {
	t.Helper()
	var o models.Office
	if err := db.Where("name = ?", name).First(&o).Error; err != nil {
		t.Fatalf("office %s: %v", name, err)
	}
	return &o
}

// CreateReport inserts a report in the given status at the center of Turin.
func CreateReport(t *testing.T, db *gorm.DB, reporter *models.User, category *models.Category, status string) *models.Report {
	t.Helper()
	r := &models.Report{
		Title:       "Broken street lamp",
		Description: "The lamp has been off for a week",
		CategoryID:  category.ID,
		Latitude:    45.0703,
		Longitude:   7.6869,
		Status:      status,
		ReporterID:  reporter.ID,
	}
	if status != models.StatusPending && status != models.StatusRejected {
		r.AssignedOfficeID = &category.OfficeID
	}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("create report: %v", err)
	}
	return r
}

// PNG is the smallest PNG header plus IHDR; enough for content sniffing.
var PNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
}

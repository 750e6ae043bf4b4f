package database

import (
	"fmt"
	"testing"

	"github.com/MontelAle/participium-sub001/internal/config"
	"github.com/MontelAle/participium-sub001/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed_Idempotent(t *testing.T) {
	db, err := Init(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, AutoMigrate(db))
	require.NoError(t, Seed(db))
	require.NoError(t, Seed(db))

	var roles, offices, categories int64
	db.Model(&models.Role{}).Count(&roles)
	db.Model(&models.Office{}).Count(&offices)
	db.Model(&models.Category{}).Count(&categories)

	assert.EqualValues(t, len(DefaultRoles), roles)
	assert.EqualValues(t, len(DefaultOffices), offices)
	assert.EqualValues(t, 9, categories)

	var lighting models.Category
	require.NoError(t, db.Preload("Office").Where("name = ?", "Public Lighting").First(&lighting).Error)
	assert.Equal(t, "Lighting Office", lighting.Office.Name)

	var external []models.Office
	require.NoError(t, db.Where("is_external = ?", true).Order("name").Find(&external).Error)
	require.Len(t, external, 2)
	assert.Equal(t, "Lumen Maintenance", external[0].Name)
}

func TestEnsureAdmin(t *testing.T) {
	db, err := Init(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	require.NoError(t, AutoMigrate(db))
	require.NoError(t, Seed(db))

	admin, err := EnsureAdmin(db, "admin", "admin@participium.local", "hash")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role.Name)
	assert.True(t, admin.EmailVerified)

	_, err = EnsureAdmin(db, "admin2", "admin2@participium.local", "hash")
	assert.ErrorIs(t, err, ErrAdminExists)
}

func TestInit_UnsupportedDriver(t *testing.T) {
	_, err := Init(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "data/app.db?_foreign_keys=1", sqliteDSN("data/app.db"))
	assert.Equal(t, "file:x?mode=memory&_foreign_keys=1", sqliteDSN("file:x?mode=memory"))
	assert.Equal(t, "x.db?_foreign_keys=0", sqliteDSN("x.db?_foreign_keys=0"))
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9100\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "session_token", cfg.Session.CookieName)
	assert.Equal(t, 86400, cfg.Session.ExpiresInSeconds)
	assert.Equal(t, 3, cfg.Uploads.MaxPhotos)
	assert.Len(t, cfg.Geofence.Polygon, len(TurinBoundary))
	assert.Same(t, cfg, Get())
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "session:\n  expires_in_seconds: 60\n")
	t.Setenv("PARTICIPIUM_SESSION_EXPIRES_IN_SECONDS", "120")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Session.ExpiresInSeconds)
}

func TestLoad_Polygon(t *testing.T) {
	path := writeConfig(t, `
geofence:
  polygon:
    - [0, 0]
    - [0, 1]
    - [1, 1]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 0}, {0, 1}, {1, 1}}, cfg.Geofence.Polygon)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }},
		{"zero expiry", func(c *Config) { c.Session.ExpiresInSeconds = 0 }},
		{"no cookie name", func(c *Config) { c.Session.CookieName = "" }},
		{"no photos", func(c *Config) { c.Uploads.MaxPhotos = 0 }},
		{"short polygon", func(c *Config) { c.Geofence.Polygon = [][]float64{{0, 0}, {1, 1}} }},
		{"bad vertex", func(c *Config) { c.Geofence.Polygon = [][]float64{{0, 0}, {1, 1}, {2}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{
				Database: DatabaseConfig{Driver: "sqlite", Path: "x.db"},
				Session:  SessionConfig{CookieName: "session_token", ExpiresInSeconds: 10},
				Uploads:  UploadConfig{MaxPhotos: 3},
			}
			require.NoError(t, c.Validate())
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestString_MasksSecrets(t *testing.T) {
	c := &Config{Security: SecurityConfig{EncryptionKey: "super-secret"}}
	assert.NotContains(t, c.String(), "super-secret")
}

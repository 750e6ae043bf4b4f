package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Address                string `mapstructure:"address"`
	Port                   int    `mapstructure:"port"`
	Mode                   string `mapstructure:"mode"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

type DatabaseConfig struct {
	Driver  string `mapstructure:"driver"` // sqlite / postgres
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
	LogMode bool   `mapstructure:"log_mode"`
}

// SessionConfig controls the session_token cookie and how long a session
// stays valid after its last update.
type SessionConfig struct {
	CookieName           string `mapstructure:"cookie_name"`
	ExpiresInSeconds     int    `mapstructure:"expires_in_seconds"`
	Secure               bool   `mapstructure:"secure"`
	PurgeIntervalSeconds int    `mapstructure:"purge_interval_seconds"`
}

type SecurityConfig struct {
	BcryptCost         int    `mapstructure:"bcrypt_cost"`
	EncryptionKey      string `mapstructure:"encryption_key"`
	LoginRatePerMinute int    `mapstructure:"login_rate_per_minute"`
	LoginBurst         int    `mapstructure:"login_burst"`
}

type VerificationConfig struct {
	Secret     string `mapstructure:"secret"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
	Required   bool   `mapstructure:"required"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type UploadConfig struct {
	Dir           string `mapstructure:"dir"`
	MaxPhotos     int    `mapstructure:"max_photos"`
	MaxPhotoBytes int64  `mapstructure:"max_photo_bytes"`
}

// GeofenceConfig is the municipality boundary as [lat, lng] vertices.
type GeofenceConfig struct {
	Polygon [][]float64 `mapstructure:"polygon"`
}

type AppSubConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// AdminConfig bootstraps the first administrator on serve when set.
type AdminConfig struct {
	Username string `mapstructure:"username"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Session      SessionConfig      `mapstructure:"session"`
	Security     SecurityConfig     `mapstructure:"security"`
	Verification VerificationConfig `mapstructure:"verification"`
	Log          LogConfig          `mapstructure:"log"`
	Uploads      UploadConfig       `mapstructure:"uploads"`
	Geofence     GeofenceConfig     `mapstructure:"geofence"`
	App          AppSubConfig       `mapstructure:"app"`
	Admin        AdminConfig        `mapstructure:"admin"`
}

// TurinBoundary is a coarse outline of the Turin municipality.
var TurinBoundary = [][]float64{
	{45.1400, 7.6150},
	{45.1350, 7.6950},
	{45.1100, 7.7450},
	{45.0700, 7.7700},
	{45.0150, 7.7350},
	{45.0050, 7.6500},
	{45.0200, 7.5850},
	{45.0700, 7.5750},
	{45.1100, 7.5800},
}

var (
	appConfig *Config
	mu        sync.RWMutex
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout_seconds", 10)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/participium.db")
	v.SetDefault("database.log_mode", false)

	v.SetDefault("session.cookie_name", "session_token")
	v.SetDefault("session.expires_in_seconds", 86400)
	v.SetDefault("session.secure", false)
	v.SetDefault("session.purge_interval_seconds", 3600)

	v.SetDefault("security.bcrypt_cost", 12)
	v.SetDefault("security.encryption_key", "")
	v.SetDefault("security.login_rate_per_minute", 10)
	v.SetDefault("security.login_burst", 5)

	v.SetDefault("verification.ttl_minutes", 30)
	v.SetDefault("verification.required", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("uploads.dir", "data/uploads")
	v.SetDefault("uploads.max_photos", 3)
	v.SetDefault("uploads.max_photo_bytes", 5<<20)

	v.SetDefault("geofence.polygon", TurinBoundary)

	v.SetDefault("app.page_size", 20)
}

// Load loads configuration from given file path (e.g. "config.yaml").
// If path is empty, config.yaml in the working directory is used when present;
// a missing file falls back to defaults plus environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	// environment overrides, e.g. PARTICIPIUM_SERVER_PORT=9000
	v.SetEnvPrefix("PARTICIPIUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	appConfig = &c
	mu.Unlock()
	return &c, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Session.CookieName == "" {
		return errors.New("session.cookie_name is empty")
	}
	if c.Session.ExpiresInSeconds <= 0 {
		return fmt.Errorf("session.expires_in_seconds must be positive, got %d", c.Session.ExpiresInSeconds)
	}
	if c.Uploads.MaxPhotos < 1 {
		return fmt.Errorf("uploads.max_photos must be at least 1, got %d", c.Uploads.MaxPhotos)
	}
	if len(c.Geofence.Polygon) != 0 && len(c.Geofence.Polygon) < 3 {
		return errors.New("geofence.polygon needs at least 3 vertices")
	}
	for i, p := range c.Geofence.Polygon {
		if len(p) != 2 {
			return fmt.Errorf("geofence.polygon[%d] must be [lat, lng]", i)
		}
	}
	return nil
}

// String masks secrets.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Server: %s:%d, DB: %s, Session: %s/%ds, Secrets: *** (masked) ***}",
		c.Server.Address, c.Server.Port, c.Database.Driver, c.Session.CookieName, c.Session.ExpiresInSeconds)
}

// Get returns the last loaded configuration.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return appConfig
}

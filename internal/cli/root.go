// Package cli holds the participium command line: serve, migrate and create-admin.
package cli

import (
	"fmt"
	"os"

	"github.com/MontelAle/participium-sub001/internal/config"
	"github.com/MontelAle/participium-sub001/internal/database"
	"github.com/MontelAle/participium-sub001/internal/logging"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "participium",
	Short: "Participium citizen reporting backend",
	Long: `Participium lets citizens report urban issues (potholes, broken lights,
architectural barriers) on a map and follows each report through review,
assignment and resolution by the municipality.

Run "participium serve" to start the API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml when present)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(createAdminCmd)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and sets up logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, nil
}

// openDatabase connects, migrates and seeds the taxonomy.
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Init(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	if err := database.Seed(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return db, nil
}

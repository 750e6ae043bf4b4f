package cli

import (
	"github.com/MontelAle/participium-sub001/internal/database"
	"github.com/MontelAle/participium-sub001/internal/logging"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the schema and seed roles, offices and categories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = database.Close(db) }()

		logging.Info().Str("driver", cfg.Database.Driver).Msg("schema migrated and seeded")
		return nil
	},
}

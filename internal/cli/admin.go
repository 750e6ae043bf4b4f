package cli

import (
	"errors"
	"fmt"

	"github.com/MontelAle/participium-sub001/internal/config"
	"github.com/MontelAle/participium-sub001/internal/database"
	"github.com/MontelAle/participium-sub001/internal/logging"
	"github.com/MontelAle/participium-sub001/internal/validation"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var adminFlags struct {
	username string
	email    string
	password string
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create the first system administrator",
	Long: `Creates the first administrator account. Fails when an administrator
already exists; further staff accounts are created through the API.

Example:
  participium create-admin --username admin --email admin@comune.torino.it --password 'S3cretPass'`,
	Args: cobra.NoArgs,
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

		admin := config.AdminConfig{
			Username: adminFlags.username,
			Email:    adminFlags.email,
			Password: adminFlags.password,
		}
		if err := createAdmin(db, admin, cfg.Security.BcryptCost); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "administrator %q created\n", admin.Username)
		return nil
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&adminFlags.username, "username", "", "administrator username")
	createAdminCmd.Flags().StringVar(&adminFlags.email, "email", "", "administrator e-mail")
	createAdminCmd.Flags().StringVar(&adminFlags.password, "password", "", "administrator password")
	_ = createAdminCmd.MarkFlagRequired("username")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")
}

func createAdmin(db *gorm.DB, admin config.AdminConfig, cost int) error {
	if !validation.StrongPassword(admin.Password) {
		return errors.New("password must be 8-64 characters with upper case, lower case and a digit")
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(admin.Password), cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user, err := database.EnsureAdmin(db, admin.Username, admin.Email, string(hash))
	if err != nil {
		return err
	}
	logging.Info().Uint("user_id", user.ID).Str("username", user.Username).Msg("administrator created")
	return nil
}

// bootstrapAdmin creates the configured administrator on serve, if any.
func bootstrapAdmin(db *gorm.DB, cfg *config.Config) error {
	if cfg.Admin.Username == "" {
		return nil
	}
	err := createAdmin(db, cfg.Admin, cfg.Security.BcryptCost)
	if errors.Is(err, database.ErrAdminExists) {
		return nil
	}
	return err
}

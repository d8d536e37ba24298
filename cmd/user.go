package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-parish-auth/app/entity"
	"github.com/vibast-solutions/ms-go-parish-auth/app/repository"
	"github.com/vibast-solutions/ms-go-parish-auth/app/service"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Operator commands for user accounts",
}

var userPromoteCmd = &cobra.Command{
	Use:   "promote <email>",
	Short: "Grant the admin role to a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return setRole(args[0], entity.RoleAdmin)
	},
}

var userDemoteCmd = &cobra.Command{
	Use:   "demote <email>",
	Short: "Reset a user to the default role",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return setRole(args[0], entity.RoleUser)
	},
}

var userPurgeTokensCmd = &cobra.Command{
	Use:   "purge-tokens",
	Short: "Delete expired refresh tokens",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		db, err := openDatabaseForCommands()
		if err != nil {
			return err
		}
		defer db.Close()

		removed, err := repository.NewRefreshTokenRepository(db).DeleteExpired(context.Background(), time.Now())
		if err != nil {
			return err
		}

		fmt.Printf("deleted %d expired refresh token(s)\n", removed)
		return nil
	},
}

func init() {
	userCmd.AddCommand(userPromoteCmd)
	userCmd.AddCommand(userDemoteCmd)
	userCmd.AddCommand(userPurgeTokensCmd)
	rootCmd.AddCommand(userCmd)
}

func setRole(email, role string) error {
	db, err := openDatabaseForCommands()
	if err != nil {
		return err
	}
	defer db.Close()

	email = service.NormalizeEmail(email)
	ok, err := repository.NewUserRepository(db).UpdateRole(context.Background(), email, role)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no user with email %q", email)
	}

	fmt.Printf("role updated: %s -> %s\n", email, role)
	return nil
}

// openDatabaseForCommands needs only MYSQL_DSN, not the full server configuration.
func openDatabaseForCommands() (*sql.DB, error) {
	_ = godotenv.Load()

	dsn := strings.TrimSpace(os.Getenv("MYSQL_DSN"))
	if dsn == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}
	return repository.Open(dsn)
}

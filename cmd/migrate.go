package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/harvester/internal/storage/postgres"
)

// migrateDB is replaced in tests.
var migrateDB = postgres.Migrate

// newMigrateCmd creates the 'migrate' subcommand.
func newMigrateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Applies the catalog schema to Postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := resolveSession(cmd.Context())
			if err != nil {
				return err
			}
			if err := migrateDB(cmd.Context(), s.cfg.Archive.PostgresDSN); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			s.logger.Info("catalog migrations applied")
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		},
	}
	cmd.Flags().String("dsn", "", "Postgres connection string (overrides archive.postgres_dsn)")
	mustBind(v, "archive.postgres_dsn", cmd.Flags().Lookup("dsn"))
	return cmd
}

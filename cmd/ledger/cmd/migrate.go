package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"household-ledger/internal/store"
	"household-ledger/pkg/errors"
	"household-ledger/pkg/logger"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the ledger tables in PostgreSQL",
	Long: `Migrate creates the transactions and merchant_memory tables and their
indexes when they do not exist yet. Running it again is harmless.

Example:
  ledger migrate --database-url postgres://ledger@localhost:5432/ledger`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if settings.DatabaseURL == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "database.url", "", nil).
			WithSuggestion("Pass --database-url or set LEDGER_DATABASE_URL")
	}

	pg, err := store.Connect(ctx, settings.DatabaseURL)
	if err != nil {
		return err
	}
	defer pg.Close()

	err = logger.TimedOperation("migrate", logger.GetGlobalLogger().WithComponent("cli"), func() error {
		return pg.EnsureSchema(ctx)
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, "Schema is up to date")
	return nil
}

package cli

import (
	"fmt"

	"github.com/reshetovitsme/voice-of-light/internal/shared/config"
	"github.com/reshetovitsme/voice-of-light/internal/shared/database"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE:  migrateAction,
}

func migrateAction(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Read()
	if err != nil {
		return oops.With("context", "failed to load config").Wrap(err)
	}

	// Open applies the schema.
	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Database (%s) is at schema version %s.\n", cfg.DatabaseDriver, version)
	return nil
}

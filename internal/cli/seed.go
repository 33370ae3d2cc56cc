package cli

import (
	"fmt"

	"coffeenet/internal/database"
	"coffeenet/internal/logging"

	"github.com/spf13/cobra"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the schema and insert the demo users and menu",
		Long: `Create the schema and insert the demo users and menu.

Seeding only fills empty tables, so running it twice is harmless.

Example:
  coffeenet seed --config ./coffeenet.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load()
			if err != nil {
				return err
			}
			log := logging.New(cfg.LogLevel)

			db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.Seed(db); err != nil {
				return err
			}
			log.Info("database seeded", "driver", cfg.Database.Driver)
			fmt.Fprintln(cmd.OutOrStdout(), "seeded: cliente@teste.com / cozinha@teste.com (senha "+database.DefaultPassword+")")
			return nil
		},
	}
}

package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "birdphotos",
		Short: "Bird photo catalog with species tagging and an admin review queue",
		Long: `birdphotos serves a gallery of bird photos tagged with species names.

Photos arrive through an ingestion endpoint or a folder import, wait in a
review queue and appear in the public gallery once an admin approves them.
Species names are checked against the eBird taxonomy.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newEnrichCmd())

	return cmd
}

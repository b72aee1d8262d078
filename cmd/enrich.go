package cmd

import (
	"encoding/json"
	"log"

	"github.com/spf13/cobra"

	"github.com/camden-git/birdphotos/services"
)

func newEnrichCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich-species",
		Short: "Fill in missing taxonomy metadata for stored species",
		Long: `Fetches the eBird taxonomy once and updates the scientific name, family,
order and extinction status of every species that was created without them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := services.NewSpeciesEnricher(a.species, a.taxonomy).Run(cmd.Context())
			if err != nil {
				return err
			}
			log.Printf("species: enrichment checked %d, updated %d, not in taxonomy %d", report.Checked, report.Updated, report.NotFound)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	return cmd
}

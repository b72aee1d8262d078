package services

import (
	"context"
	"fmt"
	"log"

	"github.com/camden-git/birdphotos/repository"
	"github.com/camden-git/birdphotos/taxonomy"
)

// EnrichReport summarises a SpeciesEnricher run
type EnrichReport struct {
	Checked  int `json:"checked"`
	Updated  int `json:"updated"`
	NotFound int `json:"not_found"`
}

// SpeciesEnricher fills in taxonomy metadata for species created without it
type SpeciesEnricher struct {
	species repository.SpeciesRepositoryInterface
	source  taxonomy.Source
}

func NewSpeciesEnricher(species repository.SpeciesRepositoryInterface, source taxonomy.Source) *SpeciesEnricher {
	return &SpeciesEnricher{species: species, source: source}
}

// Run fetches the taxonomy once and updates every species that lacks a
// scientific name or family. Species missing from the taxonomy are counted
// and left untouched.
func (e *SpeciesEnricher) Run(ctx context.Context) (EnrichReport, error) {
	var report EnrichReport

	pending, err := e.species.ListMissingMetadata(ctx)
	if err != nil {
		return report, err
	}
	report.Checked = len(pending)
	if len(pending) == 0 {
		log.Println("enrich: all species already have metadata")
		return report, nil
	}

	entries, err := e.source.FetchTaxonomy(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to fetch taxonomy: %w", err)
	}
	index := taxonomy.NewIndex(entries)

	for _, species := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		details, ok := index.Lookup(species.CommonName)
		if !ok {
			report.NotFound++
			log.Printf("enrich: no taxonomy entry for '%s'", species.CommonName)
			continue
		}

		err := e.species.UpdateMetadata(ctx, species.ID, repository.SpeciesMetadata{
			ScientificName: details.ScientificName,
			Family:         details.Family,
			OrderName:      details.Order,
			Status:         details.Status,
		})
		if err != nil {
			return report, fmt.Errorf("failed to update species '%s': %w", species.CommonName, err)
		}
		report.Updated++
		log.Printf("enrich: updated '%s' -> %s (%s)", species.CommonName, details.ScientificName, details.Family)
	}

	log.Printf("enrich: checked %d species, updated %d, not found %d", report.Checked, report.Updated, report.NotFound)
	return report, nil
}

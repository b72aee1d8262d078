package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/birdphotos/models"
	"github.com/camden-git/birdphotos/repository"
	"github.com/camden-git/birdphotos/taxonomy"
)

// DefaultLookupTimeout bounds the taxonomy lookup made while resolving a name
const DefaultLookupTimeout = 10 * time.Second

// DetailsLookup finds taxonomy metadata for a common name
type DetailsLookup interface {
	LookupDetails(ctx context.Context, commonName string) (taxonomy.Details, error)
}

// SpeciesReconciler maps free-text common names onto species rows
type SpeciesReconciler struct {
	species       repository.SpeciesRepositoryInterface
	lookup        DetailsLookup
	lookupTimeout time.Duration
}

// NewSpeciesReconciler creates a reconciler. lookup may be nil, in which case
// species are created without metadata.
func NewSpeciesReconciler(species repository.SpeciesRepositoryInterface, lookup DetailsLookup, lookupTimeout time.Duration) *SpeciesReconciler {
	if lookupTimeout <= 0 {
		lookupTimeout = DefaultLookupTimeout
	}
	return &SpeciesReconciler{
		species:       species,
		lookup:        lookup,
		lookupTimeout: lookupTimeout,
	}
}

// Resolve returns the ID of the species with the given common name, creating
// it when it does not exist yet. Metadata is filled from the taxonomy when
// available; lookup failures never fail the resolution.
func (r *SpeciesReconciler) Resolve(ctx context.Context, commonName string) (uint, error) {
	name := strings.TrimSpace(commonName)
	if name == "" {
		return 0, ErrInvalidName
	}

	existing, err := r.species.FindByCommonName(ctx, name)
	if err == nil {
		if existing.MissingMetadata() {
			r.backfill(ctx, existing)
		}
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("failed to look up species '%s': %w", name, err)
	}

	candidate := models.Species{CommonName: name}
	details, found := r.details(ctx, name)
	if found {
		applyDetails(&candidate, details)
	}

	species, created, err := r.species.ResolveOrCreate(ctx, candidate)
	if err != nil {
		return 0, fmt.Errorf("failed to create species '%s': %w", name, err)
	}
	if created {
		log.Printf("species: created '%s' (id %d, metadata found: %t)", species.CommonName, species.ID, found)
	} else if found && species.MissingMetadata() {
		// another request created the row first, without metadata
		r.store(ctx, species.ID, details)
	}
	return species.ID, nil
}

func (r *SpeciesReconciler) backfill(ctx context.Context, species *models.Species) {
	details, found := r.details(ctx, species.CommonName)
	if !found {
		return
	}
	r.store(ctx, species.ID, details)
}

func (r *SpeciesReconciler) store(ctx context.Context, id uint, details taxonomy.Details) {
	err := r.species.UpdateMetadata(ctx, id, repository.SpeciesMetadata{
		ScientificName: details.ScientificName,
		Family:         details.Family,
		OrderName:      details.Order,
		Status:         details.Status,
	})
	if err != nil {
		log.Printf("Warning: species: failed to store metadata for species %d: %v", id, err)
	}
}

// details runs the taxonomy lookup under its own timeout
func (r *SpeciesReconciler) details(ctx context.Context, name string) (taxonomy.Details, bool) {
	if r.lookup == nil {
		return taxonomy.Details{}, false
	}
	lookupCtx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	details, err := r.lookup.LookupDetails(lookupCtx, name)
	if err != nil {
		if !errors.Is(err, taxonomy.ErrNotFound) {
			log.Printf("Warning: species: taxonomy lookup for '%s' failed, continuing without metadata: %v", name, err)
		}
		return taxonomy.Details{}, false
	}
	return details, true
}

func applyDetails(s *models.Species, d taxonomy.Details) {
	s.ScientificName = optional(d.ScientificName)
	s.Family = optional(d.Family)
	s.OrderName = optional(d.Order)
	s.Status = optional(d.Status)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/camden-git/birdphotos/models"
)

// SpeciesMetadata holds the taxonomy fields copied onto a species row
type SpeciesMetadata struct {
	ScientificName string
	Family         string
	OrderName      string
	Status         string
}

// SpeciesRepository handles database operations for Species entities
type SpeciesRepository struct {
	DB *gorm.DB
}

// NewSpeciesRepository creates a new instance of SpeciesRepository
func NewSpeciesRepository(db *gorm.DB) *SpeciesRepository {
	return &SpeciesRepository{DB: db}
}

// GetByID retrieves a species by its ID
func (r *SpeciesRepository) GetByID(ctx context.Context, id uint) (*models.Species, error) {
	var species models.Species
	err := r.DB.WithContext(ctx).First(&species, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get species by ID %d: %w", id, err)
	}
	return &species, nil
}

// FindByCommonName performs a case-insensitive exact match on the folded common name
func (r *SpeciesRepository) FindByCommonName(ctx context.Context, commonName string) (*models.Species, error) {
	var species models.Species
	err := r.DB.WithContext(ctx).Where("common_name_key = ?", models.NameKey(commonName)).First(&species).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find species '%s': %w", commonName, err)
	}
	return &species, nil
}

// ResolveOrCreate returns the species matching candidate.CommonName, inserting
// candidate when it does not exist yet. The bool result is true on insert.
func (r *SpeciesRepository) ResolveOrCreate(ctx context.Context, candidate models.Species) (*models.Species, bool, error) {
	candidate.CommonName = strings.TrimSpace(candidate.CommonName)
	return resolveOrCreate(ctx, r.DB, "common_name_key", models.NameKey(candidate.CommonName), func() *models.Species {
		row := candidate
		return &row
	})
}

// UpdateMetadata overwrites the taxonomy fields of a species; empty values become NULL
func (r *SpeciesRepository) UpdateMetadata(ctx context.Context, id uint, meta SpeciesMetadata) error {
	updates := map[string]interface{}{
		"scientific_name": nullableString(meta.ScientificName),
		"family":          nullableString(meta.Family),
		"order_name":      nullableString(meta.OrderName),
		"status":          nullableString(meta.Status),
	}
	result := r.DB.WithContext(ctx).Model(&models.Species{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update metadata for species ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListMissingMetadata retrieves species lacking a scientific name or family
func (r *SpeciesRepository) ListMissingMetadata(ctx context.Context) ([]models.Species, error) {
	var species []models.Species
	err := r.DB.WithContext(ctx).
		Where("scientific_name IS NULL OR scientific_name = '' OR family IS NULL OR family = ''").
		Order("common_name ASC").
		Find(&species).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list species missing metadata: %w", err)
	}
	return species, nil
}

// ListForPhoto retrieves the species linked to a photo, ordered by common name
func (r *SpeciesRepository) ListForPhoto(ctx context.Context, photoID uint) ([]models.Species, error) {
	var species []models.Species
	err := r.DB.WithContext(ctx).
		Joins("JOIN bird_photo_species ps ON ps.species_id = bird_species.id").
		Where("ps.photo_id = ?", photoID).
		Order("bird_species.common_name ASC").
		Find(&species).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list species for photo %d: %w", photoID, err)
	}
	return species, nil
}

func nullableString(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

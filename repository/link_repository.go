package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/camden-git/birdphotos/database"
	"github.com/camden-git/birdphotos/models"
)

// LinkResult tells callers whether Link inserted a new pair
type LinkResult string

const (
	LinkCreated        LinkResult = "created"
	LinkAlreadyExisted LinkResult = "already_existed"
)

// UnlinkResult tells callers whether Unlink removed a pair
type UnlinkResult string

const (
	UnlinkRemoved  UnlinkResult = "removed"
	UnlinkNotFound UnlinkResult = "not_found"
)

// LinkRepository manages the photo/species association set
type LinkRepository struct {
	DB *gorm.DB
}

// NewLinkRepository creates a new instance of LinkRepository
func NewLinkRepository(db *gorm.DB) *LinkRepository {
	return &LinkRepository{DB: db}
}

// Exists reports whether the (photoID, speciesID) pair is linked
func (r *LinkRepository) Exists(ctx context.Context, photoID, speciesID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.PhotoSpecies{}).
		Where("photo_id = ? AND species_id = ?", photoID, speciesID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check link photo %d / species %d: %w", photoID, speciesID, err)
	}
	return count > 0, nil
}

// Link associates a species with a photo. Linking an existing pair is not an
// error; linking to a photo or species that does not exist, including one
// deleted while the caller was resolving it, returns gorm.ErrRecordNotFound.
func (r *LinkRepository) Link(ctx context.Context, photoID, speciesID uint) (LinkResult, error) {
	exists, err := r.Exists(ctx, photoID, speciesID)
	if err != nil {
		return "", err
	}
	if exists {
		return LinkAlreadyExisted, nil
	}

	result := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.PhotoSpecies{PhotoID: photoID, SpeciesID: speciesID})
	if result.Error != nil {
		if database.IsForeignKeyViolation(result.Error) {
			return "", fmt.Errorf("photo %d or species %d no longer exists: %w", photoID, speciesID, gorm.ErrRecordNotFound)
		}
		return "", fmt.Errorf("failed to link photo %d to species %d: %w", photoID, speciesID, result.Error)
	}
	if result.RowsAffected == 0 {
		// inserted concurrently between the check and the insert
		return LinkAlreadyExisted, nil
	}
	return LinkCreated, nil
}

// Unlink removes the pair if present
func (r *LinkRepository) Unlink(ctx context.Context, photoID, speciesID uint) (UnlinkResult, error) {
	result := r.DB.WithContext(ctx).
		Where("photo_id = ? AND species_id = ?", photoID, speciesID).
		Delete(&models.PhotoSpecies{})
	if result.Error != nil {
		return "", fmt.Errorf("failed to unlink photo %d from species %d: %w", photoID, speciesID, result.Error)
	}
	if result.RowsAffected == 0 {
		return UnlinkNotFound, nil
	}
	return UnlinkRemoved, nil
}

// UnlinkAll removes every link of a photo and returns how many were removed.
// Photo deletion calls it on a transaction-bound repository; the cascade on
// photo_id would drop them too, but the count is reported back.
func (r *LinkRepository) UnlinkAll(ctx context.Context, photoID uint) (int64, error) {
	result := r.DB.WithContext(ctx).Where("photo_id = ?", photoID).Delete(&models.PhotoSpecies{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to remove links for photo %d: %w", photoID, result.Error)
	}
	return result.RowsAffected, nil
}

// CountForPhoto returns the number of species linked to a photo
func (r *LinkRepository) CountForPhoto(ctx context.Context, photoID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.PhotoSpecies{}).Where("photo_id = ?", photoID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count links for photo %d: %w", photoID, err)
	}
	return count, nil
}

// WithTx returns a repository bound to the given transaction
func (r *LinkRepository) WithTx(tx *gorm.DB) *LinkRepository {
	return &LinkRepository{DB: tx}
}

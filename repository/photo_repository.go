package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/birdphotos/database"
	"github.com/camden-git/birdphotos/models"
)

// ErrNoFieldsToUpdate is returned when UpdateDetails receives an empty update
var ErrNoFieldsToUpdate = errors.New("no fields to update")

// ApproveResult tells callers whether Approve changed the row
type ApproveResult string

const (
	Approved                 ApproveResult = "approved"
	AlreadyApprovedOrMissing ApproveResult = "already_approved_or_missing"
)

// NewPhoto carries the fields accepted when a photo is ingested
type NewPhoto struct {
	ImageLocation      string
	DateTaken          *string
	Location           string
	Latitude           *float64
	Longitude          *float64
	PhotographerName   string
	AISuggestedSpecies *string
}

// PhotoDetailsUpdate is a partial update; nil fields are left untouched
type PhotoDetailsUpdate struct {
	DateTaken    *string
	Location     *string
	Photographer *string
}

// IsEmpty reports whether no field was supplied
func (u PhotoDetailsUpdate) IsEmpty() bool {
	return u.DateTaken == nil && u.Location == nil && u.Photographer == nil
}

// ImageRef pairs a photo ID with its stored image location
type ImageRef struct {
	ID            uint   `gorm:"column:id"`
	ImageLocation string `gorm:"column:image_location"`
}

// PhotoRepository handles database operations for Photo entities
type PhotoRepository struct {
	DB            *gorm.DB
	Photographers *PhotographerRepository
	Links         *LinkRepository
	ImageBaseURL  string
}

// NewPhotoRepository creates a new instance of PhotoRepository
func NewPhotoRepository(db *gorm.DB, imageBaseURL string) *PhotoRepository {
	return &PhotoRepository{
		DB:            db,
		Photographers: NewPhotographerRepository(db),
		Links:         NewLinkRepository(db),
		ImageBaseURL:  imageBaseURL,
	}
}

// ListApproved retrieves approved photos in random order for the public gallery
func (r *PhotoRepository) ListApproved(ctx context.Context, limit int) ([]models.PhotoView, error) {
	if limit <= 0 {
		limit = database.DefaultGallerySize
	}
	return database.ListPhotoViews(ctx, r.DB, database.PhotoViewFilter{
		Approved: true,
		Limit:    uint64(limit),
		Random:   true,
	}, r.ImageBaseURL)
}

// ListPending retrieves photos awaiting review, newest first
func (r *PhotoRepository) ListPending(ctx context.Context) ([]models.PhotoView, error) {
	return database.ListPhotoViews(ctx, r.DB, database.PhotoViewFilter{Approved: false}, r.ImageBaseURL)
}

// GetByID retrieves a photo by its ID, preloading the photographer
func (r *PhotoRepository) GetByID(ctx context.Context, id uint) (*models.Photo, error) {
	var photo models.Photo
	err := r.DB.WithContext(ctx).Preload("Photographer").First(&photo, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get photo by ID %d: %w", id, err)
	}
	return &photo, nil
}

// Create inserts a new pending photo and returns its ID. The photographer row
// is only kept when the photo insert succeeds.
func (r *PhotoRepository) Create(ctx context.Context, in NewPhoto) (uint, error) {
	var photo models.Photo
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		photographerID, err := r.Photographers.WithTx(tx).Resolve(ctx, in.PhotographerName)
		if err != nil {
			return fmt.Errorf("failed to resolve photographer for new photo: %w", err)
		}

		now := time.Now().Unix()
		photo = models.Photo{
			ImageLocation:      strings.TrimSpace(in.ImageLocation),
			DateTaken:          normalizeDate(in.DateTaken),
			Location:           strings.TrimSpace(in.Location),
			Latitude:           in.Latitude,
			Longitude:          in.Longitude,
			Approved:           false,
			PhotographerID:     photographerID,
			AISuggestedSpecies: trimmedOrNil(in.AISuggestedSpecies),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.Create(&photo).Error; err != nil {
			return fmt.Errorf("failed to create photo for %s: %w", photo.ImageLocation, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return photo.ID, nil
}

// UpdateDetails applies a partial update; only supplied fields are written.
// A missing photo is reported before any photographer row is created.
func (r *PhotoRepository) UpdateDetails(ctx context.Context, id uint, update PhotoDetailsUpdate) error {
	if update.IsEmpty() {
		return ErrNoFieldsToUpdate
	}

	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Photo{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check photo %d: %w", id, err)
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}

		updates := map[string]interface{}{
			"updated_at": time.Now().Unix(),
		}
		if update.DateTaken != nil {
			if d := normalizeDate(update.DateTaken); d != nil {
				updates["date_taken"] = *d
			} else {
				updates["date_taken"] = nil
			}
		}
		if update.Location != nil {
			updates["location"] = strings.TrimSpace(*update.Location)
		}
		if update.Photographer != nil {
			photographerID, err := r.Photographers.WithTx(tx).Resolve(ctx, *update.Photographer)
			if err != nil {
				return fmt.Errorf("failed to resolve photographer for photo %d: %w", id, err)
			}
			if photographerID != nil {
				updates["photographer_id"] = *photographerID
			} else {
				updates["photographer_id"] = nil
			}
		}

		result := tx.Model(&models.Photo{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to update details for photo %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// Approve flips a pending photo to approved. Repeating it is a no-op.
func (r *PhotoRepository) Approve(ctx context.Context, id uint) (ApproveResult, error) {
	result := r.DB.WithContext(ctx).Model(&models.Photo{}).
		Where("id = ? AND (approved IS NULL OR approved = ?)", id, false).
		Updates(map[string]interface{}{
			"approved":   true,
			"updated_at": time.Now().Unix(),
		})
	if result.Error != nil {
		return "", fmt.Errorf("failed to approve photo %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return AlreadyApprovedOrMissing, nil
	}
	return Approved, nil
}

// Delete removes a photo and all of its species links in one transaction and
// returns the stored image location so the caller can clean up the asset.
func (r *PhotoRepository) Delete(ctx context.Context, id uint) (string, error) {
	var imageLocation string
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ref ImageRef
		if err := tx.Model(&models.Photo{}).Select("id", "image_location").Where("id = ?", id).Take(&ref).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return fmt.Errorf("failed to read image location for photo %d: %w", id, err)
		}
		imageLocation = ref.ImageLocation

		if _, err := r.Links.WithTx(tx).UnlinkAll(ctx, id); err != nil {
			return err
		}

		result := tx.Delete(&models.Photo{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete photo %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return imageLocation, nil
}

// ListAISuggestions retrieves photos carrying an externally supplied species guess
func (r *PhotoRepository) ListAISuggestions(ctx context.Context) ([]models.AISuggestion, error) {
	var photos []models.Photo
	err := r.DB.WithContext(ctx).
		Select("id", "image_location", "ai_suggested_species").
		Where("ai_suggested_species IS NOT NULL AND ai_suggested_species != ''").
		Order("id DESC").
		Find(&photos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list AI species suggestions: %w", err)
	}

	suggestions := make([]models.AISuggestion, 0, len(photos))
	for _, p := range photos {
		suggestions = append(suggestions, models.AISuggestion{
			ID:                 p.ID,
			ImageURL:           database.ImageURL(r.ImageBaseURL, p.ImageLocation),
			SpeciesSuggestions: *p.AISuggestedSpecies,
		})
	}
	return suggestions, nil
}

// ListImageRefs retrieves the ID and image location of every photo
func (r *PhotoRepository) ListImageRefs(ctx context.Context) ([]ImageRef, error) {
	var refs []ImageRef
	err := r.DB.WithContext(ctx).Model(&models.Photo{}).Select("id", "image_location").Order("id ASC").Scan(&refs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list image locations: %w", err)
	}
	return refs, nil
}

// ExistsByImageLocation reports whether a photo already references location
func (r *PhotoRepository) ExistsByImageLocation(ctx context.Context, location string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.Photo{}).Where("image_location = ?", location).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check image location %s: %w", location, err)
	}
	return count > 0, nil
}

// normalizeDate stores recognised dates in the canonical layout and keeps
// anything else verbatim so the display layer can flag it as invalid
func normalizeDate(value *string) *string {
	v := trimmedOrNil(value)
	if v == nil {
		return nil
	}
	if t, err := database.ParseStoredDate(*v); err == nil {
		s := t.Format(database.StoredDateLayout)
		return &s
	}
	return v
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	s := strings.TrimSpace(*value)
	if s == "" {
		return nil
	}
	return &s
}

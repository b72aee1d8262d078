package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/camden-git/birdphotos/models"
)

// UnknownPhotographer is the sentinel name meaning "no photographer set"
const UnknownPhotographer = "Unknown"

// PhotographerRepository handles database operations for Photographer entities
type PhotographerRepository struct {
	DB *gorm.DB
}

// NewPhotographerRepository creates a new instance of PhotographerRepository
func NewPhotographerRepository(db *gorm.DB) *PhotographerRepository {
	return &PhotographerRepository{DB: db}
}

// IsUnsetPhotographer reports whether name means "no photographer"
func IsUnsetPhotographer(name string) bool {
	name = strings.TrimSpace(name)
	return name == "" || strings.EqualFold(name, UnknownPhotographer)
}

// Resolve maps a photographer name to a row ID, creating the row on first use.
// Blank names and the "Unknown" sentinel resolve to nil without touching the table.
func (r *PhotographerRepository) Resolve(ctx context.Context, name string) (*uint, error) {
	if IsUnsetPhotographer(name) {
		return nil, nil
	}
	name = strings.TrimSpace(name)
	photographer, _, err := resolveOrCreate(ctx, r.DB, "name_key", models.NameKey(name), func() *models.Photographer {
		return &models.Photographer{Name: name}
	})
	if err != nil {
		return nil, err
	}
	return &photographer.ID, nil
}

// WithTx returns a repository bound to the given transaction
func (r *PhotographerRepository) WithTx(tx *gorm.DB) *PhotographerRepository {
	return &PhotographerRepository{DB: tx}
}

package repository

import (
	"context"

	"github.com/camden-git/birdphotos/models"
)

// SpeciesRepositoryInterface defines the methods for species data operations
type SpeciesRepositoryInterface interface {
	GetByID(ctx context.Context, id uint) (*models.Species, error)
	FindByCommonName(ctx context.Context, commonName string) (*models.Species, error)
	ResolveOrCreate(ctx context.Context, candidate models.Species) (*models.Species, bool, error)
	UpdateMetadata(ctx context.Context, id uint, meta SpeciesMetadata) error
	ListMissingMetadata(ctx context.Context) ([]models.Species, error)
	ListForPhoto(ctx context.Context, photoID uint) ([]models.Species, error)
}

// LinkRepositoryInterface defines the methods for photo/species link operations
type LinkRepositoryInterface interface {
	Exists(ctx context.Context, photoID, speciesID uint) (bool, error)
	Link(ctx context.Context, photoID, speciesID uint) (LinkResult, error)
	Unlink(ctx context.Context, photoID, speciesID uint) (UnlinkResult, error)
	UnlinkAll(ctx context.Context, photoID uint) (int64, error)
	CountForPhoto(ctx context.Context, photoID uint) (int64, error)
}

// PhotoRepositoryInterface defines the methods for photo data operations
type PhotoRepositoryInterface interface {
	ListApproved(ctx context.Context, limit int) ([]models.PhotoView, error)
	ListPending(ctx context.Context) ([]models.PhotoView, error)
	GetByID(ctx context.Context, id uint) (*models.Photo, error)
	Create(ctx context.Context, in NewPhoto) (uint, error)
	UpdateDetails(ctx context.Context, id uint, update PhotoDetailsUpdate) error
	Approve(ctx context.Context, id uint) (ApproveResult, error)
	Delete(ctx context.Context, id uint) (string, error)
	ListAISuggestions(ctx context.Context) ([]models.AISuggestion, error)
	ListImageRefs(ctx context.Context) ([]ImageRef, error)
	ExistsByImageLocation(ctx context.Context, location string) (bool, error)
}

var (
	_ SpeciesRepositoryInterface = (*SpeciesRepository)(nil)
	_ LinkRepositoryInterface    = (*LinkRepository)(nil)
	_ PhotoRepositoryInterface   = (*PhotoRepository)(nil)
)

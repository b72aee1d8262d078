package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"github.com/camden-git/birdphotos/database"
	"github.com/camden-git/birdphotos/models"
	"github.com/camden-git/birdphotos/realtime"
	"github.com/camden-git/birdphotos/repository"
)

// SpeciesResolver maps a common name to a species ID
type SpeciesResolver interface {
	Resolve(ctx context.Context, commonName string) (uint, error)
}

// AssetRemover deletes stored image files
type AssetRemover interface {
	Delete(relativePath string) error
}

// EventPublisher receives review queue changes
type EventPublisher interface {
	Publish(event realtime.Event)
}

// CatalogService coordinates photo, species and link changes for handlers
type CatalogService struct {
	photos   repository.PhotoRepositoryInterface
	species  repository.SpeciesRepositoryInterface
	links    repository.LinkRepositoryInterface
	resolver SpeciesResolver
	assets   AssetRemover
	events   EventPublisher
}

// NewCatalogService creates a catalog service. assets may be nil when images
// are not stored locally.
func NewCatalogService(
	photos repository.PhotoRepositoryInterface,
	species repository.SpeciesRepositoryInterface,
	links repository.LinkRepositoryInterface,
	resolver SpeciesResolver,
	assets AssetRemover,
) *CatalogService {
	return &CatalogService{
		photos:   photos,
		species:  species,
		links:    links,
		resolver: resolver,
		assets:   assets,
	}
}

// WithEvents makes the service publish every change it applies
func (s *CatalogService) WithEvents(events EventPublisher) *CatalogService {
	s.events = events
	return s
}

func (s *CatalogService) publish(event realtime.Event) {
	if s.events != nil {
		s.events.Publish(event)
	}
}

// TagSpecies links the named species to a photo, creating the species if needed
func (s *CatalogService) TagSpecies(ctx context.Context, photoID uint, commonName string) (repository.LinkResult, uint, error) {
	if strings.TrimSpace(commonName) == "" {
		return "", 0, ErrInvalidName
	}
	if _, err := s.photos.GetByID(ctx, photoID); err != nil {
		return "", 0, err
	}

	speciesID, err := s.resolver.Resolve(ctx, commonName)
	if err != nil {
		return "", 0, err
	}

	// the photo may have been deleted while the species was resolved; Link
	// then reports gorm.ErrRecordNotFound instead of leaving an orphan
	result, err := s.links.Link(ctx, photoID, speciesID)
	if err != nil {
		return "", 0, err
	}
	if result == repository.LinkCreated {
		s.publish(realtime.Event{Type: realtime.EventSpeciesTagged, PhotoID: photoID, SpeciesID: speciesID, CommonName: strings.TrimSpace(commonName)})
	}
	return result, speciesID, nil
}

// UntagSpecies removes the named species from a photo without creating anything
func (s *CatalogService) UntagSpecies(ctx context.Context, photoID uint, commonName string) (repository.UnlinkResult, error) {
	if strings.TrimSpace(commonName) == "" {
		return "", ErrInvalidName
	}

	species, err := s.species.FindByCommonName(ctx, commonName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repository.UnlinkNotFound, ErrSpeciesNotFound
		}
		return "", err
	}

	result, err := s.links.Unlink(ctx, photoID, species.ID)
	if err != nil {
		return "", err
	}
	if result == repository.UnlinkNotFound {
		return result, ErrLinkNotFound
	}
	s.publish(realtime.Event{Type: realtime.EventSpeciesUntagged, PhotoID: photoID, SpeciesID: species.ID, CommonName: species.CommonName})
	return result, nil
}

// SpeciesForPhoto lists the species linked to an existing photo
func (s *CatalogService) SpeciesForPhoto(ctx context.Context, photoID uint) ([]models.Species, error) {
	if _, err := s.photos.GetByID(ctx, photoID); err != nil {
		return nil, err
	}
	return s.species.ListForPhoto(ctx, photoID)
}

// AddPhoto stores a new pending photo
func (s *CatalogService) AddPhoto(ctx context.Context, in repository.NewPhoto) (uint, error) {
	if strings.TrimSpace(in.ImageLocation) == "" {
		return 0, ErrMissingImage
	}
	id, err := s.photos.Create(ctx, in)
	if err != nil {
		return 0, err
	}
	s.publish(realtime.Event{Type: realtime.EventPhotoAdded, PhotoID: id})
	return id, nil
}

// UpdatePhotoDetails applies a partial update to a photo's details
func (s *CatalogService) UpdatePhotoDetails(ctx context.Context, id uint, update repository.PhotoDetailsUpdate) error {
	if err := s.photos.UpdateDetails(ctx, id, update); err != nil {
		return err
	}
	s.publish(realtime.Event{Type: realtime.EventPhotoUpdated, PhotoID: id})
	return nil
}

// ApprovePhoto moves a pending photo into the gallery. Approving twice is a no-op.
func (s *CatalogService) ApprovePhoto(ctx context.Context, id uint) (repository.ApproveResult, error) {
	result, err := s.photos.Approve(ctx, id)
	if err != nil {
		return "", err
	}
	if result == repository.Approved {
		s.publish(realtime.Event{Type: realtime.EventPhotoApproved, PhotoID: id, Status: string(result)})
	}
	return result, nil
}

// DeletePhoto removes a photo with its links, then deletes its local image.
// A failed image cleanup is logged but does not fail the call.
func (s *CatalogService) DeletePhoto(ctx context.Context, id uint) error {
	location, err := s.photos.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete photo %d: %w", id, err)
	}

	if s.assets != nil && database.IsLocalImageKey(location) {
		if err := s.assets.Delete(location); err != nil {
			log.Printf("Warning: catalog: photo %d deleted but image %s could not be removed: %v", id, location, err)
		}
	}
	s.publish(realtime.Event{Type: realtime.EventPhotoDeleted, PhotoID: id})
	return nil
}

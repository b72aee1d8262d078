package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/camden-git/birdphotos/database"
	"github.com/camden-git/birdphotos/models"
	"github.com/camden-git/birdphotos/repository"
	"github.com/camden-git/birdphotos/services"
)

// maxGalleryLimit caps the limit query parameter of the public gallery
const maxGalleryLimit = 500

// Catalog is the service layer the photo and species handlers call
type Catalog interface {
	TagSpecies(ctx context.Context, photoID uint, commonName string) (repository.LinkResult, uint, error)
	UntagSpecies(ctx context.Context, photoID uint, commonName string) (repository.UnlinkResult, error)
	SpeciesForPhoto(ctx context.Context, photoID uint) ([]models.Species, error)
	AddPhoto(ctx context.Context, in repository.NewPhoto) (uint, error)
	UpdatePhotoDetails(ctx context.Context, id uint, update repository.PhotoDetailsUpdate) error
	ApprovePhoto(ctx context.Context, id uint) (repository.ApproveResult, error)
	DeletePhoto(ctx context.Context, id uint) error
}

var _ Catalog = (*services.CatalogService)(nil)

type PhotoHandler struct {
	Photos  repository.PhotoRepositoryInterface
	Catalog Catalog
}

func NewPhotoHandler(photos repository.PhotoRepositoryInterface, catalog Catalog) *PhotoHandler {
	return &PhotoHandler{Photos: photos, Catalog: catalog}
}

// ListPhotos serves the public gallery of approved photos
func (h *PhotoHandler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	limit := database.DefaultGallerySize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(v, maxGalleryLimit)
	}

	photos, err := h.Photos.ListApproved(r.Context(), limit)
	if err != nil {
		log.Printf("Error listing approved photos: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch photos")
		return
	}
	writeJSON(w, http.StatusOK, photos)
}

// ListPendingPhotos serves the admin review queue
func (h *PhotoHandler) ListPendingPhotos(w http.ResponseWriter, r *http.Request) {
	photos, err := h.Photos.ListPending(r.Context())
	if err != nil {
		log.Printf("Error listing pending photos: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch pending photos")
		return
	}
	writeJSON(w, http.StatusOK, photos)
}

// ListAISuggestions serves photos that arrived with an automatic species guess
func (h *PhotoHandler) ListAISuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.Photos.ListAISuggestions(r.Context())
	if err != nil {
		log.Printf("Error listing AI species suggestions: %v", err)
		writeError(w, http.StatusInternalServerError, "Error fetching AI species suggestions")
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

type photoDetailsRequest struct {
	PhotoID      PhotoID `json:"photo_id"`
	DateTaken    *string `json:"date_taken"`
	Location     *string `json:"location"`
	Photographer *string `json:"photographer"`
}

// UpdatePhotoDetails changes only the fields present in the request
func (h *PhotoHandler) UpdatePhotoDetails(w http.ResponseWriter, r *http.Request) {
	var req photoDetailsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.PhotoID == 0 {
		writeError(w, http.StatusBadRequest, "photo_id is required")
		return
	}

	update := repository.PhotoDetailsUpdate{
		DateTaken:    req.DateTaken,
		Location:     req.Location,
		Photographer: req.Photographer,
	}
	err := h.Catalog.UpdatePhotoDetails(r.Context(), uint(req.PhotoID), update)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Photo details updated"})
	case errors.Is(err, repository.ErrNoFieldsToUpdate):
		writeError(w, http.StatusBadRequest, "No fields to update")
	case errors.Is(err, gorm.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "Photo not found")
	default:
		log.Printf("Error updating details for photo %d: %v", req.PhotoID, err)
		writeError(w, http.StatusInternalServerError, "Failed to update photo details")
	}
}

type photoIDRequest struct {
	PhotoID PhotoID `json:"photo_id"`
}

// ApprovePhoto moves a photo from the review queue to the gallery
func (h *PhotoHandler) ApprovePhoto(w http.ResponseWriter, r *http.Request) {
	var req photoIDRequest
	if err := decodeJSON(w, r, &req); err != nil || req.PhotoID == 0 {
		writeError(w, http.StatusBadRequest, "photo_id is required")
		return
	}

	result, err := h.Catalog.ApprovePhoto(r.Context(), uint(req.PhotoID))
	if err != nil {
		log.Printf("Error approving photo %d: %v", req.PhotoID, err)
		writeError(w, http.StatusInternalServerError, "Failed to approve photo")
		return
	}

	message := "Photo approved"
	if result == repository.AlreadyApprovedOrMissing {
		message = "Photo was already approved or does not exist"
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": message, "status": string(result)})
}

// DeletePhoto removes a photo, its species links and its stored image
func (h *PhotoHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	var req photoIDRequest
	if err := decodeJSON(w, r, &req); err != nil || req.PhotoID == 0 {
		writeError(w, http.StatusBadRequest, "photo_id is required")
		return
	}

	err := h.Catalog.DeletePhoto(r.Context(), uint(req.PhotoID))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Photo deleted"})
	case errors.Is(err, gorm.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "Photo not found")
	default:
		log.Printf("Error deleting photo %d: %v", req.PhotoID, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete photo")
	}
}

type addPhotoRequest struct {
	ImageURL           string   `json:"image_url"`
	DateTaken          *string  `json:"date_taken"`
	Location           string   `json:"location"`
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	Photographer       string   `json:"photographer"`
	SpeciesSuggestions *string  `json:"species_suggestions"`
}

// AddPhoto is the ingestion endpoint; photos arrive pending review
func (h *PhotoHandler) AddPhoto(w http.ResponseWriter, r *http.Request) {
	var req addPhotoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if strings.TrimSpace(req.ImageURL) == "" {
		writeError(w, http.StatusBadRequest, "image_url is required")
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		writeError(w, http.StatusBadRequest, "latitude and longitude must be supplied together")
		return
	}

	id, err := h.Catalog.AddPhoto(r.Context(), repository.NewPhoto{
		ImageLocation:      req.ImageURL,
		DateTaken:          req.DateTaken,
		Location:           req.Location,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
		PhotographerName:   req.Photographer,
		AISuggestedSpecies: req.SpeciesSuggestions,
	})
	if err != nil {
		if errors.Is(err, services.ErrMissingImage) {
			writeError(w, http.StatusBadRequest, "image_url is required")
			return
		}
		log.Printf("Error adding photo %s: %v", req.ImageURL, err)
		writeError(w, http.StatusInternalServerError, "Failed to add photo")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"photo_id": id, "message": "Photo added for review"})
}

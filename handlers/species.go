package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/camden-git/birdphotos/repository"
	"github.com/camden-git/birdphotos/services"
)

// Suggester answers type-ahead species name queries
type Suggester interface {
	Suggest(prefix string, limit int) []string
}

type SpeciesHandler struct {
	Catalog   Catalog
	Suggester Suggester
	Limit     int
}

func NewSpeciesHandler(catalog Catalog, suggester Suggester, limit int) *SpeciesHandler {
	return &SpeciesHandler{Catalog: catalog, Suggester: suggester, Limit: limit}
}

// Suggestions returns common names matching the query parameter
func (h *SpeciesHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	writeJSON(w, http.StatusOK, h.Suggester.Suggest(query, h.Limit))
}

type speciesRequest struct {
	PhotoID    PhotoID `json:"photo_id"`
	CommonName string  `json:"common_name"`
}

func (h *SpeciesHandler) decodeSpeciesRequest(w http.ResponseWriter, r *http.Request) (speciesRequest, bool) {
	var req speciesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return req, false
	}
	req.CommonName = strings.TrimSpace(req.CommonName)
	if req.PhotoID == 0 || req.CommonName == "" {
		writeError(w, http.StatusBadRequest, "photo_id and common_name are required")
		return req, false
	}
	return req, true
}

// UpdateSpecies tags a photo with a species, creating the species on first use
func (h *SpeciesHandler) UpdateSpecies(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSpeciesRequest(w, r)
	if !ok {
		return
	}

	result, speciesID, err := h.Catalog.TagSpecies(r.Context(), uint(req.PhotoID), req.CommonName)
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "Photo not found")
		return
	case errors.Is(err, services.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "common_name is required")
		return
	default:
		log.Printf("Error tagging photo %d with '%s': %v", req.PhotoID, req.CommonName, err)
		writeError(w, http.StatusInternalServerError, "Failed to update species")
		return
	}

	message := "Species added to photo"
	if result == repository.LinkAlreadyExisted {
		message = "Species already linked to photo"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    message,
		"status":     string(result),
		"species_id": speciesID,
	})
}

// RemoveSpecies removes a species tag from a photo
func (h *SpeciesHandler) RemoveSpecies(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSpeciesRequest(w, r)
	if !ok {
		return
	}

	_, err := h.Catalog.UntagSpecies(r.Context(), uint(req.PhotoID), req.CommonName)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Species removed from photo"})
	case errors.Is(err, services.ErrSpeciesNotFound):
		writeError(w, http.StatusNotFound, "Species not found")
	case errors.Is(err, services.ErrLinkNotFound):
		writeError(w, http.StatusNotFound, "Species is not linked to this photo")
	case errors.Is(err, services.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "common_name is required")
	default:
		log.Printf("Error removing '%s' from photo %d: %v", req.CommonName, req.PhotoID, err)
		writeError(w, http.StatusInternalServerError, "Failed to remove species")
	}
}

// PhotoSpecies lists the species tagged on one photo
func (h *SpeciesHandler) PhotoSpecies(w http.ResponseWriter, r *http.Request) {
	photoID, err := parseID(chi.URLParam(r, "photo_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid photo id")
		return
	}

	species, err := h.Catalog.SpeciesForPhoto(r.Context(), photoID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "Photo not found")
			return
		}
		log.Printf("Error listing species for photo %d: %v", photoID, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch species")
		return
	}
	writeJSON(w, http.StatusOK, species)
}

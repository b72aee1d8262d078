package services

import "errors"

var (
	// ErrInvalidName is returned for blank species names
	ErrInvalidName = errors.New("species name must not be blank")
	// ErrSpeciesNotFound is returned when untagging a species that was never created
	ErrSpeciesNotFound = errors.New("species not found")
	// ErrLinkNotFound is returned when untagging a species the photo does not carry
	ErrLinkNotFound = errors.New("species is not linked to this photo")
	// ErrMissingImage is returned when a new photo has no image location
	ErrMissingImage = errors.New("image location is required")
)

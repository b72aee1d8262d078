package models

// PhotoView is the denormalized read model served to the gallery and the admin queue.
type PhotoView struct {
	ID                 uint     `json:"id"`
	ImageURL           string   `json:"image_url"`
	DateTaken          string   `json:"date_taken"`
	Location           string   `json:"location"`
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	Approved           bool     `json:"approved"`
	Photographer       string   `json:"photographer"`
	SpeciesNames       string   `json:"species_names"`
	AISuggestedSpecies *string  `json:"ai_suggested_species,omitempty"`
}

// AISuggestion is a pending photo carrying an externally supplied species guess.
type AISuggestion struct {
	ID                 uint   `json:"id"`
	ImageURL           string `json:"image_url"`
	SpeciesSuggestions string `json:"species_suggestions"`
}

// Package taxonomy loads the eBird reference taxonomy and answers species
// name suggestions and metadata lookups from it.
package taxonomy

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// ErrNotFound is returned when a common name has no taxonomy entry
var ErrNotFound = errors.New("species not found in taxonomy")

const (
	StatusExtinct    = "Extinct"
	StatusNotExtinct = "Not Extinct"

	// DefaultSuggestionLimit caps suggestion lists when the caller passes no limit
	DefaultSuggestionLimit = 7

	// minQueryLength is the shortest trimmed prefix that produces suggestions
	minQueryLength = 2
)

// Entry is a single row of the eBird taxonomy
type Entry struct {
	ScientificName string `json:"sciName"`
	CommonName     string `json:"comName"`
	SpeciesCode    string `json:"speciesCode"`
	Category       string `json:"category"`
	Order          string `json:"order"`
	FamilyComName  string `json:"familyComName"`
	FamilySciName  string `json:"familySciName"`
	Extinct        bool   `json:"extinct,omitempty"`
}

// Details is the metadata copied onto a species row
type Details struct {
	ScientificName string
	Family         string
	Order          string
	Status         string
}

// DetailsFromEntry maps an eBird entry onto species metadata. Family is the
// family's common name.
func DetailsFromEntry(e Entry) Details {
	status := StatusNotExtinct
	if e.Extinct {
		status = StatusExtinct
	}
	return Details{
		ScientificName: e.ScientificName,
		Family:         e.FamilyComName,
		Order:          e.Order,
		Status:         status,
	}
}

// Source fetches the complete taxonomy. Client is the production implementation.
type Source interface {
	FetchTaxonomy(ctx context.Context) ([]Entry, error)
}

// Index maps lowercased common names to their metadata
type Index map[string]Details

// NewIndex builds an Index from taxonomy entries. The first entry wins when
// two share a common name.
func NewIndex(entries []Entry) Index {
	idx := make(Index, len(entries))
	for _, e := range entries {
		key := normalizeName(e.CommonName)
		if key == "" {
			continue
		}
		if _, exists := idx[key]; !exists {
			idx[key] = DetailsFromEntry(e)
		}
	}
	return idx
}

// Lookup finds metadata by case-insensitive common name
func (idx Index) Lookup(commonName string) (Details, bool) {
	d, ok := idx[normalizeName(commonName)]
	return d, ok
}

// normalizeName applies the same full case folding as the species identity key
func normalizeName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// Config holds configuration for the eBird client
type Config struct {
	APIKey       string
	BaseURL      string
	Locale       string
	Timeout      time.Duration
	CacheTTL     time.Duration
	RateLimit    float64 // requests per second
	MaxRetries   int
	RetryBackoff time.Duration // multiplied by the attempt number
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://api.ebird.org/v2",
		Locale:       "en",
		Timeout:      15 * time.Second,
		CacheTTL:     24 * time.Hour, // taxonomy rarely changes
		RateLimit:    10,
		MaxRetries:   3,
		RetryBackoff: time.Second,
	}
}

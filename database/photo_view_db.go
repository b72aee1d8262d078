package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/facette/natsort"
	"gorm.io/gorm"

	"github.com/camden-git/birdphotos/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

const (
	UnknownLabel       = "Unknown"
	UnknownDateLabel   = "Unknown date"
	InvalidDateLabel   = "Invalid date"
	DisplayDateLayout  = "2 January 2006"
	StoredDateLayout   = "2006-01-02 15:04:05"
	DefaultGallerySize = 100

	// speciesSeparator is the ASCII unit separator, which never appears in a common name
	speciesSeparator = "\x1f"
)

// accepted layouts for date_taken, most specific first
var dateLayouts = []string{
	StoredDateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006:01:02 15:04:05", // raw EXIF
	"2006-01-02",
}

// PhotoViewFilter selects which photos ListPhotoViews returns
type PhotoViewFilter struct {
	Approved bool
	Limit    uint64 // 0 means no limit
	Random   bool   // random order instead of newest first
}

type photoViewRow struct {
	ID                 uint     `gorm:"column:id"`
	ImageLocation      string   `gorm:"column:image_location"`
	DateTaken          *string  `gorm:"column:date_taken"`
	Location           *string  `gorm:"column:location"`
	Latitude           *float64 `gorm:"column:latitude"`
	Longitude          *float64 `gorm:"column:longitude"`
	Approved           *bool    `gorm:"column:approved"`
	AISuggestedSpecies *string  `gorm:"column:ai_suggested_species"`
	PhotographerName   *string  `gorm:"column:photographer_name"`
	SpeciesList        *string  `gorm:"column:species_list"`
}

// buildPhotoViewQuery joins photos with photographer and linked species,
// aggregating species names into one column per photo
func buildPhotoViewQuery(filter PhotoViewFilter) sq.SelectBuilder {
	qb := psql.Select(
		"p.id", "p.image_location", "p.date_taken", "p.location",
		"p.latitude", "p.longitude", "p.approved", "p.ai_suggested_species",
		"ph.name AS photographer_name",
		"GROUP_CONCAT(s.common_name, char(31)) AS species_list",
	).
		From("bird_photos p").
		LeftJoin("photographers ph ON ph.id = p.photographer_id").
		LeftJoin("bird_photo_species ps ON ps.photo_id = p.id").
		LeftJoin("bird_species s ON s.id = ps.species_id").
		GroupBy("p.id")

	if filter.Approved {
		qb = qb.Where(sq.Eq{"p.approved": true})
	} else {
		qb = qb.Where(sq.Or{sq.Eq{"p.approved": false}, sq.Eq{"p.approved": nil}})
	}

	if filter.Random {
		qb = qb.OrderBy("RANDOM()")
	} else {
		qb = qb.OrderBy("p.id DESC")
	}

	if filter.Limit > 0 {
		qb = qb.Limit(filter.Limit)
	}
	return qb
}

// ListPhotoViews runs the gallery/admin read query and builds display rows
func ListPhotoViews(ctx context.Context, db *gorm.DB, filter PhotoViewFilter, imageBaseURL string) ([]models.PhotoView, error) {
	sqlStr, args, err := buildPhotoViewQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for ListPhotoViews: %w", err)
	}

	var rows []photoViewRow
	if err := db.WithContext(ctx).Raw(sqlStr, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query photo views: %w", err)
	}

	views := make([]models.PhotoView, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.toView(imageBaseURL))
	}
	return views, nil
}

func (row photoViewRow) toView(imageBaseURL string) models.PhotoView {
	view := models.PhotoView{
		ID:                 row.ID,
		ImageURL:           ImageURL(imageBaseURL, row.ImageLocation),
		DateTaken:          FormatDisplayDate(row.DateTaken),
		Location:           UnknownLabel,
		Latitude:           row.Latitude,
		Longitude:          row.Longitude,
		Approved:           row.Approved != nil && *row.Approved,
		Photographer:       UnknownLabel,
		SpeciesNames:       JoinSpeciesNames(row.SpeciesList),
		AISuggestedSpecies: row.AISuggestedSpecies,
	}
	if row.Location != nil && strings.TrimSpace(*row.Location) != "" {
		view.Location = *row.Location
	}
	if row.PhotographerName != nil && *row.PhotographerName != "" {
		view.Photographer = *row.PhotographerName
	}
	return view
}

// JoinSpeciesNames turns the aggregated species column into the display list
func JoinSpeciesNames(aggregated *string) string {
	if aggregated == nil || *aggregated == "" {
		return UnknownLabel
	}
	names := strings.Split(*aggregated, speciesSeparator)
	sort.Slice(names, func(i, j int) bool {
		return natsort.Compare(strings.ToLower(names[i]), strings.ToLower(names[j]))
	})
	return strings.Join(names, ", ")
}

// ParseStoredDate parses a date_taken value in any accepted layout
func ParseStoredDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// FormatDisplayDate renders date_taken as "2 January 2006" or a sentinel label
func FormatDisplayDate(value *string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return UnknownDateLabel
	}
	t, err := ParseStoredDate(*value)
	if err != nil {
		return InvalidDateLabel
	}
	return t.Format(DisplayDateLayout)
}

// ImageURL resolves a stored image location to something a browser can load.
// Absolute URLs and rooted paths pass through, media store keys get the public prefix.
func ImageURL(baseURL, location string) string {
	if location == "" {
		return ""
	}
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") || strings.HasPrefix(location, "/") {
		return location
	}
	return strings.TrimRight(baseURL, "/") + "/" + location
}

// IsLocalImageKey reports whether a stored location refers to the local media store
func IsLocalImageKey(location string) bool {
	return location != "" &&
		!strings.HasPrefix(location, "http://") &&
		!strings.HasPrefix(location, "https://") &&
		!strings.HasPrefix(location, "/") &&
		!strings.Contains(location, "..")
}

package utils

import (
	"fmt"
	"log"
	"math"
	"os"

	"github.com/rwcarlsen/goexif/exif"
)

// StoredDateLayout is how capture dates are written to the catalog
const StoredDateLayout = "2006-01-02 15:04:05"

// PhotoMetadata holds what the import pipeline reads from an image file
type PhotoMetadata struct {
	DateTaken *string  `json:"date_taken,omitempty"` // StoredDateLayout
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// GetPhotoMetadata reads the capture date and GPS position. A file without
// EXIF is not an error; the metadata is empty then.
func GetPhotoMetadata(filePath string) (*PhotoMetadata, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("metadata: failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	meta := &PhotoMetadata{}
	exifData, err := exif.Decode(file)
	if err != nil {
		log.Printf("metadata: No EXIF data found in %s: %v", filePath, err)
		return meta, nil
	}

	// DateTime prefers DateTimeOriginal and falls back to DateTime
	if dt, err := exifData.DateTime(); err == nil {
		s := dt.Format(StoredDateLayout)
		meta.DateTaken = &s
	}

	if lat, long, err := exifData.LatLong(); err == nil && validCoordinate(lat, long) {
		meta.Latitude = &lat
		meta.Longitude = &long
	}

	return meta, nil
}

func validCoordinate(lat, long float64) bool {
	if math.IsNaN(lat) || math.IsNaN(long) {
		return false
	}
	return lat >= -90 && lat <= 90 && long >= -180 && long <= 180
}

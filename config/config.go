package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPhotosSubDir = "photos"
)

const (
	defaultPort              = "3000"
	defaultSuggestionLimit   = 7
	defaultTaxonomyTimeout   = 15 * time.Second
	defaultTaxonomyCacheTTL  = 24 * time.Hour
	defaultImportQueueSize   = 200
	defaultNumImportWorkers  = 4
	defaultImportMaxSize     = 2048
	defaultSessionMaxAgeSecs = 3600
	defaultGeocoderTimeout   = 10 * time.Second
)

type Config struct {
	Port string

	// database
	DatabasePath string
	DBLogLevel   string

	// media storage configuration
	MediaStoragePath string // root for stored photo files
	PhotosSubDir     string // photos directory name below MediaStoragePath
	PhotosPath       string // full-calculated path for photos
	ImageBaseURL     string // public prefix prepended to relative image keys

	// taxonomy reference (eBird)
	SpeciesCachePath string
	EBirdAPIKey      string
	EBirdBaseURL     string
	EBirdLocale      string
	TaxonomyTimeout  time.Duration
	TaxonomyCacheTTL time.Duration
	SuggestionLimit  int

	// admin session
	AdminPasswordHash string
	SessionSecret     string
	SessionPath       string
	SessionSecure     bool
	SessionMaxAge     int

	// shared secret for the ingestion pipeline
	IngestSecret string

	CORSOrigins []string

	// import pipeline
	ImportQueueSize  int
	NumImportWorkers int
	ImportMaxSize    int

	// reverse geocoding of imported GPS positions (Nominatim)
	GeocoderEnabled   bool
	GeocoderURL       string
	GeocoderUserAgent string
	GeocoderTimeout   time.Duration
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvDurationOrDefault(envVar string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %s. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %t. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func LoadConfig() (Config, error) {
	dbPath := getEnvOrDefault("DATABASE_PATH", "birds.db")

	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	photosSubDir := filepath.Clean(getEnvOrDefault("PHOTOS_SUBDIR", DefaultPhotosSubDir))
	if filepath.IsAbs(photosSubDir) || photosSubDir == "." || strings.HasPrefix(photosSubDir, "..") {
		return Config{}, fmt.Errorf("PHOTOS_SUBDIR must be a relative directory inside MEDIA_STORAGE_PATH, got '%s'", photosSubDir)
	}
	absPhotosPath := filepath.Join(absMediaStorage, photosSubDir)

	adminHash := os.Getenv("ADMIN_PASSWORD_HASH")
	if adminHash == "" {
		if plain := os.Getenv("ADMIN_PASSWORD"); plain != "" {
			hash, err := HashPassword(plain)
			if err != nil {
				return Config{}, fmt.Errorf("failed to hash ADMIN_PASSWORD: %w", err)
			}
			adminHash = hash
		} else {
			log.Printf("Warning: neither ADMIN_PASSWORD_HASH nor ADMIN_PASSWORD is set; admin login is disabled")
		}
	}

	cfg := Config{
		Port:              getEnvOrDefault("PORT", defaultPort),
		DatabasePath:      dbPath,
		DBLogLevel:        getEnvOrDefault("DB_LOG_LEVEL", "warn"),
		MediaStoragePath:  absMediaStorage,
		PhotosSubDir:      photosSubDir,
		PhotosPath:        absPhotosPath,
		ImageBaseURL:      strings.TrimRight(getEnvOrDefault("IMAGE_BASE_URL", "/images"), "/"),
		SpeciesCachePath:  getEnvOrDefault("SPECIES_CACHE_PATH", "species_cache.json"),
		EBirdAPIKey:       os.Getenv("EBIRD_API_KEY"),
		EBirdBaseURL:      getEnvOrDefault("EBIRD_BASE_URL", "https://api.ebird.org/v2"),
		EBirdLocale:       getEnvOrDefault("EBIRD_LOCALE", "en"),
		TaxonomyTimeout:   getEnvDurationOrDefault("TAXONOMY_TIMEOUT", defaultTaxonomyTimeout),
		TaxonomyCacheTTL:  getEnvDurationOrDefault("TAXONOMY_CACHE_TTL", defaultTaxonomyCacheTTL),
		SuggestionLimit:   getEnvIntOrDefault("SUGGESTION_LIMIT", defaultSuggestionLimit),
		AdminPasswordHash: adminHash,
		SessionSecret:     os.Getenv("SESSION_SECRET"),
		SessionPath:       getEnvOrDefault("SESSION_PATH", filepath.Join(os.TempDir(), "birdphotos-sessions")),
		SessionSecure:     getEnvBoolOrDefault("SESSION_SECURE", false),
		SessionMaxAge:     defaultSessionMaxAgeSecs,
		IngestSecret:      os.Getenv("INGEST_SECRET"),
		CORSOrigins:       splitList(getEnvOrDefault("CORS_ORIGINS", "http://localhost:3000")),
		ImportQueueSize:   getEnvIntOrDefault("IMPORT_QUEUE_SIZE", defaultImportQueueSize),
		NumImportWorkers:  getEnvIntOrDefault("IMPORT_WORKERS", defaultNumImportWorkers),
		ImportMaxSize:     getEnvIntOrDefault("IMPORT_MAX_SIZE", defaultImportMaxSize),
		GeocoderEnabled:   getEnvBoolOrDefault("GEOCODER_ENABLED", true),
		GeocoderURL:       getEnvOrDefault("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
		GeocoderUserAgent: getEnvOrDefault("GEOCODER_USER_AGENT", "birdphotos"),
		GeocoderTimeout:   getEnvDurationOrDefault("GEOCODER_TIMEOUT", defaultGeocoderTimeout),
	}

	return cfg, nil
}

// ValidateServer checks the settings only the HTTP server needs
func (c Config) ValidateServer() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET must be set")
	}
	if len(c.SessionSecret) < 16 {
		log.Printf("Warning: SESSION_SECRET is shorter than 16 characters")
	}
	if c.IngestSecret == "" {
		log.Printf("Warning: INGEST_SECRET is not set; /api/add-photo will reject every request")
	}
	return nil
}

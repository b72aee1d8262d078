package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gorm.io/gorm"

	"github.com/camden-git/birdphotos/config"
	"github.com/camden-git/birdphotos/database"
	"github.com/camden-git/birdphotos/media"
	"github.com/camden-git/birdphotos/repository"
	"github.com/camden-git/birdphotos/services"
	"github.com/camden-git/birdphotos/taxonomy"
)

// app holds everything the subcommands share
type app struct {
	cfg      config.Config
	db       *gorm.DB
	store    *media.LocalStorage
	taxonomy *taxonomy.Client
	names    *taxonomy.Cache
	photos   *repository.PhotoRepository
	species  *repository.SpeciesRepository
	links    *repository.LinkRepository
	catalog  *services.CatalogService
}

func loadApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	storagePaths := []string{cfg.PhotosPath, filepath.Dir(cfg.DatabasePath), filepath.Dir(cfg.SpeciesCachePath)}
	for _, p := range storagePaths {
		log.Printf("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", p, err)
		}
	}

	db, err := database.Open(cfg.DatabasePath, database.ParseLogLevel(cfg.DBLogLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	store, err := media.NewLocalStorage(cfg.MediaStoragePath, map[media.AssetType]string{
		media.AssetTypePhoto: cfg.PhotosSubDir,
	})
	if err != nil {
		database.Close(db)
		return nil, fmt.Errorf("failed to initialize media store: %w", err)
	}

	taxCfg := taxonomy.DefaultConfig()
	taxCfg.APIKey = cfg.EBirdAPIKey
	taxCfg.BaseURL = cfg.EBirdBaseURL
	taxCfg.Locale = cfg.EBirdLocale
	taxCfg.Timeout = cfg.TaxonomyTimeout
	taxCfg.CacheTTL = cfg.TaxonomyCacheTTL
	if cfg.EBirdAPIKey == "" {
		log.Printf("Warning: EBIRD_API_KEY is not set; taxonomy requests may be rejected")
	}
	client := taxonomy.NewClient(taxCfg, nil)
	names := taxonomy.NewCache(client, cfg.SpeciesCachePath)

	photos := repository.NewPhotoRepository(db, cfg.ImageBaseURL)
	species := repository.NewSpeciesRepository(db)
	links := repository.NewLinkRepository(db)
	reconciler := services.NewSpeciesReconciler(species, names, services.DefaultLookupTimeout)

	return &app{
		cfg:      cfg,
		db:       db,
		store:    store,
		taxonomy: client,
		names:    names,
		photos:   photos,
		species:  species,
		links:    links,
		catalog:  services.NewCatalogService(photos, species, links, reconciler, store),
	}, nil
}

func (a *app) Close() {
	database.Close(a.db)
}

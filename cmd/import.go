package cmd

import (
	"encoding/json"
	"log"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/camden-git/birdphotos/geocode"
	"github.com/camden-git/birdphotos/media"
	"github.com/camden-git/birdphotos/workers"
)

func newImportCmd() *cobra.Command {
	var (
		dir        string
		prune      bool
		numWorkers int
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a folder of photos into the review queue",
		Long: `Scans a directory for JPEG and PNG files and adds every image that is
not catalogued yet as a pending photo. Each image is resized into the media
store and its EXIF date and GPS position are recorded. GPS positions are
named through Nominatim reverse geocoding unless GEOCODER_ENABLED=false.

With --prune, photos from earlier imports whose file is no longer in the
directory are deleted together with their species tags.`,
		Example: `  birdphotos import --dir ./incoming
  birdphotos import --dir ./incoming --prune --workers 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if numWorkers <= 0 {
				numWorkers = a.cfg.NumImportWorkers
			}
			var locations workers.LocationResolver
			if a.cfg.GeocoderEnabled {
				geoCfg := geocode.DefaultConfig()
				geoCfg.BaseURL = a.cfg.GeocoderURL
				geoCfg.UserAgent = a.cfg.GeocoderUserAgent
				geoCfg.Timeout = a.cfg.GeocoderTimeout
				locations = geocode.NewClient(geoCfg, nil)
			} else {
				log.Printf("Reverse geocoding disabled; imported photos keep an unknown location")
			}
			importer := workers.NewFolderImporter(a.photos, a.catalog, media.NewProcessor(a.store), workers.ImportConfig{
				PhotoDir: filepath.ToSlash(a.cfg.PhotosSubDir),
				Options: media.ImageProcessingOptions{
					MaxSize: a.cfg.ImportMaxSize,
					Quality: media.DefaultPhotoQuality,
				},
				QueueSize:  a.cfg.ImportQueueSize,
				NumWorkers: numWorkers,
				Locations:  locations,
			})

			report, err := importer.Run(cmd.Context(), dir, prune)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory containing the photos to import")
	cmd.Flags().BoolVar(&prune, "prune", false, "Delete imported photos whose file is no longer in the directory")
	cmd.Flags().IntVarP(&numWorkers, "workers", "w", 0, "Number of import workers (defaults to IMPORT_WORKERS)")
	_ = cmd.MarkFlagRequired("dir")

	return cmd
}

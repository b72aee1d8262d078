package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/camden-git/birdphotos/handlers"
	"github.com/camden-git/birdphotos/realtime"
)

// localImageRoute is used when IMAGE_BASE_URL points at another host
const localImageRoute = "/images"

// species list warm-up retry schedule
const (
	warmupBackoff    = 30 * time.Second
	warmupMaxBackoff = 10 * time.Minute
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gallery and admin API server",
		Long: `Starts the HTTP server for the public gallery, the admin review API
and the ingestion endpoint. The species name list is loaded in the
background so the server accepts requests right away.`,
		Example: `  # Start server on the configured PORT (default 3000)
  birdphotos serve

  # Start server on a custom port
  birdphotos serve --port 8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.cfg.ValidateServer(); err != nil {
				return err
			}
			if port == "" {
				port = a.cfg.Port
			}

			go func() {
				names, err := a.names.LoadWithRetry(cmd.Context(), 2*a.cfg.TaxonomyTimeout, warmupBackoff, warmupMaxBackoff)
				if err != nil {
					log.Printf("Warning: species list never loaded: %v", err)
					return
				}
				log.Printf("Loaded %d species names for suggestions", len(names))
			}()

			sessionStore, err := handlers.NewSessionStore(a.cfg)
			if err != nil {
				return err
			}

			hub := realtime.NewHub(a.cfg.CORSOrigins)
			go hub.Run(cmd.Context())
			a.catalog.WithEvents(hub)

			imageRoute := localImageRoute
			if strings.HasPrefix(a.cfg.ImageBaseURL, "/") {
				imageRoute = a.cfg.ImageBaseURL
			}

			router := handlers.NewRouter(handlers.RouterConfig{
				Photos:       handlers.NewPhotoHandler(a.photos, a.catalog),
				Species:      handlers.NewSpeciesHandler(a.catalog, a.names, a.cfg.SuggestionLimit),
				Auth:         handlers.NewAuthHandler(sessionStore, a.cfg.AdminPasswordHash),
				Sessions:     sessionStore,
				Assets:       a.store,
				Events:       hub,
				ImageRoute:   imageRoute,
				IngestSecret: a.cfg.IngestSecret,
				CORSOrigins:  a.cfg.CORSOrigins,
			})

			log.Printf("Using database: %s", a.cfg.DatabasePath)
			log.Printf("Storing photos in: %s", a.cfg.PhotosPath)
			log.Printf("Serving stored images at %s/*", imageRoute)

			addr := ":" + port
			server := &http.Server{
				Addr:         addr,
				Handler:      router,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 70 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				log.Printf("Server listening on %s", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				log.Printf("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Printf("Server shutdown failed: %v", err)
					return err
				}
				log.Printf("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (defaults to PORT)")

	return cmd
}

package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/rs/cors"
)

// requestTimeout bounds every request, including taxonomy lookups made while tagging
const requestTimeout = 60 * time.Second

// EventStream upgrades a request to a stream of review events
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// RouterConfig wires the handlers into one chi router
type RouterConfig struct {
	Photos       *PhotoHandler
	Species      *SpeciesHandler
	Auth         *AuthHandler
	Sessions     sessions.Store
	Assets       AssetResolver
	Events       EventStream // optional
	ImageRoute   string // public prefix for stored images, e.g. "/images"
	IngestSecret string
	CORSOrigins  []string
}

// NewRouter builds the HTTP handler for the whole service
func NewRouter(rc RouterConfig) http.Handler {
	r := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   rc.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", IngestSecretHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	// long-lived websocket, kept out of the request timeout
	if rc.Events != nil {
		r.With(RequireSession(rc.Sessions)).Get("/api/events", rc.Events.ServeWS)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/login", rc.Auth.Login)
		r.Post("/logout", rc.Auth.Logout)

		r.Route("/api", func(r chi.Router) {
			r.Get("/photos", rc.Photos.ListPhotos)
			r.Get("/species-suggestions", rc.Species.Suggestions)

			r.With(RequireIngestSecret(rc.IngestSecret)).Post("/add-photo", rc.Photos.AddPhoto)

			r.Group(func(r chi.Router) {
				r.Use(RequireSession(rc.Sessions))

				r.Get("/pending-photos", rc.Photos.ListPendingPhotos)
				r.Get("/species-suggestions-ai", rc.Photos.ListAISuggestions)
				r.Get("/photos/{photo_id}/species", rc.Species.PhotoSpecies)

				r.Post("/update-species", rc.Species.UpdateSpecies)
				r.Post("/remove-species", rc.Species.RemoveSpecies)
				r.Post("/update-photo-details", rc.Photos.UpdatePhotoDetails)
				r.Post("/approve-photo", rc.Photos.ApprovePhoto)
				r.Post("/delete-photo", rc.Photos.DeletePhoto)
			})
		})

		if rc.Assets != nil && rc.ImageRoute != "" {
			r.Get(rc.ImageRoute+"/*", AssetServer(rc.Assets, rc.ImageRoute))
		}
	})

	return r
}

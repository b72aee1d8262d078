package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/camden-git/birdphotos/media"
)

// assetCacheDuration is how long browsers may cache served images
const assetCacheDuration = 24 * time.Hour

// AssetResolver maps a media store key to a file on disk
type AssetResolver interface {
	GetFullPath(relativePath string) (string, error)
}

// AssetServer serves stored images. routePrefix is the public prefix the
// router mounts it under (e.g. "/images"); the rest of the path is the media
// store key.
//
//	r.Get("/images/*", AssetServer(store, "/images"))
func AssetServer(store AssetResolver, routePrefix string) http.HandlerFunc {
	prefix := strings.TrimRight(routePrefix, "/") + "/"
	log.Printf("Serving stored images under '%s*'", prefix)

	return func(w http.ResponseWriter, r *http.Request) {
		relativePath := strings.TrimPrefix(r.URL.Path, prefix)
		if relativePath == "" || relativePath == r.URL.Path || strings.Contains(relativePath, "..") {
			http.Error(w, "Invalid asset path", http.StatusBadRequest)
			return
		}

		fullPath, err := store.GetFullPath(relativePath)
		if err != nil {
			if errors.Is(err, media.ErrInvalidPath) {
				log.Printf("SECURITY: Rejected asset request outside media storage: %s", r.URL.Path)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		info, err := os.Stat(fullPath)
		if os.IsNotExist(err) || (err == nil && info.IsDir()) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			log.Printf("Error stating asset file %s: %v", fullPath, err)
			return
		}

		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(assetCacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(assetCacheDuration).Format(http.TimeFormat))

		http.ServeFile(w, r, fullPath)
	}
}

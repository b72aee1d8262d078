package handlers

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
)

// IngestSecretHeader carries the shared secret of the ingestion pipeline
const IngestSecretHeader = "X-Ingest-Secret"

// RequireSession rejects requests without an admin session. Browsers are sent
// to the login page, API clients get a 401.
func RequireSession(store sessions.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsLoggedIn(store, r) {
				next.ServeHTTP(w, r)
				return
			}
			if strings.Contains(r.Header.Get("Accept"), "text/html") {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			writeError(w, http.StatusUnauthorized, "Unauthorized")
		})
	}
}

// RequireIngestSecret only lets requests through whose X-Ingest-Secret header
// matches secret. An empty secret rejects everything.
func RequireIngestSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(IngestSecretHeader)
			if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				log.Printf("auth: rejected ingestion request from %s", r.RemoteAddr)
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

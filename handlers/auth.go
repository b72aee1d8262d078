package handlers

import (
	"crypto/sha256"
	"fmt"
	"log"
	"mime"
	"net/http"
	"os"

	"github.com/gorilla/sessions"

	"github.com/camden-git/birdphotos/config"
)

const (
	// SessionName is the cookie name of the admin session
	SessionName = "birdphotos_session"

	sessionLoggedInKey = "loggedIn"
)

// createSessionKey derives a 32-byte key from the configured secret
func createSessionKey(seed string) []byte {
	sum := sha256.Sum256([]byte(seed))
	return sum[:]
}

// buildSessionOptions returns the cookie settings for admin sessions
func buildSessionOptions(secure bool, maxAge int) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewSessionStore creates the server-side session store under cfg.SessionPath
func NewSessionStore(cfg config.Config) (*sessions.FilesystemStore, error) {
	if err := os.MkdirAll(cfg.SessionPath, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory %s: %w", cfg.SessionPath, err)
	}
	store := sessions.NewFilesystemStore(
		cfg.SessionPath,
		createSessionKey(cfg.SessionSecret),
		createSessionKey(cfg.SessionSecret+"encryption"),
	)
	store.Options = buildSessionOptions(cfg.SessionSecure, cfg.SessionMaxAge)
	// the cookie codecs enforce the age too, not just the browser
	store.MaxAge(cfg.SessionMaxAge)
	log.Printf("Session store configured at %s (max age %ds, secure %t)", cfg.SessionPath, cfg.SessionMaxAge, cfg.SessionSecure)
	return store, nil
}

// AuthHandler handles admin login and logout
type AuthHandler struct {
	Store        sessions.Store
	PasswordHash string
}

func NewAuthHandler(store sessions.Store, passwordHash string) *AuthHandler {
	return &AuthHandler{Store: store, PasswordHash: passwordHash}
}

type LoginPayload struct {
	Password string `json:"password"`
}

// Login accepts the admin password as JSON or as a form field
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload LoginPayload
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := decodeJSON(w, r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid form data")
			return
		}
		payload.Password = r.PostFormValue("password")
	}

	if !config.CheckPassword(h.PasswordHash, payload.Password) {
		log.Printf("auth: failed login attempt from %s", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "Invalid password")
		return
	}

	// a stale or tampered cookie still yields a fresh session to write into
	session, _ := h.Store.Get(r, SessionName)
	session.Values[sessionLoggedInKey] = true
	if err := session.Save(r, w); err != nil {
		log.Printf("auth: failed to save session: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout ends the admin session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.Store.Get(r, SessionName)
	delete(session.Values, sessionLoggedInKey)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		log.Printf("auth: failed to clear session: %v", err)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// IsLoggedIn reports whether the request carries a valid admin session
func IsLoggedIn(store sessions.Store, r *http.Request) bool {
	session, err := store.Get(r, SessionName)
	if err != nil || session == nil {
		return false
	}
	loggedIn, _ := session.Values[sessionLoggedInKey].(bool)
	return loggedIn
}

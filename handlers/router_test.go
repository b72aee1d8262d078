package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/birdphotos/config"
	"github.com/camden-git/birdphotos/database"
	"github.com/camden-git/birdphotos/database/dbtest"
	"github.com/camden-git/birdphotos/media"
	"github.com/camden-git/birdphotos/models"
	"github.com/camden-git/birdphotos/realtime"
	"github.com/camden-git/birdphotos/repository"
	"github.com/camden-git/birdphotos/services"
)

const (
	testPassword     = "correct horse"
	testIngestSecret = "ingest-123"
)

type staticSuggester []string

func (s staticSuggester) Suggest(prefix string, limit int) []string {
	if len(strings.TrimSpace(prefix)) < 2 {
		return []string{}
	}
	var out []string
	for _, name := range s {
		if strings.Contains(strings.ToLower(name), strings.ToLower(prefix)) && len(out) < limit {
			out = append(out, name)
		}
	}
	return out
}

type testServer struct {
	handler http.Handler
	photos  *repository.PhotoRepository
	store   *media.LocalStorage
	hub     *realtime.Hub
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	db := dbtest.Open(t)

	store, err := media.NewLocalStorage(t.TempDir(), map[media.AssetType]string{media.AssetTypePhoto: "photos"})
	require.NoError(t, err)

	hash, err := config.HashPassword(testPassword)
	require.NoError(t, err)

	sessionStore, err := NewSessionStore(config.Config{
		SessionPath:   filepath.Join(t.TempDir(), "sessions"),
		SessionSecret: "test-session-secret",
		SessionMaxAge: 3600,
	})
	require.NoError(t, err)

	photos := repository.NewPhotoRepository(db, "/images")
	species := repository.NewSpeciesRepository(db)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := realtime.NewHub(nil)
	go hub.Run(ctx)

	catalog := services.NewCatalogService(photos, species, repository.NewLinkRepository(db),
		services.NewSpeciesReconciler(species, nil, time.Second), store).WithEvents(hub)

	handler := NewRouter(RouterConfig{
		Photos:       NewPhotoHandler(photos, catalog),
		Species:      NewSpeciesHandler(catalog, staticSuggester{"Egret", "Pigeon", "Snowy Egret"}, 7),
		Auth:         NewAuthHandler(sessionStore, hash),
		Sessions:     sessionStore,
		Assets:       store,
		Events:       hub,
		ImageRoute:   "/images",
		IngestSecret: testIngestSecret,
		CORSOrigins:  []string{"http://localhost:3000"},
	})
	return testServer{handler: handler, photos: photos, store: store, hub: hub}
}

func (s testServer) do(t *testing.T, method, target string, body interface{}, cookies []*http.Cookie, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s testServer) login(t *testing.T) []*http.Cookie {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/login", map[string]string{"password": testPassword}, nil, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func (s testServer) addPhoto(t *testing.T, body map[string]interface{}) uint {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/add-photo", body, nil, map[string]string{IngestSecretHeader: testIngestSecret})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		PhotoID uint `json:"photo_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotZero(t, resp.PhotoID)
	return resp.PhotoID
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", nil, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/login", map[string]string{"password": "wrong"}, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid password"}`, rec.Body.String())

	form := url.Values{"password": {testPassword}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	formRec := httptest.NewRecorder()
	s.handler.ServeHTTP(formRec, req)
	assert.Equal(t, http.StatusSeeOther, formRec.Code)
	assert.NotEmpty(t, formRec.Result().Cookies())
}

func TestLogoutEndsSession(t *testing.T) {
	s := newTestServer(t)
	cookies := s.login(t)

	rec := s.do(t, http.MethodGet, "/api/pending-photos", nil, cookies, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/logout", nil, cookies, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = s.do(t, http.MethodGet, "/api/pending-photos", nil, cookies, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/pending-photos", nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/pending-photos", nil, nil, map[string]string{"Accept": "text/html,application/xhtml+xml"})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = s.do(t, http.MethodPost, "/api/approve-photo", map[string]int{"photo_id": 1}, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/events", nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAddPhotoRequiresIngestSecret(t *testing.T) {
	s := newTestServer(t)
	body := map[string]interface{}{"image_url": "https://cdn.example/a.jpg"}

	rec := s.do(t, http.MethodPost, "/api/add-photo", body, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/add-photo", body, nil, map[string]string{IngestSecretHeader: "nope"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/add-photo", map[string]interface{}{"location": "Goa"}, nil,
		map[string]string{IngestSecretHeader: testIngestSecret})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.addPhoto(t, body)
}

func TestSpeciesSuggestions(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/species-suggestions?query=eg", nil, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	decodeBody(t, rec, &names)
	assert.Equal(t, []string{"Egret", "Snowy Egret"}, names)

	rec = s.do(t, http.MethodGet, "/api/species-suggestions?query=e", nil, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestUpdateAndRemoveSpecies(t *testing.T) {
	s := newTestServer(t)
	cookies := s.login(t)
	id := s.addPhoto(t, map[string]interface{}{"image_url": "photos/a.jpg"})

	rec := s.do(t, http.MethodPost, "/api/update-species", map[string]interface{}{"photo_id": id, "common_name": "Snowy Egret"}, cookies, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first struct {
		Status    string `json:"status"`
		SpeciesID uint   `json:"species_id"`
	}
	decodeBody(t, rec, &first)
	assert.Equal(t, string(repository.LinkCreated), first.Status)

	// photo_id as a string, name in another case
	rec = s.do(t, http.MethodPost, "/api/update-species", map[string]interface{}{"photo_id": fmt.Sprint(id), "common_name": "snowy egret"}, cookies, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var second struct {
		Status    string `json:"status"`
		SpeciesID uint   `json:"species_id"`
	}
	decodeBody(t, rec, &second)
	assert.Equal(t, string(repository.LinkAlreadyExisted), second.Status)
	assert.Equal(t, first.SpeciesID, second.SpeciesID)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/photos/%d/species", id), nil, cookies, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var linked []models.Species
	decodeBody(t, rec, &linked)
	require.Len(t, linked, 1)
	assert.Equal(t, "Snowy Egret", linked[0].CommonName)

	rec = s.do(t, http.MethodPost, "/api/update-species", map[string]interface{}{"photo_id": 999, "common_name": "Snowy Egret"}, cookies, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/update-species", map[string]interface{}{"photo_id": id, "common_name": "  "}, cookies, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/remove-species", map[string]interface{}{"photo_id": id, "common_name": "Dodo"}, cookies, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/remove-species", map[string]interface{}{"photo_id": id, "common_name": "SNOWY EGRET"}, cookies, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/remove-species", map[string]interface{}{"photo_id": id, "common_name": "Snowy Egret"}, cookies, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdatePhotoDetails(t *testing.T) {
	s := newTestServer(t)
	cookies := s.login(t)
	id := s.addPhoto(t, map[string]interface{}{"image_url": "photos/a.jpg", "location": "Goa", "photographer": "Ana Ruiz"})

	rec := s.do(t, http.MethodPost, "/api/update-photo-details", map[string]interface{}{"location": "Pune"}, cookies, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/update-photo-details", map[string]interface{}{"photo_id": id}, cookies, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/update-photo-details", map[string]interface{}{"photo_id": 999, "location": "x"}, cookies, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/update-photo-details", map[string]interface{}{"photo_id": id, "date_taken": "2024-03-05"}, cookies, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/pending-photos", nil, cookies, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []models.PhotoView
	decodeBody(t, rec, &pending)
	require.Len(t, pending, 1)
	assert.Equal(t, "Goa", pending[0].Location)
	assert.Equal(t, "Ana Ruiz", pending[0].Photographer)
	assert.Equal(t, "5 March 2024", pending[0].DateTaken)
}

func TestApproveAndDeleteFlow(t *testing.T) {
	s := newTestServer(t)
	cookies := s.login(t)
	id := s.addPhoto(t, map[string]interface{}{
		"image_url":           "photos/heron.jpg",
		"species_suggestions": "Grey Heron",
	})

	rec := s.do(t, http.MethodGet, "/api/species-suggestions-ai", nil, cookies, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ai []models.AISuggestion
	decodeBody(t, rec, &ai)
	require.Len(t, ai, 1)
	assert.Equal(t, "Grey Heron", ai[0].SpeciesSuggestions)
	assert.Equal(t, "/images/photos/heron.jpg", ai[0].ImageURL)

	rec = s.do(t, http.MethodPost, "/api/approve-photo", map[string]interface{}{}, cookies, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/approve-photo", map[string]interface{}{"photo_id": id}, cookies, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"approved"`)

	rec = s.do(t, http.MethodPost, "/api/approve-photo", map[string]interface{}{"photo_id": id}, cookies, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"already_approved_or_missing"`)

	rec = s.do(t, http.MethodGet, "/api/photos?limit=10", nil, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var gallery []models.PhotoView
	decodeBody(t, rec, &gallery)
	require.Len(t, gallery, 1)
	assert.Equal(t, database.UnknownLabel, gallery[0].SpeciesNames)

	rec = s.do(t, http.MethodGet, "/api/photos?limit=abc", nil, nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/delete-photo", map[string]interface{}{"photo_id": id}, cookies, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/delete-photo", map[string]interface{}{"photo_id": id}, cookies, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/photos", nil, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAssetServer(t *testing.T) {
	s := newTestServer(t)
	key, err := s.store.Save(media.AssetTypePhoto, "heron.jpg", strings.NewReader("jpeg"))
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/images/"+key, nil, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age=86400")

	rec = s.do(t, http.MethodGet, "/images/photos/missing.jpg", nil, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/images/photos", nil, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionStoreOptions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "s")
	store, err := NewSessionStore(config.Config{SessionPath: dir, SessionSecret: "x", SessionMaxAge: 3600, SessionSecure: true})
	require.NoError(t, err)

	_, err = os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, &sessions.Options{
		Path:     "/",
		MaxAge:   3600,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}, store.Options)
}

func TestSessionStoreRejectsExpiredCookies(t *testing.T) {
	store, err := NewSessionStore(config.Config{SessionPath: t.TempDir(), SessionSecret: "x", SessionMaxAge: 1})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	session, err := store.Get(req, SessionName)
	require.NoError(t, err)
	session.Values[sessionLoggedInKey] = true
	require.NoError(t, session.Save(req, rec))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	withCookies := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		for _, c := range cookies {
			r.AddCookie(c)
		}
		return r
	}
	assert.True(t, IsLoggedIn(store, withCookies()))

	// a client that ignores the cookie expiry keeps replaying it
	time.Sleep(2100 * time.Millisecond)
	assert.False(t, IsLoggedIn(store, withCookies()))
}

func TestEventsStreamReportsApproval(t *testing.T) {
	s := newTestServer(t)
	cookies := s.login(t)
	id := s.addPhoto(t, map[string]interface{}{"image_url": "photos/a.jpg"})

	server := httptest.NewServer(s.handler)
	t.Cleanup(server.Close)

	header := http.Header{}
	for _, c := range cookies {
		header.Add("Cookie", c.Name+"="+c.Value)
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/events", header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	rec := s.do(t, http.MethodPost, "/api/approve-photo", map[string]interface{}{"photo_id": id}, cookies, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	// the photo_added event may still be in flight when the socket registers
	var event realtime.Event
	for event.Type != realtime.EventPhotoApproved {
		require.NoError(t, conn.ReadJSON(&event))
	}
	assert.Equal(t, id, event.PhotoID)
}

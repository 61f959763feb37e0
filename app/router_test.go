package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bitwise74/media-api/config"
	"bitwise74/media-api/db"
	"bitwise74/media-api/internal"
	"bitwise74/media-api/internal/cache"
	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/internal/service"
	"bitwise74/media-api/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// 1x1 gif used as stored media
var pixel = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

type server struct {
	t      *testing.T
	deps   *internal.Deps
	router *gin.Engine
}

func newServer(t *testing.T) *server {
	t.Helper()

	gin.SetMode(gin.TestMode)
	config.SetDefaults()
	viper.Set("security.rate_limit", 0)
	viper.Set("upload.max_size", 1<<20)

	database, err := db.Open("sqlite", ":memory:")
	require.NoError(t, err)

	d := internal.Build(database, storage.NewLocalFs(afero.NewMemMapFs()), cache.NewTiered(nil, time.Minute, time.Hour), internal.Settings{
		Layout: service.Layout{
			SiteURL:    "https://example.com",
			UploadsURL: "https://example.com/uploads",
		},
		JWTSecret:     "test-secret",
		ShowIndicator: true,
	})
	d.Argon.Memory = 1024
	d.Argon.Iterations = 1
	t.Cleanup(d.Close)

	return &server{t: t, deps: d, router: NewRouter(d)}
}

func (s *server) user(email string, role model.Role) *model.User {
	s.t.Helper()

	u, err := service.CreateUser(context.Background(), s.deps.DB, s.deps.Argon, email, "password123", role)
	require.NoError(s.t, err)
	return u
}

func (s *server) media(ownerID, rel string) *model.File {
	s.t.Helper()

	ctx := context.Background()
	_, err := s.deps.Store.Write(ctx, rel, bytes.NewReader(pixel), "image/gif")
	require.NoError(s.t, err)

	f := &model.File{
		UserID:            ownerID,
		StoragePath:       rel,
		OriginalName:      "photo.gif",
		MimeType:          "image/gif",
		Size:              int64(len(pixel)),
		Meta:              datatypes.NewJSONType(model.Metadata{File: rel, Width: 1, Height: 1}),
		OriginalSizePaths: datatypes.NewJSONType(map[string]string{}),
		URLMap:            datatypes.NewJSONType(map[string]string{}),
		UsedIn:            model.IDSet{},
	}
	require.NoError(s.t, s.deps.DB.Create(f).Error)
	return f
}

func (s *server) do(method, target, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = httptest.NewRequest(method, target, bytes.NewReader(b))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}

	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	return w
}

func (s *server) login(email string) string {
	s.t.Helper()

	w := s.do(http.MethodPost, "/api/users/login", "", gin.H{"email": email, "password": "password123"})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())

	var res struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotEmpty(s.t, res.Token)
	return res.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestLogin(t *testing.T) {
	s := newServer(t)
	s.user("admin@example.com", model.RoleAdministrator)

	w := s.do(http.MethodPost, "/api/users/login", "", gin.H{"email": "admin@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/users/login", "", gin.H{"email": "nobody@example.com", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/users/login", "", gin.H{"email": "admin@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Values("Set-Cookie")[0], "auth_token=")
}

func TestRestrictAndServe(t *testing.T) {
	s := newServer(t)
	owner := s.user("author@example.com", model.RoleAuthor)
	s.user("reader@example.com", model.RoleSubscriber)

	f := s.media(owner.ID, "2024/03/photo.gif")
	token := s.login("author@example.com")

	w := s.do(http.MethodPatch, "/api/media/1/restrict", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPatch, "/api/media/1/restrict", s.login("reader@example.com"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPatch, "/api/media/1/restrict", token, gin.H{"restrict": true, "update_post": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	res := decode(t, w)
	assert.Equal(t, "File has been successfully restricted", res["message"])
	assert.Equal(t, "restricted", res["status"])

	stored := s.deps.DB.Where("id = ?", f.ID).First(f)
	require.NoError(t, stored.Error)
	h := f.Hash()
	require.NotEmpty(t, h)

	protectedURL := "https://example.com/protected-files/" + h
	assert.Equal(t, protectedURL, res["data"].(map[string]any)["url"])
	assert.Equal(t, "author@example.com", mustUser(t, s, f.RestrictAudit.Data().UserID).Email)

	w = s.do(http.MethodPatch, "/api/media/1/restrict", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "File is already restricted", decode(t, w)["message"])

	w = s.do(http.MethodGet, "/api/media/1/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, true, status["is_restricted"])
	assert.Equal(t, true, status["exists"])
	assert.Equal(t, protectedURL, status["url"])

	// anonymous callers get the placeholder
	w = s.do(http.MethodGet, "/protected-files/"+h, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))
	assert.Equal(t, service.Placeholder, w.Body.Bytes())
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
	assert.Empty(t, w.Header().Get("Content-Disposition"))

	// logged in callers get the file
	w = s.do(http.MethodGet, "/protected-files/"+h, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pixel, w.Body.Bytes())
	assert.Equal(t, `inline; filename="`+h+`"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")

	// the protected tree is never served publicly
	w = s.do(http.MethodGet, "/uploads/.protected/2024/03/"+h, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/protected-files/0123abcd", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/media/1", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/media", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["total"])

	// restore
	w = s.do(http.MethodPatch, "/api/media/1/restrict?restrict=false", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "File has been successfully unrestricted", decode(t, w)["message"])

	w = s.do(http.MethodGet, "/uploads/2024/03/photo.gif", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pixel, w.Body.Bytes())

	// legacy URLs are off, an unrestricted file is not served through its hash
	w = s.do(http.MethodGet, "/protected-files/"+h, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func mustUser(t *testing.T, s *server, id string) *model.User {
	t.Helper()

	var u model.User
	require.NoError(t, s.deps.DB.Where("id = ?", id).First(&u).Error)
	return &u
}

func TestRestrictBadInput(t *testing.T) {
	s := newServer(t)
	s.user("admin@example.com", model.RoleAdministrator)
	token := s.login("admin@example.com")

	w := s.do(http.MethodPatch, "/api/media/abc/restrict", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPatch, "/api/media/9/restrict", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	f := s.media("someone", "2024/03/gone.gif")
	require.NoError(t, s.deps.Store.Delete(context.Background(), f.StoragePath))

	w = s.do(http.MethodPatch, "/api/media/1/restrict", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "The attached file does not exist on the server", decode(t, w)["error"])

	w = s.do(http.MethodPatch, "/api/media/1/restrict?restrict=maybe", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContentLifecycle(t *testing.T) {
	s := newServer(t)
	owner := s.user("editor@example.com", model.RoleEditor)
	token := s.login("editor@example.com")
	s.media(owner.ID, "2024/03/photo.gif")

	body := `<img src="https://example.com/uploads/2024/03/photo.gif">`

	w := s.do(http.MethodPost, "/api/content", token, gin.H{"title": "Hello", "body": body})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var f model.File
	require.NoError(t, s.deps.DB.Where("id = ?", 1).First(&f).Error)
	assert.Equal(t, model.IDSet{1}, f.UsedIn)

	w = s.do(http.MethodGet, "/api/content/1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	w = s.do(http.MethodGet, "/api/content/1", "", nil)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	// restricting rewrites the body and drops the cached render
	w = s.do(http.MethodPatch, "/api/media/1/restrict", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/content/1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Contains(t, w.Body.String(), "protected-files")
	assert.NotContains(t, w.Body.String(), "uploads/2024/03/photo.gif")

	w = s.do(http.MethodDelete, "/api/content/1", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	require.NoError(t, s.deps.DB.Where("id = ?", 1).First(&f).Error)
	assert.Empty(t, f.UsedIn)
}

func TestAdminReindex(t *testing.T) {
	s := newServer(t)
	s.user("admin@example.com", model.RoleAdministrator)
	s.user("author@example.com", model.RoleAuthor)

	w := s.do(http.MethodPost, "/api/admin/reindex", s.login("author@example.com"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	token := s.login("admin@example.com")

	w = s.do(http.MethodPost, "/api/admin/reindex", token, gin.H{"batch_size": 5000})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/admin/reindex", token, gin.H{"batch_size": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["success"])
}

func TestHeartbeat(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodHead, "/api/heartbeat", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "go_goroutines"))
}

func TestUploadsRevalidate(t *testing.T) {
	s := newServer(t)
	owner := s.user("owner@example.com", model.RoleAuthor)
	s.media(owner.ID, "2024/03/photo.gif")

	w := s.do(http.MethodGet, "/uploads/2024/03/photo.gif", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	r := httptest.NewRequest(http.MethodGet, "/uploads/2024/03/photo.gif", nil)
	r.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

package service

import (
	"context"
	"io"
	"path"
	"strings"
	"testing"
	"time"

	"bitwise74/media-api/db"
	"bitwise74/media-api/internal/cache"
	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/internal/storage"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	siteURL    = "https://example.com"
	uploadsURL = "https://example.com/uploads"
)

type recordingObserver struct {
	updated []uint
}

func (r *recordingObserver) ContentUpdated(_ context.Context, id uint) {
	r.updated = append(r.updated, id)
}

type env struct {
	ctx context.Context

	DB       *gorm.DB
	Store    storage.Storage
	Cache    *cache.Tiered
	IDs      *Identity
	URLs     *URLs
	Engine   *Engine
	Tracker  *Tracker
	Observer *recordingObserver
}

func newEnv(t *testing.T) *env {
	t.Helper()

	d, err := db.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := d.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store := storage.NewLocalFs(afero.NewMemMapFs())
	c := cache.NewTiered(nil, time.Minute, time.Hour)
	ids := NewIdentity(d, c, "test-secret")
	urls := NewURLs(Layout{SiteURL: siteURL, UploadsURL: uploadsURL}, d, ids, true)
	obs := &recordingObserver{}

	return &env{
		ctx:      context.Background(),
		DB:       d,
		Store:    store,
		Cache:    c,
		IDs:      ids,
		URLs:     urls,
		Engine:   NewEngine(d, store, ids, urls, obs),
		Tracker:  NewTracker(d, urls),
		Observer: obs,
	}
}

func (e *env) write(t *testing.T, p, data string) {
	t.Helper()
	_, err := e.Store.Write(e.ctx, p, strings.NewReader(data), "")
	require.NoError(t, err)
}

func (e *env) read(t *testing.T, p string) string {
	t.Helper()
	rc, _, err := e.Store.Open(e.ctx, p)
	require.NoError(t, err)
	defer rc.Close()

	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

// seedFile stores a primary at rel plus one file per variant name and
// creates the record
func (e *env) seedFile(t *testing.T, id uint, rel string, variants ...string) *model.File {
	t.Helper()

	dir := path.Dir(rel)
	e.write(t, rel, "primary:"+path.Base(rel))

	meta := model.Metadata{File: rel, Width: 2000, Height: 1500}
	for _, v := range variants {
		e.write(t, path.Join(dir, v), "variant:"+v)

		label := v
		if wh := sizeSuffix(v); wh != "" {
			label = wh
		}
		meta.Sizes = append(meta.Sizes, model.SizeVariant{Label: label, File: v, Width: 150, Height: 150, MimeType: "image/jpeg"})
	}

	f := &model.File{
		ID:                id,
		UserID:            "owner",
		StoragePath:       rel,
		OriginalName:      path.Base(rel),
		MimeType:          "image/jpeg",
		Size:              int64(len("primary:" + path.Base(rel))),
		Meta:              datatypes.NewJSONType(meta),
		OriginalSizePaths: datatypes.NewJSONType(map[string]string{}),
		URLMap:            datatypes.NewJSONType(map[string]string{}),
		UsedIn:            model.IDSet{},
	}
	require.NoError(t, e.DB.Create(f).Error)
	return f
}

func (e *env) seedContent(t *testing.T, body string) *model.Content {
	t.Helper()

	c := &model.Content{UserID: "owner", Type: "post", Title: "t", Body: body}
	require.NoError(t, e.DB.Create(c).Error)
	return c
}

func (e *env) file(t *testing.T, id uint) *model.File {
	t.Helper()

	var f model.File
	require.NoError(t, e.DB.Where("id = ?", id).First(&f).Error)
	return &f
}

func (e *env) content(t *testing.T, id uint) *model.Content {
	t.Helper()

	var c model.Content
	require.NoError(t, e.DB.Where("id = ?", id).First(&c).Error)
	return &c
}

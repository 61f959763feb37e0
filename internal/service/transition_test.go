package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var updateContent = TransitionOptions{UpdateContent: true}

func TestProtectScenario(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 42, "2024/03/photo.jpg", "photo-150x150.jpg")

	res, err := e.Engine.Protect(e.ctx, 42, updateContent)
	require.NoError(t, err)
	assert.Equal(t, ResultRestricted, res)

	f := e.file(t, 42)
	h := f.Hash()
	require.NotEmpty(t, h)

	assert.True(t, f.Restricted)
	assert.Equal(t, ".protected/2024/03/"+h, f.StoragePath)
	assert.Equal(t, ".protected/2024/03/"+h, f.Meta.Data().File)
	assert.Equal(t, h+"-150x150.jpg", f.Meta.Data().Sizes[0].File)

	assert.True(t, e.Store.Exists(e.ctx, ".protected/2024/03/"+h))
	assert.True(t, e.Store.Exists(e.ctx, ".protected/2024/03/"+h+"-150x150.jpg"))
	assert.False(t, e.Store.Exists(e.ctx, "2024/03/photo.jpg"))
	assert.False(t, e.Store.Exists(e.ctx, "2024/03/photo-150x150.jpg"))
	assert.Equal(t, "primary:photo.jpg", e.read(t, f.StoragePath))

	require.NotNil(t, f.OriginalPath)
	assert.Equal(t, "2024/03/photo.jpg", *f.OriginalPath)
	assert.Equal(t, "2024/03/photo-150x150.jpg", f.OriginalSizePaths.Data()["150x150"])

	assert.Equal(t, siteURL+"/protected-files/"+h, e.URLs.MediaURL(f))
}

func TestProtectIdempotent(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 1, "2024/03/photo.jpg", "photo-150x150.jpg")

	_, err := e.Engine.Protect(e.ctx, 1, updateContent)
	require.NoError(t, err)
	before := e.file(t, 1)

	res, err := e.Engine.Protect(e.ctx, 1, updateContent)
	require.NoError(t, err)
	assert.Equal(t, ResultNoChange, res)

	after := e.file(t, 1)
	assert.Equal(t, before.StoragePath, after.StoragePath)
	assert.Equal(t, before.Hash(), after.Hash())

	res, err = e.Engine.Unprotect(e.ctx, 1, updateContent)
	require.NoError(t, err)
	assert.Equal(t, ResultUnrestricted, res)

	res, err = e.Engine.Unprotect(e.ctx, 1, updateContent)
	require.NoError(t, err)
	assert.Equal(t, ResultNoChange, res)
}

func TestRoundTrip(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 5, "2024/03/photo.jpg", "photo-150x150.jpg", "photo-300x225.jpg")
	orig := e.file(t, 5)

	_, err := e.Engine.Protect(e.ctx, 5, updateContent)
	require.NoError(t, err)
	_, err = e.Engine.Unprotect(e.ctx, 5, updateContent)
	require.NoError(t, err)

	f := e.file(t, 5)
	assert.False(t, f.Restricted)
	assert.Nil(t, f.OriginalPath)
	assert.Empty(t, f.OriginalSizePaths.Data())
	assert.Equal(t, orig.StoragePath, f.StoragePath)
	assert.Equal(t, orig.Meta.Data().File, f.Meta.Data().File)
	assert.Equal(t, orig.Meta.Data().Sizes, f.Meta.Data().Sizes)

	for _, p := range []string{"2024/03/photo.jpg", "2024/03/photo-150x150.jpg", "2024/03/photo-300x225.jpg"} {
		assert.True(t, e.Store.Exists(e.ctx, p), p)
	}

	if entries, err := e.Store.List(e.ctx, ".protected/2024/03"); err == nil {
		assert.Empty(t, entries)
	}
}

func TestHashStableAcrossCycles(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 9, "2024/03/photo.jpg", "photo-150x150.jpg")

	_, err := e.Engine.Protect(e.ctx, 9, updateContent)
	require.NoError(t, err)
	h := e.file(t, 9).Hash()

	_, err = e.Engine.Unprotect(e.ctx, 9, updateContent)
	require.NoError(t, err)
	assert.Equal(t, h, e.file(t, 9).Hash())

	_, err = e.Engine.Protect(e.ctx, 9, updateContent)
	require.NoError(t, err)
	assert.Equal(t, h, e.file(t, 9).Hash())
	assert.Equal(t, ".protected/2024/03/"+h, e.file(t, 9).StoragePath)
}

func TestURLClosure(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 2, "2024/03/photo.jpg", "photo-150x150.jpg", "photo-300x225.jpg")

	before := e.URLs.Sizes(e.file(t, 2))
	primary := e.URLs.MediaURL(e.file(t, 2))

	_, err := e.Engine.Protect(e.ctx, 2, updateContent)
	require.NoError(t, err)

	f := e.file(t, 2)
	h := f.Hash()
	m := f.URLMap.Data()

	for _, v := range before {
		next, ok := m[v.URL]
		if assert.True(t, ok, v.URL) {
			assert.Contains(t, next, h)
		}
	}

	assert.Equal(t, siteURL+"/protected-files/"+h, m[primary])
	assert.Equal(t, siteURL+"/protected-files/"+h+"-150x150", m[uploadsURL+"/2024/03/photo-150x150.jpg"])

	// unprotect adds the reverse pairs without dropping the old ones
	_, err = e.Engine.Unprotect(e.ctx, 2, updateContent)
	require.NoError(t, err)

	m = e.file(t, 2).URLMap.Data()
	assert.Contains(t, m, primary)
	assert.Equal(t, primary, m[siteURL+"/protected-files/"+h])
}

func TestProtectRewritesContent(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 4, "2024/03/photo.jpg", "photo-150x150.jpg")

	oldURL := uploadsURL + "/2024/03/photo.jpg"
	oldThumb := uploadsURL + "/2024/03/photo-150x150.jpg"
	c := e.seedContent(t, `<p><img src="`+oldURL+`" srcset="`+oldThumb+` 150w"></p>`)

	_, _, err := e.Tracker.OnContentPersisted(e.ctx, c.ID)
	require.NoError(t, err)
	require.True(t, e.file(t, 4).UsedIn.Contains(c.ID))

	_, err = e.Engine.Protect(e.ctx, 4, updateContent)
	require.NoError(t, err)

	h := e.file(t, 4).Hash()
	body := e.content(t, c.ID).Body

	assert.NotContains(t, body, oldURL)
	assert.NotContains(t, body, oldThumb)
	assert.Contains(t, body, `src="`+siteURL+`/protected-files/`+h+`"`)
	assert.Contains(t, body, siteURL+"/protected-files/"+h+"-150x150 150w")
	assert.Equal(t, []uint{c.ID}, e.Observer.updated)

	_, err = e.Engine.Unprotect(e.ctx, 4, updateContent)
	require.NoError(t, err)

	body = e.content(t, c.ID).Body
	assert.Contains(t, body, `src="`+oldURL+`"`)
	assert.NotContains(t, body, "protected-files")
}

func TestProtectWithoutContentHooks(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 4, "2024/03/photo.jpg")
	c := e.seedContent(t, `<img src="`+uploadsURL+`/2024/03/photo.jpg">`)

	_, _, err := e.Tracker.OnContentPersisted(e.ctx, c.ID)
	require.NoError(t, err)

	_, err = e.Engine.Protect(e.ctx, 4, TransitionOptions{})
	require.NoError(t, err)

	assert.Contains(t, e.content(t, c.ID).Body, "protected-files")
	assert.Empty(t, e.Observer.updated)
}

func TestProtectMissingPrimaryFails(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 8, "2024/03/photo.jpg", "photo-150x150.jpg")
	require.NoError(t, e.Store.Delete(e.ctx, "2024/03/photo.jpg"))

	_, err := e.Engine.Protect(e.ctx, 8, updateContent)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransitionFailed))

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "move_primary", te.Step)
	assert.EqualValues(t, 8, te.MediaID)

	f := e.file(t, 8)
	assert.False(t, f.Restricted)
	assert.Equal(t, "2024/03/photo.jpg", f.StoragePath)
	assert.Nil(t, f.OriginalPath)
	assert.True(t, e.Store.Exists(e.ctx, "2024/03/photo-150x150.jpg"))
}

func TestTransitionUnknownMedia(t *testing.T) {
	e := newEnv(t)

	_, err := e.Engine.Protect(e.ctx, 404, updateContent)
	assert.ErrorIs(t, err, ErrMediaNotFound)

	_, err = e.Engine.SetRestricted(e.ctx, 404, false, updateContent)
	assert.ErrorIs(t, err, ErrMediaNotFound)
}

func TestProtectMissingMetadataFails(t *testing.T) {
	e := newEnv(t)
	e.write(t, "a.jpg", "x")
	require.NoError(t, e.DB.Create(&model.File{ID: 3, StoragePath: "a.jpg", UsedIn: model.IDSet{}}).Error)

	_, err := e.Engine.Protect(e.ctx, 3, updateContent)

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "metadata", te.Step)
	assert.True(t, e.Store.Exists(e.ctx, "a.jpg"))
}

func TestMissingVariantTolerated(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 6, "2024/03/photo.jpg", "photo-150x150.jpg", "photo-300x225.jpg")
	require.NoError(t, e.Store.Delete(e.ctx, "2024/03/photo-300x225.jpg"))

	res, err := e.Engine.Protect(e.ctx, 6, updateContent)
	require.NoError(t, err)
	assert.Equal(t, ResultRestricted, res)

	h := e.file(t, 6).Hash()
	assert.True(t, e.Store.Exists(e.ctx, ".protected/2024/03/"+h+"-150x150.jpg"))
}

func TestProtectConvergesAfterInterruptedRun(t *testing.T) {
	e := newEnv(t)
	f := e.seedFile(t, 11, "2024/03/photo.jpg", "photo-150x150.jpg")

	// a previous run assigned the hash and moved the primary, then died
	h, err := e.IDs.EnsureHash(e.ctx, f)
	require.NoError(t, err)
	require.NoError(t, e.Store.Move(e.ctx, "2024/03/photo.jpg", ".protected/2024/03/"+h))

	res, err := e.Engine.Protect(e.ctx, 11, updateContent)
	require.NoError(t, err)
	assert.Equal(t, ResultRestricted, res)

	got := e.file(t, 11)
	assert.Equal(t, ".protected/2024/03/"+h, got.StoragePath)
	assert.True(t, e.Store.Exists(e.ctx, ".protected/2024/03/"+h+"-150x150.jpg"))
}

func TestProtectScaledSibling(t *testing.T) {
	e := newEnv(t)
	f := e.seedFile(t, 12, "2024/03/big-scaled.jpg", "big-150x150.jpg")
	e.write(t, "2024/03/big.jpg", "unscaled")

	meta := f.Meta.Data()
	meta.OriginalImage = "big.jpg"
	require.NoError(t, e.DB.Model(f).Update("meta", datatypes.NewJSONType(meta)).Error)

	_, err := e.Engine.Protect(e.ctx, 12, updateContent)
	require.NoError(t, err)

	assert.True(t, e.Store.Exists(e.ctx, ".protected/2024/03/big.jpg"))
	assert.False(t, e.Store.Exists(e.ctx, "2024/03/big.jpg"))

	_, err = e.Engine.Unprotect(e.ctx, 12, updateContent)
	require.NoError(t, err)

	assert.Equal(t, "unscaled", e.read(t, "2024/03/big.jpg"))
	assert.True(t, e.Store.Exists(e.ctx, "2024/03/big-scaled.jpg"))
}

func TestUnprotectFindsLegacyFlatVariants(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 13, "2024/03/photo.jpg", "photo-150x150.jpg")

	_, err := e.Engine.Protect(e.ctx, 13, updateContent)
	require.NoError(t, err)
	h := e.file(t, 13).Hash()

	// older installs kept variants flat in the protected root
	require.NoError(t, e.Store.Move(e.ctx, ".protected/2024/03/"+h+"-150x150.jpg", ".protected/"+h+"-150x150.jpg"))

	_, err = e.Engine.Unprotect(e.ctx, 13, updateContent)
	require.NoError(t, err)

	assert.True(t, e.Store.Exists(e.ctx, "2024/03/photo-150x150.jpg"))
	assert.False(t, e.Store.Exists(e.ctx, ".protected/"+h+"-150x150.jpg"))
}

func TestProtectFlatUpload(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 14, "logo.png")

	_, err := e.Engine.Protect(e.ctx, 14, updateContent)
	require.NoError(t, err)

	f := e.file(t, 14)
	assert.Equal(t, ".protected/"+f.Hash(), f.StoragePath)
	assert.True(t, strings.HasPrefix(*f.OriginalPath, "logo"))
}

// racingStore commits a competing protect the first time a file is moved
type racingStore struct {
	storage.Storage
	race func()
}

func (r *racingStore) Move(ctx context.Context, src, dst string) error {
	if r.race != nil {
		r.race()
		r.race = nil
	}

	return r.Storage.Move(ctx, src, dst)
}

func TestProtectLosesRace(t *testing.T) {
	e := newEnv(t)
	e.seedFile(t, 13, "2024/03/photo.jpg")

	e.Engine.Store = &racingStore{Storage: e.Store, race: func() {
		require.NoError(t, e.DB.Model(&model.File{}).Where("id = ?", 13).UpdateColumn("restricted", true).Error)
	}}

	_, err := e.Engine.Protect(e.ctx, 13, updateContent)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConcurrentTransition)

	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "persist", te.Step)
}
